package version

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "recordvault/pkg/domain-errors"
)

func TestNext(t *testing.T) {
	cases := []struct {
		name    string
		current Label
		kind    Kind
		want    Label
	}{
		{"submit bumps draft counter", Label{0, 1}, KindSubmit, Label{0, 2}},
		{"reject bumps draft counter", Label{0, 2}, KindReject, Label{0, 3}},
		{"resubmit keeps climbing", Label{0, 3}, KindSubmit, Label{0, 4}},
		{"approval promotes to next major", Label{0, 5}, KindApprove, Label{1, 0}},
		{"approval from second cycle", Label{1, 3}, KindApprove, Label{2, 0}},
		{"revision anchors to current major", Label{1, 0}, KindRevise, Label{1, 1}},
		{"state-only keeps label", Label{2, 0}, KindNone, Label{2, 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Next(tc.current, tc.kind)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Next(Label{0, 1}, Kind("bogus"))
	require.Error(t, err)
}

func TestParseAndString(t *testing.T) {
	for _, s := range []string{"0.1", "1.0", "2.13", "10.4"} {
		l, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, l.String())
	}

	for _, s := range []string{"", "1", "1.", ".1", "a.b", "-1.0", "1.-2", "0.0"} {
		_, err := Parse(s)
		require.Error(t, err, s)
		assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest), s)
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Label{0, 9}.Compare(Label{1, 0}))
	assert.Equal(t, 1, Label{1, 1}.Compare(Label{1, 0}))
	assert.Equal(t, 0, Label{2, 3}.Compare(Label{2, 3}))
	assert.Equal(t, -1, Label{1, 2}.Compare(Label{1, 10}))
}

// TestMonotonicUnderRandomEvents applies random non-terminal version
// events and asserts labels strictly increase. Mirrors the draft cycle the
// state machine drives: submits/rejects inside a cycle, approval closing
// it, revision opening the next one.
func TestMonotonicUnderRandomEvents(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	current := Initial
	inDraftCycle := true
	for i := 0; i < 500; i++ {
		var kind Kind
		if inDraftCycle {
			switch rng.Intn(3) {
			case 0:
				kind = KindSubmit
			case 1:
				kind = KindReject
			default:
				kind = KindApprove
				inDraftCycle = false
			}
		} else {
			kind = KindRevise
			inDraftCycle = true
		}

		next, err := Next(current, kind)
		require.NoError(t, err)
		assert.Equal(t, 1, next.Compare(current),
			"event %s did not increase %s -> %s", kind, current, next)
		current = next
	}
}
