// Package version implements the deterministic version-label algebra for
// record families. Labels are major.minor pairs: minor is the draft
// counter, major counts released revisions. Comparison needs no external
// state.
package version

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "recordvault/pkg/domain-errors"
)

// Label is a record version. The zero value is invalid; families start at
// Initial (0.1).
type Label struct {
	Major int
	Minor int
}

// Initial is the label of the first draft of a new family.
var Initial = Label{Major: 0, Minor: 1}

// Kind names the lifecycle event driving a version change.
type Kind string

const (
	// KindSubmit bumps the draft counter when a draft enters review.
	KindSubmit Kind = "submit"
	// KindReject bumps the draft counter when review sends the record
	// back to draft.
	KindReject Kind = "reject"
	// KindApprove promotes to the next whole major and resets the draft
	// counter.
	KindApprove Kind = "approve"
	// KindRevise opens a new draft anchored to the current major.
	KindRevise Kind = "revise"
	// KindNone keeps the label (state-only transitions such as
	// effective, superseded, obsolete, archived, cancelled).
	KindNone Kind = "none"
)

// Next computes the label that follows current for the given event.
func Next(current Label, kind Kind) (Label, error) {
	switch kind {
	case KindSubmit, KindReject:
		return Label{Major: current.Major, Minor: current.Minor + 1}, nil
	case KindApprove:
		return Label{Major: current.Major + 1, Minor: 0}, nil
	case KindRevise:
		return Label{Major: current.Major, Minor: current.Minor + 1}, nil
	case KindNone:
		return current, nil
	default:
		return Label{}, dErrors.Newf(dErrors.CodeInternal, "unknown version event %q", kind)
	}
}

// Parse reads a "major.minor" label.
func Parse(s string) (Label, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return Label{}, dErrors.Newf(dErrors.CodeBadRequest, "version %q is not in major.minor form", s)
	}
	maj, err := strconv.Atoi(major)
	if err != nil || maj < 0 {
		return Label{}, dErrors.Newf(dErrors.CodeBadRequest, "version %q has invalid major part", s)
	}
	min, err := strconv.Atoi(minor)
	if err != nil || min < 0 {
		return Label{}, dErrors.Newf(dErrors.CodeBadRequest, "version %q has invalid minor part", s)
	}
	l := Label{Major: maj, Minor: min}
	if l == (Label{}) {
		return Label{}, dErrors.Newf(dErrors.CodeBadRequest, "version 0.0 is not a valid label")
	}
	return l, nil
}

// String renders the display form, e.g. "1.0".
func (l Label) String() string {
	return fmt.Sprintf("%d.%d", l.Major, l.Minor)
}

// Compare orders labels: -1 when l < other, 0 when equal, 1 when greater.
func (l Label) Compare(other Label) int {
	if l.Major != other.Major {
		if l.Major < other.Major {
			return -1
		}
		return 1
	}
	if l.Minor != other.Minor {
		if l.Minor < other.Minor {
			return -1
		}
		return 1
	}
	return 0
}
