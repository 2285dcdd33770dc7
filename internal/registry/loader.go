package registry

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// fileFormat is the YAML shape of a definitions file. The file configures
// the per-type knobs; the graph shape itself is the standard lifecycle,
// parameterized by the gated approver roles.
type fileFormat struct {
	Definitions []fileDefinition `yaml:"definitions"`
}

type fileDefinition struct {
	Type               string   `yaml:"type"`
	Prefix             string   `yaml:"prefix"`
	TrainingGate       bool     `yaml:"training_gate"`
	Sequential         bool     `yaml:"sequential"`
	ReviewIntervalDays int      `yaml:"review_interval_days"`
	RetentionDays      int      `yaml:"retention_days"`
	ApproverRoles      []string `yaml:"approver_roles"`
}

// Load reads lifecycle definitions from a YAML file. An empty path falls
// back to the compiled-in defaults.
func Load(path string) (*Registry, error) {
	if path == "" {
		return New(Defaults()...)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read lifecycle definitions")
	}

	var file fileFormat
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "parse lifecycle definitions")
	}
	if len(file.Definitions) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "lifecycle definitions file declares no record types")
	}

	defs := make([]Definition, 0, len(file.Definitions))
	for _, fd := range file.Definitions {
		recordType, err := domain.ParseRecordType(fd.Type)
		if err != nil {
			return nil, err
		}
		if len(fd.ApproverRoles) == 0 {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "record type %q declares no approver roles", fd.Type)
		}
		roles := make([]domain.Role, len(fd.ApproverRoles))
		for i, r := range fd.ApproverRoles {
			roles[i] = domain.Role(r)
		}
		defs = append(defs, Definition{
			Type:           recordType,
			Prefix:         fd.Prefix,
			TrainingGate:   fd.TrainingGate,
			Sequential:     fd.Sequential,
			ReviewInterval: time.Duration(fd.ReviewIntervalDays) * day,
			Retention:      time.Duration(fd.RetentionDays) * day,
			Edges:          StandardEdges(roles...),
		})
	}
	return New(defs...)
}
