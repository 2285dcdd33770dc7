package registry

import (
	"time"

	"recordvault/internal/lifecycle/models"
	"recordvault/pkg/domain"
)

// Role names used by the built-in definitions. Collaborator layers map
// their own user/role directory onto these.
const (
	RoleQualityReviewer    domain.Role = "quality_reviewer"
	RoleRegulatoryReviewer domain.Role = "regulatory_reviewer"
	RoleTechnicalReviewer  domain.Role = "technical_reviewer"
	RoleFinalApprover      domain.Role = "final_approver"
)

const day = 24 * time.Hour

// StandardEdges builds the canonical lifecycle graph shared by all
// built-in record types: draft authoring, gated review/approval, a
// rejection loop back to draft, effective release, revision, obsolescence,
// supersession and archival.
func StandardEdges(approverRoles ...domain.Role) []Edge {
	return []Edge{
		{From: models.StateDraft, To: models.StateInReview},
		{From: models.StateDraft, To: models.StateCancelled},
		{From: models.StateInReview, To: models.StateApproved, Roles: approverRoles},
		{From: models.StateInReview, To: models.StateDraft, RequireRationale: true},
		{From: models.StateApproved, To: models.StateEffective},
		{From: models.StateEffective, To: models.StateDraft},
		{From: models.StateEffective, To: models.StateObsolete, RequireRationale: true},
		{From: models.StateEffective, To: models.StateSuperseded, EngineOnly: true},
		{From: models.StateSuperseded, To: models.StateArchived, EngineOnly: true},
		{From: models.StateObsolete, To: models.StateArchived, EngineOnly: true},
	}
}

// Defaults returns the compiled-in lifecycle definitions. A YAML file can
// replace these entirely; see Load.
func Defaults() []Definition {
	return []Definition{
		{
			Type:           "sop",
			Prefix:         "SOP",
			TrainingGate:   true,
			ReviewInterval: 365 * day,
			Retention:      7 * 365 * day,
			Edges: StandardEdges(
				RoleQualityReviewer,
				RoleRegulatoryReviewer,
				RoleFinalApprover,
			),
		},
		{
			Type:           "vp",
			Prefix:         "VP",
			Sequential:     true,
			ReviewInterval: 2 * 365 * day,
			Retention:      10 * 365 * day,
			Edges: StandardEdges(
				RoleTechnicalReviewer,
				RoleQualityReviewer,
				RoleFinalApprover,
			),
		},
		{
			Type:      "bpr",
			Prefix:    "BPR",
			Retention: 10 * 365 * day,
			Edges: StandardEdges(
				RoleQualityReviewer,
				RoleFinalApprover,
			),
		},
		{
			Type:           "dcd",
			Prefix:         "DCD",
			TrainingGate:   true,
			ReviewInterval: 365 * day,
			Retention:      15 * 365 * day,
			Edges: StandardEdges(
				RoleTechnicalReviewer,
				RoleQualityReviewer,
				RoleFinalApprover,
			),
		},
	}
}
