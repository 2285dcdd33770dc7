// Package registry holds the lifecycle definition for each record type:
// the legal transition graph, approver roles on gated edges, training-gate
// flag, periodic-review interval and retention period. Definitions load at
// process start and are immutable for the lifetime of a running instance.
package registry

import (
	"time"

	"recordvault/internal/lifecycle/models"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// Edge is one legal transition in a lifecycle graph.
type Edge struct {
	From models.State
	To   models.State
	// Roles lists the approver roles whose signatures gate this edge.
	// Empty means ungated.
	Roles []domain.Role
	// RequireRationale marks edges that must carry a non-empty rationale
	// (rejection, obsoletion).
	RequireRationale bool
	// EngineOnly edges are driven by the engine itself (supersession,
	// archival); direct caller requests are refused.
	EngineOnly bool
}

// Definition is the full lifecycle configuration for one record type.
type Definition struct {
	Type   domain.RecordType
	Prefix string
	// TrainingGate requires trainee acknowledgement before a version is
	// exposed as effective.
	TrainingGate bool
	// Sequential requires gated-edge signatures to arrive in role order.
	Sequential bool
	// ReviewInterval is the periodic-review cadence anchored to the last
	// effective entry (or review reset). Zero disables periodic review.
	ReviewInterval time.Duration
	// Retention must elapse after retirement before archival is legal.
	Retention time.Duration
	Edges     []Edge
}

// edge lookup key
type pair struct{ from, to models.State }

// Registry answers legality and gating questions for every record type.
type Registry struct {
	defs  map[domain.RecordType]Definition
	edges map[domain.RecordType]map[pair]Edge
}

// New builds a registry from definitions, validating each graph.
func New(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs:  make(map[domain.RecordType]Definition, len(defs)),
		edges: make(map[domain.RecordType]map[pair]Edge, len(defs)),
	}
	for _, def := range defs {
		if def.Type == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "lifecycle definition missing record type")
		}
		if def.Prefix == "" {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "lifecycle definition %q missing identifier prefix", def.Type)
		}
		if _, dup := r.defs[def.Type]; dup {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "duplicate lifecycle definition for %q", def.Type)
		}
		index := make(map[pair]Edge, len(def.Edges))
		for _, e := range def.Edges {
			if !e.From.Valid() || !e.To.Valid() {
				return nil, dErrors.Newf(dErrors.CodeBadRequest, "definition %q has edge with unknown state %s -> %s", def.Type, e.From, e.To)
			}
			if e.From.Terminal() {
				return nil, dErrors.Newf(dErrors.CodeBadRequest, "definition %q has edge leaving terminal state %s", def.Type, e.From)
			}
			key := pair{e.From, e.To}
			if _, dup := index[key]; dup {
				return nil, dErrors.Newf(dErrors.CodeBadRequest, "definition %q duplicates edge %s -> %s", def.Type, e.From, e.To)
			}
			index[key] = e
		}
		r.defs[def.Type] = def
		r.edges[def.Type] = index
	}
	return r, nil
}

// GraphFor returns the definition for a record type.
func (r *Registry) GraphFor(recordType domain.RecordType) (Definition, error) {
	def, ok := r.defs[recordType]
	if !ok {
		return Definition{}, dErrors.Newf(dErrors.CodeNotFound, "no lifecycle definition for record type %q", recordType)
	}
	return def, nil
}

// Edge returns the edge from->to when legal for the record type.
func (r *Registry) Edge(recordType domain.RecordType, from, to models.State) (Edge, bool) {
	index, ok := r.edges[recordType]
	if !ok {
		return Edge{}, false
	}
	e, ok := index[pair{from, to}]
	return e, ok
}

// IsLegal reports whether from->to exists in the record type's graph.
func (r *Registry) IsLegal(recordType domain.RecordType, from, to models.State) bool {
	_, ok := r.Edge(recordType, from, to)
	return ok
}

// RequiredApprovers returns the roles gating entry into toState, in
// definition order. Empty when the edge is ungated.
func (r *Registry) RequiredApprovers(recordType domain.RecordType, from, to models.State) []domain.Role {
	e, ok := r.Edge(recordType, from, to)
	if !ok {
		return nil
	}
	roles := make([]domain.Role, len(e.Roles))
	copy(roles, e.Roles)
	return roles
}

// Types lists all configured record types.
func (r *Registry) Types() []domain.RecordType {
	types := make([]domain.RecordType, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	return types
}
