package query

import (
	"context"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST DEFINITIONS QUERY
// Returns the achievement catalog, optionally filtered by category.
// ══════════════════════════════════════════════════════════════════════════════

// ListDefinitionsQuery contains the query parameters.
type ListDefinitionsQuery struct {
	// Category filters the catalog. Empty returns everything.
	Category string
}

// DefinitionsDTO is the catalog response.
type DefinitionsDTO struct {
	Definitions []DefinitionDTO `json:"definitions"`
	Total       int             `json:"total"`
}

// ListDefinitionsHandler handles ListDefinitionsQuery.
type ListDefinitionsHandler struct {
	definitions badge.DefinitionRepository
}

// NewListDefinitionsHandler creates a new handler.
func NewListDefinitionsHandler(definitions badge.DefinitionRepository) *ListDefinitionsHandler {
	return &ListDefinitionsHandler{definitions: definitions}
}

// Handle runs the query.
func (h *ListDefinitionsHandler) Handle(ctx context.Context, q ListDefinitionsQuery) (*DefinitionsDTO, error) {
	defs, err := h.definitions.ListDefinitions(ctx)
	if err != nil {
		return nil, shared.ErrCatalogUnavailable.Wrap(err)
	}

	out := make([]DefinitionDTO, 0, len(defs))
	for _, d := range defs {
		if q.Category != "" && string(d.Category) != q.Category {
			continue
		}
		out = append(out, NewDefinitionDTO(d))
	}

	return &DefinitionsDTO{Definitions: out, Total: len(out)}, nil
}
