package command

import (
	"context"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/catalog"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPSERT DEFINITION COMMAND
// Creates or updates an achievement definition. Administrators use it to
// rename badges, change icons, or add definitions for new rules.
// ══════════════════════════════════════════════════════════════════════════════

// UpsertDefinitionCommand contains the definition to store.
type UpsertDefinitionCommand struct {
	Slug        string
	Name        string
	Description string
	Icon        string
	Category    string

	// CorrelationID for tracing.
	CorrelationID string
}

// definition builds the normalized, validated definition.
func (c UpsertDefinitionCommand) definition() (*badge.Definition, error) {
	def := &badge.Definition{
		Slug:        c.Slug,
		Name:        c.Name,
		Description: c.Description,
		Icon:        c.Icon,
		Category:    badge.Category(c.Category),
	}
	if err := catalog.ValidateDefinition(def); err != nil {
		return nil, err
	}
	return def, nil
}

// Validate validates the command.
func (c UpsertDefinitionCommand) Validate() error {
	_, err := c.definition()
	return err
}

// UpsertDefinitionResult contains the stored definition.
type UpsertDefinitionResult struct {
	Definition badge.Definition

	// Created is true when no definition with this slug existed.
	Created bool
}

// UpsertDefinitionHandler handles the UpsertDefinitionCommand.
type UpsertDefinitionHandler struct {
	definitions badge.DefinitionRepository
	publisher   shared.EventPublisher
	log         *logger.Logger
}

// NewUpsertDefinitionHandler creates a new handler. publisher may be nil.
func NewUpsertDefinitionHandler(
	definitions badge.DefinitionRepository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *UpsertDefinitionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UpsertDefinitionHandler{
		definitions: definitions,
		publisher:   publisher,
		log:         log.With(logger.Component("upsert_definition")),
	}
}

// Handle stores the definition.
func (h *UpsertDefinitionHandler) Handle(ctx context.Context, cmd UpsertDefinitionCommand) (*UpsertDefinitionResult, error) {
	def, err := cmd.definition()
	if err != nil {
		return nil, err
	}

	created := false
	if _, err := h.definitions.GetDefinitionBySlug(ctx, def.Slug); err != nil {
		if !shared.IsNotFound(err) {
			return nil, shared.WrapError("catalog", "UpsertDefinition", shared.ErrStorage, "failed to load definition", err)
		}
		created = true
	}

	if err := h.definitions.UpsertDefinition(ctx, def); err != nil {
		return nil, shared.WrapError("catalog", "UpsertDefinition", shared.ErrStorage, "failed to store definition", err)
	}

	h.log.Info("badge definition stored",
		logger.BadgeSlug(def.Slug),
		logger.Bool("created", created),
	)

	if h.publisher != nil {
		event := badge.NewDefinitionUpsertedEvent(*def, created)
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		if err := h.publisher.Publish(ctx, event); err != nil {
			h.log.Warn("failed to publish definition event", logger.BadgeSlug(def.Slug), logger.Err(err))
		}
	}

	return &UpsertDefinitionResult{Definition: *def, Created: created}, nil
}
