// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPUTE BADGES COMMAND
// Collects the activity metrics of a user, evaluates every registered rule,
// writes the new grants in one batch and returns the full badge summary.
// Running it twice in a row never grants anything the second time.
// ══════════════════════════════════════════════════════════════════════════════

const tracerName = "github.com/Posologia-Edu/pbl-virtual-sub001/badges"

// ComputeBadgesCommand contains the data to compute badges.
type ComputeBadgesCommand struct {
	// CallerID is the authenticated user issuing the request. Required.
	CallerID string

	// UserID is the user whose badges are computed. Defaults to CallerID.
	UserID string

	// RoomID scopes room badges. Empty means no room.
	RoomID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ComputeBadgesCommand) Validate() error {
	if c.CallerID == "" {
		return shared.ErrUnauthenticated
	}
	if _, err := shared.NewUserID(c.CallerID); err != nil {
		return shared.ErrUnauthenticated.Wrap(err)
	}
	if c.UserID != "" {
		if _, err := shared.NewUserID(c.UserID); err != nil {
			return err
		}
	}
	if _, err := shared.OptionalRoomID(c.RoomID); err != nil {
		return err
	}
	return nil
}

// TargetUserID returns the user to compute for.
func (c ComputeBadgesCommand) TargetUserID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.CallerID
}

// ComputeBadgesResult contains the result of a computation.
type ComputeBadgesResult struct {
	// UserID is the user the badges were computed for.
	UserID shared.UserID

	// RoomID is the room passed in, nil when absent.
	RoomID *shared.RoomID

	// Badges is every grant of the user, most recent first.
	Badges []badge.EarnedBadge

	// NewBadges is how many grants this call created.
	NewBadges int

	// Granted are the grants this call created.
	Granted []badge.Grant

	// Metrics is the snapshot the rules were evaluated against.
	Metrics badge.Metrics

	// MissingDefinitions lists rules skipped for lack of a definition.
	MissingDefinitions []string

	// ComputedAt is when the computation finished.
	ComputedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// STEPS AND STATE
// ══════════════════════════════════════════════════════════════════════════════

// ComputeStep represents a step of a computation.
type ComputeStep string

const (
	StepValidate       ComputeStep = "validate"
	StepCollectMetrics ComputeStep = "collect_metrics"
	StepLoadCatalog    ComputeStep = "load_catalog"
	StepEvaluate       ComputeStep = "evaluate"
	StepAward          ComputeStep = "award"
	StepSummary        ComputeStep = "summary"
	StepPublishEvents  ComputeStep = "publish_events"
	StepComplete       ComputeStep = "complete"
)

// ComputeState tracks one computation as it moves through the steps.
type ComputeState struct {
	CurrentStep ComputeStep
	FailedStep  ComputeStep
	Command     ComputeBadgesCommand

	UserID      shared.UserID
	RoomID      *shared.RoomID
	Metrics     badge.Metrics
	Definitions map[string]badge.Definition
	Existing    badge.GrantSet
	Evaluation  badge.Evaluation
	Granted     []badge.Grant
	Badges      []badge.EarnedBadge

	StartedAt time.Time
}

// ComputeError reports the step a computation failed at.
type ComputeError struct {
	Step   ComputeStep
	UserID string
	Cause  error
}

// Error implements error.
func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute badges failed at step '%s' for user %s: %v", e.Step, e.UserID, e.Cause)
}

// Unwrap returns the cause.
func (e *ComputeError) Unwrap() error {
	return e.Cause
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDER
// ══════════════════════════════════════════════════════════════════════════════

// Recorder receives engine measurements. observability.Metrics implements it.
type Recorder interface {
	ObserveCompute(outcome string, d time.Duration)
	IncGranted(slug string)
	ObserveMetricQuery(metric string, d time.Duration)
	IncPublishError()
}

type nopRecorder struct{}

func (nopRecorder) ObserveCompute(string, time.Duration)     {}
func (nopRecorder) IncGranted(string)                        {}
func (nopRecorder) ObserveMetricQuery(string, time.Duration) {}
func (nopRecorder) IncPublishError()                         {}

// Compute outcomes.
const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ComputeBadgesConfig configures the handler.
type ComputeBadgesConfig struct {
	// Timeout bounds a whole computation. Zero means no bound.
	Timeout time.Duration
}

// ComputeBadgesHandler handles the ComputeBadgesCommand.
type ComputeBadgesHandler struct {
	store     badge.Store
	collector *MetricsCollector
	evaluator *badge.Evaluator
	publisher shared.EventPublisher
	recorder  Recorder
	tracer    trace.Tracer
	log       *logger.Logger
	timeout   time.Duration
}

// NewComputeBadgesHandler creates a new handler. publisher, recorder and log
// may be nil.
func NewComputeBadgesHandler(
	store badge.Store,
	evaluator *badge.Evaluator,
	publisher shared.EventPublisher,
	recorder Recorder,
	log *logger.Logger,
	cfg ComputeBadgesConfig,
) *ComputeBadgesHandler {
	if evaluator == nil {
		evaluator = badge.NewEvaluator(nil)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ComputeBadgesHandler{
		store:     store,
		collector: NewMetricsCollector(store, recorder),
		evaluator: evaluator,
		publisher: publisher,
		recorder:  recorder,
		tracer:    otel.Tracer(tracerName),
		log:       log.With(logger.Component("compute_badges")),
		timeout:   cfg.Timeout,
	}
}

// Handle runs one computation.
func (h *ComputeBadgesHandler) Handle(ctx context.Context, cmd ComputeBadgesCommand) (*ComputeBadgesResult, error) {
	state := &ComputeState{
		CurrentStep: StepValidate,
		Command:     cmd,
		StartedAt:   time.Now(),
	}

	ctx, span := h.tracer.Start(ctx, "badges.compute")
	defer span.End()

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.execute(ctx, state)
	elapsed := time.Since(state.StartedAt)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(state.FailedStep))
		if state.FailedStep == StepValidate {
			h.recorder.ObserveCompute(outcomeRejected, elapsed)
		} else {
			h.recorder.ObserveCompute(outcomeError, elapsed)
			h.log.Error("badge computation failed",
				logger.UserID(state.UserID.String()),
				logger.String("step", string(state.FailedStep)),
				logger.Latency(elapsed),
				logger.Err(err),
			)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("user_id", result.UserID.String()),
		attribute.Int("new_badges", result.NewBadges),
		attribute.Int("total_badges", len(result.Badges)),
	)
	h.recorder.ObserveCompute(outcomeSuccess, elapsed)
	h.log.Info("badges computed",
		logger.UserID(result.UserID.String()),
		logger.Int("new_badges", result.NewBadges),
		logger.Int("total_badges", len(result.Badges)),
		logger.Latency(elapsed),
	)

	return result, nil
}

func (h *ComputeBadgesHandler) execute(ctx context.Context, state *ComputeState) (*ComputeBadgesResult, error) {
	// Step 1: Validate the request
	if err := h.stepValidate(state); err != nil {
		return nil, h.wrapError(state, err)
	}

	// Step 2: Collect metrics
	state.CurrentStep = StepCollectMetrics
	if err := h.stepCollectMetrics(ctx, state); err != nil {
		return nil, h.wrapError(state, err)
	}

	// Step 3: Load definitions and existing grants
	state.CurrentStep = StepLoadCatalog
	if err := h.stepLoadCatalog(ctx, state); err != nil {
		return nil, h.wrapError(state, err)
	}

	// Step 4: Evaluate rules
	state.CurrentStep = StepEvaluate
	h.stepEvaluate(ctx, state)

	// Step 5: Write new grants
	state.CurrentStep = StepAward
	if err := h.stepAward(ctx, state); err != nil {
		return nil, h.wrapError(state, err)
	}

	// Step 6: Build the summary
	state.CurrentStep = StepSummary
	if err := h.stepSummary(ctx, state); err != nil {
		return nil, h.wrapError(state, err)
	}

	// Step 7: Publish events (non-critical)
	state.CurrentStep = StepPublishEvents
	h.stepPublishEvents(ctx, state)

	state.CurrentStep = StepComplete

	return &ComputeBadgesResult{
		UserID:             state.UserID,
		RoomID:             state.RoomID,
		Badges:             state.Badges,
		NewBadges:          len(state.Granted),
		Granted:            state.Granted,
		Metrics:            state.Metrics,
		MissingDefinitions: state.Evaluation.MissingDefinitions,
		ComputedAt:         time.Now().UTC(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STEP IMPLEMENTATIONS
// ══════════════════════════════════════════════════════════════════════════════

func (h *ComputeBadgesHandler) stepValidate(state *ComputeState) error {
	if err := state.Command.Validate(); err != nil {
		state.FailedStep = StepValidate
		return err
	}

	// Validate guarantees both parse.
	userID, _ := shared.NewUserID(state.Command.TargetUserID())
	room, _ := shared.OptionalRoomID(state.Command.RoomID)

	state.UserID = userID
	state.RoomID = room
	return nil
}

func (h *ComputeBadgesHandler) stepCollectMetrics(ctx context.Context, state *ComputeState) error {
	ctx, span := h.tracer.Start(ctx, "badges.collect_metrics")
	defer span.End()

	m, err := h.collector.Collect(ctx, state.UserID)
	if err != nil {
		state.FailedStep = StepCollectMetrics
		span.RecordError(err)
		span.SetStatus(codes.Error, "collect metrics")
		return err
	}

	state.Metrics = m
	return nil
}

func (h *ComputeBadgesHandler) stepLoadCatalog(ctx context.Context, state *ComputeState) error {
	definitions, err := h.store.ListDefinitions(ctx)
	if err != nil {
		state.FailedStep = StepLoadCatalog
		return shared.ErrCatalogUnavailable.Wrap(err)
	}

	existing, err := h.store.ListGrantKeys(ctx, state.UserID)
	if err != nil {
		state.FailedStep = StepLoadCatalog
		return shared.ErrCatalogUnavailable.Wrap(err)
	}

	state.Definitions = make(map[string]badge.Definition, len(definitions))
	for _, def := range definitions {
		state.Definitions[def.Slug] = def
	}
	state.Existing = existing
	return nil
}

func (h *ComputeBadgesHandler) stepEvaluate(ctx context.Context, state *ComputeState) {
	_, span := h.tracer.Start(ctx, "badges.evaluate")
	defer span.End()

	state.Evaluation = h.evaluator.Evaluate(state.Metrics, state.RoomID, state.Definitions, state.Existing)

	if missing := state.Evaluation.MissingDefinitions; len(missing) > 0 {
		h.log.Warn("rules skipped, no badge definition",
			logger.Strings("slugs", missing),
		)
	}
	span.SetAttributes(attribute.Int("candidates", len(state.Evaluation.Candidates)))
}

func (h *ComputeBadgesHandler) stepAward(ctx context.Context, state *ComputeState) error {
	if len(state.Evaluation.Candidates) == 0 {
		return nil
	}

	ctx, span := h.tracer.Start(ctx, "badges.award")
	defer span.End()

	granted, err := h.store.InsertGrants(ctx, state.UserID, state.Evaluation.Candidates)
	if err != nil {
		state.FailedStep = StepAward
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert grants")
		return shared.ErrAwardFailed.Wrap(err)
	}

	slugs := slugsByBadgeID(state.Evaluation.Candidates)
	for _, g := range granted {
		slug := slugs[g.BadgeID]
		h.recorder.IncGranted(slug)
		h.log.Info("badge granted",
			logger.UserID(state.UserID.String()),
			logger.BadgeSlug(slug),
			logger.ScopeKey(g.Scope.Key()),
		)
	}

	span.SetAttributes(attribute.Int("granted", len(granted)))
	state.Granted = granted
	return nil
}

func (h *ComputeBadgesHandler) stepSummary(ctx context.Context, state *ComputeState) error {
	ctx, span := h.tracer.Start(ctx, "badges.summary")
	defer span.End()

	earned, err := h.store.ListEarned(ctx, state.UserID)
	if err != nil {
		state.FailedStep = StepSummary
		span.RecordError(err)
		span.SetStatus(codes.Error, "list earned")
		return shared.ErrSummaryFailed.Wrap(err)
	}

	if earned == nil {
		earned = []badge.EarnedBadge{}
	}
	state.Badges = earned
	return nil
}

func (h *ComputeBadgesHandler) stepPublishEvents(ctx context.Context, state *ComputeState) {
	if h.publisher == nil {
		return
	}

	slugs := slugsByBadgeID(state.Evaluation.Candidates)
	for _, g := range state.Granted {
		event := badge.NewBadgeAwardedEvent(g, slugs[g.BadgeID])
		event.BaseEvent = event.BaseEvent.WithCorrelationID(state.Command.CorrelationID)
		h.publish(ctx, event)
	}

	computed := badge.NewBadgesComputedEvent(state.UserID, state.RoomID, len(state.Granted), len(state.Badges))
	computed.BaseEvent = computed.BaseEvent.WithCorrelationID(state.Command.CorrelationID)
	h.publish(ctx, computed)
}

func (h *ComputeBadgesHandler) publish(ctx context.Context, event shared.Event) {
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.recorder.IncPublishError()
		h.log.Warn("failed to publish badge event",
			logger.String("event_type", string(event.EventType())),
			logger.String("event_id", event.EventID()),
			logger.Err(err),
		)
	}
}

// wrapError wraps an error with step context.
func (h *ComputeBadgesHandler) wrapError(state *ComputeState, err error) error {
	if state.FailedStep == "" {
		state.FailedStep = state.CurrentStep
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", shared.ErrTimeout, err)
	}
	return &ComputeError{
		Step:   state.FailedStep,
		UserID: state.Command.TargetUserID(),
		Cause:  err,
	}
}

func slugsByBadgeID(candidates []badge.Candidate) map[string]string {
	out := make(map[string]string, len(candidates))
	for _, c := range candidates {
		out[c.Definition.ID] = c.Definition.Slug
	}
	return out
}
