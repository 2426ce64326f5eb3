package badge

import (
	"context"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ActivityReader reads the raw activity of a user. Metrics are never
// filtered by room. A user with no activity yields zeroes and empty
// slices, not errors.
type ActivityReader interface {
	CountContributions(ctx context.Context, userID shared.UserID) (int, error)
	CountChatMessages(ctx context.Context, userID shared.UserID) (int, error)
	CountCoordinatorTimes(ctx context.Context, userID shared.UserID) (int, error)
	CountReporterTimes(ctx context.Context, userID shared.UserID) (int, error)
	CountPeerEvaluations(ctx context.Context, userID shared.UserID) (int, error)
	CountReferences(ctx context.Context, userID shared.UserID) (int, error)

	// ListContributionSessions returns the session id of every contribution,
	// duplicates included.
	ListContributionSessions(ctx context.Context, userID shared.UserID) ([]string, error)

	// ListGrades returns non-archived grades ordered oldest first.
	ListGrades(ctx context.Context, userID shared.UserID) ([]Grade, error)
}

// DefinitionRepository stores achievement definitions.
type DefinitionRepository interface {
	// ListDefinitions returns every definition ordered by slug.
	ListDefinitions(ctx context.Context) ([]Definition, error)

	// GetDefinitionBySlug returns ErrDefinitionNotFound when absent.
	GetDefinitionBySlug(ctx context.Context, slug string) (*Definition, error)

	// UpsertDefinition creates or updates a definition by slug.
	// ID and timestamps are filled in on return.
	UpsertDefinition(ctx context.Context, def *Definition) error
}

// GrantRepository stores grants.
type GrantRepository interface {
	// ListGrantKeys returns every (badge, scope) pair the user holds.
	ListGrantKeys(ctx context.Context, userID shared.UserID) (GrantSet, error)

	// InsertGrants writes candidates in one batch with insert-if-absent
	// semantics. Pairs already present are skipped silently. It returns only
	// the grants this call created. On error nothing is written.
	InsertGrants(ctx context.Context, userID shared.UserID, candidates []Candidate) ([]Grant, error)

	// ListEarned returns every grant of the user with its definition,
	// most recent first.
	ListEarned(ctx context.Context, userID shared.UserID) ([]EarnedBadge, error)
}

// Store bundles what the engine needs from persistence.
type Store interface {
	ActivityReader
	DefinitionRepository
	GrantRepository
	Ping(ctx context.Context) error
}
