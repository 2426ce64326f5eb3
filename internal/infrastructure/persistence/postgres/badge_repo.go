package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository implements badge.DefinitionRepository and
// badge.GrantRepository for PostgreSQL.
type BadgeRepository struct {
	conn *Connection
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

var (
	_ badge.DefinitionRepository = (*BadgeRepository)(nil)
	_ badge.GrantRepository      = (*BadgeRepository)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Definitions
// ─────────────────────────────────────────────────────────────────────────────

const definitionColumns = `id::text, slug, name, description, icon, category, created_at, updated_at`

// ListDefinitions returns every definition ordered by slug.
func (r *BadgeRepository) ListDefinitions(ctx context.Context) ([]badge.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM badge_definitions ORDER BY slug`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query badge definitions: %w", err)
	}
	defer rows.Close()

	var defs []badge.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate badge definitions: %w", err)
	}

	return defs, nil
}

// GetDefinitionBySlug returns a definition by slug.
func (r *BadgeRepository) GetDefinitionBySlug(ctx context.Context, slug string) (*badge.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM badge_definitions WHERE slug = $1`

	def, err := scanDefinition(r.conn.QueryRow(ctx, query, slug))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrDefinitionNotFound
		}
		return nil, err
	}
	return def, nil
}

// UpsertDefinition creates or updates a definition keyed by slug.
func (r *BadgeRepository) UpsertDefinition(ctx context.Context, def *badge.Definition) error {
	query := `
		INSERT INTO badge_definitions (slug, name, description, icon, category)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			category = EXCLUDED.category,
			updated_at = NOW()
		RETURNING id::text, created_at, updated_at
	`

	err := r.conn.QueryRow(ctx, query,
		def.Slug,
		def.Name,
		def.Description,
		def.Icon,
		string(def.Category),
	).Scan(&def.ID, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert badge definition %s: %w", def.Slug, err)
	}

	return nil
}

func scanDefinition(row pgx.Row) (*badge.Definition, error) {
	var (
		def      badge.Definition
		category string
	)
	err := row.Scan(
		&def.ID,
		&def.Slug,
		&def.Name,
		&def.Description,
		&def.Icon,
		&category,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan badge definition: %w", err)
	}
	def.Category = badge.Category(category)
	return &def, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Grants
// ─────────────────────────────────────────────────────────────────────────────

// ListGrantKeys returns every (badge, scope) pair the user holds.
func (r *BadgeRepository) ListGrantKeys(ctx context.Context, userID shared.UserID) (badge.GrantSet, error) {
	query := `SELECT badge_id::text, scope_key FROM user_badges WHERE user_id = $1`

	rows, err := r.conn.Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query user badges: %w", err)
	}
	defer rows.Close()

	set := badge.NewGrantSet()
	for rows.Next() {
		var k badge.GrantKey
		if err := rows.Scan(&k.BadgeID, &k.ScopeKey); err != nil {
			return nil, fmt.Errorf("failed to scan user badge key: %w", err)
		}
		set.Add(k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user badges: %w", err)
	}

	return set, nil
}

const insertGrantQuery = `
	INSERT INTO user_badges (user_id, badge_id, room_id, scope_key, metadata)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id, badge_id, scope_key) DO NOTHING
	RETURNING id::text, earned_at
`

// InsertGrants writes all candidates in one transaction using a pgx batch.
// A conflicting row returns nothing and is skipped, so a concurrent caller
// that lost the race reports zero new grants.
func (r *BadgeRepository) InsertGrants(ctx context.Context, userID shared.UserID, candidates []badge.Candidate) ([]badge.Grant, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, c := range candidates {
		metadata, err := marshalMetadata(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata for %s: %w", c.Definition.Slug, err)
		}

		var roomID *string
		if c.Scope.Kind == badge.ScopeRoom && c.Scope.RoomID != nil {
			s := c.Scope.RoomID.String()
			roomID = &s
		}

		batch.Queue(insertGrantQuery, userID.String(), c.Definition.ID, roomID, c.Scope.Key(), metadata)
	}

	var inserted []badge.Grant
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)

		for _, c := range candidates {
			var (
				id       string
				earnedAt time.Time
			)
			err := br.QueryRow().Scan(&id, &earnedAt)
			if IsNoRows(err) {
				continue
			}
			if err != nil {
				_ = br.Close()
				if IsForeignKeyViolation(err) {
					return fmt.Errorf("definition %s was removed during the award: %w", c.Definition.Slug, err)
				}
				return fmt.Errorf("failed to insert %s: %w", c.Definition.Slug, err)
			}

			inserted = append(inserted, badge.Grant{
				ID:       id,
				UserID:   userID,
				BadgeID:  c.Definition.ID,
				Scope:    c.Scope,
				Metadata: c.Metadata,
				EarnedAt: earnedAt,
			})
		}

		return br.Close()
	})
	if err != nil {
		return nil, err
	}

	return inserted, nil
}

// ListEarned returns every grant of the user joined with its definition,
// most recent first.
func (r *BadgeRepository) ListEarned(ctx context.Context, userID shared.UserID) ([]badge.EarnedBadge, error) {
	query := `
		SELECT ub.id::text, ub.badge_id::text, ub.scope_key, ub.metadata, ub.earned_at,
		       d.id::text, d.slug, d.name, d.description, d.icon, d.category, d.created_at, d.updated_at
		FROM user_badges ub
		JOIN badge_definitions d ON d.id = ub.badge_id
		WHERE ub.user_id = $1
		ORDER BY ub.earned_at DESC, ub.id
	`

	rows, err := r.conn.Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query earned badges: %w", err)
	}
	defer rows.Close()

	var earned []badge.EarnedBadge
	for rows.Next() {
		var (
			eb       badge.EarnedBadge
			scopeKey string
			metadata []byte
			category string
		)
		err := rows.Scan(
			&eb.ID, &eb.BadgeID, &scopeKey, &metadata, &eb.EarnedAt,
			&eb.Definition.ID, &eb.Definition.Slug, &eb.Definition.Name,
			&eb.Definition.Description, &eb.Definition.Icon, &category,
			&eb.Definition.CreatedAt, &eb.Definition.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan earned badge: %w", err)
		}

		eb.UserID = userID
		eb.Definition.Category = badge.Category(category)
		if eb.Scope, err = badge.ParseScopeKey(scopeKey); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &eb.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal badge metadata: %w", err)
			}
		}
		earned = append(earned, eb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate earned badges: %w", err)
	}

	return earned, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
