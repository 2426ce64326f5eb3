package badge

import (
	"strings"
	"time"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// Category groups definitions for display.
type Category string

const (
	CategoryParticipation Category = "participation"
	CategoryCollaboration Category = "collaboration"
	CategoryLeadership    Category = "leadership"
	CategoryAchievement   Category = "achievement"
)

// Definition is the reference data of one achievement.
// Administrators create it; the engine only reads it.
type Definition struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug" yaml:"slug" validate:"required,max=64,slug"`
	Name        string    `json:"name" yaml:"name" validate:"required,max=120"`
	Description string    `json:"description" yaml:"description" validate:"max=500"`
	Icon        string    `json:"icon" yaml:"icon" validate:"max=64"`
	Category    Category  `json:"category" yaml:"category" validate:"required,max=64"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Normalize trims user-provided text fields.
func (d *Definition) Normalize() {
	d.Slug = strings.ToLower(strings.TrimSpace(d.Slug))
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.Icon = strings.TrimSpace(d.Icon)
	d.Category = Category(strings.ToLower(strings.TrimSpace(string(d.Category))))
}

// Grant records that a user earned a badge in a scope.
type Grant struct {
	ID       string
	UserID   shared.UserID
	BadgeID  string
	Scope    Scope
	Metadata map[string]any
	EarnedAt time.Time
}

// RoomID returns the room of a room-scoped grant, nil otherwise.
func (g Grant) RoomID() *shared.RoomID {
	if g.Scope.Kind != ScopeRoom {
		return nil
	}
	return g.Scope.RoomID
}

// Key returns the deduplication key of the grant.
func (g Grant) Key() GrantKey {
	return GrantKey{BadgeID: g.BadgeID, ScopeKey: g.Scope.Key()}
}

// EarnedBadge is a grant joined with its definition for display.
type EarnedBadge struct {
	Grant
	Definition Definition
}

// GrantKey identifies a (badge, scope) pair of one user.
type GrantKey struct {
	BadgeID  string
	ScopeKey string
}

// GrantSet is the set of pairs a user already holds.
type GrantSet map[GrantKey]struct{}

// NewGrantSet builds a set from keys.
func NewGrantSet(keys ...GrantKey) GrantSet {
	set := make(GrantSet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Has reports whether the pair is held.
func (s GrantSet) Has(k GrantKey) bool {
	_, ok := s[k]
	return ok
}

// Add inserts a pair.
func (s GrantSet) Add(k GrantKey) {
	s[k] = struct{}{}
}
