package query

import (
	"context"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER BADGES QUERY
// Returns the badges a user already holds without evaluating any rule.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserBadgesQuery contains the query parameters.
type GetUserBadgesQuery struct {
	// CallerID is the authenticated user. Required.
	CallerID string

	// UserID defaults to CallerID.
	UserID string
}

// Validate checks the query.
func (q *GetUserBadgesQuery) Validate() error {
	if q.CallerID == "" {
		return shared.ErrUnauthenticated
	}
	if q.UserID == "" {
		q.UserID = q.CallerID
	}
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return err
	}
	return nil
}

// UserBadgesDTO is the badge summary of a user.
type UserBadgesDTO struct {
	UserID string     `json:"user_id"`
	Badges []BadgeDTO `json:"badges"`
	Total  int        `json:"total"`
}

// GetUserBadgesHandler handles GetUserBadgesQuery.
type GetUserBadgesHandler struct {
	grants badge.GrantRepository
}

// NewGetUserBadgesHandler creates a new handler.
func NewGetUserBadgesHandler(grants badge.GrantRepository) *GetUserBadgesHandler {
	return &GetUserBadgesHandler{grants: grants}
}

// Handle runs the query.
func (h *GetUserBadgesHandler) Handle(ctx context.Context, q GetUserBadgesQuery) (*UserBadgesDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	userID, _ := shared.NewUserID(q.UserID)

	earned, err := h.grants.ListEarned(ctx, userID)
	if err != nil {
		return nil, shared.ErrSummaryFailed.Wrap(err)
	}

	return &UserBadgesDTO{
		UserID: userID.String(),
		Badges: NewBadgeDTOs(earned),
		Total:  len(earned),
	}, nil
}
