package postgres

import (
	"context"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
)

// Store combines the repositories into a badge.Store.
type Store struct {
	*ActivityRepository
	*BadgeRepository
	conn *Connection
}

// NewStore creates a Store over one connection pool.
func NewStore(conn *Connection) *Store {
	return &Store{
		ActivityRepository: NewActivityRepository(conn),
		BadgeRepository:    NewBadgeRepository(conn),
		conn:               conn,
	}
}

var _ badge.Store = (*Store)(nil)

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}
