package shared

import (
	"strings"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies a platform user (UUID format, lower case).
type UserID string

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrInvalidUserID.Wrap(err)
	}
	return UserID(parsed.String()), nil
}

// RoomID identifies a tutoring room (UUID format, lower case).
type RoomID string

// String returns the string representation.
func (r RoomID) String() string {
	return string(r)
}

// IsEmpty checks if the ID is empty.
func (r RoomID) IsEmpty() bool {
	return r == ""
}

// NewRoomID creates a new RoomID with validation.
func NewRoomID(id string) (RoomID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrInvalidRoomID.Wrap(err)
	}
	return RoomID(parsed.String()), nil
}

// OptionalRoomID parses a room id that may be absent.
// An empty or whitespace string yields a nil pointer.
func OptionalRoomID(id string) (*RoomID, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	r, err := NewRoomID(id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
