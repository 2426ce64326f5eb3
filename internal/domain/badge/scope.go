package badge

import (
	"fmt"
	"strings"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// ScopeKind tells whether a rule grants per room or once globally.
type ScopeKind string

const (
	// ScopeRoom grants are tied to the room of the request.
	ScopeRoom ScopeKind = "room"
	// ScopeGlobal grants ignore the room entirely.
	ScopeGlobal ScopeKind = "global"
)

// IsValid checks the scope kind.
func (k ScopeKind) IsValid() bool {
	return k == ScopeRoom || k == ScopeGlobal
}

// Scope keys.
const (
	scopeKeyGlobal   = "global"
	scopeKeyRoomNone = "room:none"
	scopeKeyRoomPfx  = "room:"
)

// Scope is the deduplication bucket of a grant.
type Scope struct {
	Kind   ScopeKind
	RoomID *shared.RoomID
}

// GlobalScope returns the global bucket.
func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal}
}

// RoomScope returns the bucket of a room. A nil room is the room:none bucket.
func RoomScope(room *shared.RoomID) Scope {
	return Scope{Kind: ScopeRoom, RoomID: room}
}

// Resolve returns the bucket a rule of this kind grants into for a request room.
func (k ScopeKind) Resolve(room *shared.RoomID) Scope {
	if k == ScopeGlobal {
		return GlobalScope()
	}
	return RoomScope(room)
}

// Key returns the stored scope key.
func (s Scope) Key() string {
	if s.Kind == ScopeGlobal {
		return scopeKeyGlobal
	}
	if s.RoomID == nil || s.RoomID.IsEmpty() {
		return scopeKeyRoomNone
	}
	return scopeKeyRoomPfx + s.RoomID.String()
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	return s.Key()
}

// ParseScopeKey is the inverse of Scope.Key.
func ParseScopeKey(key string) (Scope, error) {
	switch {
	case key == scopeKeyGlobal:
		return GlobalScope(), nil
	case key == scopeKeyRoomNone:
		return RoomScope(nil), nil
	case strings.HasPrefix(key, scopeKeyRoomPfx):
		room, err := shared.NewRoomID(strings.TrimPrefix(key, scopeKeyRoomPfx))
		if err != nil {
			return Scope{}, fmt.Errorf("parse scope key %q: %w", key, err)
		}
		return RoomScope(&room), nil
	default:
		return Scope{}, shared.NewDomainError("badge", "ParseScopeKey", shared.ErrInvalidFormat,
			fmt.Sprintf("unknown scope key %q", key))
	}
}
