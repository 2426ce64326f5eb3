package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorMatching(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("compute: %w", ErrAwardFailed.Wrap(cause))

	assert.ErrorIs(t, err, ErrAwardFailed)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrSummaryFailed)
	assert.False(t, IsValidation(err))
	assert.Equal(t, "badge.Award: failed to award badges: connection reset", ErrAwardFailed.Wrap(cause).Error())
}

func TestWrapLeavesSentinelUntouched(t *testing.T) {
	_ = ErrInvalidUserID.Wrap(errors.New("bad uuid"))
	assert.Nil(t, ErrInvalidUserID.Err)
	assert.Equal(t, "badge.Validate: invalid user ID", ErrInvalidUserID.Error())
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
	}{
		{ErrInvalidUserID, IsValidation},
		{ErrInvalidDefinition.Wrap(errors.New("name required")), IsValidation},
		{ErrDefinitionNotFound, IsNotFound},
		{ErrUnauthenticated, IsUnauthorized},
		{ErrAdminRequired, IsUnauthorized},
		{ErrAdminDenied, IsForbidden},
		{ErrTooManyRequests, IsRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}

	assert.False(t, IsNotFound(ErrAdminDenied))
	assert.False(t, IsForbidden(ErrAdminRequired))
}

func TestNewUserIDNormalizes(t *testing.T) {
	id, err := NewUserID("  6F9619FF-8B86-D011-B42D-00C04FC964FF ")
	require.NoError(t, err)
	assert.Equal(t, UserID("6f9619ff-8b86-d011-b42d-00c04fc964ff"), id)

	_, err = NewUserID("42")
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestOptionalRoomID(t *testing.T) {
	r, err := OptionalRoomID("  ")
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = OptionalRoomID("6f9619ff-8b86-d011-b42d-00c04fc964ff")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", r.String())

	_, err = OptionalRoomID("room-1")
	assert.ErrorIs(t, err, ErrInvalidRoomID)
}

type testEvent struct {
	BaseEvent
}

func (e testEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"slug": "first_contribution"}
}

func TestNewEnvelope(t *testing.T) {
	e := testEvent{NewBaseEvent(EventBadgeAwarded, "user-1").WithCorrelationID("req-1")}

	env, err := NewEnvelope(e, e.Correlation())
	require.NoError(t, err)
	assert.Equal(t, e.EventID(), env.ID)
	assert.Equal(t, EventBadgeAwarded, env.Type)
	assert.Equal(t, "user-1", env.AggregateID)
	assert.Equal(t, "req-1", env.CorrelationID)
	assert.JSONEq(t, `{"slug":"first_contribution"}`, string(env.Payload))

	_, err = json.Marshal(env)
	assert.NoError(t, err)
}
