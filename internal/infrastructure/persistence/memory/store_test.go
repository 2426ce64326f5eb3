package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

func newDef(t *testing.T, s *Store, slug string) badge.Definition {
	t.Helper()
	def := badge.Definition{Slug: slug, Name: slug, Category: badge.CategoryParticipation}
	require.NoError(t, s.UpsertDefinition(context.Background(), &def))
	return def
}

func TestActivityReads(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	user := shared.UserID(uuid.NewString())

	s.AddContributions(user, "s1", 2)
	s.AddContributions(user, "s2", 1)
	s.AddChatMessages(user, 4)
	s.AddGrades(user, "b", "A")
	s.AddArchivedGrade(user, "D")

	n, err := s.CountContributions(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountChatMessages(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	sessions, err := s.ListContributionSessions(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s1", "s2"}, sessions)

	grades, err := s.ListGrades(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []badge.Grade{badge.GradeB, badge.GradeA}, grades)

	n, err = s.CountReferences(ctx, shared.UserID(uuid.NewString()))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertDefinitionKeepsID(t *testing.T) {
	s := NewStore()
	def := newDef(t, s, "helper")

	again := badge.Definition{Slug: "helper", Name: "Helper v2", Category: badge.CategoryCollaboration}
	require.NoError(t, s.UpsertDefinition(context.Background(), &again))
	assert.Equal(t, def.ID, again.ID)
	assert.Equal(t, def.CreatedAt, again.CreatedAt)

	got, err := s.GetDefinitionBySlug(context.Background(), "HELPER")
	require.NoError(t, err)
	assert.Equal(t, "Helper v2", got.Name)

	_, err = s.GetDefinitionBySlug(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrDefinitionNotFound)
}

func TestInsertGrantsSkipsHeldPairs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	user := shared.UserID(uuid.NewString())
	def := newDef(t, s, "first")
	room := shared.RoomID(uuid.NewString())

	candidates := []badge.Candidate{
		{Definition: def, Scope: badge.RoomScope(&room)},
		{Definition: def, Scope: badge.RoomScope(nil)},
		{Definition: def, Scope: badge.RoomScope(&room)},
	}

	inserted, err := s.InsertGrants(ctx, user, candidates)
	require.NoError(t, err)
	assert.Len(t, inserted, 2)

	inserted, err = s.InsertGrants(ctx, user, candidates)
	require.NoError(t, err)
	assert.Empty(t, inserted)

	keys, err := s.ListGrantKeys(ctx, user)
	require.NoError(t, err)
	assert.True(t, keys.Has(badge.GrantKey{BadgeID: def.ID, ScopeKey: "room:" + room.String()}))
	assert.True(t, keys.Has(badge.GrantKey{BadgeID: def.ID, ScopeKey: "room:none"}))
}

func TestInsertGrantsConcurrent(t *testing.T) {
	s := NewStore()
	user := shared.UserID(uuid.NewString())
	def := newDef(t, s, "first")
	candidates := []badge.Candidate{{Definition: def, Scope: badge.GlobalScope()}}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := s.InsertGrants(context.Background(), user, candidates)
			assert.NoError(t, err)
			mu.Lock()
			total += len(inserted)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	assert.Equal(t, 1, s.GrantCount(user))
}

func TestListEarnedNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	user := shared.UserID(uuid.NewString())
	older := newDef(t, s, "older")
	newer := newDef(t, s, "newer")

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	_, err := s.InsertGrants(ctx, user, []badge.Candidate{{Definition: older, Scope: badge.GlobalScope()}})
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	_, err = s.InsertGrants(ctx, user, []badge.Candidate{{Definition: newer, Scope: badge.GlobalScope()}})
	require.NoError(t, err)

	earned, err := s.ListEarned(ctx, user)
	require.NoError(t, err)
	require.Len(t, earned, 2)
	assert.Equal(t, "newer", earned[0].Definition.Slug)
	assert.Equal(t, "older", earned[1].Definition.Slug)
}

func TestFailOn(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")
	user := shared.UserID(uuid.NewString())

	s.FailOn(OpListGrades, boom)
	_, err := s.ListGrades(context.Background(), user)
	assert.ErrorIs(t, err, boom)

	s.FailOn(OpListGrades, nil)
	_, err = s.ListGrades(context.Background(), user)
	assert.NoError(t, err)
}

func TestCanceledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CountContributions(ctx, shared.UserID(uuid.NewString()))
	assert.ErrorIs(t, err, context.Canceled)
}
