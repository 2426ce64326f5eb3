package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/catalog"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/persistence/memory"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store     *memory.Store
	handler   *ComputeBadgesHandler
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.SeedDefinitions(catalog.MustDefault()...)
	pub := &recordingPublisher{}
	h := NewComputeBadgesHandler(store, nil, pub, nil, nil, ComputeBadgesConfig{})
	return &fixture{store: store, handler: h, publisher: pub}
}

func newUser() shared.UserID {
	return shared.UserID(uuid.NewString())
}

func (f *fixture) compute(t *testing.T, user shared.UserID, room string) *ComputeBadgesResult {
	t.Helper()
	res, err := f.handler.Handle(context.Background(), ComputeBadgesCommand{
		CallerID: user.String(),
		RoomID:   room,
	})
	require.NoError(t, err)
	return res
}

func slugs(badges []badge.EarnedBadge) []string {
	out := make([]string, 0, len(badges))
	for _, b := range badges {
		out = append(out, b.Definition.Slug)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestComputeBadges_ZeroActivity(t *testing.T) {
	f := newFixture(t)
	user := newUser()

	res := f.compute(t, user, "")

	assert.Equal(t, 0, res.NewBadges)
	assert.NotNil(t, res.Badges)
	assert.Empty(t, res.Badges)
	assert.Equal(t, badge.Metrics{}, res.Metrics)
	assert.Equal(t, 0, f.store.GrantCount(user))
}

func TestComputeBadges_Idempotent(t *testing.T) {
	f := newFixture(t)
	user := newUser()
	room := uuid.NewString()
	f.store.AddContributions(user, "s1", 1)

	first := f.compute(t, user, room)
	require.Equal(t, 1, first.NewBadges)
	require.Len(t, first.Badges, 1)
	assert.Equal(t, badge.SlugFirstContribution, first.Badges[0].Definition.Slug)
	assert.Equal(t, "room:"+room, first.Badges[0].Scope.Key())

	second := f.compute(t, user, room)
	assert.Equal(t, 0, second.NewBadges)
	assert.Len(t, second.Badges, 1)
	assert.Equal(t, 1, f.store.GrantCount(user))
}

func TestComputeBadges_GrantSetIsMonotonic(t *testing.T) {
	f := newFixture(t)
	user := newUser()
	room := uuid.NewString()

	f.store.AddContributions(user, "s1", 1)
	first := f.compute(t, user, room)

	f.store.AddContributions(user, "s2", 9)
	second := f.compute(t, user, room)

	assert.Equal(t, 1, second.NewBadges)
	assert.Subset(t, slugs(second.Badges), slugs(first.Badges))
	assert.ElementsMatch(t,
		[]string{badge.SlugFirstContribution, badge.SlugActiveContributor10},
		slugs(second.Badges),
	)
}

func TestComputeBadges_ThresholdsAreExact(t *testing.T) {
	tests := []struct {
		name  string
		seed  func(s *memory.Store, u shared.UserID)
		slug  string
		grant bool
	}{
		{"9 contributions", func(s *memory.Store, u shared.UserID) { s.AddContributions(u, "s", 9) }, badge.SlugActiveContributor10, false},
		{"10 contributions", func(s *memory.Store, u shared.UserID) { s.AddContributions(u, "s", 10) }, badge.SlugActiveContributor10, true},
		{"49 contributions", func(s *memory.Store, u shared.UserID) { s.AddContributions(u, "s", 49) }, badge.SlugProlificContributor50, false},
		{"50 contributions", func(s *memory.Store, u shared.UserID) { s.AddContributions(u, "s", 50) }, badge.SlugProlificContributor50, true},
		{"19 chat messages", func(s *memory.Store, u shared.UserID) { s.AddChatMessages(u, 19) }, badge.SlugChatEnthusiast20, false},
		{"20 chat messages", func(s *memory.Store, u shared.UserID) { s.AddChatMessages(u, 20) }, badge.SlugChatEnthusiast20, true},
		{"4 peer evaluations", func(s *memory.Store, u shared.UserID) { s.AddPeerEvaluations(u, 4) }, badge.SlugPeerEvaluator5, false},
		{"5 peer evaluations", func(s *memory.Store, u shared.UserID) { s.AddPeerEvaluations(u, 5) }, badge.SlugPeerEvaluator5, true},
		{"2 references", func(s *memory.Store, u shared.UserID) { s.AddReferences(u, 2) }, badge.SlugReferenceSharer3, false},
		{"3 references", func(s *memory.Store, u shared.UserID) { s.AddReferences(u, 3) }, badge.SlugReferenceSharer3, true},
		{"reporter once", func(s *memory.Store, u shared.UserID) { s.AddReporterTimes(u, 1) }, badge.SlugReporterStar, true},
		{"4 sessions", func(s *memory.Store, u shared.UserID) {
			for _, id := range []string{"a", "b", "c", "d", "d"} {
				s.AddContributions(u, id, 1)
			}
		}, badge.SlugConsistentPresence5, false},
		{"5 sessions", func(s *memory.Store, u shared.UserID) {
			for _, id := range []string{"a", "b", "c", "d", "e"} {
				s.AddContributions(u, id, 1)
			}
		}, badge.SlugConsistentPresence5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			user := newUser()
			tt.seed(f.store, user)

			res := f.compute(t, user, uuid.NewString())

			if tt.grant {
				assert.Contains(t, slugs(res.Badges), tt.slug)
			} else {
				assert.NotContains(t, slugs(res.Badges), tt.slug)
			}
		})
	}
}

func TestComputeBadges_ScopeIsolation(t *testing.T) {
	f := newFixture(t)
	user := newUser()
	roomA, roomB := uuid.NewString(), uuid.NewString()
	f.store.AddCoordinatorTimes(user, 1)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		f.store.AddContributions(user, id, 1)
	}

	a := f.compute(t, user, roomA)
	// coordinator_star, first_contribution in room A plus the global presence badge.
	assert.Equal(t, 3, a.NewBadges)

	b := f.compute(t, user, roomB)
	assert.Equal(t, 2, b.NewBadges)

	none := f.compute(t, user, "")
	assert.Equal(t, 2, none.NewBadges)

	scopes := map[string][]string{}
	for _, e := range none.Badges {
		scopes[e.Definition.Slug] = append(scopes[e.Definition.Slug], e.Scope.Key())
	}
	assert.ElementsMatch(t,
		[]string{"room:" + roomA, "room:" + roomB, "room:none"},
		scopes[badge.SlugCoordinatorStar],
	)
	assert.Equal(t, []string{"global"}, scopes[badge.SlugConsistentPresence5])
}

func TestComputeBadges_TopPerformerMetadata(t *testing.T) {
	f := newFixture(t)
	user := newUser()
	f.store.AddGrades(user, "A", "a ", "B")

	res := f.compute(t, user, "")

	require.Equal(t, 1, res.NewBadges)
	assert.Equal(t, badge.SlugTopPerformer, res.Badges[0].Definition.Slug)
	assert.Equal(t, 66.67, res.Badges[0].Metadata["percentage"])
	assert.Equal(t, 66.67, res.Metrics.APercentage)
	assert.Equal(t, 3, res.Metrics.TotalGrades)
}

func TestComputeBadges_ArchivedGradesIgnored(t *testing.T) {
	f := newFixture(t)
	user := newUser()
	f.store.AddGrades(user, "A", "A")
	f.store.AddArchivedGrade(user, "A")

	res := f.compute(t, user, "")

	assert.Equal(t, 2, res.Metrics.TotalGrades)
	assert.NotContains(t, slugs(res.Badges), badge.SlugTopPerformer)
}

func TestComputeBadges_ConcurrentDuplicatesGrantOnce(t *testing.T) {
	f := newFixture(t)
	user := newUser()
	room := uuid.NewString()
	f.store.AddContributions(user, "s1", 10)
	f.store.AddCoordinatorTimes(user, 1)

	const callers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.handler.Handle(context.Background(), ComputeBadgesCommand{
				CallerID: user.String(),
				RoomID:   room,
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			total += res.NewBadges
			mu.Unlock()
		}()
	}
	wg.Wait()

	// first_contribution, active_contributor_10, coordinator_star.
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, f.store.GrantCount(user))
	assert.Len(t, f.publisher.ofType(shared.EventBadgeAwarded), 3)
}

func TestComputeBadges_ReadFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	user := newUser()
	f.store.AddContributions(user, "s1", 1)
	f.store.FailOn(memory.OpCountChatMessages, errors.New("connection reset"))

	res, err := f.handler.Handle(context.Background(), ComputeBadgesCommand{CallerID: user.String()})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, shared.ErrMetricsUnavailable)
	var cerr *ComputeError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, StepCollectMetrics, cerr.Step)
	assert.Equal(t, 0, f.store.GrantCount(user))
}

func TestComputeBadges_WriteFailureGrantsNothing(t *testing.T) {
	f := newFixture(t)
	user := newUser()
	f.store.AddContributions(user, "s1", 1)
	f.store.FailOn(memory.OpInsertGrants, errors.New("deadlock detected"))

	_, err := f.handler.Handle(context.Background(), ComputeBadgesCommand{CallerID: user.String()})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrAwardFailed)
	assert.Equal(t, 0, f.store.GrantCount(user))
	assert.Empty(t, f.publisher.ofType(shared.EventBadgeAwarded))

	f.store.FailOn(memory.OpInsertGrants, nil)
	res := f.compute(t, user, "")
	assert.Equal(t, 1, res.NewBadges)
}

func TestComputeBadges_SummaryFailure(t *testing.T) {
	f := newFixture(t)
	user := newUser()
	f.store.FailOn(memory.OpListEarned, errors.New("timeout"))

	_, err := f.handler.Handle(context.Background(), ComputeBadgesCommand{CallerID: user.String()})
	assert.ErrorIs(t, err, shared.ErrSummaryFailed)
}

func TestComputeBadges_RejectsBeforeDataAccess(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn(memory.OpCountContributions, errors.New("must not be reached"))

	_, err := f.handler.Handle(context.Background(), ComputeBadgesCommand{})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
	assert.True(t, shared.IsUnauthorized(err))

	_, err = f.handler.Handle(context.Background(), ComputeBadgesCommand{
		CallerID: uuid.NewString(),
		RoomID:   "not-a-uuid",
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.ErrorIs(t, err, shared.ErrInvalidRoomID)
}

func TestComputeBadges_TargetUser(t *testing.T) {
	f := newFixture(t)
	caller, target := newUser(), newUser()
	f.store.AddReporterTimes(target, 1)

	res, err := f.handler.Handle(context.Background(), ComputeBadgesCommand{
		CallerID: caller.String(),
		UserID:   target.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, target, res.UserID)
	assert.Equal(t, 1, res.NewBadges)
	assert.Equal(t, 0, f.store.GrantCount(caller))
}

func TestComputeBadges_MissingDefinitionSkipsRule(t *testing.T) {
	store := memory.NewStore()
	store.SeedDefinitions(badge.Definition{
		Slug:     badge.SlugReporterStar,
		Name:     "Reporter",
		Category: badge.CategoryLeadership,
	})
	h := NewComputeBadgesHandler(store, nil, nil, nil, nil, ComputeBadgesConfig{})
	user := newUser()
	store.AddReporterTimes(user, 1)
	store.AddCoordinatorTimes(user, 1)

	res, err := h.Handle(context.Background(), ComputeBadgesCommand{CallerID: user.String()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewBadges)
	assert.Contains(t, res.MissingDefinitions, badge.SlugCoordinatorStar)
	assert.Len(t, res.MissingDefinitions, 11)
}

func TestComputeBadges_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	user := newUser()
	f.store.AddReporterTimes(user, 1)

	res, err := f.handler.Handle(context.Background(), ComputeBadgesCommand{
		CallerID:      user.String(),
		CorrelationID: "req-1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.NewBadges)

	awarded := f.publisher.ofType(shared.EventBadgeAwarded)
	require.Len(t, awarded, 1)
	event, ok := awarded[0].(badge.BadgeAwardedEvent)
	require.True(t, ok)
	assert.Equal(t, badge.SlugReporterStar, event.Slug)
	assert.Equal(t, "room:none", event.ScopeKey)
	assert.Equal(t, "req-1", event.CorrelationID)

	computed := f.publisher.ofType(shared.EventBadgesComputed)
	require.Len(t, computed, 1)
	assert.Equal(t, 1, computed[0].Payload()["new_badges"])
}

func TestComputeBadges_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("redis down")
	user := newUser()
	f.store.AddReporterTimes(user, 1)

	res := f.compute(t, user, "")
	assert.Equal(t, 1, res.NewBadges)
}

func TestComputeBadges_DisabledRule(t *testing.T) {
	store := memory.NewStore()
	store.SeedDefinitions(catalog.MustDefault()...)
	registry := badge.DefaultRegistry()
	unknown := registry.Disable(badge.SlugReporterStar, "no_such_rule")
	assert.Equal(t, []string{"no_such_rule"}, unknown)

	h := NewComputeBadgesHandler(store, badge.NewEvaluator(registry), nil, nil, nil, ComputeBadgesConfig{})
	user := newUser()
	store.AddReporterTimes(user, 1)
	store.AddCoordinatorTimes(user, 1)

	res, err := h.Handle(context.Background(), ComputeBadgesCommand{CallerID: user.String()})
	require.NoError(t, err)
	assert.Equal(t, []string{badge.SlugCoordinatorStar}, slugs(res.Badges))
}
