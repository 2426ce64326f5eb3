// Package memory implements an in-process badge store for development
// mode and tests. It mirrors the Postgres semantics: one grant per
// (user, badge, scope key) and all-or-nothing batch inserts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpCountContributions  Op = "CountContributions"
	OpCountChatMessages   Op = "CountChatMessages"
	OpCountCoordinator    Op = "CountCoordinatorTimes"
	OpCountReporter       Op = "CountReporterTimes"
	OpCountPeerEvals      Op = "CountPeerEvaluations"
	OpCountReferences     Op = "CountReferences"
	OpListSessions        Op = "ListContributionSessions"
	OpListGrades          Op = "ListGrades"
	OpListDefinitions     Op = "ListDefinitions"
	OpListGrantKeys       Op = "ListGrantKeys"
	OpInsertGrants        Op = "InsertGrants"
	OpListEarned          Op = "ListEarned"
	OpUpsertDefinition    Op = "UpsertDefinition"
	OpGetDefinitionBySlug Op = "GetDefinitionBySlug"
)

type gradeRecord struct {
	grade    string
	archived bool
}

type activity struct {
	sessions        []string
	chatMessages    int
	coordinator     int
	reporter        int
	peerEvaluations int
	references      int
	grades          []gradeRecord
}

type grantRecord struct {
	badge.Grant
	seq int64
}

// Store is a mutex-guarded in-memory badge.Store.
type Store struct {
	mu          sync.RWMutex
	activity    map[shared.UserID]*activity
	definitions map[string]badge.Definition // by slug
	grants      map[shared.UserID][]grantRecord
	seq         int64
	failures    map[Op]error
	now         func() time.Time
}

var _ badge.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		activity:    make(map[shared.UserID]*activity),
		definitions: make(map[string]badge.Definition),
		grants:      make(map[shared.UserID][]grantRecord),
		failures:    make(map[Op]error),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Seeding and fault injection
// ─────────────────────────────────────────────────────────────────────────────

// FailOn makes op return err until cleared with a nil err.
func (s *Store) FailOn(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op Op) error {
	return s.failures[op]
}

func (s *Store) user(id shared.UserID) *activity {
	a, ok := s.activity[id]
	if !ok {
		a = &activity{}
		s.activity[id] = a
	}
	return a
}

// AddContributions records n contributions of the user in a session.
func (s *Store) AddContributions(userID shared.UserID, sessionID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.user(userID)
	for i := 0; i < n; i++ {
		a.sessions = append(a.sessions, sessionID)
	}
}

// AddChatMessages records n chat messages.
func (s *Store) AddChatMessages(userID shared.UserID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).chatMessages += n
}

// AddCoordinatorTimes records sessions the user coordinated.
func (s *Store) AddCoordinatorTimes(userID shared.UserID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).coordinator += n
}

// AddReporterTimes records sessions the user reported.
func (s *Store) AddReporterTimes(userID shared.UserID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).reporter += n
}

// AddPeerEvaluations records evaluations the user gave.
func (s *Store) AddPeerEvaluations(userID shared.UserID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).peerEvaluations += n
}

// AddReferences records references the user shared.
func (s *Store) AddReferences(userID shared.UserID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).references += n
}

// AddGrades appends grades in chronological order.
func (s *Store) AddGrades(userID shared.UserID, grades ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.user(userID)
	for _, g := range grades {
		a.grades = append(a.grades, gradeRecord{grade: g})
	}
}

// AddArchivedGrade appends a grade that the collector must ignore.
func (s *Store) AddArchivedGrade(userID shared.UserID, grade string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.user(userID)
	a.grades = append(a.grades, gradeRecord{grade: grade, archived: true})
}

// SeedDefinitions upserts definitions, assigning ids where missing.
func (s *Store) SeedDefinitions(defs ...badge.Definition) {
	for i := range defs {
		_ = s.UpsertDefinition(context.Background(), &defs[i])
	}
}

// GrantCount returns how many grants the user holds.
func (s *Store) GrantCount(userID shared.UserID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants[userID])
}

// ─────────────────────────────────────────────────────────────────────────────
// badge.ActivityReader
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) read(ctx context.Context, op Op, userID shared.UserID, fn func(a *activity) int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(op); err != nil {
		return 0, err
	}
	a, ok := s.activity[userID]
	if !ok {
		return 0, nil
	}
	return fn(a), nil
}

// CountContributions implements badge.ActivityReader.
func (s *Store) CountContributions(ctx context.Context, userID shared.UserID) (int, error) {
	return s.read(ctx, OpCountContributions, userID, func(a *activity) int { return len(a.sessions) })
}

// CountChatMessages implements badge.ActivityReader.
func (s *Store) CountChatMessages(ctx context.Context, userID shared.UserID) (int, error) {
	return s.read(ctx, OpCountChatMessages, userID, func(a *activity) int { return a.chatMessages })
}

// CountCoordinatorTimes implements badge.ActivityReader.
func (s *Store) CountCoordinatorTimes(ctx context.Context, userID shared.UserID) (int, error) {
	return s.read(ctx, OpCountCoordinator, userID, func(a *activity) int { return a.coordinator })
}

// CountReporterTimes implements badge.ActivityReader.
func (s *Store) CountReporterTimes(ctx context.Context, userID shared.UserID) (int, error) {
	return s.read(ctx, OpCountReporter, userID, func(a *activity) int { return a.reporter })
}

// CountPeerEvaluations implements badge.ActivityReader.
func (s *Store) CountPeerEvaluations(ctx context.Context, userID shared.UserID) (int, error) {
	return s.read(ctx, OpCountPeerEvals, userID, func(a *activity) int { return a.peerEvaluations })
}

// CountReferences implements badge.ActivityReader.
func (s *Store) CountReferences(ctx context.Context, userID shared.UserID) (int, error) {
	return s.read(ctx, OpCountReferences, userID, func(a *activity) int { return a.references })
}

// ListContributionSessions implements badge.ActivityReader.
func (s *Store) ListContributionSessions(ctx context.Context, userID shared.UserID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(OpListSessions); err != nil {
		return nil, err
	}
	a, ok := s.activity[userID]
	if !ok {
		return nil, nil
	}
	out := make([]string, len(a.sessions))
	copy(out, a.sessions)
	return out, nil
}

// ListGrades implements badge.ActivityReader.
func (s *Store) ListGrades(ctx context.Context, userID shared.UserID) ([]badge.Grade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(OpListGrades); err != nil {
		return nil, err
	}
	a, ok := s.activity[userID]
	if !ok {
		return nil, nil
	}
	var out []badge.Grade
	for _, g := range a.grades {
		if g.archived {
			continue
		}
		out = append(out, badge.NormalizeGrade(g.grade))
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// badge.DefinitionRepository
// ─────────────────────────────────────────────────────────────────────────────

// ListDefinitions implements badge.DefinitionRepository.
func (s *Store) ListDefinitions(ctx context.Context) ([]badge.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(OpListDefinitions); err != nil {
		return nil, err
	}
	out := make([]badge.Definition, 0, len(s.definitions))
	for _, d := range s.definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// GetDefinitionBySlug implements badge.DefinitionRepository.
func (s *Store) GetDefinitionBySlug(ctx context.Context, slug string) (*badge.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(OpGetDefinitionBySlug); err != nil {
		return nil, err
	}
	d, ok := s.definitions[strings.ToLower(slug)]
	if !ok {
		return nil, shared.ErrDefinitionNotFound
	}
	return &d, nil
}

// UpsertDefinition implements badge.DefinitionRepository.
func (s *Store) UpsertDefinition(ctx context.Context, def *badge.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpUpsertDefinition); err != nil {
		return err
	}

	now := s.now()
	if existing, ok := s.definitions[def.Slug]; ok {
		def.ID = existing.ID
		def.CreatedAt = existing.CreatedAt
	} else {
		if def.ID == "" {
			def.ID = uuid.NewString()
		}
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	s.definitions[def.Slug] = *def
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// badge.GrantRepository
// ─────────────────────────────────────────────────────────────────────────────

// ListGrantKeys implements badge.GrantRepository.
func (s *Store) ListGrantKeys(ctx context.Context, userID shared.UserID) (badge.GrantSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(OpListGrantKeys); err != nil {
		return nil, err
	}
	set := badge.NewGrantSet()
	for _, g := range s.grants[userID] {
		set.Add(g.Key())
	}
	return set, nil
}

// InsertGrants implements badge.GrantRepository. The whole batch runs
// under the write lock, so concurrent callers serialize and the loser
// finds the pairs already present.
func (s *Store) InsertGrants(ctx context.Context, userID shared.UserID, candidates []badge.Candidate) ([]badge.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpInsertGrants); err != nil {
		return nil, err
	}

	held := badge.NewGrantSet()
	for _, g := range s.grants[userID] {
		held.Add(g.Key())
	}

	now := s.now()
	var inserted []badge.Grant
	for _, c := range candidates {
		if held.Has(c.Key()) {
			continue
		}
		held.Add(c.Key())

		s.seq++
		g := badge.Grant{
			ID:       uuid.NewString(),
			UserID:   userID,
			BadgeID:  c.Definition.ID,
			Scope:    c.Scope,
			Metadata: c.Metadata,
			EarnedAt: now,
		}
		s.grants[userID] = append(s.grants[userID], grantRecord{Grant: g, seq: s.seq})
		inserted = append(inserted, g)
	}
	return inserted, nil
}

// ListEarned implements badge.GrantRepository.
func (s *Store) ListEarned(ctx context.Context, userID shared.UserID) ([]badge.EarnedBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(OpListEarned); err != nil {
		return nil, err
	}

	byID := make(map[string]badge.Definition, len(s.definitions))
	for _, d := range s.definitions {
		byID[d.ID] = d
	}

	records := make([]grantRecord, len(s.grants[userID]))
	copy(records, s.grants[userID])
	sort.Slice(records, func(i, j int) bool {
		if !records[i].EarnedAt.Equal(records[j].EarnedAt) {
			return records[i].EarnedAt.After(records[j].EarnedAt)
		}
		return records[i].seq > records[j].seq
	})

	out := make([]badge.EarnedBadge, 0, len(records))
	for _, r := range records {
		def, ok := byID[r.BadgeID]
		if !ok {
			continue
		}
		out = append(out, badge.EarnedBadge{Grant: r.Grant, Definition: def})
	}
	return out, nil
}

// Ping implements badge.Store.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
