package command

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS COLLECTOR
// Builds a metrics snapshot from the raw activity of one user. Every read is
// independent, so they run concurrently. The first failing read cancels the
// others and fails the snapshot.
// ══════════════════════════════════════════════════════════════════════════════

// Metric names used for per-read latency.
const (
	MetricContributions    = "contributions"
	MetricChatMessages     = "chat_messages"
	MetricCoordinatorTimes = "coordinator_times"
	MetricReporterTimes    = "reporter_times"
	MetricPeerEvaluations  = "peer_evaluations"
	MetricReferences       = "references_shared"
	MetricSessions         = "sessions"
	MetricGrades           = "grades"
)

// MetricsCollector reads activity and assembles badge.Metrics.
type MetricsCollector struct {
	reader   badge.ActivityReader
	recorder Recorder
}

// NewMetricsCollector creates a collector. recorder may be nil.
func NewMetricsCollector(reader badge.ActivityReader, recorder Recorder) *MetricsCollector {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &MetricsCollector{reader: reader, recorder: recorder}
}

// Collect returns the snapshot of userID. Metrics are global to the user and
// never filtered by room.
func (c *MetricsCollector) Collect(ctx context.Context, userID shared.UserID) (badge.Metrics, error) {
	var (
		counts   badge.ActivityCounts
		sessions []string
		grades   []badge.Grade
	)

	g, gctx := errgroup.WithContext(ctx)

	c.count(g, gctx, MetricContributions, &counts.Contributions, c.reader.CountContributions, userID)
	c.count(g, gctx, MetricChatMessages, &counts.ChatMessages, c.reader.CountChatMessages, userID)
	c.count(g, gctx, MetricCoordinatorTimes, &counts.CoordinatorTimes, c.reader.CountCoordinatorTimes, userID)
	c.count(g, gctx, MetricReporterTimes, &counts.ReporterTimes, c.reader.CountReporterTimes, userID)
	c.count(g, gctx, MetricPeerEvaluations, &counts.PeerEvaluations, c.reader.CountPeerEvaluations, userID)
	c.count(g, gctx, MetricReferences, &counts.ReferencesShared, c.reader.CountReferences, userID)

	g.Go(func() error {
		start := time.Now()
		ids, err := c.reader.ListContributionSessions(gctx, userID)
		c.recorder.ObserveMetricQuery(MetricSessions, time.Since(start))
		if err != nil {
			return err
		}
		sessions = ids
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		list, err := c.reader.ListGrades(gctx, userID)
		c.recorder.ObserveMetricQuery(MetricGrades, time.Since(start))
		if err != nil {
			return err
		}
		grades = list
		return nil
	})

	if err := g.Wait(); err != nil {
		return badge.Metrics{}, shared.ErrMetricsUnavailable.Wrap(err)
	}

	return badge.NewMetrics(counts, sessions, grades), nil
}

// count schedules one counting read writing into dst.
func (c *MetricsCollector) count(
	g *errgroup.Group,
	ctx context.Context,
	metric string,
	dst *int,
	read func(context.Context, shared.UserID) (int, error),
	userID shared.UserID,
) {
	g.Go(func() error {
		start := time.Now()
		n, err := read(ctx, userID)
		c.recorder.ObserveMetricQuery(metric, time.Since(start))
		if err != nil {
			return err
		}
		*dst = n
		return nil
	})
}
