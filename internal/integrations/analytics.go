// File: internal/integrations/analytics.go
// Description: Records lifecycle events into Postgres for cross-mission
// analysis. The bus imposes no timeout on subscribers, so this integration
// bounds its own write rate: events over the configured rate are dropped and
// counted rather than queued.

package integrations

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/missionctl/api/schemas"
)

// AnalyticsDB abstracts the pgxpool.Pool so the recorder can be mocked.
type AnalyticsDB interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const sqlInsertEvent = `
    INSERT INTO mission_events (id, mission_id, event_type, stage, data, created_at)
    VALUES ($1, $2, $3, $4, $5, $6);
`

// AnalyticsRecorder inserts one row per event.
type AnalyticsRecorder struct {
	log     *zap.Logger
	db      AnalyticsDB
	limiter *rate.Limiter
	dropped atomic.Int64
}

// NewAnalyticsRecorder creates the recorder and verifies the connection.
func NewAnalyticsRecorder(ctx context.Context, logger *zap.Logger, db AnalyticsDB, eventsPerSecond float64) (*AnalyticsRecorder, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping analytics database: %w", err)
	}
	return &AnalyticsRecorder{
		log:     logger.Named("analytics"),
		db:      db,
		limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), int(eventsPerSecond)+1),
	}, nil
}

func (a *AnalyticsRecorder) Name() string { return "analytics" }

func (a *AnalyticsRecorder) Subscriptions() []schemas.EventType {
	return schemas.AllEventTypes()
}

// HandleEvent inserts the event row, dropping (not blocking) when the rate
// limit is exceeded.
func (a *AnalyticsRecorder) HandleEvent(ctx context.Context, ev schemas.Event) error {
	if !a.limiter.Allow() {
		n := a.dropped.Add(1)
		a.log.Debug("Analytics event dropped by rate limit",
			zap.String("event_type", string(ev.Type)),
			zap.Int64("dropped_total", n))
		return nil
	}

	data := ev.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event data: %w", err)
	}

	if _, err := a.db.Exec(ctx, sqlInsertEvent,
		ev.ID, ev.MissionID, string(ev.Type), string(ev.Stage), raw, ev.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("inserting event row: %w", err)
	}
	return nil
}

// Dropped returns how many events the rate limiter has discarded.
func (a *AnalyticsRecorder) Dropped() int64 { return a.dropped.Load() }
