package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/missionctl/api/schemas"
)

// recorder is a scriptable integration for dispatch tests.
type recorder struct {
	name  string
	types []schemas.EventType
	fail  error
	panic bool

	calls *[]string
}

func (r *recorder) Name() string                       { return r.name }
func (r *recorder) Subscriptions() []schemas.EventType { return r.types }
func (r *recorder) HandleEvent(ctx context.Context, ev schemas.Event) error {
	if r.calls != nil {
		*r.calls = append(*r.calls, r.name)
	}
	if r.panic {
		panic("subscriber exploded")
	}
	return r.fail
}

func stageEvent(t schemas.EventType) schemas.Event {
	return schemas.NewEvent(t, schemas.StageBuilding, "m-1", map[string]interface{}{"k": "v"})
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("no subscribers means no failures", func(t *testing.T) {
		b := New(zaptest.NewLogger(t))
		assert.Empty(t, b.Publish(ctx, stageEvent(schemas.EventStageStarted)))
	})

	t.Run("dispatch follows registration order and completes before returning", func(t *testing.T) {
		b := New(zaptest.NewLogger(t))
		var calls []string
		for _, name := range []string{"first", "second", "third"} {
			b.Subscribe(schemas.EventStageCompleted, &recorder{
				name:  name,
				calls: &calls,
			})
		}

		failures := b.Publish(ctx, stageEvent(schemas.EventStageCompleted))
		assert.Empty(t, failures)
		assert.Equal(t, []string{"first", "second", "third"}, calls)
	})

	t.Run("a failing subscriber never blocks the rest", func(t *testing.T) {
		b := New(zaptest.NewLogger(t))
		var calls []string
		b.Subscribe(schemas.EventStageCompleted, &recorder{name: "ok-1", calls: &calls})
		b.Subscribe(schemas.EventStageCompleted, &recorder{name: "bad", calls: &calls, fail: errors.New("disk full")})
		b.Subscribe(schemas.EventStageCompleted, &recorder{name: "ok-2", calls: &calls})

		failures := b.Publish(ctx, stageEvent(schemas.EventStageCompleted))

		assert.Equal(t, []string{"ok-1", "bad", "ok-2"}, calls)
		require.Len(t, failures, 1)
		assert.Equal(t, "bad", failures[0].Subscriber)
		assert.Equal(t, schemas.EventStageCompleted, failures[0].EventType)
		assert.Equal(t, schemas.StageBuilding, failures[0].Stage)
		assert.EqualError(t, failures[0].Err, "disk full")
	})

	t.Run("a panicking subscriber is contained as a failure", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		b := New(zap.New(core))
		var calls []string
		b.Subscribe(schemas.EventError, &recorder{name: "volatile", calls: &calls, panic: true})
		b.Subscribe(schemas.EventError, &recorder{name: "steady", calls: &calls})

		failures := b.Publish(ctx, stageEvent(schemas.EventError))

		assert.Equal(t, []string{"volatile", "steady"}, calls)
		require.Len(t, failures, 1)
		assert.Contains(t, failures[0].Err.Error(), "subscriber panicked")
		assert.Equal(t, 1, logs.FilterMessage("Integration degraded").Len())
	})

	t.Run("subscribers only see their event type", func(t *testing.T) {
		b := New(zaptest.NewLogger(t))
		var calls []string
		b.Subscribe(schemas.EventMissionStarted, &recorder{name: "starter", calls: &calls})

		b.Publish(ctx, stageEvent(schemas.EventStageCompleted))
		assert.Empty(t, calls)
		b.Publish(ctx, stageEvent(schemas.EventMissionStarted))
		assert.Equal(t, []string{"starter"}, calls)
	})
}

func TestRegister(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	var calls []string
	b.Register(&recorder{
		name:  "firehose",
		types: schemas.AllEventTypes(),
		calls: &calls,
	})

	for _, et := range schemas.AllEventTypes() {
		b.Publish(context.Background(), stageEvent(et))
	}
	assert.Len(t, calls, len(schemas.AllEventTypes()))
}
