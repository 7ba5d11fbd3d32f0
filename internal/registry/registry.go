// File: internal/registry/registry.go
// Description: Maps each stage of the closed workflow set to its handler.
// Registration is idempotent per stage (last registration wins) so a handler
// implementation can be hot-swapped without restarting the process.

package registry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/missionctl/api/schemas"
)

// Registry holds the handler routing table. It holds no mission data.
type Registry struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[schemas.Stage]schemas.StageHandler
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		log:      logger.Named("registry"),
		handlers: make(map[schemas.Stage]schemas.StageHandler),
	}
}

// Register binds handler to stage. The stage must be a member of the closed
// stage set; re-registering replaces the previous handler.
func (r *Registry) Register(stage schemas.Stage, handler schemas.StageHandler) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %q", schemas.ErrInvalidStage, stage)
	}
	if handler == nil {
		return fmt.Errorf("nil handler for stage %s", stage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[stage]; exists {
		r.log.Info("Replacing stage handler", zap.String("stage", string(stage)))
	}
	r.handlers[stage] = handler
	return nil
}

// Handler resolves the handler for stage. A stage outside the closed set is
// a data error (ErrInvalidStage); a valid stage with no registered handler is
// a configuration error (ErrUnknownStageHandler) and should stop the driving
// loop rather than let it spin on the same stage.
func (r *Registry) Handler(stage schemas.Stage) (schemas.StageHandler, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: %q", schemas.ErrInvalidStage, stage)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schemas.ErrUnknownStageHandler, stage)
	}
	return h, nil
}

// Stages returns the stages that currently have a handler registered.
func (r *Registry) Stages() []schemas.Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.Stage, 0, len(r.handlers))
	for _, s := range schemas.AllStages() {
		if _, ok := r.handlers[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
