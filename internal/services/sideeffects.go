package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

// SideEffectHandler performs one named action for a running job and returns a
// JSON-serializable result. Handlers must tolerate at-least-once invocation
// across polling sessions.
type SideEffectHandler func(ctx context.Context, params json.RawMessage) (any, error)

// SideEffectRegistry maps function names to handlers.
type SideEffectRegistry struct {
	log *logger.Logger

	mu       sync.RWMutex
	handlers map[string]SideEffectHandler
}

func NewSideEffectRegistry(log *logger.Logger) *SideEffectRegistry {
	return &SideEffectRegistry{
		log:      log.With("service", "SideEffectRegistry"),
		handlers: make(map[string]SideEffectHandler),
	}
}

func (r *SideEffectRegistry) Register(name string, h SideEffectHandler) {
	name = strings.TrimSpace(name)
	if name == "" || h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *SideEffectRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Dispatch invokes the handler for req. A handler failure yields a result
// carrying an error payload; the remote job decides how to react.
func (r *SideEffectRegistry) Dispatch(ctx context.Context, req SideEffectRequest) SideEffectResult {
	r.mu.RLock()
	h, ok := r.handlers[req.Name]
	r.mu.RUnlock()

	if !ok {
		return SideEffectResult{
			RequestID: req.ID,
			Output:    fmt.Sprintf(`{"error":"unknown function %q"}`, req.Name),
		}
	}

	out, err := h(ctx, req.Arguments)
	if err != nil {
		r.log.Warn("Side effect handler failed",
			"function", req.Name,
			"request_id", req.ID,
			"error", err.Error(),
		)
		raw, _ := json.Marshal(map[string]string{"error": err.Error()})
		return SideEffectResult{RequestID: req.ID, Output: string(raw)}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"error": "unserializable handler result"})
	}
	return SideEffectResult{RequestID: req.ID, Output: string(raw)}
}
