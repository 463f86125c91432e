package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/logging"
)

// HandlerFunc processes one message of a registered type.
type HandlerFunc func(ctx context.Context, msg Message) error

// Router dispatches decoded messages on their type. Messages that cannot be
// decoded or have no handler are logged and dropped.
type Router struct {
	mu       sync.RWMutex
	handlers map[Type]HandlerFunc
	log      logrus.FieldLogger

	// OnDrop, when set, is called with a reason for every dropped message.
	OnDrop func(reason string)
}

// NewRouter creates a router with no handlers.
func NewRouter(log logrus.FieldLogger) *Router {
	return &Router{
		handlers: make(map[Type]HandlerFunc),
		log:      logging.OrNop(log),
	}
}

// Handle registers h for t, replacing any previous handler.
func (r *Router) Handle(t Type, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Types returns the registered message types.
func (r *Router) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// Dispatch decodes a raw payload and routes it.
func (r *Router) Dispatch(ctx context.Context, data []byte) error {
	msg, err := Decode(data)
	if err != nil {
		r.drop("decode", logrus.Fields{"bytes": len(data)}, err)
		return err
	}
	return r.DispatchMessage(ctx, msg)
}

// DispatchMessage routes an already decoded message.
func (r *Router) DispatchMessage(ctx context.Context, msg Message) error {
	r.mu.RLock()
	h, ok := r.handlers[msg.Type]
	r.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
		r.drop("unknown_type", logrus.Fields{"type": msg.Type}, err)
		return err
	}

	r.log.WithField("type", msg.Type).Debug("bridge message received")
	if err := h(ctx, msg); err != nil {
		r.log.WithError(err).WithField("type", msg.Type).Error("bridge handler failed")
		return fmt.Errorf("handle %s: %w", msg.Type, err)
	}
	return nil
}

func (r *Router) drop(reason string, fields logrus.Fields, err error) {
	r.log.WithFields(fields).WithError(err).Warn("bridge message dropped")
	if r.OnDrop != nil {
		r.OnDrop(reason)
	}
}

// Send delivers msg to the router in-process, so a Router can be used
// directly as a Messenger.
func (r *Router) Send(ctx context.Context, msg Message) error {
	return r.DispatchMessage(ctx, msg)
}
