package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// handlerSlot holds the current output chain of one module. Initialize
// replaces the chain; loggers handed out earlier read it through the slot.
type handlerSlot struct {
	current atomic.Pointer[slog.Handler]
}

func newHandlerSlot(h slog.Handler) *handlerSlot {
	s := &handlerSlot{}
	s.set(h)
	return s
}

func (s *handlerSlot) set(h slog.Handler) {
	s.current.Store(&h)
}

// derived is a chain built from one base with a logger's With calls applied.
type derived struct {
	base    *slog.Handler
	handler slog.Handler
}

// swapHandler delegates to the slot's current chain, replaying the
// WithAttrs and WithGroup calls made on it.
type swapHandler struct {
	slot  *handlerSlot
	ops   []func(slog.Handler) slog.Handler
	cache atomic.Pointer[derived]
}

func newSwapHandler(slot *handlerSlot) *swapHandler {
	return &swapHandler{slot: slot}
}

func (h *swapHandler) resolve() slog.Handler {
	base := h.slot.current.Load()
	if d := h.cache.Load(); d != nil && d.base == base {
		return d.handler
	}
	next := *base
	for _, op := range h.ops {
		next = op(next)
	}
	h.cache.Store(&derived{base: base, handler: next})
	return next
}

func (h *swapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.resolve().Enabled(ctx, level)
}

func (h *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *swapHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *swapHandler) with(op func(slog.Handler) slog.Handler) *swapHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &swapHandler{slot: h.slot, ops: append(ops, op)}
}
