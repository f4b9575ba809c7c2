package identity

import (
	"context"
	"sync"
)

// Holder keeps the identity of the current call. At most one identity is held
// at a time.
type Holder interface {
	Current() (*Identity, bool)
	Set(id *Identity)
	Clear()
}

// Strategy decides which Holder serves a given call.
type Strategy interface {
	HolderFor(ctx context.Context) Holder
}

// CallHolder is a Holder scoped to a single call. It must not be shared
// between concurrent calls.
type CallHolder struct {
	id *Identity
}

func NewHolder() *CallHolder { return &CallHolder{} }

func (h *CallHolder) Current() (*Identity, bool) { return h.id, h.id != nil }

func (h *CallHolder) Set(id *Identity) { h.id = id }

func (h *CallHolder) Clear() { h.id = nil }

type holderKey struct{}

// WithHolder attaches h to ctx for the rest of the call.
func WithHolder(ctx context.Context, h Holder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

func HolderFrom(ctx context.Context) (Holder, bool) {
	v := ctx.Value(holderKey{})
	if v == nil {
		return nil, false
	}
	h, ok := v.(Holder)
	return h, ok
}

// ContextStrategy resolves the holder carried in the context. Contexts
// without one get a fresh detached holder, so nothing written there outlives
// the lookup.
type ContextStrategy struct{}

func (ContextStrategy) HolderFor(ctx context.Context) Holder {
	if h, ok := HolderFrom(ctx); ok {
		return h
	}
	return NewHolder()
}

// GlobalStrategy shares one holder across the whole process.
type GlobalStrategy struct {
	mu sync.RWMutex
	id *Identity
}

func (g *GlobalStrategy) HolderFor(context.Context) Holder { return g }

func (g *GlobalStrategy) Current() (*Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.id, g.id != nil
}

func (g *GlobalStrategy) Set(id *Identity) {
	g.mu.Lock()
	g.id = id
	g.mu.Unlock()
}

func (g *GlobalStrategy) Clear() { g.Set(nil) }

// Current is a shortcut for the identity the strategy resolves for ctx.
func Current(ctx context.Context, s Strategy) *Identity {
	id, _ := s.HolderFor(ctx).Current()
	return id
}
