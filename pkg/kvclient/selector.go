package kvclient

import "sync"

// Selector holds the caller's preferred target node and resolves the
// effective target per request.
type Selector struct {
    mu       sync.RWMutex
    selected NodeID
}

// Select stores id for all subsequent requests. NoNode clears the preference.
func (s *Selector) Select(id NodeID) {
    s.mu.Lock()
    s.selected = id
    s.mu.Unlock()
}

// Selected returns the stored preference.
func (s *Selector) Selected() NodeID {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.selected
}

// Resolve returns the override when one is given (an explicit NoNode
// override included), else the stored selection.
func (s *Selector) Resolve(override *NodeID) NodeID {
    if override != nil { return *override }
    return s.Selected()
}

// CallOption customizes a single routed operation.
type CallOption func(*callOptions)

type callOptions struct {
    node *NodeID
}

// OnNode targets the call at id regardless of the stored selection.
// OnNode(NoNode) sends the call without a node parameter.
func OnNode(id NodeID) CallOption {
    return func(o *callOptions) { o.node = &id }
}

func collect(opts []CallOption) callOptions {
    var co callOptions
    for _, o := range opts {
        if o != nil { o(&co) }
    }
    return co
}
