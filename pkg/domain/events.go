package domain

import (
	"context"
	"time"
)

// StepEvent represents entry to or exit from a node.
type StepEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	NodeID    string    `json:"node_id"`
	Layer     string    `json:"layer"`
}

// LLMEvent represents a model invocation.
type LLMEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"session_id"`
	NodeID    string        `json:"node_id"`
	Attempt   int           `json:"attempt"`
	Duration  time.Duration `json:"duration,omitempty"`
	IsError   bool          `json:"is_error,omitempty"`
}

// BranchEvent represents a fan-out into parallel sub-traversals.
type BranchEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	NodeID    string    `json:"node_id"`
	Targets   []string  `json:"targets"`
}

// FailureEvent represents a step or session failure.
type FailureEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	NodeID    string    `json:"node_id"`
	Kind      string    `json:"kind"`
}

// LifecycleHooks defines callbacks for engine observability. All hooks are
// optional and must not block.
type LifecycleHooks struct {
	OnNodeEnter func(context.Context, *StepEvent)
	OnNodeLeave func(context.Context, *StepEvent)
	OnLLMCall   func(context.Context, *LLMEvent)
	OnLLMReturn func(context.Context, *LLMEvent)
	OnBranch    func(context.Context, *BranchEvent)
	OnFailure   func(context.Context, *FailureEvent)
}

// MergeHooks chains two hook sets; both receive every event, a first.
func MergeHooks(a, b LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter: chain(a.OnNodeEnter, b.OnNodeEnter),
		OnNodeLeave: chain(a.OnNodeLeave, b.OnNodeLeave),
		OnLLMCall:   chain(a.OnLLMCall, b.OnLLMCall),
		OnLLMReturn: chain(a.OnLLMReturn, b.OnLLMReturn),
		OnBranch:    chain(a.OnBranch, b.OnBranch),
		OnFailure:   chain(a.OnFailure, b.OnFailure),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
