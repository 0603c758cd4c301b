// Package testutils provides shared fixtures for engine and adapter tests.
package testutils

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/magicprompt/loom/pkg/ports"
)

// ScriptedInvoker returns a canned reply per node id. Unknown nodes fail the
// invocation, which keeps test graphs honest about which nodes they visit.
type ScriptedInvoker struct {
	mu      sync.Mutex
	replies map[string]ports.Reply
	calls   []string
}

// NewScriptedInvoker builds an invoker from a node id to reply table.
func NewScriptedInvoker(replies map[string]ports.Reply) *ScriptedInvoker {
	return &ScriptedInvoker{replies: replies}
}

// Invoke returns the scripted reply for the instruction's node.
func (s *ScriptedInvoker) Invoke(ctx context.Context, inst ports.Instruction) (*ports.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls = append(s.calls, inst.NodeID)
	reply, ok := s.replies[inst.NodeID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no scripted reply for node %q", inst.NodeID)
	}
	out := reply
	out.Fields = make(map[string]string, len(reply.Fields))
	for k, v := range reply.Fields {
		out.Fields[k] = v
	}
	return &out, nil
}

// Calls returns the node ids invoked so far, in order.
func (s *ScriptedInvoker) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Reply is a convenience constructor for a fully parsed reply. The raw text
// is built from sorted keys so repeated runs produce identical records.
func Reply(fields map[string]string) ports.Reply {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, fields[k])
	}
	return ports.Reply{Raw: b.String(), Fields: fields}
}
