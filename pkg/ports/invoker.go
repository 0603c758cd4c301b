package ports

import "context"

// Instruction is a composed prompt for one node, ready to send to the model.
type Instruction struct {
	NodeID string `json:"node_id"`
	// Text is the fully interpolated instruction.
	Text string `json:"text"`
	// Collect names the fields the reply is expected to contain. Invokers
	// use it to steer the model toward a keyed reply; the engine enforces
	// coverage after the transform pipeline.
	Collect []string `json:"collect"`
}

// Reply is the structured response of the model collaborator.
type Reply struct {
	// Raw is the unparsed model output, kept for the conversation record.
	Raw string `json:"raw"`
	// Fields is the keyed payload extracted from the output.
	Fields map[string]string `json:"fields"`
}

// Invoker is the external LLM collaborator. The engine treats it as an
// opaque blocking capability: the call may suspend until the model responds
// or ctx is cancelled. Retry policy belongs to the engine's caller.
type Invoker interface {
	Invoke(ctx context.Context, inst Instruction) (*Reply, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, inst Instruction) (*Reply, error)

func (f InvokerFunc) Invoke(ctx context.Context, inst Instruction) (*Reply, error) {
	return f(ctx, inst)
}
