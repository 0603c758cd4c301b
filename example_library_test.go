package loom_test

import (
	"context"
	"fmt"
	"log"

	"github.com/magicprompt/loom"
	"github.com/magicprompt/loom/internal/testutils"
	"github.com/magicprompt/loom/pkg/adapters/memory"
	"github.com/magicprompt/loom/pkg/ports"
)

// ExampleNew demonstrates using loom purely as a Go library, with an
// in-memory graph and a scripted model instead of a live LLM server.
func ExampleNew() {
	// 1. Define the graph as YAML, without touching the filesystem.
	source := memory.NewSource(`
version: "1.0"
nodes:
  - id: "idea:seed"
    layer: idea
    template: "describe the idea"
    collect: [concept]
  - id: "delivery:export"
    layer: delivery
    template: "write the final prompt for {{concept}}"
    collect: [prompt_ru, prompt_en]
edges:
  - from: "idea:seed"
    to: "delivery:export"
`, nil)

	// 2. Any ports.Invoker works; here replies are scripted per node.
	invoker := testutils.NewScriptedInvoker(map[string]ports.Reply{
		"idea:seed": testutils.Reply(map[string]string{"concept": "a lighthouse at dawn"}),
		"delivery:export": testutils.Reply(map[string]string{
			"prompt_ru": "маяк на рассвете",
			"prompt_en": "a lighthouse at dawn, soft light",
		}),
	})

	engine, err := loom.New(source, invoker)
	if err != nil {
		log.Fatal(err)
	}

	// 3. Start and run a session to completion.
	ctx := context.Background()
	state, err := engine.Start(ctx, "example")
	if err != nil {
		log.Fatal(err)
	}
	state, err = engine.Run(ctx, state)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(state.Status)
	fmt.Println(state.Context.Snapshot()["concept"])

	// Output:
	// terminated
	// a lighthouse at dawn
}
