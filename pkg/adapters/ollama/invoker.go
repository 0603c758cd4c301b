// Package ollama adapts a local Ollama model to the Invoker port through
// langchaingo's OpenAI-compatible client (Ollama serves /v1 natively).
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/magicprompt/loom/pkg/ports"
)

const systemPrompt = "You are an assistant that interviews a user to build an image-generation prompt. " +
	"Respond ONLY with a flat JSON object mapping the requested field names to short string values."

// Config holds the model settings. Defaults follow the original tool:
// mistral at temperature 0.8 / top_p 0.7 on a local Ollama.
type Config struct {
	ServerURL   string
	Model       string
	Temperature float64
	TopP        float64
}

// DefaultConfig returns the standard local setup.
func DefaultConfig() Config {
	return Config{
		ServerURL:   "http://localhost:11434/v1",
		Model:       "mistral",
		Temperature: 0.8,
		TopP:        0.7,
	}
}

// Invoker implements ports.Invoker over an Ollama server.
type Invoker struct {
	model llms.Model
	cfg   Config
}

// New creates an Invoker for the configured model.
func New(cfg Config) (*Invoker, error) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultConfig().ServerURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	model, err := openai.New(
		openai.WithBaseURL(cfg.ServerURL),
		openai.WithModel(cfg.Model),
		openai.WithToken("ollama"), // Ollama ignores the token but the client requires one
	)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	return &Invoker{model: model, cfg: cfg}, nil
}

// Invoke sends the composed instruction and parses the keyed reply.
func (i *Invoker) Invoke(ctx context.Context, inst ports.Instruction) (*ports.Reply, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			inst.Text+"\n\nReturn a JSON object with exactly these keys: "+strings.Join(inst.Collect, ", ")),
	}

	resp, err := i.model.GenerateContent(ctx, messages,
		llms.WithTemperature(i.cfg.Temperature),
		llms.WithTopP(i.cfg.TopP),
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices for node %s", inst.NodeID)
	}

	raw := resp.Choices[0].Content
	fields, err := ParseFields(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing reply for node %s: %w", inst.NodeID, err)
	}
	return &ports.Reply{Raw: raw, Fields: fields}, nil
}

// ParseFields extracts the keyed payload from a model reply. It accepts a
// bare JSON object, a fenced JSON block, or, as a fallback, "key: value"
// lines (smaller models drift into that shape).
func ParseFields(raw string) (map[string]string, error) {
	text := strings.TrimSpace(raw)
	if fenced := extractFence(text); fenced != "" {
		text = fenced
	}

	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			var generic map[string]any
			if err := json.Unmarshal([]byte(text[start:end+1]), &generic); err == nil {
				fields := make(map[string]string, len(generic))
				for k, v := range generic {
					fields[k] = fmt.Sprintf("%v", v)
				}
				return fields, nil
			}
		}
	}

	fields := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			fields[key] = value
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("reply contains no parsable fields")
	}
	return fields, nil
}

func extractFence(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[nl+1:] // drop the language tag line
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
