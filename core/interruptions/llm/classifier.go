// Package llm classifies interrupting caller speech with a small language
// model call: did the caller mean to take the floor, or were they just
// acknowledging what the assistant was saying?
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/samk-ai/voiceflow/core/llms"
	"github.com/samk-ai/voiceflow/core/llms/openai"
)

const defaultModel = "gpt-4o-mini"

const classifierInstructions = `You classify speech from a phone caller that overlapped the assistant's own speech.

Classify the caller's words as one of:
- "barge-in": the caller is taking the floor - asking something new, correcting the assistant, or asking it to stop.
- "backchannel": a short acknowledgement that does not ask for the floor, like "mm-hm", "yeah", "okay", "right", "I see".

When unsure, prefer "barge-in"; cutting the assistant off unnecessarily is cheaper than talking over the caller.`

type classification struct {
	Kind string `json:"kind" jsonschema:"title=Kind,description=How the overlapping speech should be treated,enum=barge-in,enum=backchannel"`
}

// Classifier labels overlapping caller speech as barge-in or backchannel.
type Classifier struct {
	apiKey string
	model  string
}

type ClassifierOption func(*Classifier)

func WithModel(model string) ClassifierOption {
	return func(c *Classifier) { c.model = model }
}

func NewClassifier(opts ...ClassifierOption) (*Classifier, error) {
	apiKey, ok := os.LookupEnv("OPENAI_API_KEY")
	if !ok {
		return nil, fmt.Errorf("openai api key not found")
	}

	classifier := &Classifier{apiKey: apiKey, model: defaultModel}
	for _, opt := range opts {
		opt(classifier)
	}
	return classifier, nil
}

// Classify labels one overlapping transcript given the conversation so
// far. Errors leave the caller to fall back to its default treatment.
func (c *Classifier) Classify(ctx context.Context, transcript string, turns []llms.Turn) (llms.InterruptionKind, error) {
	ctx, span := tracer.Start(ctx, "classify interruption")
	defer span.End()

	result, err := openai.PromptJSONSchema(ctx, c.apiKey, c.model, transcript, classification{},
		llms.WithInstructions(classifierInstructions),
		llms.WithTurns(turns),
	)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to classify interruption: %w", err)
	}

	switch result.Kind {
	case "barge-in":
		return llms.InterruptionKindBargeIn, nil
	case "backchannel":
		return llms.InterruptionKindBackchannel, nil
	default:
		return "", fmt.Errorf("unknown interruption kind: %q", result.Kind)
	}
}
