package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/samk-ai/voiceflow/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const chunkPrefix = "data:"

// PromptWithStream prepares a streaming generation; the request is not
// issued until the stream's Chunks iterator runs.
func PromptWithStream(
	_ context.Context,
	apiKey string,
	model string,
	opts ...llms.PromptOption,
) *Stream {
	options := llms.PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if model == "" {
		model = defaultModel
	}

	return &Stream{
		apiKey:   apiKey,
		model:    model,
		messages: toMessages(options.Instructions, options.Turns),
	}
}

type Stream struct {
	apiKey   string
	model    string
	messages []message
}

var _ llms.Stream = (*Stream)(nil)

func (s *Stream) Chunks(ctx context.Context) func(func(string, error) bool) {
	return func(yield func(string, error) bool) {
		ctx, span := tracer.Start(ctx, "stream llm response")
		defer span.End()

		reqBody := requestBody{
			Model:    s.model,
			Messages: s.messages,
			Stream:   true,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			yield("", fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			yield("", fmt.Errorf("error creating HTTP request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
		resp, err := client.Do(req)
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield("", fmt.Errorf("non-OK HTTP status: %s", resp.Status))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			// Cooperative cancellation between streamed tokens.
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, chunkPrefix) {
				continue
			}

			payload := strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix))
			if payload == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				logger.WarnContext(ctx, "failed to unmarshal stream chunk", "error", err)
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
			if chunk.Choices[0].FinishReason != nil {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			yield("", fmt.Errorf("error reading stream: %w", err))
		}
	}
}
