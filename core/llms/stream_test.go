package llms

import (
	"context"
	"testing"
)

func TestResponseStreamsWholeContent(t *testing.T) {
	response := &Response{Content: "Hello there."}

	var stream Stream = response
	collected := ""
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		collected += chunk
	}
	if collected != "Hello there." {
		t.Fatalf("expected the whole content in one pass, got %q", collected)
	}
}

func TestResponseStreamRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	response := &Response{Content: "never yielded"}
	for range response.Chunks(ctx) {
		t.Fatalf("expected no chunks from a cancelled context")
	}
}
