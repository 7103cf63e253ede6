package transcript

import (
	"testing"

	"github.com/samk-ai/voiceflow/core/llms"
)

func TestAppendKeepsOrder(t *testing.T) {
	log := NewLog("persona")
	log.AppendCaller("one")
	log.AppendAssistant("two")
	log.AppendCaller("three")

	turns := log.Snapshot()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, content := range []string{"one", "two", "three"} {
		if turns[i].Content != content {
			t.Fatalf("turn %d: expected %q, got %q", i, content, turns[i].Content)
		}
	}
	if turns[0].Role != llms.RoleCaller || turns[1].Role != llms.RoleAssistant {
		t.Fatal("expected alternating caller/assistant roles")
	}
}

func TestContextWindowDropsOldestFirst(t *testing.T) {
	log := NewLog("persona", WithContextBudget(2))
	log.AppendCaller("one")
	log.AppendAssistant("two")
	log.AppendCaller("three")

	ctx := log.Context()
	if len(ctx) != 2 {
		t.Fatalf("expected window of 2 turns, got %d", len(ctx))
	}
	if ctx[0].Content != "two" || ctx[1].Content != "three" {
		t.Fatalf("expected oldest turn dropped, got %q, %q", ctx[0].Content, ctx[1].Content)
	}
	if log.Preamble() != "persona" {
		t.Fatal("expected preamble preserved across windowing")
	}
	if log.Len() != 3 {
		t.Fatal("windowing must not delete stored turns")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	log := NewLog("")
	log.AppendCaller("original")

	snapshot := log.Snapshot()
	snapshot[0].Content = "mutated"

	if got := log.Snapshot()[0].Content; got != "original" {
		t.Fatalf("snapshot mutation leaked into the log: %q", got)
	}
}

func TestTimestampsAssigned(t *testing.T) {
	log := NewLog("")
	log.AppendCaller("hello")
	if log.Snapshot()[0].Timestamp.IsZero() {
		t.Fatal("expected appended turn to carry a timestamp")
	}
}
