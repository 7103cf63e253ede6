package pipeline

import (
	"testing"
	"time"
)

func collectBuffered(t *testing.T, b *audioBuffer) []audioOrMark {
	t.Helper()

	items := make(chan audioOrMark, 64)
	go func() {
		defer close(items)
		for item := range b.Audio {
			items <- item
		}
	}()

	collected := []audioOrMark{}
	for {
		select {
		case item, ok := <-items:
			if !ok {
				return collected
			}
			collected = append(collected, item)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out draining audio buffer, got %d items", len(collected))
		}
	}
}

func TestAudioBufferInterleavesMarksInOrder(t *testing.T) {
	b := newAudioBuffer()
	b.AddAudio([]byte{1})
	b.AddAudio([]byte{2})
	b.Mark("m1", "one")
	b.AddAudio([]byte{3})
	b.Mark("m2", "one two")
	b.AllAudioLoaded()

	go func() {
		// Confirm marks as they come out so the iteration can finish.
		for {
			b.ConfirmMark("m1")
			b.ConfirmMark("m2")
			if b.LastConfirmedText() == "one two" {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	items := collectBuffered(t, b)
	want := []struct {
		typ  string
		mark string
	}{
		{"audio", ""}, {"audio", ""}, {"mark", "m1"}, {"audio", ""}, {"mark", "m2"},
	}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d: %+v", len(want), len(items), items)
	}
	for i, item := range items {
		if item.Type != want[i].typ {
			t.Fatalf("item %d: expected %q, got %q", i, want[i].typ, item.Type)
		}
		if want[i].typ == "mark" && item.Mark != want[i].mark {
			t.Fatalf("item %d: expected mark %q, got %q", i, want[i].mark, item.Mark)
		}
	}
}

func TestAudioBufferEndsOnlyAfterFinalConfirmation(t *testing.T) {
	b := newAudioBuffer()
	b.AddAudio([]byte{1})
	b.Mark("final", "all of it")
	b.AllAudioLoaded()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for range b.Audio {
		}
	}()

	select {
	case <-finished:
		t.Fatalf("iteration finished before the final mark was confirmed")
	case <-time.After(50 * time.Millisecond):
	}

	b.ConfirmMark("final")
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("iteration did not finish after final confirmation")
	}

	if got := b.LastConfirmedText(); got != "all of it" {
		t.Fatalf("expected confirmed text %q, got %q", "all of it", got)
	}
}

func TestAudioBufferStopEndsIteration(t *testing.T) {
	b := newAudioBuffer()
	b.AddAudio([]byte{1})

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for range b.Audio {
		}
	}()

	b.Stop()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("iteration did not finish after Stop")
	}
}

func TestAudioBufferIgnoresUnbroadcastConfirmation(t *testing.T) {
	b := newAudioBuffer()
	b.AddAudio([]byte{1})
	b.Mark("early", "text")

	// Nothing consumed the buffer, so the mark was never broadcast.
	b.ConfirmMark("early")

	if got := b.LastConfirmedText(); got != "" {
		t.Fatalf("expected no confirmed text, got %q", got)
	}
}

func TestTextBufferStreamsUntilComplete(t *testing.T) {
	b := newTextBuffer()
	b.Append("Hello ")

	segments := make(chan string, 8)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for segment := range b.Segments {
			segments <- segment
		}
	}()

	b.Append("world.")
	b.Complete()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("segments iteration did not finish")
	}
	close(segments)

	got := ""
	for segment := range segments {
		got += segment
	}
	if got != "Hello world." {
		t.Fatalf("expected %q, got %q", "Hello world.", got)
	}
	if b.String() != "Hello world." {
		t.Fatalf("expected full text, got %q", b.String())
	}
}

func TestTextBufferClearEndsIteration(t *testing.T) {
	b := newTextBuffer()
	b.Append("Hello")

	finished := make(chan struct{})
	consumed := make(chan string, 8)
	go func() {
		defer close(finished)
		for segment := range b.Segments {
			consumed <- segment
		}
	}()

	select {
	case <-consumed:
	case <-time.After(2 * time.Second):
		t.Fatalf("first segment never arrived")
	}

	b.Clear()
	b.Append("never seen")

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("iteration did not finish after Clear")
	}
}
