package domain

import "testing"

func TestTranscriptAppendDoesNotAliasReceiver(t *testing.T) {
	t.Parallel()

	base := Transcript{Turns: make([]Turn, 1, 8)}
	base.Turns[0] = Turn{Role: RoleUser, Content: "hi"}

	a := base.Append(RoleAssistant, "hello")
	b := base.Append(RoleAssistant, "hey")

	if base.Len() != 1 {
		t.Fatalf("receiver mutated: %d turns", base.Len())
	}
	if a.Turns[1].Content != "hello" {
		t.Fatalf("expected first append to keep its turn, got %q", a.Turns[1].Content)
	}
	if b.Turns[1].Content != "hey" {
		t.Fatalf("unexpected second append: %q", b.Turns[1].Content)
	}
}

func TestTranscriptLast(t *testing.T) {
	t.Parallel()

	var empty Transcript
	if _, ok := empty.Last(); ok {
		t.Fatal("expected no last turn on empty transcript")
	}

	tr := empty.Append(RoleUser, "hi").Append(RoleAssistant, "hello")
	last, ok := tr.Last()
	if !ok || last.Role != RoleAssistant || last.Content != "hello" {
		t.Fatalf("unexpected last turn: %+v", last)
	}
}
