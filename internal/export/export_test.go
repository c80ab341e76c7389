package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ashureev/llama-relay/internal/domain"
	"gopkg.in/yaml.v3"
)

func sampleDoc() Document {
	return Document{
		Key: "10.0.0.5_1_chat",
		Turns: []domain.Turn{
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleAssistant, Content: "hello"},
		},
	}
}

func TestNewExporter(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", "json", "yaml", "YML", "md", "markdown"} {
		if _, err := NewExporter(format); err != nil {
			t.Errorf("%q: unexpected error %v", format, err)
		}
	}
	if _, err := NewExporter("csv"); err == nil {
		t.Fatal("expected error for csv")
	}
}

func TestJSONExporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := (JSONExporter{}).Export(sampleDoc(), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var got Document
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Key != "10.0.0.5_1_chat" || len(got.Turns) != 2 {
		t.Fatalf("unexpected document: %+v", got)
	}
}

func TestYAMLExporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := (YAMLExporter{}).Export(sampleDoc(), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(buf.String(), "role: assistant") {
		t.Fatalf("expected role field in YAML:\n%s", buf.String())
	}
	var got Document
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if got.Turns[1].Content != "hello" {
		t.Fatalf("unexpected turns: %+v", got.Turns)
	}
}

func TestMarkdownExporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := (MarkdownExporter{}).Export(sampleDoc(), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"# 10.0.0.5_1_chat", "## User\n\nhi", "## Assistant\n\nhello"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}
