// Package export renders transcripts in human or machine readable formats.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/llama-relay/internal/domain"
	"gopkg.in/yaml.v3"
)

// Document is what every exporter writes.
type Document struct {
	Key   domain.SessionKey `json:"key" yaml:"key"`
	Turns []domain.Turn     `json:"turns" yaml:"turns"`
}

// Exporter defines the interface for all export formats.
type Exporter interface {
	Export(doc Document, w io.Writer) error
	ContentType() string
}

// NewExporter creates a new exporter based on format.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return JSONExporter{}, nil
	case "yaml", "yml":
		return YAMLExporter{}, nil
	case "md", "markdown":
		return MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md)", format)
	}
}

// JSONExporter writes indented JSON.
type JSONExporter struct{}

func (JSONExporter) Export(doc Document, w io.Writer) error {
	if doc.Turns == nil {
		doc.Turns = []domain.Turn{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (JSONExporter) ContentType() string { return "application/json" }

// YAMLExporter writes YAML.
type YAMLExporter struct{}

func (YAMLExporter) Export(doc Document, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func (YAMLExporter) ContentType() string { return "application/yaml" }

// MarkdownExporter writes one section per turn.
type MarkdownExporter struct{}

func (MarkdownExporter) Export(doc Document, w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", doc.Key)
	for _, turn := range doc.Turns {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", roleTitle(turn.Role), turn.Content)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (MarkdownExporter) ContentType() string { return "text/markdown; charset=utf-8" }

func roleTitle(role domain.Role) string {
	switch role {
	case domain.RoleUser:
		return "User"
	case domain.RoleAssistant:
		return "Assistant"
	default:
		return string(role)
	}
}
