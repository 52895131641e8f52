// Package output renders explorer results for the CLI.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/ledger"
	"github.com/efiadm/api-categorizer-aggr/internal/tester"
	"github.com/efiadm/api-categorizer-aggr/internal/transcript"
)

// Formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
)

// Writer defines the interface for output writers.
type Writer interface {
	// WriteAPIs writes a list of catalog entries
	WriteAPIs(apis []catalog.API) error

	// WriteAPI writes a single entry in detail
	WriteAPI(api catalog.API) error

	// WriteCategories writes the category index
	WriteCategories(counts []catalog.CategoryCount) error

	// WriteHistory writes the view log
	WriteHistory(entries []ledger.Entry) error

	// WriteMessages writes chat messages
	WriteMessages(msgs []transcript.Message) error

	// WriteTest writes a mock test result
	WriteTest(res tester.Result) error

	// WriteEvent writes a progress event (for streaming)
	WriteEvent(event StreamEvent) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// StreamEvent is a progress notification, such as a router phase change.
type StreamEvent struct {
	Type string      `json:"type" yaml:"type"`
	Data interface{} `json:"data" yaml:"data"`
}

// Config holds output configuration.
type Config struct {
	Format string
	Pretty bool
	Stream bool
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, config Config) (Writer, error) {
	switch strings.ToLower(config.Format) {
	case "", FormatText:
		return NewTextWriter(w, config.Stream), nil
	case FormatJSON:
		return NewJSONWriter(w, config.Pretty, config.Stream), nil
	case FormatYAML:
		return NewYAMLWriter(w, config.Stream), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", config.Format)
	}
}

func flushWriter(w io.Writer) error {
	if flusher, ok := w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

func closeWriter(w io.Writer) error {
	if closer, ok := w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
