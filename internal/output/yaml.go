package output

import (
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/ledger"
	"github.com/efiadm/api-categorizer-aggr/internal/tester"
	"github.com/efiadm/api-categorizer-aggr/internal/transcript"
)

// YAMLWriter writes output as a YAML document stream.
type YAMLWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	encoder *yaml.Encoder
	stream  bool
	closed  bool
}

// NewYAMLWriter creates a new YAML writer.
func NewYAMLWriter(w io.Writer, stream bool) *YAMLWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLWriter{
		writer:  w,
		encoder: enc,
		stream:  stream,
	}
}

// WriteAPIs implements Writer.
func (y *YAMLWriter) WriteAPIs(apis []catalog.API) error {
	if apis == nil {
		apis = []catalog.API{}
	}
	return y.write(apis)
}

// WriteAPI implements Writer.
func (y *YAMLWriter) WriteAPI(api catalog.API) error {
	return y.write(api)
}

// WriteCategories implements Writer.
func (y *YAMLWriter) WriteCategories(counts []catalog.CategoryCount) error {
	if counts == nil {
		counts = []catalog.CategoryCount{}
	}
	return y.write(counts)
}

// WriteHistory implements Writer.
func (y *YAMLWriter) WriteHistory(entries []ledger.Entry) error {
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return y.write(entries)
}

// WriteMessages implements Writer.
func (y *YAMLWriter) WriteMessages(msgs []transcript.Message) error {
	if msgs == nil {
		msgs = []transcript.Message{}
	}
	return y.write(msgs)
}

// WriteTest implements Writer.
func (y *YAMLWriter) WriteTest(res tester.Result) error {
	return y.write(res)
}

// WriteEvent writes an event in streaming mode.
func (y *YAMLWriter) WriteEvent(event StreamEvent) error {
	if !y.stream {
		return nil
	}
	return y.write(event)
}

func (y *YAMLWriter) write(v interface{}) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return nil
	}
	return y.encoder.Encode(v)
}

// Flush flushes the writer.
func (y *YAMLWriter) Flush() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return flushWriter(y.writer)
}

// Close finishes the document stream and closes the writer.
func (y *YAMLWriter) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return nil
	}
	y.closed = true
	if err := y.encoder.Close(); err != nil {
		return err
	}
	return closeWriter(y.writer)
}
