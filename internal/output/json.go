package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/ledger"
	"github.com/efiadm/api-categorizer-aggr/internal/tester"
	"github.com/efiadm/api-categorizer-aggr/internal/transcript"
)

// JSONWriter writes output in JSON format, one document per call.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteAPIs implements Writer.
func (j *JSONWriter) WriteAPIs(apis []catalog.API) error {
	if apis == nil {
		apis = []catalog.API{}
	}
	return j.write(apis)
}

// WriteAPI implements Writer.
func (j *JSONWriter) WriteAPI(api catalog.API) error {
	return j.write(api)
}

// WriteCategories implements Writer.
func (j *JSONWriter) WriteCategories(counts []catalog.CategoryCount) error {
	if counts == nil {
		counts = []catalog.CategoryCount{}
	}
	return j.write(counts)
}

// WriteHistory implements Writer.
func (j *JSONWriter) WriteHistory(entries []ledger.Entry) error {
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return j.write(entries)
}

// WriteMessages implements Writer.
func (j *JSONWriter) WriteMessages(msgs []transcript.Message) error {
	if msgs == nil {
		msgs = []transcript.Message{}
	}
	return j.write(msgs)
}

// WriteTest implements Writer.
func (j *JSONWriter) WriteTest(res tester.Result) error {
	return j.write(res)
}

// WriteEvent writes an event in streaming mode.
func (j *JSONWriter) WriteEvent(event StreamEvent) error {
	if !j.stream {
		return nil
	}
	return j.write(event)
}

func (j *JSONWriter) write(v interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return err
	}

	if _, err = j.writer.Write(data); err != nil {
		return err
	}

	_, err = j.writer.Write([]byte("\n"))
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return flushWriter(j.writer)
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.closed = true
	return closeWriter(j.writer)
}
