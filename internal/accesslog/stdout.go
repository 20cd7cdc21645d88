package accesslog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/clasper-run/clasper/internal/model"
)

// Options configures access log output formatting.
type Options struct {
	// PrettyPrint enables indented multi-line JSON output.
	PrettyPrint bool
}

// IoWriterFactory creates [Stream] instances that write to an [io.Writer].
type IoWriterFactory struct {
	writer  io.Writer
	options Options
}

// IoWriterStream writes decisions as one JSON object per line.
//
// Safe for concurrent use; writes are atomic at the line level courtesy of
// a single fmt.Fprintln call per Send.
type IoWriterStream struct {
	writer  io.Writer
	options Options
}

// NewStdoutFactory creates a [Factory] that writes to stdout — the default
// when no other access log is configured.
func NewStdoutFactory() Factory {
	return NewIoWriterFactory(os.Stdout)
}

// NewIoWriterFactory creates a [Factory] writing to w with default options.
func NewIoWriterFactory(w io.Writer) Factory {
	return NewIoWriterFactoryWithOptions(w, Options{})
}

// NewIoWriterFactoryWithOptions creates a [Factory] writing to w with opts.
func NewIoWriterFactoryWithOptions(w io.Writer, opts Options) Factory {
	return &IoWriterFactory{writer: w, options: opts}
}

// NewStream creates a new [IoWriterStream] writing to the configured writer.
func (f *IoWriterFactory) NewStream() (Stream, error) {
	return &IoWriterStream{writer: f.writer, options: f.options}, nil
}

// Send marshals d to JSON and writes it as a line. Write errors are
// silently ignored — stdout writes rarely fail, and a decision that was
// already persisted and audited should not fail because this side channel
// couldn't keep up.
func (s *IoWriterStream) Send(d model.Decision) error {
	var (
		out []byte
		err error
	)
	if s.options.PrettyPrint {
		out, err = json.MarshalIndent(d, "", "  ")
	} else {
		out, err = json.Marshal(d)
	}
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(s.writer, string(out))
	return nil
}

// Close is a no-op; the underlying writer's lifecycle is the caller's.
func (s *IoWriterStream) Close() {}
