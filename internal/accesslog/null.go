package accesslog

import "github.com/clasper-run/clasper/internal/model"

// nullFactory creates streams that discard every record.
type nullFactory struct{}

// NewNullFactory creates a [Factory] whose streams discard everything —
// useful for tests and benchmarks that don't want stdout noise.
func NewNullFactory() Factory {
	return nullFactory{}
}

func (nullFactory) NewStream() (Stream, error) {
	return nullStream{}, nil
}

type nullStream struct{}

func (nullStream) Send(model.Decision) error { return nil }
func (nullStream) Close()                    {}
