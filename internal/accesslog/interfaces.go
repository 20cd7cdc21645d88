// Package accesslog provides a side-channel observability stream for every
// decision made by the ledger, distinct from the authoritative hash-chained
// audit log in [internal/audit] — this stream is for operators tailing
// output, not for tamper evidence (spec §4.5 design note).
package accesslog

import "github.com/clasper-run/clasper/internal/model"

// Factory creates access log [Stream] instances.
//
// Early initialization (validating configuration) should happen during
// factory construction. Late initialization (opening connections,
// allocating buffers) should happen in [NewStream].
type Factory interface {
	// NewStream creates a new access log stream.
	NewStream() (Stream, error)
}

// Stream is the interface for sending decisions to an observability
// destination. Implementations must be safe for concurrent use.
type Stream interface {
	// Send delivers a decision to the destination. The caller retains
	// ownership of d.
	Send(d model.Decision) error

	// Close releases any resources held by the stream, flushing any
	// buffered records first.
	Close()
}
