// Package shim is the adapter-side dispatch shim: it runs inside the
// adapter process (not as a service), fingerprints and normalizes a tool
// invocation, calls the control plane's execution-decision endpoint, polls
// for approval, and enforces a fail-closed contract around the underlying
// tool call.
package shim

import (
	"fmt"
	"time"

	"github.com/clasper-run/clasper/internal/logging"
)

var logger = logging.GetLogger("shim")

// Config is the shim's flat options struct. All fields are validated at
// construction; missing mandatory fields abort startup fail-closed.
type Config struct {
	ClasperURL             string
	AdapterID              string
	AdapterSecret          string
	ApprovalWaitTimeout    time.Duration
	ApprovalPollInterval   time.Duration
	ExecutionReuseWindow   time.Duration
	RequestTimeout         time.Duration
	MaxRetries             int
}

// Default option values (spec §9 "Configuration objects").
const (
	defaultApprovalWaitTimeout  = 300 * time.Second
	defaultApprovalPollInterval = 2 * time.Second
	defaultExecutionReuseWindow = 600 * time.Second
	defaultRequestTimeout       = 10 * time.Second
	defaultMaxRetries           = 2
)

// withDefaults fills in unset durations/counts with their spec defaults.
func (c Config) withDefaults() Config {
	if c.ApprovalWaitTimeout == 0 {
		c.ApprovalWaitTimeout = defaultApprovalWaitTimeout
	}
	if c.ApprovalPollInterval == 0 {
		c.ApprovalPollInterval = defaultApprovalPollInterval
	}
	if c.ExecutionReuseWindow == 0 {
		c.ExecutionReuseWindow = defaultExecutionReuseWindow
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}

// validate checks the mandatory fields, returning an error that should
// abort adapter startup (fail-closed: a shim that cannot reach the control
// plane must never silently allow).
func (c Config) validate() error {
	if c.ClasperURL == "" {
		return fmt.Errorf("shim: clasper_url is required")
	}
	if c.AdapterID == "" {
		return fmt.Errorf("shim: adapter_id is required")
	}
	if c.AdapterSecret == "" {
		return fmt.Errorf("shim: adapter_secret is required")
	}
	return nil
}
