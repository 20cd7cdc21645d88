package shim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clasper-run/clasper/internal/model"
	"github.com/google/uuid"
)

// newExecutionID mints a fresh UUIDv7 execution id, falling back to a
// random v4 in the (practically unreachable) case the monotonic clock
// source UUIDv7 depends on is unavailable.
func newExecutionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// PolicyDeniedError surfaces a deny ruling to the calling agent.
type PolicyDeniedError struct {
	ExecutionID   string
	BlockedReason string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("execution %s blocked by policy: %s", e.ExecutionID, e.BlockedReason)
}

// ErrApprovalTimeout is raised when the approval poll deadline elapses
// without a terminal effect. The pending state is deliberately not cleared
// (spec §4.6): subsequent retries keep blocking until the operator acts or
// the entry ages out of the reuse window.
var ErrApprovalTimeout = fmt.Errorf("shim: approval wait timed out")

// ErrUnknownEffect is raised when the control plane returns an effect the
// shim does not recognize. This is a protocol violation and is always
// fail-closed.
var ErrUnknownEffect = fmt.Errorf("shim: unknown decision effect")

// inFlightEntry is one in-memory entry of the execution-reuse map.
type inFlightEntry struct {
	executionID string
	setAt       time.Time
}

// Shim intercepts tool invocations in the adapter process. It owns only
// the in-memory in_flight_by_fingerprint map: never persisted, never
// shared across processes (spec §4.6's "Ownership").
type Shim struct {
	cfg    Config
	client *client

	mu       sync.Mutex
	inFlight map[string]inFlightEntry
}

// New builds a Shim, validating cfg's mandatory fields. A validation
// failure must abort adapter startup fail-closed.
func New(cfg Config) (*Shim, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Shim{
		cfg:      cfg,
		client:   newClient(cfg),
		inFlight: make(map[string]inFlightEntry),
	}, nil
}

// Register performs first-time (or renewed) adapter registration against
// the control plane and caches the returned token for subsequent calls.
func (s *Shim) Register(ctx context.Context, reg model.AdapterRegistration) error {
	return s.client.register(ctx, reg, s.cfg.AdapterSecret)
}

// Invocation is the raw tool call the host agent wants to make, before
// fingerprinting or context derivation.
type Invocation struct {
	Tool                  string
	Args                  map[string]interface{}
	SessionContext        map[string]interface{}
	RequestedCapabilities []string
	ToolGroup             string
	Skill                 string
	Intent                string
}

// ToolCall is the underlying tool execution the shim enforces governance
// around. It runs only after an allow ruling (direct or post-approval).
type ToolCall func(ctx context.Context) (interface{}, error)

// Dispatch is the shim's entry point: fingerprint, normalize, decide, and
// either fail closed, wait for approval, or execute.
func (s *Shim) Dispatch(ctx context.Context, inv Invocation, call ToolCall) (interface{}, error) {
	normalizedTool := normalizeTool(inv.Tool)
	reqCtx := deriveContext(normalizedTool, inv.Args)
	class := commandClass(reqCtx.Exec.Argv0)
	fp := fingerprint(s.cfg.AdapterID, normalizedTool, sessionKey(inv.SessionContext), targetsKey(reqCtx.Targets), class)

	executionID, reused := s.reuseOrMintID(fp)

	req := model.ExecutionRequest{
		ExecutionID:           executionID,
		AdapterID:             s.cfg.AdapterID,
		Tool:                  normalizedTool,
		ToolGroup:             inv.ToolGroup,
		Skill:                 inv.Skill,
		Intent:                inv.Intent,
		RequestedCapabilities: inv.RequestedCapabilities,
		Context:               reqCtx,
	}

	decision, err := s.client.requestDecision(ctx, req)
	if err != nil {
		// Fail closed: no decision reached, no execution occurs.
		return nil, fmt.Errorf("shim: control plane unreachable, failing closed: %w", err)
	}

	switch decision.Effect {
	case model.EffectDeny:
		s.clear(fp)
		s.auditBestEffort(ctx, "tool_execution_blocked", executionID, map[string]interface{}{
			"tool": normalizedTool, "blocked_reason": decision.BlockedReason,
		})
		return nil, &PolicyDeniedError{ExecutionID: executionID, BlockedReason: decision.BlockedReason}

	case model.EffectRequireApproval, model.EffectPending:
		s.setPending(fp, executionID)
		if reused {
			s.auditBestEffort(ctx, "approval_pending_reused", executionID, map[string]interface{}{"tool": normalizedTool})
		}

		effect, pollErr := s.awaitApproval(ctx, executionID)
		if pollErr != nil {
			// Deliberately not cleared: retries keep blocking until the
			// operator acts or the entry ages out (spec §4.6).
			return nil, pollErr
		}
		if effect == model.EffectDeny {
			s.clear(fp)
			return nil, &PolicyDeniedError{ExecutionID: executionID}
		}
		s.clear(fp)
		return s.executeAndReport(ctx, executionID, normalizedTool, call)

	case model.EffectAllow:
		s.clear(fp)
		return s.executeAndReport(ctx, executionID, normalizedTool, call)

	default:
		s.clear(fp)
		return nil, ErrUnknownEffect
	}
}

// reuseOrMintID consults the in-memory reuse map before minting a fresh
// execution id, opportunistically sweeping expired entries on every
// lookup to bound memory (spec §4.6, §9).
func (s *Shim) reuseOrMintID(fp string) (executionID string, reused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpiredLocked()

	if entry, ok := s.inFlight[fp]; ok {
		return entry.executionID, true
	}
	return newExecutionID(), false
}

func (s *Shim) sweepExpiredLocked() {
	now := time.Now()
	for fp, entry := range s.inFlight {
		if now.Sub(entry.setAt) > s.cfg.ExecutionReuseWindow {
			delete(s.inFlight, fp)
		}
	}
}

func (s *Shim) setPending(fp, executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[fp] = inFlightEntry{executionID: executionID, setAt: time.Now()}
}

func (s *Shim) clear(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, fp)
}

// awaitApproval polls GET /api/execution/:execution_id on a fixed interval
// until the ledger reports a terminal effect or the deadline elapses.
// Progress is logged every 5 iterations (spec §4.6).
func (s *Shim) awaitApproval(ctx context.Context, executionID string) (model.Effect, error) {
	deadline := time.Now().Add(s.cfg.ApprovalWaitTimeout)
	ticker := time.NewTicker(s.cfg.ApprovalPollInterval)
	defer ticker.Stop()

	for iteration := 0; ; iteration++ {
		if time.Now().After(deadline) {
			return "", ErrApprovalTimeout
		}

		result, err := s.client.pollExecution(ctx, executionID)
		if err != nil {
			// Any polling HTTP error is fail-closed: abort and raise.
			return "", fmt.Errorf("shim: approval poll failed, failing closed: %w", err)
		}

		if iteration > 0 && iteration%5 == 0 {
			logger.SysInfof("still awaiting approval for execution %s (iteration %d)", executionID, iteration)
		}

		switch result.Effect {
		case model.EffectAllow, model.EffectDeny:
			return result.Effect, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// executeAndReport runs the underlying tool call, then emits
// tool_execution_completed as non-fatal, best-effort telemetry; cost is
// reported separately through [Shim.ReportCost]. Telemetry failures never propagate:
// governance was already enforced (spec §4.6, §7).
func (s *Shim) executeAndReport(ctx context.Context, executionID, tool string, call ToolCall) (interface{}, error) {
	start := time.Now()
	out, err := call(ctx)
	duration := time.Since(start)

	s.auditBestEffort(ctx, "tool_execution_completed", executionID, map[string]interface{}{
		"tool": tool, "duration_ms": duration.Milliseconds(), "success": err == nil,
	})
	return out, err
}

// auditBestEffort posts an audit envelope to the control plane, logging
// (never propagating) any failure.
func (s *Shim) auditBestEffort(ctx context.Context, eventType, executionID string, data map[string]interface{}) {
	envelope := map[string]interface{}{
		"execution_id": executionID,
		"adapter_id":   s.cfg.AdapterID,
		"event_type":   eventType,
		"event_data":   data,
		"occurred_at":  time.Now().UTC(),
	}
	if err := s.client.ingest(ctx, "audit", envelope); err != nil {
		logger.SysWarnf("telemetry ingest failed for %s on execution %s: %v", eventType, executionID, err)
	}
}

// ReportCost posts a cost observation for an execution, non-fatally. Call
// this after Dispatch returns when the adapter measured a cost.
func (s *Shim) ReportCost(ctx context.Context, executionID, adapterID string, amount float64, unit string) {
	envelope := map[string]interface{}{
		"execution_id": executionID,
		"adapter_id":   adapterID,
		"amount":       amount,
		"unit":         unit,
		"recorded_at":  time.Now().UTC(),
	}
	if err := s.client.ingest(ctx, "cost", envelope); err != nil {
		logger.SysWarnf("cost ingest failed for execution %s: %v", executionID, err)
	}
}
