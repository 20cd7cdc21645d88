package shim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clasper-run/clasper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeControlPlane is a minimal in-test stand-in for the control plane's
// HTTP surface, letting each test script the effect a decision request
// should return and track which execution ids were asked about.
type fakeControlPlane struct {
	effect        model.Effect
	mu            sync.Mutex
	executionIDs  []string
	decisionCalls int32
	pollEffects   map[string]model.Effect // executionID -> effect to report on poll
}

func (f *fakeControlPlane) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/adapters/register":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"token": "test-token"})
		case r.URL.Path == "/api/execution/request":
			atomic.AddInt32(&f.decisionCalls, 1)
			var req model.ExecutionRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.mu.Lock()
			f.executionIDs = append(f.executionIDs, req.ExecutionID)
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(model.Decision{
				ExecutionID: req.ExecutionID, Effect: f.effect, Status: model.StatusPending,
			})
		case len(r.URL.Path) > len("/api/execution/") && r.URL.Path[:len("/api/execution/")] == "/api/execution/":
			executionID := r.URL.Path[len("/api/execution/"):]
			effect := f.pollEffects[executionID]
			if effect == "" {
				effect = model.EffectRequireApproval
			}
			_ = json.NewEncoder(w).Encode(pollResult{ExecutionID: executionID, Effect: effect})
		case r.URL.Path == "/api/ingest/audit" || r.URL.Path == "/api/ingest/cost":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestShim(t *testing.T, fcp *fakeControlPlane) (*Shim, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(fcp.handler())
	t.Cleanup(srv.Close)

	s, err := New(Config{
		ClasperURL:           srv.URL,
		AdapterID:            "a1",
		AdapterSecret:        "shared-secret",
		ApprovalPollInterval: 5 * time.Millisecond,
		ApprovalWaitTimeout:  50 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, s.Register(context.Background(), model.AdapterRegistration{AdapterID: "a1"}))
	return s, srv
}

func TestNewRejectsMissingConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestDispatchAllowExecutesTool(t *testing.T) {
	fcp := &fakeControlPlane{effect: model.EffectAllow}
	s, _ := newTestShim(t, fcp)

	called := false
	out, err := s.Dispatch(context.Background(), Invocation{Tool: "read_file", Args: map[string]interface{}{"path": "/tmp/a"}}, func(ctx context.Context) (interface{}, error) {
		called = true
		return "ok", nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "ok", out)
}

func TestDispatchDenyNeverExecutesTool(t *testing.T) {
	fcp := &fakeControlPlane{effect: model.EffectDeny}
	s, _ := newTestShim(t, fcp)

	called := false
	_, err := s.Dispatch(context.Background(), Invocation{Tool: "delete_file", Args: map[string]interface{}{"path": "/tmp/a"}}, func(ctx context.Context) (interface{}, error) {
		called = true
		return nil, nil
	})
	var denied *PolicyDeniedError
	require.ErrorAs(t, err, &denied)
	assert.False(t, called)
}

// TestDispatchFailsClosedWhenControlPlaneUnreachable verifies P6: if the
// decision response is unreachable, the underlying tool is never invoked.
func TestDispatchFailsClosedWhenControlPlaneUnreachable(t *testing.T) {
	s, err := New(Config{ClasperURL: "http://127.0.0.1:1", AdapterID: "a1", AdapterSecret: "s", RequestTimeout: 20 * time.Millisecond, MaxRetries: 0})
	require.NoError(t, err)

	called := false
	_, dispatchErr := s.Dispatch(context.Background(), Invocation{Tool: "exec", Args: map[string]interface{}{"command": "ls"}}, func(ctx context.Context) (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.Error(t, dispatchErr)
	assert.False(t, called)
}

// TestDispatchReusesFingerprintForRepeatedRequest verifies P7: two
// invocations with the same fingerprint share the same execution_id while
// pending.
func TestDispatchReusesFingerprintForRepeatedRequest(t *testing.T) {
	fcp := &fakeControlPlane{effect: model.EffectRequireApproval, pollEffects: map[string]model.Effect{}}
	s, _ := newTestShim(t, fcp)

	inv := Invocation{Tool: "exec", Args: map[string]interface{}{"command": "rm -rf /tmp/x"}, SessionContext: map[string]interface{}{"sessionId": "sess-1"}}

	go func() {
		_, _ = s.Dispatch(context.Background(), inv, func(ctx context.Context) (interface{}, error) { return nil, nil })
	}()
	time.Sleep(10 * time.Millisecond)

	_, _ = s.Dispatch(context.Background(), inv, func(ctx context.Context) (interface{}, error) { return nil, nil })

	fcp.mu.Lock()
	defer fcp.mu.Unlock()
	require.GreaterOrEqual(t, len(fcp.executionIDs), 2)
	assert.Equal(t, fcp.executionIDs[0], fcp.executionIDs[1])
}

func TestDispatchApprovalTimeoutDoesNotClearFingerprint(t *testing.T) {
	fcp := &fakeControlPlane{effect: model.EffectRequireApproval, pollEffects: map[string]model.Effect{}}
	s, _ := newTestShim(t, fcp)

	_, err := s.Dispatch(context.Background(), Invocation{Tool: "exec", Args: map[string]interface{}{"command": "rm x"}}, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrApprovalTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.inFlight, 1)
}

func TestNormalizeToolAppliesAliasTable(t *testing.T) {
	assert.Equal(t, "read", normalizeTool("read_file"))
	assert.Equal(t, "delete", normalizeTool("delete_file"))
	assert.Equal(t, "unknown_tool", normalizeTool("unknown_tool"))
}

func TestCommandClassBucketsRecognizedArgv0(t *testing.T) {
	assert.Equal(t, "package_manager", commandClass("npm"))
	assert.Equal(t, "script_runtime", commandClass("python3"))
	assert.Equal(t, "git", commandClass("git"))
	assert.Equal(t, "shell_fs", commandClass("rm"))
	assert.Equal(t, "none", commandClass(""))
	assert.Equal(t, "curlwrapper", commandClass("curlwrapper"))
}

func TestFingerprintIsOrderInsensitiveOverTargets(t *testing.T) {
	a := targetsKey(model.Targets{Paths: []string{"/tmp/B", "/tmp/a"}})
	b := targetsKey(model.Targets{Paths: []string{"/tmp/a", "/tmp/B"}})
	assert.Equal(t, a, b)
}
