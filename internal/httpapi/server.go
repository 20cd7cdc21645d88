// Package httpapi is the control plane's HTTP surface: adapter
// registration/auth, the execution-decision endpoint, telemetry ingest, and
// the local-operator endpoints for resolving decisions and managing policy
// (spec §6), built on github.com/labstack/echo/v4 following the teacher's
// generic decision point.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/clasper-run/clasper/internal/audit"
	"github.com/clasper-run/clasper/internal/auth"
	"github.com/clasper-run/clasper/internal/ingest"
	"github.com/clasper-run/clasper/internal/ledger"
	"github.com/clasper-run/clasper/internal/logging"
	"github.com/clasper-run/clasper/internal/policy"
	"github.com/clasper-run/clasper/internal/registry"

	"github.com/labstack/echo/v4"
)

var logger = logging.GetLogger("httpapi")

// adapterTokenTTL is the lifetime of a freshly minted adapter token
// (spec §3, AdapterToken, "~2 h").
const adapterTokenTTL = 2 * time.Hour

// Config carries the process-wide values the HTTP surface needs beyond its
// service dependencies.
type Config struct {
	LocalTenantID    string
	LocalWorkspaceID string
	OpsAPIKey        string // empty disables operator auth (spec §6)
	BootstrapSecret  string // shared secret accepted in lieu of an adapter token on first register
}

// Server wraps an [echo.Echo] configured with the control plane's routes,
// mirroring the Server/CreateServer/Stop shape of the teacher's
// pkg/decisionpoint/generic package.
type Server struct {
	echo *echo.Echo

	tokens   *auth.TokenManager
	registry *registry.Registry
	policies *policy.Manager
	ledger   *ledger.Ledger
	ingest   *ingest.Ingest
	audit    *audit.Chain
	cfg      Config
}

// NewServer builds the Echo application and registers every route.
func NewServer(
	tokens *auth.TokenManager,
	reg *registry.Registry,
	policies *policy.Manager,
	led *ledger.Ledger,
	ing *ingest.Ingest,
	auditChain *audit.Chain,
	cfg Config,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler

	s := &Server{
		echo: e, tokens: tokens, registry: reg, policies: policies,
		ledger: led, ingest: ing, audit: auditChain, cfg: cfg,
	}
	s.routes()
	return s
}

// Start listens on port in a background goroutine; Start does not block,
// following CreateServer in the teacher's generic decision point.
func (s *Server) Start(port int) {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			logger.SysErrorf("http server stopped: %+v", err)
		}
	}()
}

// Stop gracefully shuts down the server, waiting for in-flight requests to
// complete or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) routes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/adapters/register", s.handleRegisterAdapter)

	adapterAuth := s.adapterAuthMiddleware()
	s.echo.POST("/api/execution/request", s.handleExecutionRequest, adapterAuth)
	s.echo.GET("/api/execution/:execution_id", s.handleGetExecution, adapterAuth)
	s.echo.GET("/api/executions/:execution_id/tool-authorizations", s.handleListToolAuthorizations, adapterAuth)
	s.echo.POST("/api/ingest/:kind", s.handleIngest, adapterAuth)

	opsAuth := s.opsAuthMiddleware()
	s.echo.POST("/api/decisions/:decision_id/resolve", s.handleResolveDecision, opsAuth)

	ops := s.echo.Group("/ops/api", opsAuth)
	ops.POST("/decisions/reconcile", s.handleReconcile)
	ops.POST("/policies", s.handleCreatePolicy)
	ops.GET("/policies", s.handleListPolicies)
	ops.GET("/policies/:policy_id", s.handleGetPolicy)
	ops.GET("/me", s.handleMe)
}
