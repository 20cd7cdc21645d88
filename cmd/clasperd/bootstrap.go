package main

import (
	"fmt"

	"github.com/clasper-run/clasper/internal/audit"
	"github.com/clasper-run/clasper/internal/auth"
	"github.com/clasper-run/clasper/internal/config"
	"github.com/clasper-run/clasper/internal/httpapi"
	"github.com/clasper-run/clasper/internal/ingest"
	"github.com/clasper-run/clasper/internal/ledger"
	"github.com/clasper-run/clasper/internal/logging"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/clasper-run/clasper/internal/policy"
	"github.com/clasper-run/clasper/internal/registry"
	"github.com/clasper-run/clasper/internal/storage"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("clasperd")

// app wires together every control-plane component from configuration,
// following the registry/backend/compiler wiring cmd/mpe/common builds its
// PolicyEngine from.
type app struct {
	store    *storage.Store
	chain    *audit.Chain
	registry *registry.Registry
	policies *policy.Manager
	ledger   *ledger.Ledger
	ingest   *ingest.Ingest
	tokens   *auth.TokenManager
}

// newApp loads configuration and opens every dependency. Callers are
// responsible for closing the returned app's store.
func newApp() (*app, error) {
	if err := config.Load(); err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}

	secret := config.VConfig.GetString(config.AdapterJWTSecret)
	if secret == "" {
		return nil, fmt.Errorf("%s is required", config.AdapterJWTSecret)
	}

	store, err := storage.Open(config.VConfig.GetString(config.DBPath))
	if err != nil {
		return nil, errors.Wrap(err, "error opening store")
	}

	chain := audit.NewChain(store)
	mode := model.ApprovalMode(config.VConfig.GetString(config.ApprovalMode))
	policy.SetRegoOperatorsEnabled(config.VConfig.GetBool(config.PolicyOperatorsEnabled))

	return &app{
		store:    store,
		chain:    chain,
		registry: registry.New(store, chain),
		policies: policy.NewManager(store),
		ledger:   ledger.New(store, chain, policy.NewEngine(store), mode),
		ingest:   ingest.New(store, chain),
		tokens: auth.NewTokenManager(secret,
			config.VConfig.GetString(config.LocalTenantID),
			config.VConfig.GetString(config.LocalWorkspaceID)),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.SysWarnf("error closing store: %v", err)
	}
}

// httpConfig builds the httpapi.Config this process presents from loaded
// configuration.
func httpConfig() httpapi.Config {
	return httpapi.Config{
		LocalTenantID:    config.VConfig.GetString(config.LocalTenantID),
		LocalWorkspaceID: config.VConfig.GetString(config.LocalWorkspaceID),
		OpsAPIKey:        config.VConfig.GetString(config.OpsLocalAPIKey),
		BootstrapSecret:  config.VConfig.GetString(config.AdapterBootstrapSecret),
	}
}
