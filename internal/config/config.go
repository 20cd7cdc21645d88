// Package config loads control-plane configuration using [Viper], from
// environment variables (prefix CLASPER_) and an optional YAML file.
//
// Configuration can be provided via:
//   - An optional clasper-config.yaml in the current directory (override with
//     CLASPER_CONFIG_PATH / CLASPER_CONFIG_FILENAME)
//   - Environment variables with the CLASPER_ prefix
//   - Programmatic defaults
//
// [Viper]: https://github.com/spf13/viper
package config

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/clasper-run/clasper/internal/logging"
	"github.com/spf13/viper"
)

// Configuration key constants for use with [VConfig].
const (
	// LogLevel is a "component:level;..." string, see [logging.UpdateLogLevels].
	LogLevel = "log.level"

	// Port is the TCP port the control plane HTTP server listens on.
	Port = "port"

	// DBPath is the SQLite DSN (file path, or ":memory:") for persisted state.
	DBPath = "db.path"

	// AdapterJWTSecret signs and verifies adapter tokens (§4.1).
	AdapterJWTSecret = "adapter.jwt_secret"

	// AdapterJWTAlgorithm holds the JWS algorithm name (default HS256). The
	// token manager does not read it: tokens are always signed with HS256.
	AdapterJWTAlgorithm = "adapter.jwt_algorithm"

	// OpsLocalAPIKey gates the /ops/* surface. Empty disables operator auth
	// (single-operator dev mode).
	OpsLocalAPIKey = "ops.local_api_key"

	// LocalTenantID is the tenant this single-tenant instance presents.
	LocalTenantID = "local.tenant_id"

	// LocalWorkspaceID is the workspace this instance is scoped to, if any.
	LocalWorkspaceID = "local.workspace_id"

	// ApprovalMode is "simulate" or "enforce" (§4.3).
	ApprovalMode = "approval.mode"

	// PolicyOperatorsEnabled unlocks the advanced rego: condition operator
	// (§4.3). Also read from CLASPER_POLICY_OPERATORS.
	PolicyOperatorsEnabled = "policy.operators_enabled"

	// AdapterBootstrapSecret is the shared secret a brand-new adapter
	// presents in lieu of a token on its first /adapters/register call.
	AdapterBootstrapSecret = "adapter.bootstrap_secret"
)

// Environment variable names with back-compat aliases honored by [Load].
const (
	EnvVarPrefix = "CLASPER"

	envConfigPath     = "CLASPER_CONFIG_PATH"
	envConfigFilename = "CLASPER_CONFIG_FILENAME"

	// envRequireApprovalAlias is the documented back-compat alias for
	// ApprovalMode: CLASPER_REQUIRE_APPROVAL_IN_CORE=allow|block.
	envRequireApprovalAlias = "CLASPER_REQUIRE_APPROVAL_IN_CORE"
)

var (
	once     sync.Once
	loadOnce sync.Once
	loadErr  error

	// VConfig is the global Viper instance. Prefer the key constants above
	// over literal strings when reading from it.
	VConfig *viper.Viper
	logger  = logging.GetLogger("config")
)

// Init sets up Viper defaults and env-var wiring without reading any file.
// Safe to call multiple times; only the first call has effect.
func Init() {
	once.Do(doInitialize)
}

func doInitialize() {
	VConfig = viper.New()

	VConfig.AddConfigPath(getConfigPath())
	VConfig.SetConfigName(getConfigFilename())
	VConfig.SetConfigType("yaml")

	VConfig.SetEnvPrefix(EnvVarPrefix)
	VConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	VConfig.AutomaticEnv()
	_ = VConfig.BindEnv(PolicyOperatorsEnabled, EnvVarPrefix+"_POLICY_OPERATORS")

	VConfig.SetDefault(LogLevel, ".:info")
	VConfig.SetDefault(Port, 8081)
	VConfig.SetDefault(DBPath, "clasper.db")
	VConfig.SetDefault(AdapterJWTAlgorithm, "HS256")
	VConfig.SetDefault(ApprovalMode, "enforce")
	VConfig.SetDefault(PolicyOperatorsEnabled, false)
}

func getConfigPath() string {
	if p, ok := os.LookupEnv(envConfigPath); ok {
		return p
	}
	return "."
}

func getConfigFilename() string {
	if n, ok := os.LookupEnv(envConfigFilename); ok {
		return n
	}
	return "clasper-config"
}

// Load calls [Init] if needed, reads the optional config file, applies the
// CLASPER_REQUIRE_APPROVAL_IN_CORE back-compat alias, and updates log
// levels. Safe to call concurrently; only the first call does work.
func Load() error {
	loadOnce.Do(func() {
		Init()

		if early := os.Getenv("CLASPER_LOG_LEVEL"); early != "" {
			if err := logging.UpdateLogLevels(early); err != nil {
				loadErr = err
				return
			}
		}

		if err := VConfig.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				logger.SysWarnf("error reading config file, falling back to defaults: %+v", err)
			}
		}

		applyApprovalModeAlias()

		if err := logging.UpdateLogLevels(VConfig.GetString(LogLevel)); err != nil {
			loadErr = err
			return
		}

		if logger.IsDebugEnabled() {
			VConfig.DebugTo(logger.Out())
		}
	})

	return loadErr
}

// applyApprovalModeAlias honors CLASPER_REQUIRE_APPROVAL_IN_CORE=allow|block.
// When the alias is set, it overrides ApprovalMode from any other source.
func applyApprovalModeAlias() {
	alias := os.Getenv(envRequireApprovalAlias)
	switch alias {
	case "allow":
		VConfig.Set(ApprovalMode, "simulate")
	case "block":
		VConfig.Set(ApprovalMode, "enforce")
	case "":
		// no alias set
	default:
		logger.SysWarnf("ignoring unrecognized %s=%q", envRequireApprovalAlias, alias)
	}
}

// ResetForTesting clears all state and reinitializes with defaults. Tests
// only; concurrent use elsewhere would race.
func ResetForTesting() {
	VConfig = nil
	once = sync.Once{}
	loadOnce = sync.Once{}
	loadErr = nil
	Init()
	_ = Load()
}
