package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	assert.Equal(t, 8081, VConfig.GetInt(Port))
	assert.Equal(t, "enforce", VConfig.GetString(ApprovalMode))
	assert.False(t, VConfig.GetBool(PolicyOperatorsEnabled))
}

func TestApprovalModeAliasOverridesDefault(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	require.NoError(t, os.Setenv("CLASPER_REQUIRE_APPROVAL_IN_CORE", "allow"))
	t.Cleanup(func() { os.Unsetenv("CLASPER_REQUIRE_APPROVAL_IN_CORE") })

	ResetForTesting()
	assert.Equal(t, "simulate", VConfig.GetString(ApprovalMode))
}

func TestEnvPrefixOverridesDefault(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	require.NoError(t, os.Setenv("CLASPER_PORT", "9100"))
	t.Cleanup(func() { os.Unsetenv("CLASPER_PORT") })

	ResetForTesting()
	assert.Equal(t, 9100, VConfig.GetInt(Port))
}

func TestAdapterBootstrapSecretReadsFromEnv(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	require.NoError(t, os.Setenv("CLASPER_ADAPTER_BOOTSTRAP_SECRET", "shared-secret"))
	t.Cleanup(func() { os.Unsetenv("CLASPER_ADAPTER_BOOTSTRAP_SECRET") })

	ResetForTesting()
	assert.Equal(t, "shared-secret", VConfig.GetString(AdapterBootstrapSecret))
}
