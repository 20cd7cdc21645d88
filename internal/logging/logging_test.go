package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	defer resetForTesting()

	a := GetLogger("policy")
	b := GetLogger("policy")
	assert.Same(t, a, b)
}

func TestLoggerWritesJSONWithComponentAndOp(t *testing.T) {
	defer resetForTesting()

	var buf bytes.Buffer
	l := GetLogger("ledger")
	l.SetOut(&buf)
	l.SetLevel(-1) // debug

	l.Info("ledger", "createDecision", "created")

	var entry map[string]interface{}
	line := strings.TrimSpace(buf.String())
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "ledger", entry["component"])
	assert.Equal(t, "createDecision", entry["op"])
	assert.Equal(t, "ledger", entry["actor"])
}

func TestUpdateLogLevelsAppliesDefaultAndOverrides(t *testing.T) {
	defer resetForTesting()

	GetLogger("audit")
	require.NoError(t, UpdateLogLevels(".:error; audit:debug"))

	assert.True(t, GetLogger("audit").IsDebugEnabled())
	assert.False(t, GetLogger("ingest").IsDebugEnabled())
}
