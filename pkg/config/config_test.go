package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("ADVISORY_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	require.Equal(t, 750*time.Millisecond, cfg.Advisory.Timeout)
	require.Equal(t, 16, cfg.Gate.OTPMaxAttempts)
	require.Equal(t, 3, cfg.Lifecycle.MaxRetries)
	require.Equal(t, CodeRegistryMemory, cfg.Gate.CodeRegistry)
	require.NotEmpty(t, cfg.Evidence.AllowedMIMEs)
}

func TestGateLocationFallsBackToUTC(t *testing.T) {
	require.Equal(t, time.UTC, GateConfig{}.Location())
	require.Equal(t, time.UTC, GateConfig{Timezone: "Mars/Olympus"}.Location())
}

func TestParseDurationFallback(t *testing.T) {
	require.Equal(t, time.Minute, parseDuration("", time.Minute))
	require.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	require.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}

func TestSplitAndTrim(t *testing.T) {
	require.Nil(t, splitAndTrim(""))
	require.Equal(t, []string{"a", "b"}, splitAndTrim(" a , ,b "))
}
