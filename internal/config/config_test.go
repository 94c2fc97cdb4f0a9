package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialrent-backend/internal/pricing"
)

const minimalYAML = `
server:
  host: 0.0.0.0
  port: 9090
database:
  driver: memory
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 9091, cfg.Server.HTTPPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "SN", cfg.Rental.SerialPrefix)
	assert.True(t, *cfg.Rental.DefaultLateFeeEnabled)
	assert.Equal(t, cfg.Auth.JWTSecret, cfg.Auth.TagSecret)
	assert.Equal(t, "0 0 2 * * *", cfg.Scheduler.DetectOverdueItems)

	policy := cfg.FeePolicy()
	assert.Equal(t, pricing.LateFeeMethodMaximum, policy.Late.Method)
	assert.Equal(t, "100", policy.Damage.MinorThreshold.String())
	assert.Equal(t, "500", policy.Damage.ModerateThreshold.String())
}

func TestParse_ExplicitZeroFees(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "fees:\n  minor_threshold: 0\n  minor_default_fee: 0\n"))
	require.NoError(t, err)

	policy := cfg.FeePolicy()
	assert.True(t, policy.Damage.MinorThreshold.IsZero())
	assert.True(t, policy.Damage.MinorDefault.IsZero())
	// unset keys still get defaults
	assert.Equal(t, "500", policy.Damage.ModerateThreshold.String())
	assert.Equal(t, "250", policy.Damage.DamagedDefault.String())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"Bad port", "server:\n  port: 0\n", "invalid server port"},
		{"Postgres needs host", "server:\n  port: 9090\ndatabase:\n  driver: postgres\n", "database host is required"},
		{"Short secret", "server:\n  port: 9090\ndatabase:\n  driver: memory\nauth:\n  jwt_secret: short\n", "at least 32 characters"},
		{"Bad late fee method", minimalYAML + "fees:\n  late_fee_method: weekly\n", "unknown late fee method"},
		{"Inverted thresholds", minimalYAML + "fees:\n  minor_threshold: 800\n", "minor damage threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	t.Setenv("LATE_FEE_METHOD", "daily")
	t.Setenv("HTTP_PORT", "8088")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "daily", cfg.Fees.LateFeeMethod)
	assert.Equal(t, 8088, cfg.Server.HTTPPort)
}

func TestGetSecurityLevel(t *testing.T) {
	assert.Equal(t, SecurityScanner, GetSecurityLevel("/serialrent.v1.ScanService/Scan"))
	assert.Equal(t, SecurityPublic, GetSecurityLevel("health"))
	assert.Equal(t, SecurityAccess, GetSecurityLevel("project.create"))
}
