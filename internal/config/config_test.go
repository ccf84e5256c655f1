package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lavalog/internal/follower"
	"github.com/roach88/lavalog/internal/section"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, section.DefaultBudgets(), cfg.Budgets)
	assert.Equal(t, follower.DefaultNetworkIssueThreshold, cfg.NetworkIssueThreshold)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
timeouts:
  lava_boot: 2m
  test_case: 90s
fallback_timeout: 1h30m
network_issue_threshold: 3
`))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Budgets.For(section.TypeLavaBoot))
	assert.Equal(t, 90*time.Second, cfg.Budgets.For(section.TypeTestCase))
	assert.Equal(t, section.DefaultTestSuiteTimeout, cfg.Budgets.For(section.TypeTestSuite), "unset types keep defaults")
	assert.Equal(t, 90*time.Minute, cfg.Budgets.Fallback)
	assert.Equal(t, 3, cfg.NetworkIssueThreshold)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "unknown top-level field",
			doc:     "timeout:\n  lava_boot: 1m\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "unknown section type",
			doc:     "timeouts:\n  lava_reboot: 1m\n",
			wantErr: "invalid config",
		},
		{
			name:    "malformed duration",
			doc:     "timeouts:\n  test_case: soon\n",
			wantErr: "invalid config",
		},
		{
			name:    "bare number duration",
			doc:     "fallback_timeout: \"10\"\n",
			wantErr: "invalid config",
		},
		{
			name:    "negative threshold",
			doc:     "network_issue_threshold: -2\n",
			wantErr: "invalid config",
		},
		{
			name:    "wrong type",
			doc:     "network_issue_threshold: many\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ErrorType(t *testing.T) {
	err := Validate(&File{Timeouts: map[string]string{"nope": "1m"}})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Details)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lavalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fallback_timeout: 42s\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, cfg.Budgets.Fallback)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestMarshal_RoundTrips(t *testing.T) {
	cfg, err := Parse([]byte("timeouts:\n  test_case: 75m\nnetwork_issue_threshold: 4\n"))
	require.NoError(t, err)

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_case: 1h15m0s")

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, []string{
		"lava_boot",
		"lava_post_processing",
		"test_case",
		"test_dut_suite",
		"test_suite",
	}, TypeNames())
}
