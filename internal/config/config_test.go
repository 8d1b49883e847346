package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
project: demo
paths:
  pdfDir: ./pdfs
primary:
  apiKey: k1
  model: gpt-4o-mini
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "demo", cfg.Project)
	require.Equal(t, 3, cfg.Performance.MaxWorkers)
	require.Equal(t, 900000, cfg.Limits.PrimaryTPM)
	require.Equal(t, "https://api.openai.com/v1", cfg.Primary.APIBase)
	require.Equal(t, 2, cfg.Retry.MaxRounds)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
paths:
  pdfDir: ./pdfs
primary:
  apiKey: from-file
  model: gpt-4o-mini
`)
	t.Setenv("LITREVIEW_PRIMARY_API_KEY", "from-env")
	t.Setenv("LITREVIEW_MAX_WORKERS", "7")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Primary.APIKey)
	require.Equal(t, 7, cfg.Performance.MaxWorkers)
}

func TestLoadRejectsMissingPrimary(t *testing.T) {
	path := writeConfig(t, `
paths:
  pdfDir: ./pdfs
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingPDFDir(t *testing.T) {
	path := writeConfig(t, `
primary:
  apiKey: k1
  model: m
`)
	_, err := Load(path)
	require.Error(t, err)
}
