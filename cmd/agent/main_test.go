package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diag-agent/app/identity"
	"diag-agent/app/services"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		checkHealth = false
		configPath = ""
		envFile = ".env"
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	old := services.Version
	services.Version = "1.2.3"
	defer func() { services.Version = old }()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "diag-agent 1.2.3")
}

func TestSysinfoCmd(t *testing.T) {
	out, err := execute(t, "sysinfo")
	require.NoError(t, err)

	var info identity.SystemInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Greater(t, info.AvailableProcessors, 0)
	assert.NotEmpty(t, info.Platform)
}

func TestSysinfoCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Setenv("CENTRAL_API_URL", server.URL)
	out, err := execute(t, "sysinfo", "--check", "--env-file", filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	assert.Contains(t, out, "is healthy")

	t.Setenv("CENTRAL_API_URL", server.URL+"/down")
	_, err = execute(t, "sysinfo", "--check", "--env-file", filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy")
}

func TestRunWithInvalidConfig(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	_, err := execute(t, "run", "--env-file", filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
