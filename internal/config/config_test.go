package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load("raremblems.json5")
	require.ErrorIs(t, err, ErrFatalConfig)
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	writeFile(t, filepath.Join(dir, "raremblems.json5"), `{
		// comments are allowed
		api_key: "key",
		client_id: "50509",
		client_secret: "from-file",
		top_n: 10,
		telemetry: {
			otlp: { traces: { http_endpoint: "http://localhost:4318/v1/traces" } },
		},
	}`)
	writeFile(t, filepath.Join(dir, "raremblems.local.json5"), `{ top_n: 5 }`)

	t.Setenv("RAREMBLEMS_CLIENT_SECRET", "from-env")
	t.Setenv("RAREMBLEMS_CACHE_DIR", "env-cache")

	cfg, err := Load("raremblems.json5")
	require.NoError(t, err)

	require.Equal(t, "key", cfg.ApiKey)
	require.Equal(t, "50509", cfg.ClientId)
	require.Equal(t, "from-env", cfg.ClientSecret)
	require.Equal(t, 5, cfg.TopN)
	require.Equal(t, "env-cache", cfg.Cache.Dir)
	require.True(t, cfg.Telemetry.Enabled())

	defaults := Defaults()
	require.Equal(t, defaults.RedirectUri, cfg.RedirectUri)
	require.Equal(t, defaults.TokenUrl, cfg.TokenUrl)
	require.Equal(t, defaults.Locale, cfg.Locale)
	require.Equal(t, 5*time.Minute, cfg.CallbackTimeoutDuration())
	require.Equal(t, 500*time.Millisecond, cfg.PoliteDelayDuration())
}

func TestLoadExplicitZero(t *testing.T) {
	const credentials = `api_key: "k", client_id: "c", client_secret: "s"`

	testCases := []struct {
		name  string
		base  string
		local string
		env   string
	}{
		{
			name: "file",
			base: `{` + credentials + `, top_n: 0, retries: 0}`,
		},
		{
			name:  "local file",
			base:  `{` + credentials + `, top_n: 10}`,
			local: `{top_n: 0}`,
		},
		{
			name: "environment",
			base: `{` + credentials + `, top_n: 10}`,
			env:  "0",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			chdir(t, dir)
			writeFile(t, filepath.Join(dir, "raremblems.json5"), test.base)
			if test.local != "" {
				writeFile(t, filepath.Join(dir, "raremblems.local.json5"), test.local)
			}
			if test.env != "" {
				t.Setenv("RAREMBLEMS_TOP_N", test.env)
			}

			cfg, err := Load("raremblems.json5")
			require.NoError(t, err)
			require.Equal(t, 0, cfg.TopN)
			require.Equal(t, Defaults().Output, cfg.Output)
		})
	}
}

func TestLoadLocalOnly(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, "raremblems.local.json5"), `{api_key: "k", client_id: "c", client_secret: "s"}`)

	cfg, err := Load("raremblems.json5")
	require.NoError(t, err)
	require.Equal(t, "k", cfg.ApiKey)
	require.Equal(t, Defaults().TopN, cfg.TopN)
}

func TestLoadSearchesParents(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	chdir(t, nested)

	writeFile(t, filepath.Join(dir, "raremblems.json5"), `{api_key: "k", client_id: "c", client_secret: "s"}`)

	cfg, err := Load("raremblems.json5")
	require.NoError(t, err)
	require.Equal(t, "k", cfg.ApiKey)
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name     string
		contents string
	}{
		{
			name:     "bad duration",
			contents: `{api_key: "k", client_id: "c", client_secret: "s", callback_timeout: "soon"}`,
		},
		{
			name:     "cert without key",
			contents: `{api_key: "k", client_id: "c", client_secret: "s", tls_cert_file: "cert.pem"}`,
		},
		{
			name:     "bad url",
			contents: `{api_key: "k", client_id: "c", client_secret: "s", token_url: "not a url"}`,
		},
		{
			name:     "negative retries",
			contents: `{api_key: "k", client_id: "c", client_secret: "s", retries: -1}`,
		},
		{
			name:     "malformed file",
			contents: `{api_key: `,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			chdir(t, dir)
			writeFile(t, filepath.Join(dir, "raremblems.json5"), test.contents)

			_, err := Load("raremblems.json5")
			require.ErrorIs(t, err, ErrFatalConfig)
		})
	}
}

// chdir changes the working directory for the rest of the test and restores
// it on cleanup, like testing.T.Chdir in Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
