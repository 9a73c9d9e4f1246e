package commands

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"raremblems/internal/config"
	"raremblems/internal/oauth"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "raremblems.json5")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	prev := configPath
	configPath = path
	t.Cleanup(func() {
		configPath = prev
		topN = 0
		output = ""
	})
	return dir
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	addReportFlags(cmd)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestLoadConfigFlags(t *testing.T) {
	writeConfig(t, `{api_key: "k", client_id: "c", client_secret: "s", top_n: 10, output: "file.csv"}`)

	cmd, _ := newTestCommand()
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.TopN)
	require.Equal(t, "file.csv", cfg.Output)

	cmd, _ = newTestCommand()
	require.NoError(t, cmd.Flags().Set("top", "0"))
	require.NoError(t, cmd.Flags().Set("output", "flag.csv"))
	cfg, err = loadConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, 0, cfg.TopN)
	require.Equal(t, "flag.csv", cfg.Output)
}

func TestRunReportReturnsErrors(t *testing.T) {
	dir := writeConfig(t, fmt.Sprintf(`{
		api_key: "k",
		client_id: "c",
		client_secret: "s",
		redirect_uri: "http://127.0.0.1:%d/callback",
		callback_timeout: "50ms",
		cache: { dsn: "cache.db" },
	}`, freePort(t)))

	cmd, out := newTestCommand()
	err := runReport(cmd)
	require.ErrorIs(t, err, oauth.ErrCallbackTimeout)
	require.Contains(t, out.String(), "Open this URL in your browser")

	_, err = os.Stat(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "my_emblems_rarity.csv"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunReportInvalidConfig(t *testing.T) {
	writeConfig(t, `{api_key: "k", client_id: "c", client_secret: "s", callback_timeout: "soon"}`)

	cmd, out := newTestCommand()
	err := runReport(cmd)
	require.Error(t, err)
	require.Empty(t, out.String())
}

func TestOpenCacheFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	cache, closeCache, err := openCache(context.Background(), config.CacheConfig{Dir: dir})
	require.NoError(t, err)
	defer closeCache()

	require.NoError(t, cache.Put(context.Background(), "key.json", []byte("{}")))
	_, err = os.Stat(filepath.Join(dir, "key.json"))
	require.NoError(t, err)
}

func TestRootCommandSilencesCobraOutput(t *testing.T) {
	require.True(t, rootCmd.SilenceErrors)
	require.True(t, rootCmd.SilenceUsage)
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
