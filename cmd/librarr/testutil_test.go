package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/librarr/internal/config"
	"github.com/vmunix/librarr/internal/server"
)

const testConfig = `
[server]
data_dir = %q

[database]
path = %q

[processing]
batch_delay = "0s"

[[libraries]]
name = "Movies"
type = "movie"
root = %q
`

type cliEnv struct {
	dir       string
	config    string
	movieRoot string
}

// newEnv writes a config with one movie library under a temp dir and points
// the CLI at it.
func newEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	e := &cliEnv{
		dir:       dir,
		config:    filepath.Join(dir, "config.toml"),
		movieRoot: filepath.Join(dir, "movies"),
	}
	content := fmt.Sprintf(testConfig, filepath.Join(dir, "data"), filepath.Join(dir, "librarr.db"), e.movieRoot)
	require.NoError(t, os.WriteFile(e.config, []byte(content), 0644))
	return e
}

// app opens the environment's app directly, for seeding.
func (e *cliEnv) app(t *testing.T) *server.App {
	t.Helper()
	cfg, err := config.Load(e.config)
	require.NoError(t, err)
	app, err := server.Open(cfg, nil)
	require.NoError(t, err)
	return app
}

// run executes the CLI with args against the environment and returns what
// it wrote.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default, since cobra keeps parsed
// values between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
