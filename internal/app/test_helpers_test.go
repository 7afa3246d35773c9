package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/llmgrid/internal/config"
	"github.com/specialistvlad/llmgrid/internal/testutil"
	"github.com/stretchr/testify/require"
)

// SetupAppTest writes projectYAML as the config of a fresh project
// directory and returns an App for it, with debug logs captured in the
// returned buffer.
func SetupAppTest(t *testing.T, projectYAML string) (*App, *testutil.SafeBuffer, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, config.DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(projectYAML), 0o644))

	logBuffer := &testutil.SafeBuffer{}
	cfg, err := NewConfig(Config{ConfigPath: path, ConfigRequired: true, LogFormat: "text", LogLevel: "debug"})
	require.NoError(t, err)
	testApp, err := NewApp(logBuffer, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, testApp.Close())
		if os.Getenv(testutil.LogsEnv) == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return testApp, logBuffer, dir
}
