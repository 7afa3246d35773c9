package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/llmgrid/internal/config"
	"github.com/specialistvlad/llmgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the command line and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	err := Execute(context.Background(), args, &out, &errOut)
	t.Cleanup(func() {
		if os.Getenv(testutil.LogsEnv) == "true" {
			t.Logf("--- stderr for %s ---\n%s", t.Name(), errOut.String())
		}
	})
	return out.String(), err
}

func TestExecute_UsageErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown flag", []string{"--this-is-not-a-valid-flag"}, "unknown flag: --this-is-not-a-valid-flag"},
		{"unknown command", []string{"deploy"}, `unknown command "deploy"`},
		{"missing app path", []string{"run"}, "accepts 1 arg(s), received 0"},
		{"register arity", []string{"dataset", "register", "only-id"}, "accepts 2 arg(s), received 1"},
		{"bad log level", []string{"provider", "list", "--log-level", "loud", "--config", "x.yaml"}, "invalid log-level"},
		{"negative workers", []string{"run", "app.hcl", "--workers=-1"}, "invalid workers -1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := execute(t, tc.args...)

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantErr)
		})
	}
}

func TestExecute_Help(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "--help")

	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "dataset")
}

func TestExecute_ProjectLifecycle(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := filepath.Join(t.TempDir(), "proj")
	cfgPath := filepath.Join(dir, config.DefaultFile)
	files := testutil.WriteFiles(t, map[string]string{
		"greet.hcl": `
block "input" "INPUT" {}

block "code" "LOUD" {
  expression = upper(INPUT.q)
}

block "llm" "ECHO" {
  provider = "stub"
  model    = "echo"
  prompt   = "say ${LOUD}"
}
`,
		"records.jsonl": "{\"q\":\"hi\"}\n{\"q\":\"yo\"}\n",
	})

	// --- Act & Assert ---
	out, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized llmgrid project")
	assert.FileExists(t, cfgPath)
	assert.FileExists(t, filepath.Join(dir, "store.sqlite"))

	out, err = execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = execute(t, "dataset", "register", "greetings", filepath.Join(files, "records.jsonl"), "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered dataset `greetings` version (")
	assert.Contains(t, out, `with 2 records (record keys: ["q"])`)

	out, err = execute(t, "dataset", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "greetings")

	out, err = execute(t, "provider", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "stub")

	resultPath := filepath.Join(dir, "result.json")
	_, err = execute(t, "run", filepath.Join(files, "greet.hcl"), "--dataset", "greetings", "--config", cfgPath, "-o", resultPath)
	require.NoError(t, err)

	raw, err := os.ReadFile(resultPath)
	require.NoError(t, err)
	var doc struct {
		Outputs map[string][]any `json:"outputs"`
		Error   string           `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Empty(t, doc.Error)
	assert.Equal(t, []any{"HI", "YO"}, doc.Outputs["LOUD"])
	require.Len(t, doc.Outputs["ECHO"], 2)
	assert.Equal(t, "say HI", doc.Outputs["ECHO"][0].(map[string]any)["text"])
}

func TestExecute_FailedRunStillPrintsResult(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := testutil.WriteFiles(t, map[string]string{
		config.DefaultFile: "store:\n  driver: sqlite\n  in_memory: true\n",
		"broken.hcl": `
block "code" "BROKEN" {
  expression = tonumber("not a number")
}
`,
	})

	// --- Act ---
	out, err := execute(t, "run", filepath.Join(dir, "broken.hcl"), "--config", filepath.Join(dir, config.DefaultFile))

	// --- Assert ---
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, exitErr.Message, "BROKEN")

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc["error"], "BROKEN")
}

func TestExecute_MissingExplicitConfig(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "provider", "list", "--config", filepath.Join(t.TempDir(), "nope.yaml"))

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, exitErr.Message, "failed to read config")
}
