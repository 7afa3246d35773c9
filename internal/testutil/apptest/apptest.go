// Package apptest builds validated apps from HCL source for tests. It lives
// apart from testutil because the engine packages' own tests import
// testutil.
package apptest

import (
	"testing"

	"github.com/specialistvlad/llmgrid/internal/model"
	"github.com/specialistvlad/llmgrid/internal/pipeline"
	"github.com/specialistvlad/llmgrid/internal/testutil"
	"github.com/stretchr/testify/require"
)

// LoadApp parses src as a single app.hcl file and validates it, failing
// the test on any error.
func LoadApp(t *testing.T, src string) *pipeline.App {
	t.Helper()

	ctx, _ := testutil.NewContext(t)
	m, err := model.ParseSource("app.hcl", []byte(src))
	require.NoError(t, err)
	app, err := pipeline.New(ctx, m)
	require.NoError(t, err)
	return app
}
