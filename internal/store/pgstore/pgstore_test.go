package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/store"
	"github.com/specialistvlad/llmgrid/internal/store/sqlstore"
	"github.com/specialistvlad/llmgrid/internal/store/storetest"
	"github.com/stretchr/testify/require"
)

// DSNEnv points the suite at a disposable Postgres database.
const DSNEnv = "LLMGRID_TEST_POSTGRES_DSN"

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}

	storetest.Run(t, storetest.Backend{
		Open: func(t *testing.T) store.Store {
			ctx := ctxlog.Discard(context.Background())
			s, err := Open(ctx, dsn)
			require.NoError(t, err)
			for _, table := range []string{"datasets", "dataset_records", "block_cache"} {
				_, err := s.SQL().ExecContext(ctx, "TRUNCATE "+table)
				require.NoError(t, err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
		Tamper: func(t *testing.T, s store.Store, id, hash string, idx int, record string) {
			_, err := s.(*sqlstore.Store).SQL().Exec(
				`UPDATE dataset_records SET record = $1 WHERE dataset_id = $2 AND hash = $3 AND idx = $4`,
				record, id, hash, idx)
			require.NoError(t, err)
		},
	})
}
