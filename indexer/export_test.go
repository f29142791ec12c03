package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func TestExportParquetRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, record(1, 100, "crowdfund.created", map[string]string{"campaign": "0", "owner": "0xA0", "goal": "10"})))
	require.NoError(t, store.Record(ctx, record(2, 110, "crowdfund.donated", map[string]string{"campaign": "0", "donor": "0xD1", "amount": "3"})))

	rows, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	path := filepath.Join(t.TempDir(), "events.parquet")
	require.NoError(t, ExportParquet(path, rows))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.Equal(t, int64(2), pr.GetNumRows())
	out := make([]parquetRow, 2)
	require.NoError(t, pr.Read(&out))
	require.Equal(t, "crowdfund.created", out[0].Type)
	require.Equal(t, int64(2), out[1].Sequence)
	require.Equal(t, "3", out[1].Amount)
	require.Equal(t, "1970-01-01T00:01:50Z", out[1].OccurredAt)
}

func TestExportParquetBadPath(t *testing.T) {
	err := ExportParquet(filepath.Join(t.TempDir(), "missing", "events.parquet"), nil)
	require.Error(t, err)
}
