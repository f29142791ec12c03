package indexer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	CampaignID int64  `parquet:"name=campaign_id, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Actor      string `parquet:"name=actor, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount     string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	OccurredAt string `parquet:"name=occurred_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ListAll returns every indexed event in commit order.
func (s *Store) ListAll(ctx context.Context) ([]EventRow, error) {
	var rows []EventRow
	err := s.db.WithContext(ctx).
		Order("occurred_at ASC").
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}

// ExportParquet writes rows to path as a snappy-compressed parquet file.
func ExportParquet(path string, rows []EventRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			Sequence:   int64(row.Sequence),
			CampaignID: int64(row.CampaignID),
			Type:       row.Type,
			Actor:      row.Actor,
			Amount:     row.Amount,
			Attributes: row.Attributes,
			OccurredAt: row.OccurredAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return nil
}
