package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crowdchain/core"
)

// DefaultListLimit caps history queries without an explicit limit.
const DefaultListLimit = 100

// Source is the committed event feed the indexer follows.
type Source interface {
	SubscribeEvents(ctx context.Context, cursor string) (<-chan core.EventRecord, func(), []core.EventRecord)
}

// Store persists committed events for history queries.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

// Open connects to the configured driver ("sqlite" or "postgres") and
// migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return NewStore(db)
}

// NewStore wraps an existing gorm handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Store{db: db, log: slog.Default().With("component", "indexer")}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores a single committed event.
func (s *Store) Record(ctx context.Context, rec core.EventRecord) error {
	row, err := rowFromRecord(rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// ListByCampaign returns the campaign's events oldest first.
func (s *Store) ListByCampaign(ctx context.Context, campaignID uint64, limit int) ([]EventRow, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	var rows []EventRow
	err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("occurred_at ASC").
		Order("sequence ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListByActor returns events in which addr acted (donor, refund claimant or
// owner), newest first.
func (s *Store) ListByActor(ctx context.Context, actor string, limit int) ([]EventRow, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	var rows []EventRow
	err := s.db.WithContext(ctx).
		Where("LOWER(actor) = ?", strings.ToLower(strings.TrimSpace(actor))).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Run follows src until ctx is cancelled, recording every event.
func (s *Store) Run(ctx context.Context, src Source) error {
	updates, cancel, backlog := src.SubscribeEvents(ctx, "")
	defer cancel()
	for _, rec := range backlog {
		s.record(ctx, rec)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return nil
			}
			s.record(ctx, rec)
		}
	}
}

func (s *Store) record(ctx context.Context, rec core.EventRecord) {
	if err := s.Record(ctx, rec); err != nil {
		s.log.Warn("index event failed", "cursor", rec.Cursor, "error", err)
	}
}

func rowFromRecord(rec core.EventRecord) (*EventRow, error) {
	if rec.Event == nil {
		return nil, errors.New("indexer: empty event")
	}
	attrs, err := json.Marshal(rec.Event.Attributes)
	if err != nil {
		return nil, err
	}
	row := &EventRow{
		ID:         uuid.New(),
		Sequence:   rec.Sequence,
		Type:       rec.Event.Type,
		Attributes: string(attrs),
		OccurredAt: time.Unix(rec.Timestamp, 0).UTC(),
	}
	if raw, ok := rec.Event.Attributes["campaign"]; ok {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("indexer: campaign attribute %q: %w", raw, err)
		}
		row.CampaignID = id
	}
	for _, key := range []string{"donor", "owner"} {
		if v := rec.Event.Attributes[key]; v != "" {
			row.Actor = v
			break
		}
	}
	for _, key := range []string{"amount", "payout", "goal"} {
		if v := rec.Event.Attributes[key]; v != "" {
			row.Amount = v
			break
		}
	}
	return row, nil
}

// Attrs decodes the stored attribute map.
func (r EventRow) Attrs() map[string]string {
	out := map[string]string{}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}
