package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/i474232898/weathermap/internal/layers"
)

// PayloadSnapshot is one archived layer payload.
type PayloadSnapshot struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Layer     string    `gorm:"index:idx_layer_time,priority:1;size:64" json:"layer"`
	Time      time.Time `gorm:"index:idx_layer_time,priority:2" json:"time"`
	FetchedAt time.Time `json:"fetchedAt"`
	Items     int       `json:"items"`
	Data      []byte    `json:"-"`
}

// Payload decodes the stored payload.
func (p PayloadSnapshot) Payload() (layers.Payload, error) {
	var out layers.Payload
	if err := json.Unmarshal(p.Data, &out); err != nil {
		return layers.Payload{}, fmt.Errorf("decode archived payload %d: %w", p.ID, err)
	}
	return out, nil
}

// Archive persists layer payloads to SQLite.
type Archive struct {
	db *gorm.DB
}

// OpenArchive opens (creating if needed) the SQLite database at path. Use
// ":memory:" for a throwaway archive.
func OpenArchive(path string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	if err := db.AutoMigrate(&PayloadSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}

	return &Archive{db: db}, nil
}

// Save stores a snapshot of p.
func (a *Archive) Save(ctx context.Context, p layers.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	snap := &PayloadSnapshot{
		Layer:     p.Type.Code(),
		Time:      p.Time.UTC(),
		FetchedAt: p.FetchedAt.UTC(),
		Items:     len(p.Points) + len(p.Polygons),
		Data:      data,
	}
	return a.db.WithContext(ctx).Create(snap).Error
}

// Latest returns the most recent snapshot for t.
func (a *Archive) Latest(ctx context.Context, t layers.Type) (PayloadSnapshot, error) {
	var snap PayloadSnapshot
	err := a.db.WithContext(ctx).
		Where("layer = ?", t.Code()).
		Order("time desc").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PayloadSnapshot{}, ErrNotFound
	}
	if err != nil {
		return PayloadSnapshot{}, err
	}
	return snap, nil
}

// Range returns the snapshots for t between from and to (inclusive), oldest
// first.
func (a *Archive) Range(ctx context.Context, t layers.Type, from, to time.Time) ([]PayloadSnapshot, error) {
	var snaps []PayloadSnapshot
	result := a.db.WithContext(ctx).
		Where("layer = ? AND time BETWEEN ? AND ?", t.Code(), from.UTC(), to.UTC()).
		Order("time asc").
		Find(&snaps)
	if result.Error != nil {
		return nil, result.Error
	}
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return snaps, nil
}

// Prune deletes snapshots older than cutoff and reports how many went.
func (a *Archive) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result := a.db.WithContext(ctx).Where("time < ?", cutoff.UTC()).Delete(&PayloadSnapshot{})
	return result.RowsAffected, result.Error
}

// Close releases the underlying connection.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
