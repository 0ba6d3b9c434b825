package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"IntelHarvest/internal/model"
	pkgerrors "IntelHarvest/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// SnapshotRow is the GORM model for the dashboard_snapshots table
type SnapshotRow struct {
	ID           int64     `gorm:"primaryKey;column:id"`
	Version      string    `gorm:"column:version;type:varchar(32);uniqueIndex;not null"`
	Status       string    `gorm:"column:status;type:varchar(16);not null"`
	MacroRAG     string    `gorm:"column:macro_rag;type:varchar(8)"`
	PeersRAG     string    `gorm:"column:peers_rag;type:varchar(8)"`
	SuppliersRAG string    `gorm:"column:suppliers_rag;type:varchar(8)"`
	Document     string    `gorm:"column:document;type:json;not null"`
	HarvestedAt  time.Time `gorm:"column:harvested_at;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (SnapshotRow) TableName() string {
	return "dashboard_snapshots"
}

// SnapshotHistoryRepo keeps one row per distinct snapshot version.
// Without a database it records nothing.
type SnapshotHistoryRepo struct {
	data   *Data
	db     *gorm.DB
	logger *log.Helper
}

// NewSnapshotHistoryRepo creates a new snapshot history repository.
// A nil db falls back to the handle held by data.
func NewSnapshotHistoryRepo(data *Data, db *gorm.DB, logger log.Logger) *SnapshotHistoryRepo {
	if db == nil && data != nil {
		db = data.GetDB()
	}
	return &SnapshotHistoryRepo{
		data:   data,
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// Record inserts s unless its version is already stored. A duplicate
// version means the content did not change and is not an error.
func (r *SnapshotHistoryRepo) Record(ctx context.Context, s *model.DashboardSnapshot) (bool, error) {
	if r.db == nil {
		return false, nil
	}

	doc, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	row := &SnapshotRow{
		Version:     s.Version,
		Status:      s.Status,
		Document:    string(doc),
		HarvestedAt: s.LastUpdated,
	}
	if s.Macro != nil {
		row.MacroRAG = s.Macro.RAGScore
	}
	if s.Peers != nil {
		row.PeersRAG = s.Peers.RAGScore
	}
	if s.Suppliers != nil {
		row.SuppliersRAG = s.Suppliers.RAGScore
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if pkgerrors.IsDuplicateKeyError(err) {
			r.logger.Debugf("snapshot version %s already recorded", s.Version)
			return false, nil
		}
		return false, pkgerrors.ClassifyDBError(err)
	}
	r.logger.Infof("snapshot version %s recorded (id=%d)", s.Version, row.ID)
	return true, nil
}

// Get returns the snapshot stored under version.
func (r *SnapshotHistoryRepo) Get(ctx context.Context, version string) (*model.DashboardSnapshot, error) {
	if r.db == nil {
		return nil, ErrSnapshotNotFound
	}

	var row SnapshotRow
	if err := r.db.WithContext(ctx).Where("version = ?", version).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, pkgerrors.ClassifyDBError(err)
	}

	s := &model.DashboardSnapshot{}
	if err := json.Unmarshal([]byte(row.Document), s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", version, err)
	}
	return s, nil
}
