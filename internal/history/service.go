// Package history keeps a log of finished upload sessions
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/panelctl/internal/common"
	"github.com/lgulliver/panelctl/internal/ota"
	"github.com/lgulliver/panelctl/pkg/utils"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ErrDowngrade is returned when an image is older than the last one that
// was successfully written to the same target
var ErrDowngrade = errors.New("image is older than the installed one")

// UploadRecord is one finished upload session
type UploadRecord struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	DeviceURL  string    `json:"device_url" gorm:"index"`
	Target     string    `json:"target" gorm:"index;not null"`
	FileName   string    `json:"file_name" gorm:"not null"`
	Version    string    `json:"version"`
	State      string    `json:"state" gorm:"index;not null"`
	BytesSent  int64     `json:"bytes_sent"`
	TotalBytes int64     `json:"total_bytes"`
	Message    string    `json:"message"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
}

// Service records and queries upload history for one device
type Service struct {
	db        *common.Database
	deviceURL string
}

// NewService migrates the schema and returns a service scoped to deviceURL
func NewService(db *common.Database, deviceURL string) (*Service, error) {
	if err := db.Migrate(&UploadRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}
	return &Service{db: db, deviceURL: deviceURL}, nil
}

// Record stores a terminal session. Non-terminal sessions are ignored and
// recording the same session twice keeps the first record.
func (s *Service) Record(ctx context.Context, session ota.Session) error {
	if !session.State.Terminal() {
		return nil
	}

	rec := UploadRecord{
		ID:         session.ID,
		DeviceURL:  s.deviceURL,
		Target:     session.Target.String(),
		FileName:   session.FileName,
		State:      session.State.String(),
		BytesSent:  session.BytesSent,
		TotalBytes: session.TotalBytes,
		Message:    session.ResultMessage,
		StartedAt:  session.StartedAt,
		FinishedAt: session.FinishedAt,
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if v := utils.ImageVersion(session.FileName); v != nil {
		rec.Version = v.String()
	}

	result := s.db.WithContext(ctx).Where(UploadRecord{ID: rec.ID}).FirstOrCreate(&rec)
	if result.Error != nil {
		return fmt.Errorf("failed to record upload: %w", result.Error)
	}
	return nil
}

// Observer returns an ota.Observer that records every terminal session
func (s *Service) Observer(ctx context.Context) ota.Observer {
	return func(ev ota.Event) {
		if ev.Kind != ota.EventStateChanged || !ev.Session.State.Terminal() {
			return
		}
		if err := s.Record(ctx, ev.Session); err != nil {
			log.Error().Err(err).Str("session", ev.Session.ID.String()).Msg("failed to record upload history")
		}
	}
}

// List returns the newest records first; limit <= 0 means no limit
func (s *Service) List(ctx context.Context, limit int) ([]UploadRecord, error) {
	var records []UploadRecord
	q := s.db.WithContext(ctx).Where("device_url = ?", s.deviceURL).Order("finished_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list upload history: %w", err)
	}
	return records, nil
}

// LatestSuccessful returns the last image successfully written to target
func (s *Service) LatestSuccessful(ctx context.Context, target ota.Target) (*UploadRecord, error) {
	var rec UploadRecord
	err := s.db.WithContext(ctx).
		Where("device_url = ? AND target = ? AND state = ?", s.deviceURL, target.String(), ota.StateSucceeded.String()).
		Order("finished_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query upload history: %w", err)
	}
	return &rec, nil
}

// CheckDowngrade refuses fileName when its embedded version is lower than
// the last successful upload to target. Unversioned names always pass.
func (s *Service) CheckDowngrade(ctx context.Context, target ota.Target, fileName string) error {
	last, err := s.LatestSuccessful(ctx, target)
	if err != nil || last == nil {
		return err
	}
	if utils.IsDowngrade(last.FileName, fileName) {
		return fmt.Errorf("%w: %s < %s", ErrDowngrade, fileName, last.FileName)
	}
	return nil
}
