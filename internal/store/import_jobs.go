// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/northbound/archivist/internal/archiveerr"
)

type ImportJobStatus string

const (
	ImportPending    ImportJobStatus = "pending"
	ImportProcessing ImportJobStatus = "processing"
	ImportCompleted  ImportJobStatus = "completed"
	ImportFailed     ImportJobStatus = "failed"
	ImportCancelled  ImportJobStatus = "cancelled"
)

type ImportJob struct {
	ID             string
	Status         ImportJobStatus
	SourceType     string
	SourcePath     string
	SourceName     string
	Progress       float64
	CurrentPhase   string
	CurrentItem    string
	UnitsTotal     int
	UnitsProcessed int
	MediaTotal     int
	MediaProcessed int
	ErrorsCount    int
	ErrorLog       []string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

func (s *Store) CreateImportJob(ctx context.Context, j ImportJob) error {
	errorLog, _ := json.Marshal(j.ErrorLog)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_jobs (id, status, source_type, source_path, source_name, progress, current_phase, current_item, units_total, units_processed, media_total, media_processed, errors_count, error_log, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Status, j.SourceType, j.SourcePath, j.SourceName, j.Progress, j.CurrentPhase, j.CurrentItem, j.UnitsTotal, j.UnitsProcessed, j.MediaTotal, j.MediaProcessed, j.ErrorsCount, errorLog, j.CreatedAt, j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		return wrapWriteErr("store.CreateImportJob", err)
	}
	return nil
}

func (s *Store) UpdateImportJob(ctx context.Context, j ImportJob) error {
	errorLog, _ := json.Marshal(j.ErrorLog)
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs SET status=?, progress=?, current_phase=?, current_item=?, units_total=?, units_processed=?, media_total=?, media_processed=?, errors_count=?, error_log=?, started_at=?, completed_at=?
		WHERE id = ?`,
		j.Status, j.Progress, j.CurrentPhase, j.CurrentItem, j.UnitsTotal, j.UnitsProcessed, j.MediaTotal, j.MediaProcessed, j.ErrorsCount, errorLog, j.StartedAt, j.CompletedAt, j.ID,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.UpdateImportJob", err)
	}
	return checkRowAffected(res, "store.UpdateImportJob", j.ID)
}

func (s *Store) GetImportJob(ctx context.Context, id string) (ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, source_type, source_path, source_name, progress, current_phase, current_item, units_total, units_processed, media_total, media_processed, errors_count, error_log, created_at, started_at, completed_at
		FROM import_jobs WHERE id = ?`, id)

	var j ImportJob
	var status, sourceType, sourcePath, sourceName, currentPhase, currentItem sql.NullString
	var errorLog []byte
	var createdAt sql.NullTime
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&j.ID, &status, &sourceType, &sourcePath, &sourceName, &j.Progress, &currentPhase, &currentItem, &j.UnitsTotal, &j.UnitsProcessed, &j.MediaTotal, &j.MediaProcessed, &j.ErrorsCount, &errorLog, &createdAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return ImportJob{}, archiveerr.New(archiveerr.KindNotFound, "store.GetImportJob", fmt.Errorf("import job %s", id))
	}
	if err != nil {
		return ImportJob{}, archiveerr.New(archiveerr.KindBackend, "store.GetImportJob", err)
	}

	j.Status = ImportJobStatus(status.String)
	j.SourceType = sourceType.String
	j.SourcePath = sourcePath.String
	j.SourceName = sourceName.String
	j.CurrentPhase = currentPhase.String
	j.CurrentItem = currentItem.String
	j.CreatedAt = createdAt.Time
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	json.Unmarshal(errorLog, &j.ErrorLog)
	return j, nil
}

// ActiveImportJob returns the single "active" job, if any: the model only
// ever runs one import at a time per pipeline instance.
func (s *Store) ActiveImportJob(ctx context.Context) (ImportJob, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM import_jobs WHERE status IN ('pending', 'processing') ORDER BY created_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return ImportJob{}, false, nil
	}
	if err != nil {
		return ImportJob{}, false, archiveerr.New(archiveerr.KindBackend, "store.ActiveImportJob", err)
	}
	j, err := s.GetImportJob(ctx, id)
	return j, err == nil, err
}

func (s *Store) DeleteImportJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM import_jobs WHERE id = ?`, id)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.DeleteImportJob", err)
	}
	return checkRowAffected(res, "store.DeleteImportJob", id)
}
