// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/connectors"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the path of the SQL migrations inside Migrations.
const MigrationsDir = "migrations"

// Registry provides operations to save and retrieve upload records from
// Postgres.
//
// Every accepted take gets exactly one row. The row is the source of truth
// for deletion-token consumption: MarkDeleted performs the atomic
// stored→deleted transition, so two racing deletes of the same token can
// never both succeed, regardless of how many media-api replicas run.
type Registry interface {
	// Save stores an upload record with a generated recordId (UUID).
	// Returns the generated recordId.
	Save(ctx context.Context, record *UploadRecord) (string, error)

	// Get retrieves an upload record by recordId regardless of its status.
	Get(ctx context.Context, recordID string) (*UploadRecord, error)

	// MarkDeleted atomically transitions a record from "stored" to
	// "deleted". Exactly one caller can win; later callers get
	// ErrRecordConsumed, an unknown id gets ErrRecordNotFound.
	// Returns the record as it was before the transition so the caller
	// can remove the backing object.
	MarkDeleted(ctx context.Context, recordID string) (*UploadRecord, error)

	// BySession lists the records of one capture session, newest first.
	BySession(ctx context.Context, sessionID string) ([]UploadRecord, error)
}

type postgresRegistry struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

// NewRegistry creates an upload record registry backed by Postgres.
func NewRegistry(postgres connectors.PostgresConnector, logger commons.Logger) Registry {
	return &postgresRegistry{
		postgres: postgres,
		logger:   logger,
	}
}

func (s *postgresRegistry) Save(ctx context.Context, record *UploadRecord) (string, error) {
	db := s.postgres.DB(ctx)
	if err := db.Create(record).Error; err != nil {
		return "", fmt.Errorf("failed to save upload record for session %s: %w", record.SessionID, err)
	}

	s.logger.Infof("saved upload record: recordId=%s, session=%s, key=%s, bytes=%d",
		record.RecordID, record.SessionID, record.ObjectKey, record.SizeBytes)

	return record.RecordID, nil
}

func (s *postgresRegistry) Get(ctx context.Context, recordID string) (*UploadRecord, error) {
	db := s.postgres.DB(ctx)
	var record UploadRecord
	if err := db.Where("record_id = ?", recordID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", recordID, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to fetch upload record %s: %w", recordID, err)
	}
	return &record, nil
}

// MarkDeleted uses an atomic UPDATE ... WHERE status = 'stored' so only one
// concurrent caller can win the transition. The row stays in the database
// with status "deleted" for auditability.
func (s *postgresRegistry) MarkDeleted(ctx context.Context, recordID string) (*UploadRecord, error) {
	db := s.postgres.DB(ctx)

	var record UploadRecord
	if err := db.Where("record_id = ?", recordID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", recordID, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to fetch upload record %s: %w", recordID, err)
	}

	result := db.Model(&UploadRecord{}).
		Where("record_id = ? AND status = ?", recordID, StatusStored).
		Updates(map[string]interface{}{
			"status":       StatusDeleted,
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to delete upload record %s: %w", recordID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%s: %w", recordID, ErrRecordConsumed)
	}

	s.logger.Infof("deleted upload record: recordId=%s, session=%s, key=%s",
		record.RecordID, record.SessionID, record.ObjectKey)

	return &record, nil
}

func (s *postgresRegistry) BySession(ctx context.Context, sessionID string) ([]UploadRecord, error) {
	db := s.postgres.DB(ctx)
	var records []UploadRecord
	if err := db.Where("session_id = ?", sessionID).Order("created_date DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list upload records for session %s: %w", sessionID, err)
	}
	return records, nil
}
