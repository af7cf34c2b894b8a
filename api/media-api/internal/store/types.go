// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Upload record status constants.
const (
	StatusStored  = "stored"  // Object landed, deletion token outstanding
	StatusDeleted = "deleted" // Deletion token consumed, object removed
)

var (
	// ErrRecordNotFound means no upload record exists for the id.
	ErrRecordNotFound = errors.New("upload record not found")

	// ErrRecordConsumed means the record's deletion token was already
	// spent. Each record is deletable exactly once.
	ErrRecordConsumed = errors.New("upload record already deleted")
)

// UploadRecord is one persisted take. It pairs the object-store key with
// the public resource URL and carries the status that makes deletion
// tokens single-use: only a "stored" row can transition to "deleted", and
// the transition is atomic.
//
// Rows are never physically removed when a token is consumed; they flip to
// "deleted" so late retries and audits can still resolve the record id.
type UploadRecord struct {
	Id          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	RecordID    string    `json:"recordId" gorm:"column:record_id;type:varchar(36);not null;uniqueIndex"`
	SessionID   string    `json:"sessionId" gorm:"column:session_id;type:varchar(64);not null;index"`
	Source      string    `json:"source" gorm:"column:source;type:varchar(64);not null;default:''"`
	ObjectKey   string    `json:"objectKey" gorm:"column:object_key;type:varchar(512);not null"`
	ResourceURL string    `json:"resourceUrl" gorm:"column:resource_url;type:text;not null"`
	MediaType   string    `json:"mediaType" gorm:"column:media_type;type:varchar(100);not null;default:''"`
	SizeBytes   int64     `json:"sizeBytes" gorm:"column:size_bytes;type:bigint;not null;default:0"`
	DurationMs  int64     `json:"durationMs" gorm:"column:duration_ms;type:bigint;not null;default:0"`
	Status      string    `json:"status" gorm:"column:status;type:varchar(20);not null;default:stored"`
	CreatedDate time.Time `json:"createdDate" gorm:"column:created_date;type:timestamp;not null;<-:create"`
	UpdatedDate time.Time `json:"updatedDate" gorm:"column:updated_date;type:timestamp;default:null"`
}

func (UploadRecord) TableName() string {
	return "upload_records"
}

func (r *UploadRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if r.RecordID == "" {
		r.RecordID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = StatusStored
	}
	if r.CreatedDate.IsZero() {
		r.CreatedDate = time.Now()
	}
	return nil
}

// IsStored returns true while the deletion token is still spendable.
func (r *UploadRecord) IsStored() bool {
	return r.Status == StatusStored
}
