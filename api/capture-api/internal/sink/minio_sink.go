// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_sink

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	internal_type "github.com/rapidaai/capture/api/capture-api/internal/type"
	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/configs"
)

// objectSink uploads packaged takes straight to the object store, skipping
// the media service. Deletion tokens are the object keys themselves, so a
// delete needs no extra lookup.
type objectSink struct {
	logger commons.Logger
	cfg    configs.StorageConfig
	client *minio.Client

	ensure     sync.Once
	ensureErr  error
	consumed   sync.Map
	bucketName string
}

func NewObjectSink(cfg configs.StorageConfig, logger commons.Logger) (internal_type.UploadSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &objectSink{
		logger:     logger,
		cfg:        cfg,
		client:     client,
		bucketName: cfg.Bucket,
	}, nil
}

func (s *objectSink) ensureBucket(ctx context.Context) error {
	s.ensure.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.ensureErr = fmt.Errorf("failed to check bucket: %w", err)
			return
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
				s.ensureErr = fmt.Errorf("failed to create bucket: %w", err)
			}
		}
	})
	return s.ensureErr
}

func (s *objectSink) Upload(ctx context.Context, artifacts []*internal_type.CapturedArtifact, uctx internal_type.UploadContext) (*internal_type.UploadResult, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("%v: %w", err, internal_type.ErrUploadFailed)
	}

	result := &internal_type.UploadResult{}
	for _, artifact := range artifacts {
		data := artifact.Bytes()
		if data == nil {
			s.rollbackKeys(ctx, result.SuccessfulUploads)
			return nil, fmt.Errorf("artifact %s already revoked: %w", artifact.ID, internal_type.ErrUploadFailed)
		}

		key := fmt.Sprintf("sessions/%s/%s", uctx.SessionID, artifact.Filename)
		_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: artifact.MediaType,
		})
		if err != nil {
			s.rollbackKeys(ctx, result.SuccessfulUploads)
			return nil, fmt.Errorf("object upload failed: %v: %w", err, internal_type.ErrUploadFailed)
		}

		result.SuccessfulUploads = append(result.SuccessfulUploads, internal_type.UploadHandle{
			ResourceURL:   s.objectURL(key),
			DeletionToken: key,
		})
		s.logger.Infof("stored artifact %s at %s (%d bytes)", artifact.ID, key, len(data))
	}
	return result, nil
}

// Delete removes the object behind the token. Each token is honored once;
// a second use fails.
func (s *objectSink) Delete(ctx context.Context, deletionToken string) error {
	if deletionToken == "" {
		return fmt.Errorf("empty deletion token")
	}
	if _, used := s.consumed.LoadOrStore(deletionToken, struct{}{}); used {
		return fmt.Errorf("deletion token already consumed")
	}
	if err := s.client.RemoveObject(ctx, s.bucketName, deletionToken, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("object delete failed: %w", err)
	}
	return nil
}

func (s *objectSink) rollbackKeys(ctx context.Context, handles []internal_type.UploadHandle) {
	for _, handle := range handles {
		if err := s.Delete(ctx, handle.DeletionToken); err != nil {
			s.logger.Warnf("rollback of %s failed: %v", handle.ResourceURL, err)
		}
	}
}

// objectURL builds the externally reachable URL of a stored object. A
// configured public host wins over the raw endpoint.
func (s *objectSink) objectURL(key string) string {
	if s.cfg.PublicHost != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.PublicHost, "/"), s.bucketName, key)
	}
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.bucketName, key)
}
