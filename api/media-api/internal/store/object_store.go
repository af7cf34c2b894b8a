// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/configs"
)

// ObjectStore holds the take bytes. The registry row references objects by
// key; removal happens only after the registry transition succeeded.
type ObjectStore interface {
	// Put streams one object and returns its public resource URL.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)

	// Remove deletes the object. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

type minioStore struct {
	client *minio.Client
	cfg    configs.StorageConfig
	logger commons.Logger
}

// NewObjectStore builds the MinIO-backed store and ensures the bucket
// exists.
func NewObjectStore(ctx context.Context, cfg configs.StorageConfig, logger commons.Logger) (ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	store := &minioStore{client: client, cfg: cfg, logger: logger}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *minioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.cfg.Bucket, err)
		}
		s.logger.Infof("created bucket %s", s.cfg.Bucket)
	}
	return nil
}

func (s *minioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store object %s: %w", key, err)
	}

	s.logger.Debugf("stored object %s (%d bytes)", key, info.Size)
	return s.resourceURL(key), nil
}

func (s *minioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	s.logger.Debugf("removed object %s", key)
	return nil
}

// resourceURL builds the public URL of an object. PublicHost wins when the
// store sits behind a CDN or reverse proxy.
func (s *minioStore) resourceURL(key string) string {
	if s.cfg.PublicHost != "" {
		return fmt.Sprintf("%s/%s/%s", s.cfg.PublicHost, s.cfg.Bucket, key)
	}
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.Bucket, key)
}
