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
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	internal_type "github.com/rapidaai/capture/api/capture-api/internal/type"
	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/configs"
	"github.com/rapidaai/capture/pkg/utils"
)

const (
	SinkKindHTTP  = "http"
	SinkKindMinio = "minio"

	// sourceName identifies this service on outbound media requests.
	sourceName = "capture-api"

	uploadTimeout = 60 * time.Second
)

// NewSink builds the configured upload sink.
func NewSink(cfg configs.SinkConfig, storage configs.StorageConfig, logger commons.Logger) (internal_type.UploadSink, error) {
	switch strings.ToLower(cfg.Kind) {
	case SinkKindHTTP, "":
		return NewHTTPSink(cfg, logger), nil
	case SinkKindMinio:
		return NewObjectSink(storage, logger)
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}

// httpSink ships packaged takes to the media service over multipart HTTP.
// Deletion tokens travel back as bearer credentials.
type httpSink struct {
	logger commons.Logger
	cfg    configs.SinkConfig
	client *resty.Client
}

func NewHTTPSink(cfg configs.SinkConfig, logger commons.Logger) internal_type.UploadSink {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(uploadTimeout).
		SetHeader(utils.HEADER_SOURCE_KEY, sourceName)
	if cfg.ApiKey != "" {
		client.SetHeader(utils.HEADER_API_KEY, cfg.ApiKey)
	}
	return &httpSink{logger: logger, cfg: cfg, client: client}
}

func (s *httpSink) Upload(ctx context.Context, artifacts []*internal_type.CapturedArtifact, uctx internal_type.UploadContext) (*internal_type.UploadResult, error) {
	result := &internal_type.UploadResult{}
	for _, artifact := range artifacts {
		data := artifact.Bytes()
		if data == nil {
			s.rollback(ctx, result.SuccessfulUploads)
			return nil, fmt.Errorf("artifact %s already revoked: %w", artifact.ID, internal_type.ErrUploadFailed)
		}

		var uploaded internal_type.UploadResult
		resp, err := s.client.R().
			SetContext(ctx).
			SetFileReader("file", artifact.Filename, bytes.NewReader(data)).
			SetFormData(map[string]string{
				"session_id":  uctx.SessionID,
				"source":      uctx.Source,
				"media_type":  artifact.MediaType,
				"duration_ms": strconv.FormatInt(artifact.Duration.Milliseconds(), 10),
			}).
			SetResult(&uploaded).
			Post("/v1/media")
		if err != nil {
			s.rollback(ctx, result.SuccessfulUploads)
			return nil, fmt.Errorf("media upload failed: %v: %w", err, internal_type.ErrUploadFailed)
		}
		if resp.IsError() {
			s.rollback(ctx, result.SuccessfulUploads)
			return nil, fmt.Errorf("media upload rejected with status %d: %w", resp.StatusCode(), internal_type.ErrUploadFailed)
		}
		if len(uploaded.SuccessfulUploads) == 0 {
			s.rollback(ctx, result.SuccessfulUploads)
			return nil, fmt.Errorf("media upload returned no handle: %w", internal_type.ErrUploadFailed)
		}

		result.SuccessfulUploads = append(result.SuccessfulUploads, uploaded.SuccessfulUploads...)
		s.logger.Infof("uploaded artifact %s (%d bytes) for session %s", artifact.ID, len(data), uctx.SessionID)
	}
	return result, nil
}

func (s *httpSink) Delete(ctx context.Context, deletionToken string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader(utils.HEADER_AUTH_KEY, "Bearer "+deletionToken).
		Delete("/v1/media")
	if err != nil {
		return fmt.Errorf("media delete failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("media delete rejected with status %d", resp.StatusCode())
	}
	return nil
}

// rollback removes handles that landed before a mid-batch failure so a
// partial upload never leaks remote objects.
func (s *httpSink) rollback(ctx context.Context, handles []internal_type.UploadHandle) {
	for _, handle := range handles {
		if err := s.Delete(ctx, handle.DeletionToken); err != nil {
			s.logger.Warnf("rollback of %s failed: %v", handle.ResourceURL, err)
		}
	}
}
