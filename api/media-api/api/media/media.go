// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package media_api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	internal_store "github.com/rapidaai/capture/api/media-api/internal/store"
	internal_token "github.com/rapidaai/capture/api/media-api/internal/token"
	config "github.com/rapidaai/capture/config"
	commons "github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/utils"
)

type mediaApi struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	registry internal_store.Registry
	objects  internal_store.ObjectStore
	tokens   *internal_token.Issuer
}

func New(
	cfg *config.AppConfig,
	logger commons.Logger,
	registry internal_store.Registry,
	objects internal_store.ObjectStore,
	tokens *internal_token.Issuer,
) *mediaApi {
	return &mediaApi{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		objects:  objects,
		tokens:   tokens,
	}
}

// uploadHandle mirrors the handle shape the capture side consumes.
type uploadHandle struct {
	ResourceURL   string `json:"resource_url"`
	DeletionToken string `json:"deletion_token"`
}

type uploadResponse struct {
	SuccessfulUploads []uploadHandle `json:"successful_uploads"`
}

// Authorize guards the media surface with the configured api key. An
// empty key leaves the surface open.
func (api *mediaApi) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := api.cfg.MediaConfig.ApiKey
		if key != "" && c.GetHeader(utils.HEADER_API_KEY) != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid api key",
			})
			return
		}
		c.Next()
	}
}

// Upload accepts one packaged take as multipart form data and answers with
// the upload handle: the public resource URL plus a single-use deletion
// token.
//
// @Summary Store a packaged capture take
// @Accept multipart/form-data
// @Router /v1/media [post]
func (api *mediaApi) Upload(c *gin.Context) {
	if max := api.cfg.MediaConfig.MaxBodyMB; max > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max<<20)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing file part"})
		return
	}
	defer file.Close()

	sessionID := c.PostForm("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing session_id"})
		return
	}
	if strings.ContainsAny(sessionID, "/\\") {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid session_id"})
		return
	}

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == ".." {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid filename"})
		return
	}

	source := c.PostForm("source")
	if source == "" {
		source = c.GetHeader(utils.HEADER_SOURCE_KEY)
	}
	mediaType := c.PostForm("media_type")
	if mediaType == "" {
		mediaType = header.Header.Get("Content-Type")
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	durationMs, _ := strconv.ParseInt(c.PostForm("duration_ms"), 10, 64)

	ctx := c.Request.Context()
	objectKey := fmt.Sprintf("sessions/%s/%s", sessionID, filename)
	resourceURL, err := api.objects.Put(ctx, objectKey, file, header.Size, mediaType)
	if err != nil {
		api.logger.Errorf("object store rejected %s: %v", objectKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to store media"})
		return
	}

	record := &internal_store.UploadRecord{
		SessionID:   sessionID,
		Source:      source,
		ObjectKey:   objectKey,
		ResourceURL: resourceURL,
		MediaType:   mediaType,
		SizeBytes:   header.Size,
		DurationMs:  durationMs,
	}
	recordID, err := api.registry.Save(ctx, record)
	if err != nil {
		api.logger.Errorf("registry rejected %s: %v", objectKey, err)
		if rerr := api.objects.Remove(ctx, objectKey); rerr != nil {
			api.logger.Warnf("orphaned object %s: %v", objectKey, rerr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to record media"})
		return
	}

	deletionToken, err := api.tokens.Issue(recordID, objectKey)
	if err != nil {
		api.logger.Errorf("failed to issue deletion token for %s: %v", recordID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to issue deletion token"})
		return
	}

	c.JSON(http.StatusOK, uploadResponse{
		SuccessfulUploads: []uploadHandle{{
			ResourceURL:   resourceURL,
			DeletionToken: deletionToken,
		}},
	})
}

// Delete consumes a deletion token. The registry transition is the
// single-use gate; the backing object is removed after it succeeds.
//
// @Summary Delete a stored take with its deletion token
// @Router /v1/media [delete]
func (api *mediaApi) Delete(c *gin.Context) {
	authorization := c.GetHeader(utils.HEADER_AUTH_KEY)
	tokenString, found := strings.CutPrefix(authorization, "Bearer ")
	if !found || tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing bearer token"})
		return
	}

	claims, err := api.tokens.Verify(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid deletion token"})
		return
	}

	ctx := c.Request.Context()
	record, err := api.registry.MarkDeleted(ctx, claims.RecordID)
	if err != nil {
		if errors.Is(err, internal_store.ErrRecordNotFound) || errors.Is(err, internal_store.ErrRecordConsumed) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no deletable record for token"})
			return
		}
		api.logger.Errorf("failed to delete record %s: %v", claims.RecordID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to delete media"})
		return
	}

	// The registry row is authoritative; a failed object removal leaves
	// an orphan to clean up, not a spendable token.
	if err := api.objects.Remove(ctx, record.ObjectKey); err != nil {
		api.logger.Warnf("orphaned object %s after delete: %v", record.ObjectKey, err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"record_id": record.RecordID}})
}

// BySession lists the stored takes of one capture session.
//
// @Router /v1/media/session/{session} [get]
func (api *mediaApi) BySession(c *gin.Context) {
	sessionID := c.Param("session")
	records, err := api.registry.BySession(c.Request.Context(), sessionID)
	if err != nil {
		api.logger.Errorf("failed to list session %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list media"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"records": records}})
}

// Healthz reports liveness.
//
// @Router /healthz [get]
func (api *mediaApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"name":    api.cfg.Name,
		"version": api.cfg.Version,
	})
}

// Readiness reports whether the backing stores answer.
//
// @Router /readiness [get]
func (api *mediaApi) Readiness(c *gin.Context) {
	if _, err := api.registry.BySession(c.Request.Context(), "readiness-probe"); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
