// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import "context"

// UploadHandle references a persisted take. The deletion token is a
// single-use credential: it is consumed by exactly one delete and must not
// be reused afterwards.
type UploadHandle struct {
	ResourceURL   string `json:"resource_url"`
	DeletionToken string `json:"deletion_token"`
}

// UploadResult lists the takes the sink accepted, in request order.
type UploadResult struct {
	SuccessfulUploads []UploadHandle `json:"successful_uploads"`
}

// UploadContext identifies the originating session for the sink.
type UploadContext struct {
	SessionID string
	Source    string
}

// UploadSink persists packaged takes and honors deletion tokens. All
// transport and persistence concerns live behind this contract.
type UploadSink interface {
	Upload(ctx context.Context, artifacts []*CapturedArtifact, uctx UploadContext) (*UploadResult, error)
	Delete(ctx context.Context, deletionToken string) error
}

// DeviceAccess is the permission gate and device catalog. RequestAccess
// resolves asynchronously; denial is ErrPermissionDenied.
type DeviceAccess interface {
	RequestAccess(ctx context.Context, constraints MediaConstraints) error

	// EnumerateDevices lists selectable inputs, ordered. Index 0 is the
	// default active device. Called once per mount, after the grant.
	EnumerateDevices(ctx context.Context) ([]Device, error)
}
