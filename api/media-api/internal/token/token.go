// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rapidaai/capture/pkg/configs"
)

const issuerName = "media-api"

// ErrInvalidToken rejects a deletion token that fails signature or claim
// validation.
var ErrInvalidToken = errors.New("invalid deletion token")

// DeletionClaims binds a deletion token to one upload record and its
// backing object. The token authorizes exactly that delete and nothing
// else; single-use enforcement lives in the registry, not here.
type DeletionClaims struct {
	jwt.RegisteredClaims
	RecordID  string `json:"record_id"`
	ObjectKey string `json:"object_key"`
}

// Issuer signs and verifies deletion tokens with the service secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(cfg configs.TokenConfig) *Issuer {
	return &Issuer{
		secret: []byte(cfg.Secret),
		ttl:    time.Duration(cfg.TTLMinutes) * time.Minute,
	}
}

// Issue creates the deletion token handed back with an upload handle.
func (i *Issuer) Issue(recordID, objectKey string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, DeletionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   recordID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		RecordID:  recordID,
		ObjectKey: objectKey,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign deletion token: %w", err)
	}
	return signed, nil
}

// Verify parses a deletion token and returns its claims.
func (i *Issuer) Verify(tokenString string) (*DeletionClaims, error) {
	claims := &DeletionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuerName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.RecordID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
