// Package security mints and verifies the short-lived, run-scoped bearer
// tokens carried on the runtime callback endpoint (§3, §6.1: "authenticated
// by Authorization: Bearer <callback-token>... HMAC-verifiable").
package security

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/codemode/toolgateway/internal/model"
)

// TokenStore records minted tokens by jti so a revoked or replayed-after-run
// token can be rejected (the `runtime_callback_tokens` collection, §6.5).
type TokenStore interface {
	Put(jti, runID string, expiresAt time.Time) error
	IsValid(jti, runID string) (bool, error)
}

// CallbackTokens mints and verifies HMAC-signed run-scoped tokens.
type CallbackTokens struct {
	secret []byte
	ttl    time.Duration
	store  TokenStore
}

func NewCallbackTokens(secret []byte, ttl time.Duration, store TokenStore) *CallbackTokens {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CallbackTokens{secret: secret, ttl: ttl, store: store}
}

// Mint implements runtime.CallbackTokenMinter for the remote-worker
// RuntimeAdapter: a compact JWS whose subject is the runId, expiring after
// ttl, recorded in the store (when one is configured) for
// replay/revocation checks.
func (c *CallbackTokens) Mint(runID string) (string, error) {
	now := time.Now()
	jti := fmt.Sprintf("%s-%d", runID, now.UnixNano())

	tok, err := jwt.NewBuilder().
		Subject(runID).
		JwtID(jti).
		IssuedAt(now).
		Expiration(now.Add(c.ttl)).
		Build()
	if err != nil {
		return "", model.Errorf(model.ErrInternal, "build callback token: %v", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, c.secret))
	if err != nil {
		return "", model.Errorf(model.ErrInternal, "sign callback token: %v", err)
	}

	if c.store != nil {
		if err := c.store.Put(jti, runID, now.Add(c.ttl)); err != nil {
			return "", model.Errorf(model.ErrInternal, "persist callback token: %v", err)
		}
	}
	return string(signed), nil
}

// Verify checks a callback token's signature, expiry, and that its subject
// matches the claimed runID (§6.1: "the token is run-scoped").
func (c *CallbackTokens) Verify(ctx context.Context, token, runID string) error {
	parsed, err := jwt.Parse([]byte(token), jwt.WithKey(jwa.HS256, c.secret), jwt.WithValidate(true))
	if err != nil {
		return model.Errorf(model.ErrUnauthorized, "invalid callback token: %v", err)
	}
	if parsed.Subject() != runID {
		return model.Errorf(model.ErrUnauthorized, "callback token does not match run %q", runID)
	}
	if c.store != nil {
		valid, err := c.store.IsValid(parsed.JwtID(), runID)
		if err != nil {
			return model.Errorf(model.ErrInternal, "check callback token: %v", err)
		}
		if !valid {
			return model.Errorf(model.ErrUnauthorized, "callback token revoked or unknown")
		}
	}
	return nil
}
