package auth

import (
	"time"
)

// PageClaims represents the claims stored in a PASETO page token.
// These are encrypted in v4.local tokens, so they're not readable without the key.
type PageClaims struct {
	PageID string `json:"page_id"`
	Origin string `json:"origin,omitempty"`

	// Standard PASETO claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}
