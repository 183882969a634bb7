package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	domainerrors "github.com/mstimer/mstimer-server/internal/errors"
	"github.com/mstimer/mstimer-server/internal/id"
)

const (
	tokenIssuer   = "mstimer-server"
	tokenAudience = "mstimer-page"
)

// TokenService handles PASETO page token generation and verification.
type TokenService struct {
	symmetricKey paseto.V4SymmetricKey
	duration     time.Duration
	now          func() time.Time
}

// NewTokenService creates a token service from a 32-byte key.
func NewTokenService(key []byte, duration time.Duration) (*TokenService, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("PASETO v4 key must be exactly %d bytes, got %d", keyLength, len(key))
	}

	symmetricKey, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}

	return &TokenService{
		symmetricKey: symmetricKey,
		duration:     duration,
		now:          time.Now,
	}, nil
}

// IssuePageToken creates a PASETO v4.local token bound to one attached page.
func (s *TokenService) IssuePageToken(pageID, origin string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.duration)

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(pageID)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(expires)

	tokenID, err := id.Generate("tok")
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(tokenID)

	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("page_id", pageID)
	if origin != "" {
		//nolint:errcheck // Token.Set only errors on invalid types, which we control
		_ = token.Set("origin", origin)
	}

	return token.V4Encrypt(s.symmetricKey, nil), expires, nil
}

// VerifyPageToken decrypts a page token and checks audience, issuer and validity window.
// Any failure is reported as an unauthorized domain error.
func (s *TokenService) VerifyPageToken(tokenString string) (*PageClaims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnauthorized, "invalid page token")
	}

	var claims PageClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnauthorized, "invalid page token claims")
	}

	return &claims, nil
}

// VerifyPageTokenFor verifies the token and that it was issued for pageID.
func (s *TokenService) VerifyPageTokenFor(tokenString, pageID string) (*PageClaims, error) {
	claims, err := s.VerifyPageToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.PageID != pageID {
		return nil, domainerrors.Unauthorized("page token was issued for another page")
	}
	return claims, nil
}

// Duration returns the configured page token lifetime.
func (s *TokenService) Duration() time.Duration {
	return s.duration
}
