// Package loginsession issues the signed cookie that remembers a logged-in user between the
// login form and the authorization endpoint. Sessions are stateless HS256 JWTs.
package loginsession

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const CookieName = "login_session"

const (
	issuer        = "mcp-oauth-login"
	consentIssuer = "mcp-oauth-consent"
	consentTTL    = 10 * time.Minute
)

type Session struct {
	UserID    string
	ExpiresAt time.Time
}

type Signer struct {
	key     []byte
	ttl     time.Duration
	nowTime func() time.Time
}

// NewSigner signs with secret, or with a random per-process key when secret is empty.
func NewSigner(secret string, ttl time.Duration, nowFunc func() time.Time) (*Signer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating session key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Signer{key: key, ttl: ttl, nowTime: nowFunc}, nil
}

func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue signs a session for userID.
func (s *Signer) Issue(userID string) (string, Session, error) {
	if userID == "" {
		return "", Session{}, fmt.Errorf("user id is required")
	}
	now := s.nowTime()
	session := Session{UserID: userID, ExpiresAt: now.Add(s.ttl)}
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", Session{}, fmt.Errorf("signing session: %w", err)
	}
	return signed, session, nil
}

// Verify checks the signature, issuer and expiry of a session cookie value.
func (s *Signer) Verify(raw string) (Session, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowTime),
	)
	if err != nil {
		return Session{}, fmt.Errorf("verifying session: %w", err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("verifying session: missing subject")
	}
	return Session{UserID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// IssueConsent signs the anti-forgery token carried by a consent form. It binds the form to
// the logged in user and the client asking for access.
func (s *Signer) IssueConsent(userID, clientID string) (string, error) {
	if userID == "" || clientID == "" {
		return "", fmt.Errorf("user id and client id are required")
	}
	now := s.nowTime()
	claims := jwt.RegisteredClaims{
		Issuer:    consentIssuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{clientID},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(consentTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing consent token: %w", err)
	}
	return signed, nil
}

// VerifyConsent checks a consent token was issued to userID for clientID and has not expired.
func (s *Signer) VerifyConsent(raw, userID, clientID string) error {
	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(consentIssuer),
		jwt.WithSubject(userID),
		jwt.WithAudience(clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowTime),
	)
	if err != nil {
		return fmt.Errorf("verifying consent token: %w", err)
	}
	return nil
}
