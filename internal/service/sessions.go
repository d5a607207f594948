package service

import (
	"time"

	"github.com/ohwonsuk/lockmoment-sub001/internal/auth"
)

// SessionTokens is an access/refresh pair minted for a principal.
type SessionTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SessionMinter issues session tokens. It holds the session signing secret,
// which is a separate trust domain from the QR signing secret.
type SessionMinter struct {
	secret     string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewSessionMinter(secret, issuer string, accessTTL, refreshTTL time.Duration) *SessionMinter {
	return &SessionMinter{secret: secret, issuer: issuer, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (m *SessionMinter) Mint(userID, role string) (SessionTokens, error) {
	access, err := auth.NewAccessToken(m.secret, m.issuer, userID, role, m.accessTTL)
	if err != nil {
		return SessionTokens{}, err
	}
	refresh, err := auth.NewRefreshToken(m.secret, m.issuer, userID, m.refreshTTL)
	if err != nil {
		return SessionTokens{}, err
	}
	return SessionTokens{AccessToken: access, RefreshToken: refresh}, nil
}

// MintAccess issues only a new access token (refresh flow).
func (m *SessionMinter) MintAccess(userID, role string) (string, error) {
	return auth.NewAccessToken(m.secret, m.issuer, userID, role, m.accessTTL)
}
