package model

import (
	"time"
)

// Session is a refresh-token chain. Each rotation bumps Generation; only the
// refresh token minted for the current generation can be redeemed.
type Session struct {
	ChainID    string    `json:"chainId"`
	IdentityID string    `json:"identityId"`
	Role       Role      `json:"role"`
	Generation int64     `json:"generation"`
	Revoked    bool      `json:"revoked"`
	IssuedAt   time.Time `json:"issuedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// TokenPair is the result of a successful authentication or rotation
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int    `json:"expiresIn"`
}
