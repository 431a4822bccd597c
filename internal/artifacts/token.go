package artifacts

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Download tokens make /files/{file_id} links shareable without a session:
// the token binds the file ID and owning team, expires, and is verified
// before any disk read.

var ErrBadToken = errors.New("invalid download token")

type downloadClaims struct {
	FileID string `json:"fid"`
	TeamID int64  `json:"tid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies download tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (t *TokenIssuer) Issue(fileID string, teamID int64) (string, error) {
	now := time.Now()
	claims := downloadClaims{
		FileID: fileID,
		TeamID: teamID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks the signature and expiry and that the token was minted for
// this exact file. It returns the team the token is bound to.
func (t *TokenIssuer) Verify(tokenStr, fileID string) (int64, error) {
	var claims downloadClaims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !tok.Valid {
		return 0, ErrBadToken
	}
	if claims.FileID != fileID {
		return 0, ErrBadToken
	}
	return claims.TeamID, nil
}
