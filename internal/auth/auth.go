// Package auth resolves request principals from bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

var ErrUnauthorized = errors.New("unauthorized")

// Principal is the authenticated caller plus their active team context.
type Principal struct {
	UserID int64
	TeamID int64
	Role   string // owner | admin | member
}

// Resolver turns a bearer token into a Principal.
type Resolver interface {
	Resolve(ctx context.Context, bearer string) (*Principal, error)
}

type accessClaims struct {
	UserID int64 `json:"uid"`
	TeamID int64 `json:"tid"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 access tokens and loads the caller's role in
// the claimed team. The role always comes from the membership row, never
// from the token.
type JWTResolver struct {
	secret []byte
	db     store.Store
}

func NewJWTResolver(secret string, db store.Store) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), db: db}
}

func (r *JWTResolver) Resolve(ctx context.Context, bearer string) (*Principal, error) {
	if bearer == "" {
		return nil, ErrUnauthorized
	}
	var claims accessClaims
	tok, err := jwt.ParseWithClaims(bearer, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !tok.Valid || claims.UserID == 0 || claims.TeamID == 0 {
		return nil, ErrUnauthorized
	}

	m, err := r.db.GetMembership(ctx, claims.UserID, claims.TeamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: claims.UserID, TeamID: claims.TeamID, Role: m.Role}, nil
}

// IssueAccessToken mints a token for (userID, teamID). Used by the CLI and
// by tests; a production deployment fronts this with its own identity
// provider.
func IssueAccessToken(secret string, userID, teamID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accessClaims{
		UserID: userID,
		TeamID: teamID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
