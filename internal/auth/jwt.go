package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ezcommon/apply-portal/internal/model"
)

// Token type values carried in the "type" claim.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken indicates the token failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates the token is past its expiry.
	ErrExpiredToken = errors.New("token expired")
	// ErrWrongTokenType indicates an access token was used where a refresh
	// token was expected, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims is the JWT claim set for portal tokens.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates a TokenIssuer with the given signing secret and TTLs.
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *TokenIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccessToken creates a signed access token for the user.
func (i *TokenIssuer) IssueAccessToken(user *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:     user.Email,
		Role:      string(user.Role),
		OrgID:     user.OrgID,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken creates a signed refresh token for the user.
// Refresh tokens carry only the subject and type claims.
func (i *TokenIssuer) IssueRefreshToken(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken parses and validates an access token, returning the
// auth context it encodes.
func (i *TokenIssuer) VerifyAccessToken(tokenString string) (*model.AuthContext, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrWrongTokenType
	}

	return &model.AuthContext{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   model.Role(claims.Role),
		OrgID:  claims.OrgID,
	}, nil
}

// VerifyRefreshToken parses and validates a refresh token, returning the
// subject user ID.
func (i *TokenIssuer) VerifyRefreshToken(tokenString string) (string, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return "", err
	}
	if claims.TokenType != tokenTypeRefresh {
		return "", ErrWrongTokenType
	}
	return claims.Subject, nil
}

func (i *TokenIssuer) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
