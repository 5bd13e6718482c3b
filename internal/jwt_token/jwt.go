package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	strs "proctrack/pkg/platform/strings"
)

// Claims are the identity claims issued by the identity provider.
type Claims struct {
	UserID   string   `json:"user_id"`
	OfficeID string   `json:"office_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTService validates access tokens and turns them into actors. Issuing is
// used by tests and local tooling; production tokens come from the identity
// provider.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

func (s *JWTService) GenerateAccessToken(actor id.Actor, expiresIn time.Duration) (string, error) {
	claims := Claims{
		UserID: actor.UserID.String(),
		Roles:  actor.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	}
	if !actor.OfficeID.IsNil() {
		claims.OfficeID = actor.OfficeID.String()
	}
	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

// ValidateToken verifies signature, expiry, issuer and audience and returns
// the actor the token identifies.
func (s *JWTService) ValidateToken(tokenString string) (id.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims.actor()
}

func (c *Claims) actor() (id.Actor, error) {
	userID, err := id.ParseUserID(c.UserID)
	if err != nil {
		return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token has no valid user")
	}
	actor := id.Actor{UserID: userID, Roles: strs.DedupeAndTrimLower(c.Roles)}
	if c.OfficeID != "" {
		officeID, err := id.ParseOfficeID(c.OfficeID)
		if err != nil {
			return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token has an invalid office")
		}
		actor.OfficeID = officeID
	}
	return actor, nil
}
