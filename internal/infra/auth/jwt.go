package auth

import (
	"errors"
	"fmt"
	"time"

	"campus-takeout/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleShop     Role = "shop"
	RoleAdmin    Role = "admin"
)

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID uint64
	Name   string
	Role   Role
}

type Claims struct {
	UID  uint64 `json:"uid"`
	Name string `json:"name"`
	Role Role   `json:"role"`
	jwt.RegisteredClaims
}

type Verifier interface {
	Verify(token string) (Identity, error)
}

var _ Verifier = (*JWT)(nil)

// JWT signs and verifies HS256 tokens.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) *JWT {
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (j *JWT) Issue(id Identity) (string, error) {
	now := j.now()
	claims := Claims{
		UID:  id.UserID,
		Name: id.Name,
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

func (j *JWT) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, domain.NewError(domain.KindUnauthenticated, "token missing")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, domain.WrapError(domain.KindTokenExpired, "token expired", err)
		}
		return Identity{}, domain.WrapError(domain.KindUnauthenticated, "invalid token", err)
	}
	if claims.UID == 0 {
		return Identity{}, domain.NewError(domain.KindUnauthenticated, "token has no user id")
	}

	role := claims.Role
	switch role {
	case "":
		role = RoleCustomer
	case RoleCustomer, RoleShop, RoleAdmin:
	default:
		return Identity{}, domain.NewError(domain.KindUnauthenticated, fmt.Sprintf("unknown role %q", role))
	}
	return Identity{UserID: claims.UID, Name: claims.Name, Role: role}, nil
}
