// Package auth issues and checks the bearer tokens that guard the admin
// routes. There is a single admin account configured through the
// environment; its password is stored as a bcrypt hash.
package auth

import (
	"crypto/subtle"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"golang.org/x/crypto/bcrypt"
)

const RoleAdmin = "admin"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Authenticator struct {
	username     string
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	clock        clock.Clock
}

func NewAuthenticator(username, passwordHash, secret string, ttl time.Duration, clk clock.Clock) *Authenticator {
	return &Authenticator{
		username:     username,
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		ttl:          ttl,
		clock:        clk,
	}
}

// HashPassword returns the bcrypt hash to put in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}

// Login checks the admin credentials and issues an HS256 token. With no
// password hash configured every login fails.
func (a *Authenticator) Login(username, password string) (Token, error) {
	if len(a.passwordHash) == 0 {
		return Token{}, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil || !userOK {
		return Token{}, ErrInvalidCredentials
	}
	return a.Issue(username, RoleAdmin)
}

func (a *Authenticator) Issue(subject, role string) (Token, error) {
	now := a.clock.Now().UTC()
	exp := now.Add(a.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return Token{}, errors.Wrap(err, "sign token")
	}
	return Token{Token: signed, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Parse validates the signature and expiry of raw and returns its claims.
func (a *Authenticator) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse token"), ErrInvalidToken)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
