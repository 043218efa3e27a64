package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Person is the end user behind a request, as asserted by the identity provider's token
type Person struct {
	ID    string
	Email string
}

// PersonClaims are the claims read from a person token. The subject is the person id.
type PersonClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type personContextKey struct{}

// PersonMiddleware verifies an HS256 bearer token signed with secret and stores the person
// in the request context
func PersonMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || len(key) == 0 {
				unauthorized(w)
				return
			}
			person, err := parsePersonToken(key, token)
			if err != nil {
				zap.S().Debugw("rejected person token", "error", err)
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPerson(r.Context(), person)))
		})
	}
}

func parsePersonToken(key []byte, token string) (Person, error) {
	claims := &PersonClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Person{}, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return Person{}, errors.New("token has no subject")
	}
	return Person{ID: claims.Subject, Email: claims.Email}, nil
}

// SignPersonToken issues a token PersonMiddleware accepts
func SignPersonToken(secret, personID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := PersonClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   personID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// WithPerson returns a copy of ctx carrying person
func WithPerson(ctx context.Context, person Person) context.Context {
	return context.WithValue(ctx, personContextKey{}, person)
}

// PersonFromContext returns the person stored by PersonMiddleware
func PersonFromContext(ctx context.Context) (Person, bool) {
	p, ok := ctx.Value(personContextKey{}).(Person)
	return p, ok
}
