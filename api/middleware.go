package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/basic"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/models"
)

// TokenTTL is how long an issuer bearer token stays valid
const TokenTTL = 12 * time.Hour

const companyGroupPrefix = "company:"

type issuerContextKey struct{}

// IssuerAuth authenticates HR and admin issuers. Credentials are checked once over basic
// auth and exchanged for a cached bearer token.
type IssuerAuth struct {
	DB databases.IssuerDatabase

	authenticator auth.Authenticator
}

// NewIssuerAuth sets up the go-guardian basic and bearer strategies over db
func NewIssuerAuth(db databases.IssuerDatabase) *IssuerAuth {
	a := &IssuerAuth{DB: db}
	cache := store.NewFIFO(context.Background(), TokenTTL)
	a.authenticator = auth.New()
	a.authenticator.EnableStrategy(basic.StrategyKey, basic.New(a.ValidateIssuer, cache))
	a.authenticator.EnableStrategy(bearer.CachedStrategyKey, bearer.New(bearer.NoOpAuthenticate, cache))
	return a
}

// Middleware rejects requests without valid issuer credentials and stores the issuer in
// the request context
func (a *IssuerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := a.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Debugw("unauthorized issuer request",
				"url", r.URL.Path,
				"error", err)
			unauthorized(w)
			return
		}
		issuer := issuerFromInfo(info)
		zap.S().Debugw("issuer authenticated", "issuerId", issuer.ID)
		next.ServeHTTP(w, r.WithContext(WithIssuer(r.Context(), issuer)))
	})
}

// CreateToken exchanges the basic credentials already checked by Middleware for a bearer token
func (a *IssuerAuth) CreateToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	issuer, ok := IssuerFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}

	token := uuid.New().String()
	tokenStrategy := a.authenticator.Strategy(bearer.CachedStrategyKey)
	if err := auth.Append(tokenStrategy, token, issuerInfo(issuer), r); err != nil {
		http.Error(w, "failed to store token", http.StatusInternalServerError)
		return
	}

	b, err := json.Marshal(map[string]string{
		"token": token,
		"_id":   issuer.ID,
	})
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(b)
}

// RevokeToken drops the bearer token the request was made with
func (a *IssuerAuth) RevokeToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	token, ok := bearerToken(r)
	if !ok {
		http.Error(w, `{"error": "bearer token required"}`, http.StatusBadRequest)
		return
	}
	tokenStrategy := a.authenticator.Strategy(bearer.CachedStrategyKey)
	if err := auth.Revoke(tokenStrategy, token, r); err != nil {
		zap.S().Warnw("failed to revoke token", "error", err)
	}
	w.Write([]byte(`{"revoked": true}`))
}

// ValidateIssuer checks an email and password against the issuers collection
func (a *IssuerAuth) ValidateIssuer(ctx context.Context, r *http.Request, email, password string) (auth.Info, error) {
	issuer, err := a.DB.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get issuer by email")
	}

	given := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	stored := sha256.Sum256([]byte(issuer.Email))
	if subtle.ConstantTimeCompare(given[:], stored[:]) != 1 {
		return nil, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(issuer.Password), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	return issuerInfo(*issuer), nil
}

// WithIssuer returns a copy of ctx carrying the authenticated issuer
func WithIssuer(ctx context.Context, issuer models.Issuer) context.Context {
	return context.WithValue(ctx, issuerContextKey{}, issuer)
}

// IssuerFromContext returns the issuer stored by Middleware
func IssuerFromContext(ctx context.Context) (models.Issuer, bool) {
	issuer, ok := ctx.Value(issuerContextKey{}).(models.Issuer)
	return issuer, ok
}

// issuerInfo flattens an issuer into go-guardian's user info. The company scope travels
// as a group so bearer tokens carry it without another lookup.
func issuerInfo(issuer models.Issuer) auth.Info {
	groups := append([]string{}, issuer.Roles...)
	if issuer.CompanyID != "" {
		groups = append(groups, companyGroupPrefix+issuer.CompanyID)
	}
	return auth.NewDefaultUser(issuer.Email, issuer.ID, groups, nil)
}

func issuerFromInfo(info auth.Info) models.Issuer {
	issuer := models.Issuer{ID: info.ID(), Email: info.UserName(), Active: true}
	for _, g := range info.Groups() {
		if strings.HasPrefix(g, companyGroupPrefix) {
			issuer.CompanyID = strings.TrimPrefix(g, companyGroupPrefix)
			continue
		}
		issuer.Roles = append(issuer.Roles, g)
	}
	return issuer
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error": "unauthorized"}`))
}
