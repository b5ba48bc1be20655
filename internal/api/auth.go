package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/harbourfi/factormart/internal/domain"
)

type callerKey struct{}

const tokenTTL = 24 * time.Hour

// Auth verifies the bearer token and puts the caller's account id in the
// request context. The engine itself never reads the context; handlers pull
// the identity out and pass it as an explicit argument.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Middleware rejects requests without a valid bearer token.
func (a *Auth) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondWithError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
			func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return a.secret, nil
			})
		if err != nil || !token.Valid {
			respondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		caller, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid token subject")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	}
}

// Caller returns the verified account id placed in the context by Middleware.
func Caller(ctx context.Context) (domain.AccountID, bool) {
	id, ok := ctx.Value(callerKey{}).(int64)
	return id, ok
}

// Sign mints a token for an account id.
func (a *Auth) Sign(account domain.AccountID) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(account, 10),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// TokenHandler mints a development token for the requested account id.
func (a *Auth) TokenHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID int64 `json:"account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.AccountID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Positive account_id required")
		return
	}

	token, err := a.Sign(req.AccountID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Token signing failed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"token": token})
}
