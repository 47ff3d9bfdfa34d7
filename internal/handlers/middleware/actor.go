package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/apexrewards/pointsledger/internal/handlers/actorctx"
	"github.com/apexrewards/pointsledger/internal/handlers/render"
	"github.com/apexrewards/pointsledger/internal/models"
)

// actorClaims is what the authenticating gateway puts into the signed token.
// The engine trusts the claims as-is: sessions, passwords and token refresh
// all live upstream.
type actorClaims struct {
	jwt.RegisteredClaims

	Handle     string `json:"handle"`
	Role       string `json:"role"`
	Verified   bool   `json:"verified"`
	Suspicious bool   `json:"suspicious"`
}

// ActorMiddleware resolves the acting identity from the gateway-minted
// bearer token and stores it in the request context
func ActorMiddleware(secretKey string) func(http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := actorFromRequest(r, keyFunc)
			if err != nil {
				render.ServiceError(w, "Unauthenticated", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(actorctx.New(r.Context(), actor)))
		})
	}
}

func actorFromRequest(r *http.Request, keyFunc jwt.Keyfunc) (models.Actor, error) {
	var actor models.Actor

	header := r.Header.Get("Authorization")
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return actor, fmt.Errorf("no bearer token in request")
	}

	claims := &actorClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, keyFunc); err != nil {
		return actor, fmt.Errorf("can't parse actor token. Err: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return actor, fmt.Errorf("token subject is not a user id. Err: %w", err)
	}

	return models.Actor{
		UserID:     userID,
		Handle:     claims.Handle,
		Role:       claims.Role,
		Verified:   claims.Verified,
		Suspicious: claims.Suspicious,
	}, nil
}
