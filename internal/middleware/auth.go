package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"

	"github.com/skilltree/backend/internal/models"
)

type contextKey string

const (
	UserIDKey    contextKey = "userID"
	UserEmailKey contextKey = "userEmail"
)

// Authenticator wraps a handler so that only requests with a verified account reach it.
type Authenticator func(http.Handler) http.Handler

// TokenVerifier is the subset of the Firebase Auth client the middleware needs.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseAuth verifies Firebase ID tokens and stores the UID (and email, when present)
// in the request context.
func FirebaseAuth(verifier TokenVerifier) Authenticator {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				writeJSON(w, http.StatusServiceUnavailable, models.NewErrorResponse("Authentication is not configured"))
				return
			}
			idToken, ok := bearerToken(w, r)
			if !ok {
				return
			}

			token, err := verifier.VerifyIDToken(r.Context(), idToken)
			if err != nil || token.UID == "" {
				log.Printf("[auth] firebase token rejected err=%v", err)
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid or expired token"))
				return
			}

			email, _ := token.Claims["email"].(string)
			ctx := WithUser(r.Context(), token.UID, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// JWTAuth validates HS256 tokens signed with jwtSecret. The account id is read from the
// "sub" claim, falling back to "user_id".
func JWTAuth(jwtSecret string) Authenticator {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(w, r)
			if !ok {
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid or expired token"))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid token claims"))
				return
			}

			userID, _ := claims["sub"].(string)
			if userID == "" {
				userID, _ = claims["user_id"].(string)
			}
			if userID == "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid user ID in token"))
				return
			}
			email, _ := claims["email"].(string)

			ctx := WithUser(r.Context(), userID, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Authorization header required"))
		return "", false
	}
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid authorization header format"))
		return "", false
	}
	return strings.TrimSpace(token), true
}

// WithUser returns a context carrying the caller's account id and email.
func WithUser(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	if email != "" {
		ctx = context.WithValue(ctx, UserEmailKey, email)
	}
	return ctx
}

// GetUserID extracts the account id from context; empty means anonymous.
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func GetUserEmail(ctx context.Context) string {
	email, _ := ctx.Value(UserEmailKey).(string)
	return email
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
