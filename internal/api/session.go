package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RolePatient = "patient"
	RoleStaff   = "staff"
)

const sessionKey contextKey = "session"

// SessionClaims is the payload of a session token. Subject is the patient id
// for patient sessions.
type SessionClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Session struct {
	Subject   string
	PatientID uuid.UUID
	Staff     bool
}

// CanAccess reports whether the session may act on an appointment of patientID.
func (s Session) CanAccess(patientID uuid.UUID) bool {
	return s.Staff || s.PatientID == patientID
}

// SessionJWT enforces an HMAC-signed bearer token and stores the Session in
// the request context.
func SessionJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "sessions are disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing authorization header")
				return
			}

			claims := SessionClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			sess, ok := sessionFromClaims(claims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token subject")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromClaims(c SessionClaims) (Session, bool) {
	sess := Session{Subject: c.Subject}
	switch c.Role {
	case RoleStaff:
		sess.Staff = true
		return sess, c.Subject != ""
	case "", RolePatient:
		id, err := uuid.Parse(c.Subject)
		if err != nil {
			return Session{}, false
		}
		sess.PatientID = id
		return sess, true
	default:
		return Session{}, false
	}
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey).(Session)
	return sess, ok
}

// IssueSessionToken signs a session token. The login flow that calls it lives
// outside this service; tools and tests use it directly.
func IssueSessionToken(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
