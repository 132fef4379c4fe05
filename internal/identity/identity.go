// Package identity provides anonymous per-device trainee identity.
package identity

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/rolesim/internal/domain"
)

const (
	AnonCookieName   = "rolesim_anon_id"
	anonCookieMaxAge = 30 * 24 * time.Hour
	// lastSeenGranularity limits last_seen writes to one per trainee per window.
	lastSeenGranularity = 5 * time.Minute
)

type contextKey int

const (
	traineeIDKey contextKey = iota
	displayNameKey
)

var anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)

// TraineeStore is the persistence the middleware needs.
type TraineeStore interface {
	GetTrainee(ctx context.Context, traineeID string) (*domain.Trainee, error)
	UpsertTrainee(ctx context.Context, trainee *domain.Trainee) error
	UpdateLastSeen(ctx context.Context, traineeID string, lastSeen time.Time) error
}

// TraineeIDFromContext extracts the trainee ID from the request context.
func TraineeIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traineeIDKey).(string); ok {
		return v
	}
	return ""
}

// DisplayNameFromContext extracts the display name from the request context.
func DisplayNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(displayNameKey).(string); ok {
		return v
	}
	return ""
}

// WithTrainee returns ctx carrying the given identity. Used by tests and the CLI.
func WithTrainee(ctx context.Context, traineeID string) context.Context {
	ctx = context.WithValue(ctx, traineeIDKey, traineeID)
	return context.WithValue(ctx, displayNameKey, deriveDisplayName(traineeID))
}

func generateAnonID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(u[:]), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func deriveDisplayName(traineeID string) string {
	if len(traineeID) > 13 {
		return "trainee-" + traineeID[len(traineeID)-8:]
	}
	return "trainee"
}

func ensureTrainee(ctx context.Context, repo TraineeStore, traineeID string, now time.Time) error {
	t, err := repo.GetTrainee(ctx, traineeID)
	if err != nil {
		return err
	}
	if t != nil {
		if t.ActiveWithin(lastSeenGranularity, now) {
			return nil
		}
		return repo.UpdateLastSeen(ctx, traineeID, now)
	}

	return repo.UpsertTrainee(ctx, &domain.Trainee{
		TraineeID:   traineeID,
		DisplayName: deriveDisplayName(traineeID),
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

// Middleware injects the anonymous per-device trainee identity.
func Middleware(repo TraineeStore, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traineeID, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureTrainee(r.Context(), repo, traineeID, time.Now().UTC()); err != nil {
				slog.Error("Failed to initialize trainee", "trainee_id", traineeID, "error", err)
				http.Error(w, `{"error":"failed to initialize anonymous trainee"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTrainee(r.Context(), traineeID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
