// Package identity resolves the learner identity used to key learning profiles.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

// SettingKey is the settings key holding the device-anonymous learner id.
const SettingKey = "learner_id"

type contextKey int

const learnerIDKey contextKey = iota

var anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)

// Settings is the slice of the local store identity needs.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Resolve returns configured when set, otherwise the device-anonymous id,
// minting and persisting one on first use.
func Resolve(ctx context.Context, settings Settings, configured string) (string, error) {
	if id := strings.TrimSpace(configured); id != "" {
		return id, nil
	}

	stored, err := settings.GetSetting(ctx, SettingKey)
	if err != nil {
		return "", fmt.Errorf("read learner id: %w", err)
	}
	if isValidAnonID(stored) {
		return stored, nil
	}
	if stored != "" {
		slog.Warn("Discarding malformed stored learner id", "value", stored)
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	if err := settings.PutSetting(ctx, SettingKey, id); err != nil {
		return "", fmt.Errorf("save learner id: %w", err)
	}
	slog.Info("Minted anonymous learner id", "learner_id", id)
	return id, nil
}

// LearnerIDFromContext extracts the learner ID from the request context.
func LearnerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(learnerIDKey).(string); ok {
		return v
	}
	return ""
}

// Middleware injects the resolved learner id into every request context.
func Middleware(learnerID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), learnerIDKey, learnerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}
