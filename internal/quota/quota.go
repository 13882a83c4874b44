// Package quota enforces per-user submission limits: duplicate detection,
// a short burst counter and the daily diagnosis limit.
package quota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sipadi/padi/internal/domain"
)

// ErrTooManyRequests is returned when a user exceeds the per-minute burst.
var ErrTooManyRequests = errors.New("too many diagnosis requests")

// ErrDailyLimit is matched by every *LimitError.
var ErrDailyLimit = errors.New("daily diagnosis limit reached")

// LimitError reports the daily limit that was hit.
type LimitError struct {
	Max int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("daily diagnosis limit reached (%d)", e.Max)
}

// Is lets errors.Is(err, ErrDailyLimit) match.
func (e *LimitError) Is(target error) bool {
	return target == ErrDailyLimit
}

// Store is the part of the repository the guard reads.
type Store interface {
	CountDiagnosesSince(ctx context.Context, userID string, since time.Time) (int, error)
	GetSetting(ctx context.Context, key string) (string, error)
}

// Guard checks submissions against the configured limits.
type Guard struct {
	store  Store
	cache  domain.Cache
	limits domain.LimitsConfig
	now    func() time.Time
}

// NewGuard creates a guard. A nil cache disables duplicate and burst checks.
func NewGuard(store Store, cache domain.Cache, limits domain.LimitsConfig) *Guard {
	return &Guard{
		store:  store,
		cache:  cache,
		limits: limits,
		now:    time.Now,
	}
}

// Fingerprint identifies a submission by its symptom ids (in order) and
// certainty values. Map keys are sorted by encoding/json.
func Fingerprint(input *domain.DiagnosisInput) string {
	payload, err := json.Marshal(struct {
		IDs         []int64                     `json:"i"`
		Certainties map[string]domain.Certainty `json:"c"`
	}{input.SymptomIDs, input.Certainties})
	if err != nil {
		// Certainty always marshals; keep the fingerprint total anyway.
		payload = []byte(fmt.Sprint(input.SymptomIDs, input.Certainties))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Recent returns the submission the user made with the same input inside
// the duplicate window, or nil.
func (g *Guard) Recent(ctx context.Context, userID string, input *domain.DiagnosisInput) (*domain.Submission, error) {
	if g.cache == nil || g.limits.DuplicateWindow <= 0 {
		return nil, nil
	}
	sub, err := g.cache.GetSubmission(ctx, userID, Fingerprint(input))
	if err != nil {
		return nil, fmt.Errorf("lookup submission: %w", err)
	}
	return sub, nil
}

// Remember records an accepted submission for the duplicate window.
func (g *Guard) Remember(ctx context.Context, userID string, input *domain.DiagnosisInput, historyID string) error {
	if g.cache == nil || g.limits.DuplicateWindow <= 0 {
		return nil
	}
	sub := &domain.Submission{HistoryID: historyID, SubmittedAt: g.now().UTC()}
	window := time.Duration(g.limits.DuplicateWindow) * time.Second
	if err := g.cache.SetSubmission(ctx, userID, Fingerprint(input), sub, window); err != nil {
		return fmt.Errorf("remember submission: %w", err)
	}
	return nil
}

// Admit counts one request against the burst window and checks the
// daily limit.
func (g *Guard) Admit(ctx context.Context, userID string) error {
	if g.cache != nil && g.limits.BurstPerMinute > 0 {
		n, err := g.cache.IncrementCounter(ctx, userID, "diagnosis", time.Minute)
		if err != nil {
			return fmt.Errorf("burst counter: %w", err)
		}
		if n > int64(g.limits.BurstPerMinute) {
			return ErrTooManyRequests
		}
	}

	limit := g.DailyLimit(ctx)
	if limit <= 0 {
		return nil
	}

	count, err := g.store.CountDiagnosesSince(ctx, userID, startOfDay(g.now()))
	if err != nil {
		return fmt.Errorf("count diagnoses: %w", err)
	}
	if count >= limit {
		return &LimitError{Max: limit}
	}
	return nil
}

// DailyLimit returns the max_diagnoses_per_day setting, falling back to
// the configured limit when the setting is missing or malformed.
// Zero or less means unlimited.
func (g *Guard) DailyLimit(ctx context.Context) int {
	return g.intSetting(ctx, domain.SettingMaxDiagnosesPerDay, g.limits.MaxDiagnosesPerDay)
}

// RetentionCutoff returns the time before which diagnosis history may be
// deleted, from the history_retention_days setting or the configured
// retention. ok is false when retention is disabled.
func (g *Guard) RetentionCutoff(ctx context.Context) (cutoff time.Time, ok bool) {
	days := g.intSetting(ctx, domain.SettingHistoryRetentionDays, g.limits.HistoryRetentionDays)
	if days <= 0 {
		return time.Time{}, false
	}
	return g.now().AddDate(0, 0, -days), true
}

func (g *Guard) intSetting(ctx context.Context, key string, fallback int) int {
	value, err := g.store.GetSetting(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("failed to read setting", "key", key, "error", err)
		}
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid setting", "key", key, "value", value)
		return fallback
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
