package domain

import (
	"context"
	"time"
)

// RuleSource is the read-only view of the knowledge base the engine needs.
// It is implemented by the SQL repository and by in-memory snapshots.
type RuleSource interface {
	// ActiveRulesMatching returns active rules whose symptom is in symptomIDs.
	ActiveRulesMatching(ctx context.Context, symptomIDs []int64) ([]*Rule, error)

	// ActiveRuleCount returns the number of active rules for a disease.
	ActiveRuleCount(ctx context.Context, diseaseID int64) (int, error)

	// Symptoms returns the symptoms with the given ids. Unknown ids are absent.
	Symptoms(ctx context.Context, ids []int64) (map[int64]*Symptom, error)

	// Disease returns one disease, or ErrNotFound from the implementation.
	Disease(ctx context.Context, id int64) (*Disease, error)

	// UnmatchedRules returns active rules of a disease whose symptom is not in matched.
	UnmatchedRules(ctx context.Context, diseaseID int64, matched []int64) ([]*Rule, error)
}

// Repository defines the interface for data persistence.
type Repository interface {
	RuleSource

	// Knowledge base
	SaveSymptom(ctx context.Context, s *Symptom) error
	GetSymptom(ctx context.Context, id int64) (*Symptom, error)
	ListSymptoms(ctx context.Context) ([]*Symptom, error)
	SaveDisease(ctx context.Context, d *Disease) error
	ListDiseases(ctx context.Context) ([]*Disease, error)
	SaveRule(ctx context.Context, r *Rule) error
	GetRule(ctx context.Context, id int64) (*Rule, error)
	ListRules(ctx context.Context) ([]*Rule, error)
	SetRuleActive(ctx context.Context, id int64, active bool) error
	// SetMinSymptomMatch updates every rule of the disease.
	SetMinSymptomMatch(ctx context.Context, diseaseID int64, n int) error
	// ReplaceDiseaseRules deletes the disease's rules and inserts rules in one transaction.
	ReplaceDiseaseRules(ctx context.Context, diseaseID int64, rules []*Rule) error

	// Diagnosis history
	SaveHistory(ctx context.Context, h *DiagnosisHistory) error
	GetHistory(ctx context.Context, userID string, id string) (*DiagnosisHistory, error)
	ListHistory(ctx context.Context, userID string, now time.Time, limit int) ([]*DiagnosisHistory, error)
	UpdateTreatment(ctx context.Context, id string, t *Treatment, status TreatmentStatus) error
	CountDiagnosesSince(ctx context.Context, userID string, since time.Time) (int, error)
	DeleteHistoryBefore(ctx context.Context, before time.Time) (int64, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) ([]*Setting, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" mapstructure:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgresPort"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgresUser"`
	PostgresPassword string `json:"postgresPassword" mapstructure:"postgresPassword"`
	PostgresDB       string `json:"postgresDB" mapstructure:"postgresDB"`
	PostgresSSLMode  string `json:"postgresSSLMode" mapstructure:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"connMaxLifetime"`
}
