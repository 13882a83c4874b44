package repository

import "strings"

// Schema definitions for the Padi database.
// Compatible with both SQLite and PostgreSQL; {{ID}} is replaced by the
// driver's auto-increment primary key column type.

const schemaSymptoms = `
CREATE TABLE IF NOT EXISTS symptoms (
    id {{ID}},
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    mb_value REAL NOT NULL DEFAULT 0,
    md_value REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaDiseases = `
CREATE TABLE IF NOT EXISTS diseases (
    id {{ID}},
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// schemaRules links diseases to symptoms. min_symptom_match is kept equal
// across all rules of one disease.
const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id {{ID}},
    rule_code TEXT NOT NULL UNIQUE,
    disease_id INTEGER NOT NULL REFERENCES diseases(id) ON DELETE CASCADE,
    symptom_id INTEGER NOT NULL REFERENCES symptoms(id) ON DELETE CASCADE,
    confidence_level REAL NOT NULL DEFAULT 1.0,
    mb REAL NOT NULL,
    md REAL NOT NULL,
    min_symptom_match INTEGER NOT NULL DEFAULT 3,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (disease_id, symptom_id)
);

CREATE INDEX IF NOT EXISTS idx_rules_symptom ON rules(symptom_id, is_active);
CREATE INDEX IF NOT EXISTS idx_rules_disease ON rules(disease_id, is_active);
`

const schemaHistory = `
CREATE TABLE IF NOT EXISTS diagnosis_history (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    disease_id INTEGER,
    selected_symptoms TEXT NOT NULL,
    certainty_values TEXT NOT NULL,
    final_cf REAL NOT NULL,
    certainty_level TEXT NOT NULL,
    diagnosis_method TEXT NOT NULL,
    results TEXT NOT NULL,
    treatment TEXT,
    treatment_status TEXT NOT NULL,
    ip_address TEXT NOT NULL DEFAULT '',
    diagnosed_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_user ON diagnosis_history(user_id, diagnosed_at);
CREATE INDEX IF NOT EXISTS idx_history_diagnosed ON diagnosis_history(diagnosed_at);
`

const schemaSettings = `
CREATE TABLE IF NOT EXISTS system_settings (
    setting_key TEXT PRIMARY KEY,
    setting_value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order for the given driver.
func AllSchemas(driver string) []string {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "postgres" {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	schemas := []string{
		schemaSymptoms,
		schemaDiseases,
		schemaRules,
		schemaHistory,
		schemaSettings,
	}
	for i, s := range schemas {
		schemas[i] = strings.ReplaceAll(s, "{{ID}}", idColumn)
	}
	return schemas
}
