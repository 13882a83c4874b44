package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sipadi/padi/internal/domain"
)

const ruleColumns = `id, rule_code, disease_id, symptom_id, confidence_level, mb, md, min_symptom_match, is_active`

const symptomColumns = `id, code, name, category, description, mb_value, md_value`

// SaveSymptom inserts a symptom or updates the one with the same code.
// The stored id is written back to s.
func (r *SQLRepository) SaveSymptom(ctx context.Context, s *domain.Symptom) error {
	if s.Code == "" || s.Name == "" {
		return fmt.Errorf("%w: symptom code and name are required", ErrInvalidInput)
	}
	if s.MB < 0 || s.MB > 1 || s.MD < 0 || s.MD > 1 {
		return fmt.Errorf("%w: mb and md must be within [0,1]", ErrInvalidInput)
	}

	now := r.now()
	query := `
		INSERT INTO symptoms (code, name, category, description, mb_value, md_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			description = excluded.description,
			mb_value = excluded.mb_value,
			md_value = excluded.md_value,
			updated_at = excluded.updated_at
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, r.rebind(query),
		s.Code, s.Name, s.Category, s.Description, s.MB, s.MD, now, now,
	).Scan(&s.ID)
}

// GetSymptom retrieves one symptom by id.
func (r *SQLRepository) GetSymptom(ctx context.Context, id int64) (*domain.Symptom, error) {
	query := `SELECT ` + symptomColumns + ` FROM symptoms WHERE id = ?`
	s, err := scanSymptom(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("symptom %d", id))
	}
	return s, nil
}

// ListSymptoms returns all symptoms ordered by code.
func (r *SQLRepository) ListSymptoms(ctx context.Context) ([]*domain.Symptom, error) {
	query := `SELECT ` + symptomColumns + ` FROM symptoms ORDER BY code, id`
	return r.querySymptoms(ctx, query)
}

// SaveDisease inserts a disease or updates the one with the same code.
func (r *SQLRepository) SaveDisease(ctx context.Context, d *domain.Disease) error {
	if d.Code == "" || d.Name == "" {
		return fmt.Errorf("%w: disease code and name are required", ErrInvalidInput)
	}

	now := r.now()
	query := `
		INSERT INTO diseases (code, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			updated_at = excluded.updated_at
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, r.rebind(query),
		d.Code, d.Name, d.Description, now, now,
	).Scan(&d.ID)
}

// ListDiseases returns all diseases ordered by code.
func (r *SQLRepository) ListDiseases(ctx context.Context) ([]*domain.Disease, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, code, name, description FROM diseases ORDER BY code, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var diseases []*domain.Disease
	for rows.Next() {
		var d domain.Disease
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.Description); err != nil {
			return nil, err
		}
		diseases = append(diseases, &d)
	}
	return diseases, rows.Err()
}

// SaveRule inserts a new rule (ID 0) or updates an existing one.
func (r *SQLRepository) SaveRule(ctx context.Context, rule *domain.Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	now := r.now()
	if rule.ID == 0 {
		return r.insertRule(ctx, r.db, rule)
	}

	query := `
		UPDATE rules SET
			rule_code = ?, disease_id = ?, symptom_id = ?, confidence_level = ?,
			mb = ?, md = ?, min_symptom_match = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.Code, rule.DiseaseID, rule.SymptomID, rule.ConfidenceLevel,
		rule.MB, rule.MD, rule.MinSymptomMatch, boolToInt(rule.Active), now,
		rule.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Sprintf("rule %d", rule.ID))
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLRepository) insertRule(ctx context.Context, db execer, rule *domain.Rule) error {
	now := r.now()
	query := `
		INSERT INTO rules (
			rule_code, disease_id, symptom_id, confidence_level,
			mb, md, min_symptom_match, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	return db.QueryRowContext(ctx, r.rebind(query),
		rule.Code, rule.DiseaseID, rule.SymptomID, rule.ConfidenceLevel,
		rule.MB, rule.MD, rule.MinSymptomMatch, boolToInt(rule.Active), now, now,
	).Scan(&rule.ID)
}

func validateRule(rule *domain.Rule) error {
	if rule.Code == "" {
		return fmt.Errorf("%w: rule code is required", ErrInvalidInput)
	}
	if rule.DiseaseID == 0 || rule.SymptomID == 0 {
		return fmt.Errorf("%w: rule %s needs a disease and a symptom", ErrInvalidInput, rule.Code)
	}
	if rule.MB < 0 || rule.MB > 1 || rule.MD < 0 || rule.MD > 1 {
		return fmt.Errorf("%w: rule %s mb and md must be within [0,1]", ErrInvalidInput, rule.Code)
	}
	if rule.MinSymptomMatch < 1 {
		return fmt.Errorf("%w: rule %s min symptom match must be positive", ErrInvalidInput, rule.Code)
	}
	return nil
}

// GetRule retrieves one rule by id.
func (r *SQLRepository) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = ?`
	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("rule %d", id))
	}
	return rule, nil
}

// ListRules returns every rule, active or not, ordered by code.
func (r *SQLRepository) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY rule_code, id`)
}

// SetRuleActive toggles a rule.
func (r *SQLRepository) SetRuleActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE rules SET is_active = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.rebind(query), boolToInt(active), r.now(), id)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Sprintf("rule %d", id))
}

// SetMinSymptomMatch updates the threshold on every rule of a disease so
// the value stays uniform per disease.
func (r *SQLRepository) SetMinSymptomMatch(ctx context.Context, diseaseID int64, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: min symptom match must be positive", ErrInvalidInput)
	}
	query := `UPDATE rules SET min_symptom_match = ?, updated_at = ? WHERE disease_id = ?`
	res, err := r.db.ExecContext(ctx, r.rebind(query), n, r.now(), diseaseID)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Sprintf("rules of disease %d", diseaseID))
}

// ReplaceDiseaseRules swaps all rules of a disease in one transaction.
func (r *SQLRepository) ReplaceDiseaseRules(ctx context.Context, diseaseID int64, rules []*domain.Rule) error {
	for _, rule := range rules {
		if rule.DiseaseID != diseaseID {
			return fmt.Errorf("%w: rule %s belongs to disease %d", ErrInvalidInput, rule.Code, rule.DiseaseID)
		}
		if err := validateRule(rule); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM rules WHERE disease_id = ?`), diseaseID); err != nil {
		return fmt.Errorf("failed to delete rules: %w", err)
	}
	for _, rule := range rules {
		if err := r.insertRule(ctx, tx, rule); err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", rule.Code, err)
		}
	}
	return tx.Commit()
}

// ActiveRulesMatching returns active rules whose symptom is in symptomIDs.
func (r *SQLRepository) ActiveRulesMatching(ctx context.Context, symptomIDs []int64) ([]*domain.Rule, error) {
	if len(symptomIDs) == 0 {
		return nil, nil
	}
	marks, args := placeholders(symptomIDs)
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE is_active = 1 AND symptom_id IN (` + marks + `) ORDER BY id`
	return r.queryRules(ctx, query, args...)
}

// ActiveRuleCount returns the number of active rules of a disease.
func (r *SQLRepository) ActiveRuleCount(ctx context.Context, diseaseID int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM rules WHERE disease_id = ? AND is_active = 1`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), diseaseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return n, nil
}

// Symptoms returns the symptoms with the given ids.
func (r *SQLRepository) Symptoms(ctx context.Context, ids []int64) (map[int64]*domain.Symptom, error) {
	out := make(map[int64]*domain.Symptom, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	marks, args := placeholders(ids)
	list, err := r.querySymptoms(ctx, `SELECT `+symptomColumns+` FROM symptoms WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, s := range list {
		out[s.ID] = s
	}
	return out, nil
}

// Disease retrieves one disease by id.
func (r *SQLRepository) Disease(ctx context.Context, id int64) (*domain.Disease, error) {
	var d domain.Disease
	query := `SELECT id, code, name, description FROM diseases WHERE id = ?`
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(&d.ID, &d.Code, &d.Name, &d.Description)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("disease %d", id))
	}
	return &d, nil
}

// UnmatchedRules returns active rules of a disease whose symptom is not in matched.
func (r *SQLRepository) UnmatchedRules(ctx context.Context, diseaseID int64, matched []int64) ([]*domain.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE disease_id = ? AND is_active = 1`
	args := []any{diseaseID}
	if len(matched) > 0 {
		marks, ids := placeholders(matched)
		query += ` AND symptom_id NOT IN (` + marks + `)`
		args = append(args, ids...)
	}
	return r.queryRules(ctx, query+` ORDER BY id`, args...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.Rule, error) {
	var rule domain.Rule
	var active int
	if err := row.Scan(
		&rule.ID, &rule.Code, &rule.DiseaseID, &rule.SymptomID, &rule.ConfidenceLevel,
		&rule.MB, &rule.MD, &rule.MinSymptomMatch, &active,
	); err != nil {
		return nil, err
	}
	rule.Active = active != 0
	return &rule, nil
}

func scanSymptom(row rowScanner) (*domain.Symptom, error) {
	var s domain.Symptom
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Category, &s.Description, &s.MB, &s.MD); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLRepository) queryRules(ctx context.Context, query string, args ...any) ([]*domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *SQLRepository) querySymptoms(ctx context.Context, query string, args ...any) ([]*domain.Symptom, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query symptoms: %w", err)
	}
	defer rows.Close()

	var symptoms []*domain.Symptom
	for rows.Next() {
		s, err := scanSymptom(rows)
		if err != nil {
			return nil, err
		}
		symptoms = append(symptoms, s)
	}
	return symptoms, rows.Err()
}
