package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sipadi/padi/internal/domain"
)

const historyColumns = `
	id, user_id, disease_id, selected_symptoms, certainty_values, final_cf,
	certainty_level, diagnosis_method, results, treatment, treatment_status,
	ip_address, diagnosed_at, expires_at`

// SaveHistory stores a diagnosis for its user.
func (r *SQLRepository) SaveHistory(ctx context.Context, h *domain.DiagnosisHistory) error {
	if h.ID == "" || h.UserID == "" {
		return fmt.Errorf("%w: history id and user id are required", ErrInvalidInput)
	}

	symptoms, err := json.Marshal(h.SelectedSymptoms)
	if err != nil {
		return fmt.Errorf("failed to encode symptoms: %w", err)
	}
	certainties, err := json.Marshal(h.CertaintyValues)
	if err != nil {
		return fmt.Errorf("failed to encode certainty values: %w", err)
	}
	results, err := json.Marshal(h.Results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	treatment, err := encodeTreatment(h.Treatment)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO diagnosis_history (` + historyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		h.ID, h.UserID, nullInt64(h.DiseaseID), string(symptoms), string(certainties), h.FinalCF,
		h.CertaintyLevel, h.Method, string(results), treatment, string(h.TreatmentStatus),
		h.IPAddress, h.DiagnosedAt.UTC(), h.ExpiresAt.UTC(),
	)
	return err
}

// GetHistory retrieves one diagnosis owned by userID.
func (r *SQLRepository) GetHistory(ctx context.Context, userID string, id string) (*domain.DiagnosisHistory, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	query := `SELECT ` + historyColumns + ` FROM diagnosis_history WHERE id = ? AND user_id = ?`
	h, err := scanHistory(r.db.QueryRowContext(ctx, r.rebind(query), id, userID))
	if err != nil {
		return nil, notFound(err, "history "+id)
	}
	return h, nil
}

// ListHistory returns the user's unexpired diagnoses, newest first.
func (r *SQLRepository) ListHistory(ctx context.Context, userID string, now time.Time, limit int) ([]*domain.DiagnosisHistory, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + historyColumns + `
		FROM diagnosis_history
		WHERE user_id = ? AND expires_at > ?
		ORDER BY diagnosed_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DiagnosisHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpdateTreatment attaches a generated treatment to a saved diagnosis.
func (r *SQLRepository) UpdateTreatment(ctx context.Context, id string, t *domain.Treatment, status domain.TreatmentStatus) error {
	treatment, err := encodeTreatment(t)
	if err != nil {
		return err
	}
	query := `UPDATE diagnosis_history SET treatment = ?, treatment_status = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.rebind(query), treatment, string(status), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "history "+id)
}

// CountDiagnosesSince counts a user's diagnoses at or after since.
func (r *SQLRepository) CountDiagnosesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM diagnosis_history WHERE user_id = ? AND diagnosed_at >= ?`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), userID, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count diagnoses: %w", err)
	}
	return n, nil
}

// DeleteHistoryBefore removes diagnoses older than before.
func (r *SQLRepository) DeleteHistoryBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM diagnosis_history WHERE diagnosed_at < ?`
	res, err := r.db.ExecContext(ctx, r.rebind(query), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete history: %w", err)
	}
	return res.RowsAffected()
}

func scanHistory(row rowScanner) (*domain.DiagnosisHistory, error) {
	var h domain.DiagnosisHistory
	var diseaseID sql.NullInt64
	var symptoms, certainties, results, status string
	var treatment sql.NullString

	if err := row.Scan(
		&h.ID, &h.UserID, &diseaseID, &symptoms, &certainties, &h.FinalCF,
		&h.CertaintyLevel, &h.Method, &results, &treatment, &status,
		&h.IPAddress, &h.DiagnosedAt, &h.ExpiresAt,
	); err != nil {
		return nil, err
	}

	if diseaseID.Valid {
		id := diseaseID.Int64
		h.DiseaseID = &id
	}
	h.TreatmentStatus = domain.TreatmentStatus(status)

	if err := json.Unmarshal([]byte(symptoms), &h.SelectedSymptoms); err != nil {
		return nil, fmt.Errorf("failed to decode symptoms: %w", err)
	}
	if err := json.Unmarshal([]byte(certainties), &h.CertaintyValues); err != nil {
		return nil, fmt.Errorf("failed to decode certainty values: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &h.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	if treatment.Valid && treatment.String != "" {
		var t domain.Treatment
		if err := json.Unmarshal([]byte(treatment.String), &t); err != nil {
			return nil, fmt.Errorf("failed to decode treatment: %w", err)
		}
		h.Treatment = &t
	}

	return &h, nil
}

func encodeTreatment(t *domain.Treatment) (sql.NullString, error) {
	if t == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode treatment: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
