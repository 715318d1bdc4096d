package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// trackerPG stores the mapping ledger in the legacy_patient_mapping table,
// unique on (source_key, legacy_system).
type trackerPG struct {
	pool *pgxpool.Pool
}

func NewTracker(pool *pgxpool.Pool) MappingTracker {
	return &trackerPG{pool: pool}
}

const mappingCols = `source_key, legacy_system, status, patient_id, match_confidence, match_method,
	first_name, last_name, birth_date, gender,
	artifacts_found, artifacts_imported, needs_review, review_reason, error_message, processed_at`

func (t *trackerPG) Upsert(ctx context.Context, rec *MappingRecord) error {
	_, err := t.pool.Exec(ctx, `
		INSERT INTO legacy_patient_mapping (
			source_key, legacy_system, status, patient_id, match_confidence, match_method,
			first_name, last_name, birth_date, gender,
			artifacts_found, artifacts_imported, needs_review, review_reason, error_message, processed_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,$10,
			$11,$12,$13,$14,$15,NOW()
		)
		ON CONFLICT (source_key, legacy_system) DO UPDATE SET
			status = EXCLUDED.status,
			patient_id = EXCLUDED.patient_id,
			match_confidence = EXCLUDED.match_confidence,
			match_method = EXCLUDED.match_method,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			birth_date = EXCLUDED.birth_date,
			gender = EXCLUDED.gender,
			artifacts_found = EXCLUDED.artifacts_found,
			artifacts_imported = EXCLUDED.artifacts_imported,
			needs_review = EXCLUDED.needs_review,
			review_reason = EXCLUDED.review_reason,
			error_message = EXCLUDED.error_message,
			processed_at = NOW()`,
		rec.SourceKey, rec.LegacySystem, rec.Status, rec.PatientID, rec.MatchConfidence, rec.MatchMethod,
		rec.FirstName, rec.LastName, rec.BirthDate, rec.Gender,
		rec.ArtifactsFound, rec.ArtifactsImported, rec.NeedsReview, rec.ReviewReason, rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("mapping upsert %s/%s: %w", rec.LegacySystem, rec.SourceKey, err)
	}
	return nil
}

func (t *trackerPG) Find(ctx context.Context, sourceKey, legacySystem string) (*MappingRecord, error) {
	rec, err := scanMapping(t.pool.QueryRow(ctx,
		`SELECT `+mappingCols+` FROM legacy_patient_mapping WHERE source_key = $1 AND legacy_system = $2`,
		sourceKey, legacySystem))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mapping find %s/%s: %w", legacySystem, sourceKey, err)
	}
	return rec, nil
}

func (t *trackerPG) AggregateStatus(ctx context.Context) (*StatusSummary, error) {
	summary := &StatusSummary{
		ByStatus: make(map[MappingStatus]int),
		BySystem: make(map[string]int),
	}

	rows, err := t.pool.Query(ctx,
		`SELECT status, legacy_system, COUNT(*) FROM legacy_patient_mapping GROUP BY status, legacy_system`)
	if err != nil {
		return nil, fmt.Errorf("mapping aggregate: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status MappingStatus
		var system string
		var count int
		if err := rows.Scan(&status, &system, &count); err != nil {
			return nil, fmt.Errorf("mapping aggregate scan: %w", err)
		}
		summary.ByStatus[status] += count
		summary.BySystem[system] += count
		summary.Total += count
	}
	return summary, rows.Err()
}

func (t *trackerPG) RecentErrors(ctx context.Context, n int) ([]*MappingRecord, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT `+mappingCols+` FROM legacy_patient_mapping
		WHERE status = $1 ORDER BY processed_at DESC LIMIT $2`,
		StatusError, n)
	if err != nil {
		return nil, fmt.Errorf("mapping recent errors: %w", err)
	}
	defer rows.Close()

	var result []*MappingRecord
	for rows.Next() {
		rec, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("mapping recent errors scan: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (t *trackerPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := t.pool.QueryRow(ctx, `SELECT COUNT(*) FROM legacy_patient_mapping`).Scan(&n); err != nil {
		return 0, fmt.Errorf("mapping count: %w", err)
	}
	return n, nil
}

func scanMapping(row interface{ Scan(dest ...any) error }) (*MappingRecord, error) {
	rec := &MappingRecord{}
	err := row.Scan(
		&rec.SourceKey, &rec.LegacySystem, &rec.Status, &rec.PatientID, &rec.MatchConfidence, &rec.MatchMethod,
		&rec.FirstName, &rec.LastName, &rec.BirthDate, &rec.Gender,
		&rec.ArtifactsFound, &rec.ArtifactsImported, &rec.NeedsReview, &rec.ReviewReason, &rec.ErrorMessage, &rec.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
