package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, mrn, active, legacy_id, first_name, last_name, birth_date,
	gender, phone, email, address_line1, city, postal_code, blood_type,
	folder_ids, placeholder_fields, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.MRN == "" {
		// Legacy imports get an MRN derived from the new identifier so the
		// main API's uniqueness constraint holds.
		p.MRN = "LEG-" + p.ID.String()[:8]
	}
	if p.FolderIDs == nil {
		// Store '{}' rather than NULL so later folder-link updates and
		// ANY(folder_ids) lookups behave under two-valued logic.
		p.FolderIDs = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient (
			id, mrn, active, legacy_id, first_name, last_name, birth_date,
			gender, phone, email, address_line1, city, postal_code, blood_type,
			folder_ids, placeholder_fields
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,
			$8,$9,$10,$11,$12,$13,$14,
			$15,$16
		)`,
		p.ID, p.MRN, p.Active, p.LegacyID, p.FirstName, p.LastName, p.BirthDate,
		p.Gender, p.Phone, p.Email, p.AddressLine1, p.City, p.PostalCode, p.BloodType,
		p.FolderIDs, p.PlaceholderFields,
	)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanOne(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByLegacyID(ctx context.Context, legacyID string) (*Patient, error) {
	return scanOne(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE legacy_id = $1`, legacyID))
}

func (r *patientRepoPG) GetByFolderID(ctx context.Context, folderID string) (*Patient, error) {
	return scanOne(r.pool.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE $1 = ANY(folder_ids) ORDER BY id LIMIT 1`, folderID))
}

func (r *patientRepoPG) FindByNameDOB(ctx context.Context, first, last string, dob time.Time) (*Patient, error) {
	return scanOne(r.pool.QueryRow(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE lower(first_name) = lower($1)
		  AND lower(last_name) = lower($2)
		  AND birth_date = $3
		ORDER BY id LIMIT 1`,
		first, last, dob))
}

func (r *patientRepoPG) SearchByName(ctx context.Context, first, last string, limit int) ([]*Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE first_name ILIKE '%' || $1 || '%' OR last_name ILIKE '%' || $1 || '%'
		   OR first_name ILIKE '%' || $2 || '%' OR last_name ILIKE '%' || $2 || '%'
		ORDER BY id LIMIT $3`,
		first, last, limit)
	if err != nil {
		return nil, fmt.Errorf("patient search by name: %w", err)
	}
	defer rows.Close()

	var result []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *patientRepoPG) LinkFolder(ctx context.Context, id uuid.UUID, folderID string) error {
	// array_append only when absent keeps folder_ids duplicate-free. A NULL
	// folder_ids column must count as "absent": $2 = ANY(NULL) is NULL, and
	// a bare NOT would exclude the row and skip the link.
	_, err := r.pool.Exec(ctx, `
		UPDATE patient
		SET folder_ids = array_append(COALESCE(folder_ids, '{}'), $2), updated_at = NOW()
		WHERE id = $1 AND (folder_ids IS NULL OR NOT ($2 = ANY(folder_ids)))`,
		id, folderID)
	if err != nil {
		return fmt.Errorf("patient link folder: %w", err)
	}
	return nil
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&n); err != nil {
		return 0, fmt.Errorf("patient count: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*Patient, error) {
	p := &Patient{}
	err := row.Scan(
		&p.ID, &p.MRN, &p.Active, &p.LegacyID, &p.FirstName, &p.LastName, &p.BirthDate,
		&p.Gender, &p.Phone, &p.Email, &p.AddressLine1, &p.City, &p.PostalCode, &p.BloodType,
		&p.FolderIDs, &p.PlaceholderFields, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanOne(row rowScanner) (*Patient, error) {
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}
	return p, nil
}
