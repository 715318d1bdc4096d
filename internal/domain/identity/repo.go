package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PatientRepository is the lookup and mutation surface the migration engine
// needs from the patient store. Lookup methods return (nil, nil) when no
// patient matches; an error always means the store itself failed.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByLegacyID(ctx context.Context, legacyID string) (*Patient, error)
	GetByFolderID(ctx context.Context, folderID string) (*Patient, error)

	// FindByNameDOB matches first name, last name and birth date exactly,
	// names case-insensitively.
	FindByNameDOB(ctx context.Context, first, last string, dob time.Time) (*Patient, error)

	// SearchByName returns up to limit patients where either name field
	// contains either given name. It deliberately over-fetches; callers
	// score and filter the candidates themselves.
	SearchByName(ctx context.Context, first, last string, limit int) ([]*Patient, error)

	// LinkFolder appends folderID to the patient's linked folders. Linking
	// an already-linked folder is a no-op.
	LinkFolder(ctx context.Context, id uuid.UUID, folderID string) error

	Count(ctx context.Context) (int, error)
}
