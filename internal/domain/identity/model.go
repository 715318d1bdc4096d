package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. Only the columns the legacy import
// engine reads or writes are carried here; the full clinical record lives
// with the main API.
type Patient struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	MRN               string     `db:"mrn" json:"mrn"`
	Active            bool       `db:"active" json:"active"`
	LegacyID          *string    `db:"legacy_id" json:"legacy_id,omitempty"`
	FirstName         string     `db:"first_name" json:"first_name"`
	LastName          string     `db:"last_name" json:"last_name"`
	BirthDate         *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender            *string    `db:"gender" json:"gender,omitempty"`
	Phone             *string    `db:"phone" json:"phone,omitempty"`
	Email             *string    `db:"email" json:"email,omitempty"`
	AddressLine1      *string    `db:"address_line1" json:"address_line1,omitempty"`
	City              *string    `db:"city" json:"city,omitempty"`
	PostalCode        *string    `db:"postal_code" json:"postal_code,omitempty"`
	BloodType         *string    `db:"blood_type" json:"blood_type,omitempty"`
	FolderIDs         []string   `db:"folder_ids" json:"folder_ids,omitempty"`
	PlaceholderFields []string   `db:"placeholder_fields" json:"placeholder_fields,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns "first last" lowercased and trimmed, the form the
// resolver scores similarity over.
func (p *Patient) FullName() string {
	return strings.ToLower(strings.TrimSpace(p.FirstName + " " + p.LastName))
}

// HasFolder reports whether folderID is already linked to this patient.
func (p *Patient) HasFolder(folderID string) bool {
	for _, f := range p.FolderIDs {
		if f == folderID {
			return true
		}
	}
	return false
}
