package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDelimitedExtractor_CSV(t *testing.T) {
	path := writeTemp(t, "export.csv",
		"patient_id,Last Name,First Name,date_of_birth,phone\n"+
			"L-1,DOE,JOHN,1980-01-01,0612345678\n"+
			"L-2,SMITH,JANE,,\n")

	records, err := NewDelimitedExtractor(path, "csv_export").Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	r := records[0]
	if r.LegacyID != "L-1" || r.LastName != "DOE" || r.FirstName != "JOHN" {
		t.Errorf("unexpected record %+v", r)
	}
	if r.DOB == nil || !r.DOB.Equal(time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected dob %v", r.DOB)
	}
	if r.Phone != "0612345678" {
		t.Errorf("unexpected phone %q", r.Phone)
	}
	if r.LegacySystem != "csv_export" {
		t.Errorf("unexpected legacy system %q", r.LegacySystem)
	}

	if records[1].DOB != nil {
		t.Errorf("expected nil dob for empty cell, got %v", records[1].DOB)
	}
}

func TestDelimitedExtractor_SemicolonFrenchHeaders(t *testing.T) {
	path := writeTemp(t, "export.csv",
		"id;nom;prenom;date_naissance;sexe\n"+
			"12;Dupont;Marie;02/03/1975;F\n")

	records, err := NewDelimitedExtractor(path, "csv_export").Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.LegacyID != "12" || r.LastName != "Dupont" || r.FirstName != "Marie" || r.Gender != "F" {
		t.Errorf("unexpected record %+v", r)
	}
	if r.DOB == nil || !r.DOB.Equal(time.Date(1975, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected dob %v", r.DOB)
	}
}

func TestDelimitedExtractor_KeylessRows(t *testing.T) {
	path := writeTemp(t, "export.csv",
		"legacy_id,last_name,first_name\n"+
			",DOE,JOHN\n"+ // no identifier, but named: synthetic folder id
			",,\n") // nothing at all: dropped

	records, err := NewDelimitedExtractor(path, "csv_export").Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].FolderID != "doe_john" {
		t.Errorf("expected synthetic folder id, got %q", records[0].FolderID)
	}
}

func TestDelimitedExtractor_UnknownHeadersIgnored(t *testing.T) {
	path := writeTemp(t, "export.csv",
		"legacy_id,internal_code,last_name\n"+
			"L-1,XYZ,DOE\n")

	records, err := NewDelimitedExtractor(path, "csv_export").Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].LegacyID != "L-1" || records[0].LastName != "DOE" {
		t.Errorf("unexpected record %+v", records[0])
	}
}

func TestDelimitedExtractor_MissingFile(t *testing.T) {
	_, err := NewDelimitedExtractor(filepath.Join(t.TempDir(), "nope.csv"), "csv_export").Extract()
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestDelimitedExtractor_EmptyFile(t *testing.T) {
	path := writeTemp(t, "export.csv", "")
	if _, err := NewDelimitedExtractor(path, "csv_export").Extract(); err == nil {
		t.Fatal("expected an error for an empty file")
	}
}
