package migration

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	rows := []ReportRow{
		{
			SourceID:   "L-1",
			FolderID:   "5001",
			Name:       "DOE JOHN",
			DOB:        "1980-01-01",
			Action:     ActionMatched,
			Confidence: 0.875,
			PatientID:  "0f0e0d0c-0b0a-0908-0706-050403020100",
		},
		{
			FolderID: "5002",
			Name:     `O'NEILL, "Mac" JR`,
			Action:   ActionError,
			Notes:    "read failed, retrying later",
		},
	}
	if err := WriteReport(path, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	parsed, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("report is not valid csv: %v", err)
	}
	if len(parsed) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(parsed))
	}
	if parsed[0][0] != "source_id" || parsed[0][8] != "notes" {
		t.Errorf("unexpected header %v", parsed[0])
	}

	first := parsed[1]
	if first[0] != "L-1" || first[4] != "matched" || first[5] != "87.5%" {
		t.Errorf("unexpected first row %v", first)
	}

	// Embedded commas and quotes survive round-trip.
	second := parsed[2]
	if second[2] != `O'NEILL, "Mac" JR` {
		t.Errorf("unexpected name %q", second[2])
	}
	if second[8] != "read failed, retrying later" {
		t.Errorf("unexpected notes %q", second[8])
	}
}

func TestWriteReport_EveryFieldQuoted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := WriteReport(path, []ReportRow{{SourceID: "L-1", Action: ActionCreated}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for i, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		for _, field := range strings.Split(line, ",") {
			if !strings.HasPrefix(field, `"`) || !strings.HasSuffix(field, `"`) {
				t.Errorf("line %d field %q is not quoted", i, field)
			}
		}
	}
}

func TestWriteReport_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := WriteReport(path, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 1 {
		t.Errorf("expected only the header line, got %d lines", len(lines))
	}
}

func TestWriteReport_UnwritablePath(t *testing.T) {
	err := WriteReport(filepath.Join(t.TempDir(), "missing", "report.csv"), nil)
	if err == nil {
		t.Fatal("expected an error for an unwritable path")
	}
}
