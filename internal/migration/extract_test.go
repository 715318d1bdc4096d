package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	dir := filepath.Join(parts...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func findRecord(t *testing.T, records []*LegacyRecord, folderID string) *LegacyRecord {
	t.Helper()
	for _, r := range records {
		if r.FolderID == folderID {
			return r
		}
	}
	t.Fatalf("no record with folder id %q", folderID)
	return nil
}

func TestParseFolderName(t *testing.T) {
	tests := []struct {
		folder    string
		folderID  string
		firstName string
		lastName  string
		dob       *time.Time
	}{
		{"5001_DOE_JOHN", "5001", "JOHN", "DOE", nil},
		{"DOE_JOHN_01011980", "", "JOHN", "DOE", datePtr(1980, 1, 1)},
		{"DOE JOHN (5001)", "5001", "JOHN", "DOE", nil},
		{"DOE_JOHN", "", "JOHN", "DOE", nil},
		{"DOE JOHN", "", "JOHN", "DOE", nil},
		{"5001", "5001", "", "", nil},
		{"SMITH_JANE_5001", "5001", "JANE", "SMITH", nil},
		{"O'NEILL_MARIE-CLAIRE", "", "MARIE-CLAIRE", "O'NEILL", nil},
	}
	for _, tt := range tests {
		t.Run(tt.folder, func(t *testing.T) {
			rec := &LegacyRecord{}
			if !parseFolderName(tt.folder, rec) {
				t.Fatalf("expected %q to match a pattern", tt.folder)
			}
			if rec.FolderID != tt.folderID {
				t.Errorf("folder id = %q, want %q", rec.FolderID, tt.folderID)
			}
			if rec.FirstName != tt.firstName {
				t.Errorf("first name = %q, want %q", rec.FirstName, tt.firstName)
			}
			if rec.LastName != tt.lastName {
				t.Errorf("last name = %q, want %q", rec.LastName, tt.lastName)
			}
			if (rec.DOB == nil) != (tt.dob == nil) {
				t.Fatalf("dob = %v, want %v", rec.DOB, tt.dob)
			}
			if tt.dob != nil && !rec.DOB.Equal(*tt.dob) {
				t.Errorf("dob = %v, want %v", rec.DOB, tt.dob)
			}
		})
	}
}

func TestParseFolderName_NoMatch(t *testing.T) {
	rec := &LegacyRecord{}
	if parseFolderName("scans & misc!", rec) {
		t.Error("expected no pattern to match")
	}
}

func TestParse8DigitDate_EuropeanFirst(t *testing.T) {
	// 01021980 is ambiguous; day-month-year wins: 1 Feb 1980.
	got := parse8DigitDate("01021980")
	if got == nil {
		t.Fatal("expected a date")
	}
	want := time.Date(1980, 2, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// 19800201 cannot be day-month-year; falls through to year-month-day.
	got = parse8DigitDate("19800201")
	if got == nil || !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if parse8DigitDate("99999999") != nil {
		t.Error("expected nil for an impossible date")
	}
}

func TestParseDate_Layouts(t *testing.T) {
	want := time.Date(1980, 2, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"1980-02-01", "01/02/1980", "1980/02/01", "01-02-1980"} {
		got := parseDate(s)
		if got == nil || !got.Equal(want) {
			t.Errorf("parseDate(%q) = %v, want %v", s, got, want)
		}
	}
	if parseDate("not a date") != nil {
		t.Error("expected nil for garbage input")
	}
	if parseDate("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestFolderExtractor_Extract(t *testing.T) {
	root := t.TempDir()

	d1 := mkdir(t, root, "DOE_JOHN_01011980")
	writeFile(t, d1, "macula.jpg", "x")
	writeFile(t, d1, "report.pdf", "x")
	writeFile(t, d1, "notes.txt", "x") // not an artifact

	d2 := mkdir(t, root, "SMITH_JANE_5001")
	writeFile(t, d2, "oct.dcm", "x")

	mkdir(t, root, ".Trash")                       // hidden, skipped
	writeFile(t, root, "stray.jpg", "x")           // file at root, skipped
	nested := mkdir(t, d2, "2019", "exports")      // artifacts counted recursively
	writeFile(t, nested, "fundus.TIFF", "x")       // extension match is case-insensitive
	writeFile(t, mkdir(t, d2, ".cache"), "a.jpg", "x") // hidden subtree skipped

	e := NewFolderExtractor(root, "folder_based", false)
	records, err := e.Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// Pattern carried no identifier, so the directory name is the folder id.
	doe := findRecord(t, records, "DOE_JOHN_01011980")
	if doe.FirstName != "JOHN" || doe.LastName != "DOE" {
		t.Errorf("unexpected names %q %q", doe.FirstName, doe.LastName)
	}
	if doe.DOB == nil || !doe.DOB.Equal(time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected dob %v", doe.DOB)
	}
	if doe.ArtifactCount != 2 {
		t.Errorf("expected 2 artifacts, got %d", doe.ArtifactCount)
	}
	if doe.LegacySystem != "folder_based" {
		t.Errorf("unexpected legacy system %q", doe.LegacySystem)
	}

	smith := findRecord(t, records, "5001")
	if smith.FirstName != "JANE" || smith.LastName != "SMITH" {
		t.Errorf("unexpected names %q %q", smith.FirstName, smith.LastName)
	}
	if smith.ArtifactCount != 2 {
		t.Errorf("expected 2 artifacts, got %d", smith.ArtifactCount)
	}
}

func TestFolderExtractor_MetadataMerge(t *testing.T) {
	root := t.TempDir()
	dir := mkdir(t, root, "DOE_JOHN")
	writeFile(t, dir, "patient.json",
		`{"legacy_id":"L-42","first_name":"Johnny","dob":"1980-01-01","phone":"0612345678"}`)

	e := NewFolderExtractor(root, "folder_based", false)
	records, err := e.Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := records[0]

	// Folder-name fields win; metadata only fills the gaps.
	if rec.FirstName != "JOHN" {
		t.Errorf("expected folder name to win, got first name %q", rec.FirstName)
	}
	if rec.LegacyID != "L-42" {
		t.Errorf("expected legacy id from metadata, got %q", rec.LegacyID)
	}
	if rec.DOB == nil || !rec.DOB.Equal(time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected dob from metadata, got %v", rec.DOB)
	}
	if rec.Phone != "0612345678" {
		t.Errorf("expected phone from metadata, got %q", rec.Phone)
	}
}

func TestFolderExtractor_MetadataKV_FrenchKeys(t *testing.T) {
	root := t.TempDir()
	dir := mkdir(t, root, "7001")
	writeFile(t, dir, "patient_info.txt",
		"nom: Dupont\nprenom: Marie\ndate_naissance: 02/03/1975\nsexe: F\nignored line\n")

	e := NewFolderExtractor(root, "folder_based", false)
	records, err := e.Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := records[0]
	if rec.LastName != "Dupont" || rec.FirstName != "Marie" {
		t.Errorf("unexpected names %q %q", rec.FirstName, rec.LastName)
	}
	if rec.DOB == nil || !rec.DOB.Equal(time.Date(1975, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected dob %v", rec.DOB)
	}
	if rec.Gender != "F" {
		t.Errorf("unexpected gender %q", rec.Gender)
	}
}

func TestFolderExtractor_FirstMetadataFileWins(t *testing.T) {
	root := t.TempDir()
	dir := mkdir(t, root, "8001")
	writeFile(t, dir, "patient.json", `{"first_name":"Alice"}`)
	writeFile(t, dir, "patient_info.txt", "first_name: Bob\nlast_name: Carter\n")

	e := NewFolderExtractor(root, "folder_based", false)
	records, err := e.Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].FirstName != "Alice" {
		t.Errorf("expected patient.json to win, got %q", records[0].FirstName)
	}
	if records[0].LastName != "" {
		t.Errorf("expected later files not to merge, got %q", records[0].LastName)
	}
}

func TestFolderExtractor_FastScan(t *testing.T) {
	root := t.TempDir()
	dir := mkdir(t, root, "DOE_JOHN")
	writeFile(t, dir, "patient.json", `{"legacy_id":"L-42"}`)
	writeFile(t, dir, "macula.jpg", "x")

	e := NewFolderExtractor(root, "folder_based", true)
	records, err := e.Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := records[0]
	if rec.LegacyID != "" {
		t.Error("fast scan must not read metadata")
	}
	if rec.ArtifactCount != 0 {
		t.Error("fast scan must not count artifacts")
	}
}

func TestFolderExtractor_MissingRoot(t *testing.T) {
	e := NewFolderExtractor(filepath.Join(t.TempDir(), "nope"), "folder_based", false)
	if _, err := e.Extract(); err == nil {
		t.Fatal("expected an error for a missing source root")
	}
}

func TestFolderExtractor_MalformedMetadataIgnored(t *testing.T) {
	root := t.TempDir()
	dir := mkdir(t, root, "DOE_JOHN")
	writeFile(t, dir, "patient.json", `{not json`)

	e := NewFolderExtractor(root, "folder_based", false)
	records, err := e.Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].FirstName != "JOHN" {
		t.Errorf("folder name fields should survive, got %q", records[0].FirstName)
	}
}
