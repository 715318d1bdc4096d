package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// artifactExtensions is the allow-list of dependent artifact files counted
// per patient folder: imaging, reports and DICOM exports.
var artifactExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".tif": true, ".tiff": true, ".pdf": true, ".dcm": true,
}

// metadataFileNames are probed inside each patient folder for demographic
// fields; the first one present wins and later candidates are not merged.
var metadataFileNames = []string{"patient.json", "patient_info.txt"}

// folderPatterns are the known legacy folder naming conventions, in
// precedence order. The first matching pattern wins.
var folderPatterns = []struct {
	re    *regexp.Regexp
	apply func(m []string, rec *LegacyRecord)
}{
	{
		// 1. identifier + last + first: 5001_DOE_JOHN
		re: regexp.MustCompile(`^(\d+)_([A-Za-z'-]+)_([A-Za-z'-]+)$`),
		apply: func(m []string, rec *LegacyRecord) {
			rec.FolderID = m[1]
			rec.LastName = m[2]
			rec.FirstName = m[3]
		},
	},
	{
		// 2. last + first + 8-digit date: DOE_JOHN_01011980
		re: regexp.MustCompile(`^([A-Za-z'-]+)_([A-Za-z'-]+)_(\d{8})$`),
		apply: func(m []string, rec *LegacyRecord) {
			rec.LastName = m[1]
			rec.FirstName = m[2]
			rec.DOB = parse8DigitDate(m[3])
		},
	},
	{
		// 3. "last first (id)": DOE JOHN (5001)
		re: regexp.MustCompile(`^([A-Za-z'-]+)\s+([A-Za-z'-]+)\s*\((\w+)\)$`),
		apply: func(m []string, rec *LegacyRecord) {
			rec.LastName = m[1]
			rec.FirstName = m[2]
			rec.FolderID = m[3]
		},
	},
	{
		// 4. free-form "last first": DOE JOHN or DOE_JOHN
		re: regexp.MustCompile(`^([A-Za-z'-]+)[ _]([A-Za-z'-]+)$`),
		apply: func(m []string, rec *LegacyRecord) {
			rec.LastName = m[1]
			rec.FirstName = m[2]
		},
	},
	{
		// 5. bare numeric identifier: 5001
		re: regexp.MustCompile(`^(\d+)$`),
		apply: func(m []string, rec *LegacyRecord) {
			rec.FolderID = m[1]
		},
	},
	{
		// 6. name + identifier: DOE_JOHN_5001 (non-8-digit id, else
		// pattern 2 would have consumed it as a date)
		re: regexp.MustCompile(`^([A-Za-z'-]+)_([A-Za-z'-]+)_(\d+)$`),
		apply: func(m []string, rec *LegacyRecord) {
			rec.LastName = m[1]
			rec.FirstName = m[2]
			rec.FolderID = m[3]
		},
	},
}

// dateLayouts are the known date formats across legacy exports, European
// forms first.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
	"20060102",
	"02012006",
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// parse8DigitDate reads an 8-digit folder-name date, day-month-year first
// (the legacy exports are European), then year-month-day.
func parse8DigitDate(s string) *time.Time {
	if t, err := time.Parse("02012006", s); err == nil {
		return &t
	}
	if t, err := time.Parse("20060102", s); err == nil {
		return &t
	}
	return nil
}

// FolderExtractor discovers one candidate legacy record per immediate
// subdirectory of the source root. Read-only.
type FolderExtractor struct {
	root         string
	legacySystem string
	fastScan     bool
}

func NewFolderExtractor(root, legacySystem string, fastScan bool) *FolderExtractor {
	return &FolderExtractor{root: root, legacySystem: legacySystem, fastScan: fastScan}
}

// Extract materializes the full candidate list. An unreadable source root
// is fatal for the run; unreadable metadata inside a folder is not.
func (e *FolderExtractor) Extract() ([]*LegacyRecord, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return nil, fmt.Errorf("read source directory %s: %w", e.root, err)
	}

	var records []*LegacyRecord
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		name := entry.Name()
		dir := filepath.Join(e.root, name)
		rec := &LegacyRecord{
			LegacySystem: e.legacySystem,
			SourcePath:   dir,
		}

		if !parseFolderName(name, rec) || rec.FolderID == "" {
			// No pattern matched (or the pattern carried no identifier):
			// the directory name itself becomes the folder identifier.
			rec.FolderID = name
		}

		if !e.fastScan {
			mergeMetadata(dir, rec)
			rec.ArtifactCount = countArtifacts(dir)
		}

		records = append(records, rec)
	}
	return records, nil
}

// parseFolderName fills identity fields from the directory name. The first
// matching pattern wins; remaining patterns are not tried.
func parseFolderName(name string, rec *LegacyRecord) bool {
	name = strings.TrimSpace(name)
	for _, p := range folderPatterns {
		if m := p.re.FindStringSubmatch(name); m != nil {
			p.apply(m, rec)
			return true
		}
	}
	return false
}

// metadataFields is the subset of demographics a metadata file may carry.
type metadataFields struct {
	LegacyID  string `json:"legacy_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	DOB       string `json:"dob"`
	Gender    string `json:"gender"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

// mergeMetadata probes the known metadata file names and merges any fields
// found into rec. Fields already parsed from the folder name are kept.
// Unreadable or unparseable files are treated as "no additional fields".
func mergeMetadata(dir string, rec *LegacyRecord) {
	for _, name := range metadataFileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var fields *metadataFields
		if strings.HasSuffix(name, ".json") {
			fields = parseMetadataJSON(data)
		} else {
			fields = parseMetadataKV(data)
		}
		if fields == nil {
			continue
		}

		if rec.LegacyID == "" {
			rec.LegacyID = fields.LegacyID
		}
		if rec.FirstName == "" {
			rec.FirstName = fields.FirstName
		}
		if rec.LastName == "" {
			rec.LastName = fields.LastName
		}
		if rec.DOB == nil {
			rec.DOB = parseDate(fields.DOB)
		}
		if rec.Gender == "" {
			rec.Gender = fields.Gender
		}
		if rec.Phone == "" {
			rec.Phone = fields.Phone
		}
		if rec.Email == "" {
			rec.Email = fields.Email
		}
		return // first present candidate wins, later files are not merged
	}
}

func parseMetadataJSON(data []byte) *metadataFields {
	f := &metadataFields{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil
	}
	return f
}

// parseMetadataKV reads "key: value" lines.
func parseMetadataKV(data []byte) *metadataFields {
	f := &metadataFields{}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "legacy_id", "id":
			f.LegacyID = value
		case "first_name", "prenom":
			f.FirstName = value
		case "last_name", "nom":
			f.LastName = value
		case "dob", "date_of_birth", "date_naissance":
			f.DOB = value
		case "gender", "sex", "sexe":
			f.Gender = value
		case "phone", "telephone", "tel":
			f.Phone = value
		case "email", "mail":
			f.Email = value
		}
	}
	return f
}

// countArtifacts walks the patient folder and counts files on the artifact
// extension allow-list. Hidden entries are skipped.
func countArtifacts(dir string) int {
	count := 0
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree counts as empty
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && artifactExtensions[strings.ToLower(filepath.Ext(path))] {
			count++
		}
		return nil
	})
	return count
}

// listArtifacts returns the allow-listed artifact files under dir, for the
// exam import step.
func listArtifacts(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && artifactExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	return files
}
