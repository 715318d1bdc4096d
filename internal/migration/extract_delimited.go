package migration

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// headerAliases maps known export header names (case-insensitive, spaces
// normalized to underscores) to LegacyRecord fields. French aliases cover
// the older practice exports.
var headerAliases = map[string]string{
	"legacy_id":  "legacy_id",
	"patient_id": "legacy_id",
	"id":         "legacy_id",

	"folder_id": "folder_id",
	"folder":    "folder_id",

	"last_name": "last_name",
	"lastname":  "last_name",
	"nom":       "last_name",

	"first_name": "first_name",
	"firstname":  "first_name",
	"prenom":     "first_name",

	"dob":            "dob",
	"date_of_birth":  "dob",
	"birth_date":     "dob",
	"date_naissance": "dob",

	"gender": "gender",
	"sex":    "gender",
	"sexe":   "gender",

	"phone":     "phone",
	"telephone": "phone",
	"tel":       "phone",

	"email": "email",
	"mail":  "email",
}

// DelimitedExtractor maps each row of a delimited export file to a
// LegacyRecord through the header-alias dictionary.
type DelimitedExtractor struct {
	path         string
	legacySystem string
}

func NewDelimitedExtractor(path, legacySystem string) *DelimitedExtractor {
	return &DelimitedExtractor{path: path, legacySystem: legacySystem}
}

// Extract materializes one record per data row. An unreadable or malformed
// source file is fatal for the run. Rows carrying neither an identifier nor
// a name are dropped: there is nothing to key or match on.
func (e *DelimitedExtractor) Extract() ([]*LegacyRecord, error) {
	f, err := os.Open(e.path)
	if err != nil {
		return nil, fmt.Errorf("open source file %s: %w", e.path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	delim, err := sniffDelimiter(br)
	if err != nil {
		return nil, fmt.Errorf("read source file %s: %w", e.path, err)
	}

	r := csv.NewReader(br)
	r.Comma = delim
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse source file %s: %w", e.path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("source file %s is empty", e.path)
	}

	// Map header positions to canonical field names.
	fields := make(map[int]string)
	for i, h := range rows[0] {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if canonical, ok := headerAliases[key]; ok {
			fields[i] = canonical
		}
	}

	var records []*LegacyRecord
	for _, row := range rows[1:] {
		rec := &LegacyRecord{LegacySystem: e.legacySystem}
		for i, value := range row {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			switch fields[i] {
			case "legacy_id":
				rec.LegacyID = value
			case "folder_id":
				rec.FolderID = value
			case "last_name":
				rec.LastName = value
			case "first_name":
				rec.FirstName = value
			case "dob":
				rec.DOB = parseDate(value)
			case "gender":
				rec.Gender = value
			case "phone":
				rec.Phone = value
			case "email":
				rec.Email = value
			}
		}

		if rec.Key() == "" {
			if rec.LastName == "" && rec.FirstName == "" {
				continue
			}
			rec.FolderID = strings.ToLower(strings.Trim(rec.LastName+"_"+rec.FirstName, "_"))
		}
		records = append(records, rec)
	}
	return records, nil
}

// sniffDelimiter peeks at the header line and picks semicolon when it
// outnumbers commas (the French exports are semicolon-delimited).
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	const peekSize = 4096
	head, err := br.Peek(peekSize)
	if err != nil && len(head) == 0 {
		return ',', err
	}
	line := string(head)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';', nil
	}
	return ',', nil
}
