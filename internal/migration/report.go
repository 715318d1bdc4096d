package migration

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var reportHeader = []string{
	"source_id", "folder_id", "name", "dob", "action",
	"confidence", "patient_id", "artifacts_imported", "notes",
}

// WriteReport emits the tabular run summary: a header row and one row per
// processed record. Every field is quoted so embedded separators in names
// or error messages cannot break the row structure.
func WriteReport(path string, rows []ReportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	writeRow(w, reportHeader)
	for _, row := range rows {
		writeRow(w, []string{
			row.SourceID,
			row.FolderID,
			row.Name,
			row.DOB,
			string(row.Action),
			fmt.Sprintf("%.1f%%", row.Confidence*100),
			row.PatientID,
			strconv.Itoa(row.ArtifactsImported),
			row.Notes,
		})
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func writeRow(w *bufio.Writer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(field, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteByte('\n')
}
