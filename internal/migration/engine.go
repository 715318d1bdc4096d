package migration

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinico/clinico/internal/domain/identity"
)

// progressInterval is the record-count cadence for progress log lines when
// not running verbose.
const progressInterval = 25

// Placeholder defaults for source fields the patient table requires but the
// legacy record did not supply. Documented values, never look-alike data.
var (
	placeholderDOB   = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	placeholderPhone = "0000000000"
)

// RunOptions is the per-run configuration of the orchestrator.
type RunOptions struct {
	LegacySystem string
	DryRun       bool
	Resume       bool
	ImportExams  bool
	Verbose      bool
}

// ReportRow is one processed record's outcome, as emitted to the run report.
type ReportRow struct {
	SourceID          string
	FolderID          string
	Name              string
	DOB               string
	Action            Action
	Confidence        float64
	PatientID         string
	ArtifactsImported int
	Notes             string
}

// RunResult is the run-scoped accumulator returned at run end. No global
// state: every counter lives here.
type RunResult struct {
	Processed         int
	Matched           int
	Created           int
	NeedsReview       int
	Skipped           int
	Errors            int
	ArtifactsImported int
	Duration          time.Duration
	Rows              []ReportRow
}

// Engine drives the migration pipeline end-to-end over a materialized
// candidate list, strictly one record at a time.
type Engine struct {
	patients identity.PatientRepository
	tracker  MappingTracker
	resolver *Resolver
	exams    ExamAdapter
	logger   zerolog.Logger
}

func NewEngine(patients identity.PatientRepository, tracker MappingTracker, resolver *Resolver, exams ExamAdapter, logger zerolog.Logger) *Engine {
	return &Engine{
		patients: patients,
		tracker:  tracker,
		resolver: resolver,
		exams:    exams,
		logger:   logger,
	}
}

// Run processes every record in sequence. Per-record failures are recorded
// on the mapping ledger (status error, live mode only) and never stop the
// run; only a cancelled context aborts early.
func (e *Engine) Run(ctx context.Context, records []*LegacyRecord, opts RunOptions) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		row, err := e.safeProcess(ctx, rec, opts)
		if err != nil {
			result.Errors++
			row = ReportRow{
				SourceID: rec.LegacyID,
				FolderID: rec.FolderID,
				Name:     rec.DisplayName(),
				Action:   ActionError,
				Notes:    err.Error(),
			}
			if rec.DOB != nil {
				row.DOB = rec.DOB.Format("2006-01-02")
			}
			e.logger.Error().Err(err).Str("key", rec.Key()).Msg("record failed")
			if !opts.DryRun {
				e.recordError(ctx, rec, err)
			}
		} else {
			switch row.Action {
			case ActionMatched:
				result.Matched++
			case ActionCreated:
				result.Created++
			case ActionNeedsReview:
				result.NeedsReview++
			case ActionSkipped:
				result.Skipped++
			}
			result.ArtifactsImported += row.ArtifactsImported
		}
		result.Processed++
		result.Rows = append(result.Rows, row)

		if opts.Verbose {
			e.logger.Info().
				Str("key", rec.Key()).
				Str("name", rec.DisplayName()).
				Str("action", string(row.Action)).
				Float64("confidence", row.Confidence).
				Msg("record processed")
		} else if (i+1)%progressInterval == 0 {
			e.logger.Info().Int("processed", i+1).Int("total", len(records)).Msg("migration progress")
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// safeProcess converts a per-record panic into a per-record error so one
// malformed record cannot take down the run.
func (e *Engine) safeProcess(ctx context.Context, rec *LegacyRecord, opts RunOptions) (row ReportRow, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic processing %s: %v\n%s", rec.Key(), p, debug.Stack())
		}
	}()
	return e.process(ctx, rec, opts)
}

func (e *Engine) process(ctx context.Context, rec *LegacyRecord, opts RunOptions) (ReportRow, error) {
	row := ReportRow{
		SourceID: rec.LegacyID,
		FolderID: rec.FolderID,
		Name:     rec.DisplayName(),
	}
	if rec.DOB != nil {
		row.DOB = rec.DOB.Format("2006-01-02")
	}

	// Resume mode: finalized records are not reprocessed. The existing
	// ledger row keeps its status; only this run's report marks the skip.
	if opts.Resume {
		existing, err := e.tracker.Find(ctx, rec.Key(), rec.LegacySystem)
		if err != nil {
			return row, err
		}
		if existing != nil && existing.Status.IsFinal() {
			row.Action = ActionSkipped
			row.Notes = "already_processed"
			if existing.PatientID != nil {
				row.PatientID = existing.PatientID.String()
			}
			return row, nil
		}
	}

	decision, err := e.resolver.Resolve(ctx, rec)
	if err != nil {
		return row, err
	}
	row.Action = decision.Action
	row.Confidence = decision.Confidence
	row.Notes = decision.Note

	var patientID *uuid.UUID
	switch decision.Action {
	case ActionMatched:
		p := decision.Patient
		patientID = &p.ID
		if !opts.DryRun && rec.FolderID != "" && !p.HasFolder(rec.FolderID) {
			if err := e.patients.LinkFolder(ctx, p.ID, rec.FolderID); err != nil {
				return row, err
			}
		}

	case ActionCreated:
		p := buildPatient(rec)
		if !opts.DryRun {
			if err := e.patients.Create(ctx, p); err != nil {
				return row, err
			}
			patientID = &p.ID
		}

	case ActionNeedsReview:
		// No mutation; the candidate reference is kept on the ledger so a
		// reviewer can resolve the case by hand.
		if decision.Patient != nil {
			patientID = &decision.Patient.ID
		}
	}

	if patientID != nil {
		row.PatientID = patientID.String()
	}

	if opts.ImportExams && rec.SourcePath != "" &&
		(decision.Action == ActionMatched || decision.Action == ActionCreated) {
		row.ArtifactsImported = e.importExams(ctx, rec, patientID, opts.DryRun)
	}

	if !opts.DryRun {
		mapping := &MappingRecord{
			SourceKey:         rec.Key(),
			LegacySystem:      rec.LegacySystem,
			Status:            MappingStatus(decision.Action),
			PatientID:         patientID,
			MatchConfidence:   decision.Confidence,
			MatchMethod:       decision.Method,
			FirstName:         rec.FirstName,
			LastName:          rec.LastName,
			BirthDate:         rec.DOB,
			Gender:            rec.Gender,
			ArtifactsFound:    rec.ArtifactCount,
			ArtifactsImported: row.ArtifactsImported,
			NeedsReview:       decision.Action == ActionNeedsReview,
			ReviewReason:      decision.Note,
		}
		if err := e.tracker.Upsert(ctx, mapping); err != nil {
			return row, err
		}
	}

	return row, nil
}

// importExams delegates each artifact file to the exam adapter. Files the
// adapter cannot parse are skipped, not errors. In dry-run the counting
// logic runs identically but nothing is persisted.
func (e *Engine) importExams(ctx context.Context, rec *LegacyRecord, patientID *uuid.UUID, dryRun bool) int {
	imported := 0
	for _, path := range listArtifacts(rec.SourcePath) {
		data, err := e.exams.Parse(path)
		if err != nil {
			e.logger.Debug().Err(err).Str("file", path).Msg("artifact skipped")
			continue
		}
		if !dryRun && patientID != nil {
			if err := e.exams.Process(ctx, data, *patientID); err != nil {
				e.logger.Warn().Err(err).Str("file", path).Msg("artifact import failed")
				continue
			}
		}
		imported++
	}
	return imported
}

// recordError upserts an error-status ledger row. A failing upsert here is
// only logged: the record is already counted as an error and the run must
// go on.
func (e *Engine) recordError(ctx context.Context, rec *LegacyRecord, recErr error) {
	mapping := &MappingRecord{
		SourceKey:      rec.Key(),
		LegacySystem:   rec.LegacySystem,
		Status:         StatusError,
		MatchMethod:    MethodNone,
		FirstName:      rec.FirstName,
		LastName:       rec.LastName,
		BirthDate:      rec.DOB,
		Gender:         rec.Gender,
		ArtifactsFound: rec.ArtifactCount,
		ErrorMessage:   recErr.Error(),
	}
	if err := e.tracker.Upsert(ctx, mapping); err != nil {
		e.logger.Error().Err(err).Str("key", rec.Key()).Msg("failed to record error on mapping ledger")
	}
}

// buildPatient maps a legacy record onto a new patient, filling every
// recognized-but-absent field with its documented placeholder.
func buildPatient(rec *LegacyRecord) *identity.Patient {
	p := &identity.Patient{
		ID:        uuid.New(),
		Active:    true,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
	}

	if rec.LegacyID != "" {
		legacyID := rec.LegacyID
		p.LegacyID = &legacyID
	}
	// Always a concrete slice: a nil slice would land in the patient table
	// as SQL NULL, and NULL arrays break ANY() folder lookups and linking.
	p.FolderIDs = []string{}
	if rec.FolderID != "" {
		p.FolderIDs = []string{rec.FolderID}
	}

	var placeholders []string
	if p.FirstName == "" {
		p.FirstName = "Unknown"
		placeholders = append(placeholders, "first_name")
	}
	if p.LastName == "" {
		p.LastName = rec.Key()
		placeholders = append(placeholders, "last_name")
	}

	if rec.DOB != nil {
		dob := *rec.DOB
		p.BirthDate = &dob
	} else {
		dob := placeholderDOB
		p.BirthDate = &dob
		placeholders = append(placeholders, "birth_date")
	}
	if rec.Gender != "" {
		gender := rec.Gender
		p.Gender = &gender
	} else {
		placeholders = append(placeholders, "gender")
	}
	if rec.Phone != "" {
		phone := rec.Phone
		p.Phone = &phone
	} else {
		phone := placeholderPhone
		p.Phone = &phone
		placeholders = append(placeholders, "phone")
	}
	if rec.Email != "" {
		email := rec.Email
		p.Email = &email
	} else {
		placeholders = append(placeholders, "email")
	}

	// Legacy exports never carry an address or blood type.
	placeholders = append(placeholders, "address", "blood_type")

	p.PlaceholderFields = placeholders
	return p
}

// Window applies the skip/limit pagination window over the materialized
// candidate list.
func Window(records []*LegacyRecord, skip, limit int) []*LegacyRecord {
	if skip > 0 {
		if skip >= len(records) {
			return nil
		}
		records = records[skip:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
