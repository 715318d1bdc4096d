package migration

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamData is the structured form of one dependent artifact file, as far as
// this engine needs to understand it. Clinical interpretation of the file
// contents stays outside this subsystem.
type ExamData struct {
	DeviceType  string
	ExamType    string
	SourceFile  string
	CapturedAt  *time.Time
	PatientHint string
}

// ExamAdapter imports one dependent artifact file for a patient. One
// implementation exists per supported legacy device format, selected by a
// factory keyed on the configured device type.
type ExamAdapter interface {
	Parse(path string) (*ExamData, error)
	Process(ctx context.Context, data *ExamData, patientID uuid.UUID) error
}

// ExamSink persists imported artifacts.
type ExamSink interface {
	SaveArtifact(ctx context.Context, a *ExamArtifact) error
}

// ExamArtifact maps to the exam_artifact table.
type ExamArtifact struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	DeviceType string
	ExamType   string
	CapturedAt *time.Time
	SourceFile string
}

// NewExamAdapter returns the adapter for a device type. "auto" sniffs the
// device per file.
func NewExamAdapter(deviceType string, sink ExamSink) (ExamAdapter, error) {
	switch strings.ToLower(deviceType) {
	case "zeiss":
		return &zeissAdapter{sink: sink}, nil
	case "solix":
		return &folderAdapter{device: "solix", sink: sink}, nil
	case "tomey":
		return &folderAdapter{device: "tomey", sink: sink}, nil
	case "auto", "":
		return &autoAdapter{sink: sink}, nil
	default:
		return nil, fmt.Errorf("unknown device type %q", deviceType)
	}
}

func examTypeForExt(ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".dcm":
		return "dicom", nil
	case ".pdf":
		return "report", nil
	case ".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff":
		return "image", nil
	default:
		return "", fmt.Errorf("unsupported artifact extension %q", ext)
	}
}

// zeissAdapter reads the ZEISS export convention: file stems of the form
// LAST_FIRST_ID[_DATE]_..., with an optional 8-digit capture date.
type zeissAdapter struct {
	sink ExamSink
}

var zeissIDPart = regexp.MustCompile(`^\d+$`)

func (a *zeissAdapter) Parse(path string) (*ExamData, error) {
	examType, err := examTypeForExt(filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(stem, "_")
	if len(parts) < 3 || !zeissIDPart.MatchString(parts[2]) {
		return nil, fmt.Errorf("file %s does not follow the ZEISS naming convention", filepath.Base(path))
	}

	data := &ExamData{
		DeviceType:  "zeiss",
		ExamType:    examType,
		SourceFile:  path,
		PatientHint: strings.ToLower(parts[0] + "_" + parts[1] + "_" + parts[2]),
	}
	if len(parts) > 3 {
		data.CapturedAt = parse8DigitDate(parts[3])
	}
	return data, nil
}

func (a *zeissAdapter) Process(ctx context.Context, data *ExamData, patientID uuid.UUID) error {
	return saveArtifact(ctx, a.sink, data, patientID)
}

// folderAdapter covers the devices (Solix, Tomey) whose exports identify the
// patient by the parent folder rather than the file name.
type folderAdapter struct {
	device string
	sink   ExamSink
}

func (a *folderAdapter) Parse(path string) (*ExamData, error) {
	examType, err := examTypeForExt(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return &ExamData{
		DeviceType:  a.device,
		ExamType:    examType,
		SourceFile:  path,
		PatientHint: strings.ToLower(strings.TrimSpace(filepath.Base(filepath.Dir(path)))),
	}, nil
}

func (a *folderAdapter) Process(ctx context.Context, data *ExamData, patientID uuid.UUID) error {
	return saveArtifact(ctx, a.sink, data, patientID)
}

// autoAdapter sniffs per file: stems that follow the ZEISS convention go
// through the ZEISS parser, everything else through the folder convention.
type autoAdapter struct {
	sink ExamSink
}

func (a *autoAdapter) Parse(path string) (*ExamData, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(stem, "_")
	if len(parts) >= 3 && zeissIDPart.MatchString(parts[2]) {
		return (&zeissAdapter{sink: a.sink}).Parse(path)
	}
	return (&folderAdapter{device: "generic", sink: a.sink}).Parse(path)
}

func (a *autoAdapter) Process(ctx context.Context, data *ExamData, patientID uuid.UUID) error {
	return saveArtifact(ctx, a.sink, data, patientID)
}

func saveArtifact(ctx context.Context, sink ExamSink, data *ExamData, patientID uuid.UUID) error {
	return sink.SaveArtifact(ctx, &ExamArtifact{
		ID:         uuid.New(),
		PatientID:  patientID,
		DeviceType: data.DeviceType,
		ExamType:   data.ExamType,
		CapturedAt: data.CapturedAt,
		SourceFile: data.SourceFile,
	})
}

// examSinkPG writes artifacts to the exam_artifact table.
type examSinkPG struct {
	pool *pgxpool.Pool
}

func NewExamSink(pool *pgxpool.Pool) ExamSink {
	return &examSinkPG{pool: pool}
}

func (s *examSinkPG) SaveArtifact(ctx context.Context, a *ExamArtifact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO exam_artifact (id, patient_id, device_type, exam_type, captured_at, source_file)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (patient_id, source_file) DO NOTHING`,
		a.ID, a.PatientID, a.DeviceType, a.ExamType, a.CapturedAt, a.SourceFile)
	if err != nil {
		return fmt.Errorf("save exam artifact %s: %w", a.SourceFile, err)
	}
	return nil
}
