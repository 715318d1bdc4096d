// Package migration implements the legacy patient identity resolution and
// migration engine: it ingests patient records exported from prior
// record-keeping systems (directory-per-patient trees or delimited files),
// reconciles each against the current patient repository, and keeps a
// durable per-record mapping ledger for idempotency and audit.
package migration

import (
	"time"

	"github.com/google/uuid"
)

// Action is the outcome the resolver (or orchestrator) decided for one
// legacy record within one run.
type Action string

const (
	ActionMatched     Action = "matched"
	ActionCreated     Action = "created"
	ActionNeedsReview Action = "needs_review"
	ActionSkipped     Action = "skipped"
	ActionError       Action = "error"
)

// Method names the strategy that produced a match.
type Method string

const (
	MethodExactID   Method = "exact_id"
	MethodFolderID  Method = "folder_id"
	MethodNameDOB   Method = "name_dob"
	MethodFuzzyName Method = "fuzzy_name"
	MethodNone      Method = "none"
)

// MappingStatus mirrors Action on the durable ledger, plus the
// pre-processing default and the manual-merge outcome.
type MappingStatus string

const (
	StatusPending     MappingStatus = "pending"
	StatusMatched     MappingStatus = "matched"
	StatusCreated     MappingStatus = "created"
	StatusNeedsReview MappingStatus = "needs_review"
	StatusSkipped     MappingStatus = "skipped"
	StatusError       MappingStatus = "error"
	StatusMerged      MappingStatus = "merged"
)

// finalStatuses are the ledger states resume mode treats as done.
// pending and error records are retried.
var finalStatuses = map[MappingStatus]bool{
	StatusMatched: true,
	StatusCreated: true,
	StatusMerged:  true,
	StatusSkipped: true,
}

// IsFinal reports whether a record in this status is skipped by resume mode.
func (s MappingStatus) IsFinal() bool {
	return finalStatuses[s]
}

// LegacyRecord is one candidate patient discovered from a legacy export.
// Produced fresh on every run and never persisted directly.
type LegacyRecord struct {
	LegacySystem  string
	LegacyID      string
	FolderID      string
	FirstName     string
	LastName      string
	DOB           *time.Time
	Gender        string
	Phone         string
	Email         string
	SourcePath    string
	ArtifactCount int
}

// Key returns the identifier the mapping ledger is keyed on: the stable
// legacy identifier when present, otherwise the folder identifier.
func (r *LegacyRecord) Key() string {
	if r.LegacyID != "" {
		return r.LegacyID
	}
	return r.FolderID
}

// DisplayName returns "LAST FIRST" for report and log output.
func (r *LegacyRecord) DisplayName() string {
	switch {
	case r.LastName != "" && r.FirstName != "":
		return r.LastName + " " + r.FirstName
	case r.LastName != "":
		return r.LastName
	default:
		return r.FirstName
	}
}

// MappingRecord is the durable per-source-record outcome: one row per
// (source key, legacy system), upserted on every run that touches the key
// and never deleted by this subsystem.
type MappingRecord struct {
	SourceKey         string
	LegacySystem      string
	Status            MappingStatus
	PatientID         *uuid.UUID
	MatchConfidence   float64
	MatchMethod       Method
	FirstName         string
	LastName          string
	BirthDate         *time.Time
	Gender            string
	ArtifactsFound    int
	ArtifactsImported int
	NeedsReview       bool
	ReviewReason      string
	ErrorMessage      string
	ProcessedAt       time.Time
}
