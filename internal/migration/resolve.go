package migration

import (
	"context"
	"fmt"

	"github.com/clinico/clinico/internal/domain/identity"
)

const (
	// nameDOBConfidence is the score for a case-insensitive exact match on
	// first name, last name and date of birth.
	nameDOBConfidence = 0.98

	// dobBoost is added to a fuzzy name score when both birth dates are
	// present and equal; the combined score is capped at fuzzyCap so a
	// fuzzy match never outranks an exact one.
	dobBoost = 0.15
	fuzzyCap = 0.99

	// reviewFloor is the lowest fuzzy score still worth a human look.
	// Candidates scoring in [reviewFloor, threshold) surface as
	// needs_review; below it the record proceeds to creation.
	reviewFloor = 0.5

	fuzzyCandidateLimit = 5
)

// MatchDecision is the resolver's verdict for one legacy record.
type MatchDecision struct {
	Action     Action
	Confidence float64
	Method     Method
	Patient    *identity.Patient
	Note       string
}

// Resolver reconciles one legacy record against the patient repository.
// It performs no writes.
type Resolver struct {
	patients  identity.PatientRepository
	threshold float64
}

func NewResolver(patients identity.PatientRepository, threshold float64) *Resolver {
	return &Resolver{patients: patients, threshold: threshold}
}

// Resolve tries the match strategies in strict precedence order; the first
// strategy that finds a candidate wins and later ones are not consulted.
func (r *Resolver) Resolve(ctx context.Context, rec *LegacyRecord) (*MatchDecision, error) {
	// 1. Exact legacy identifier.
	if rec.LegacyID != "" {
		p, err := r.patients.GetByLegacyID(ctx, rec.LegacyID)
		if err != nil {
			return nil, fmt.Errorf("lookup by legacy id %q: %w", rec.LegacyID, err)
		}
		if p != nil {
			return &MatchDecision{Action: ActionMatched, Confidence: 1.0, Method: MethodExactID, Patient: p}, nil
		}
	}

	// 2. Previously linked folder identifier.
	if rec.FolderID != "" {
		p, err := r.patients.GetByFolderID(ctx, rec.FolderID)
		if err != nil {
			return nil, fmt.Errorf("lookup by folder id %q: %w", rec.FolderID, err)
		}
		if p != nil {
			return &MatchDecision{Action: ActionMatched, Confidence: 1.0, Method: MethodFolderID, Patient: p}, nil
		}
	}

	// 3. Exact name + date of birth.
	if rec.FirstName != "" && rec.LastName != "" && rec.DOB != nil {
		p, err := r.patients.FindByNameDOB(ctx, rec.FirstName, rec.LastName, *rec.DOB)
		if err != nil {
			return nil, fmt.Errorf("lookup by name+dob: %w", err)
		}
		if p != nil {
			return &MatchDecision{Action: ActionMatched, Confidence: nameDOBConfidence, Method: MethodNameDOB, Patient: p}, nil
		}
	}

	// 4. Fuzzy name with optional DOB boost.
	if rec.FirstName != "" || rec.LastName != "" {
		d, err := r.resolveFuzzy(ctx, rec)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}

	// 5. No candidate: a new patient will be created.
	return &MatchDecision{Action: ActionCreated, Confidence: 0, Method: MethodNone}, nil
}

func (r *Resolver) resolveFuzzy(ctx context.Context, rec *LegacyRecord) (*MatchDecision, error) {
	candidates, err := r.patients.SearchByName(ctx, rec.FirstName, rec.LastName, fuzzyCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("fuzzy name search: %w", err)
	}

	recName := rec.FirstName + " " + rec.LastName

	var best *identity.Patient
	var bestScore float64
	for _, c := range candidates {
		score := nameSimilarity(recName, c.FullName())
		if rec.DOB != nil && c.BirthDate != nil && rec.DOB.Equal(*c.BirthDate) {
			score += dobBoost
			if score > fuzzyCap {
				score = fuzzyCap
			}
		}
		score = clampConfidence(score)

		// Ties break toward the smallest patient identifier so repeated
		// runs pick the same candidate regardless of fetch order.
		if best == nil || score > bestScore ||
			(score == bestScore && c.ID.String() < best.ID.String()) {
			best, bestScore = c, score
		}
	}

	if best == nil {
		return nil, nil
	}

	switch {
	case bestScore >= r.threshold:
		return &MatchDecision{Action: ActionMatched, Confidence: bestScore, Method: MethodFuzzyName, Patient: best}, nil
	case bestScore >= reviewFloor:
		return &MatchDecision{
			Action:     ActionNeedsReview,
			Confidence: bestScore,
			Method:     MethodFuzzyName,
			Patient:    best,
			Note:       fmt.Sprintf("fuzzy score %.2f below threshold %.2f", bestScore, r.threshold),
		}, nil
	default:
		return nil, nil
	}
}
