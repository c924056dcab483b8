package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bloomscreen/bloomscreen/internal/domain/catalog"
	"github.com/bloomscreen/bloomscreen/internal/domain/child"
	"github.com/bloomscreen/bloomscreen/internal/platform/db"
)

// CatalogSource resolves screening instruments. Satisfied by
// *catalog.Registry.
type CatalogSource interface {
	Questionnaire(ageGroup string, tier int) (*catalog.Questionnaire, error)
}

// ChildSource resolves children for age-group selection and ownership
// checks. Satisfied by *child.Service.
type ChildSource interface {
	Get(ctx context.Context, id uuid.UUID) (*child.Child, error)
}

type Service struct {
	assessments Repository
	responses   ResponseRepository
	children    ChildSource
	catalog     CatalogSource
	ttl         time.Duration

	beginTx func(ctx context.Context) (pgx.Tx, context.Context, error)
	now     func() time.Time
}

func NewService(assessments Repository, responses ResponseRepository, children ChildSource, cat CatalogSource, ttl time.Duration) *Service {
	return &Service{
		assessments: assessments,
		responses:   responses,
		children:    children,
		catalog:     cat,
		ttl:         ttl,
		beginTx:     db.WithTx,
		now:         time.Now,
	}
}

// inTx runs fn inside a database transaction carried through the context so
// that every repository call participates in it.
func (s *Service) inTx(ctx context.Context, fn func(context.Context) error) error {
	tx, txCtx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)
	if err := fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(txCtx)
}

// Create starts a screening for a child. The age group is selected from the
// child's age today and pinned to the assessment for its whole lifetime.
func (s *Service) Create(ctx context.Context, childID, caregiverID uuid.UUID) (*Assessment, error) {
	ch, err := s.children.Get(ctx, childID)
	if err != nil {
		if errors.Is(err, child.ErrNotFound) {
			return nil, fmt.Errorf("%w: child %s", ErrNotFound, childID)
		}
		return nil, err
	}
	if ch.CaregiverID != caregiverID {
		return nil, fmt.Errorf("%w: child %s", ErrNotFound, childID)
	}

	now := s.now()
	group := catalog.AgeGroupFor(ch.DateOfBirth, now)
	if group == nil {
		return nil, fmt.Errorf("%w: no screening instrument for a child aged %d months",
			ErrValidation, catalog.AgeInMonths(ch.DateOfBirth, now))
	}
	q, err := s.catalog.Questionnaire(group.ID, 1)
	if err != nil {
		return nil, fmt.Errorf("resolve tier-1 instrument: %w", err)
	}

	a := &Assessment{
		ChildID:        childID,
		CaregiverID:    caregiverID,
		AgeGroup:       group.ID,
		CatalogVersion: q.Version,
		Status:         StatusInProgress,
		DomainScores:   make(map[string]DomainScore),
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.assessments.Create(ctx, a); err != nil {
		return nil, err
	}
	return s.assessments.GetByID(ctx, a.ID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return s.assessments.GetByID(ctx, id)
}

// ListByChild pages a child's assessments. caregiverID scopes the listing to
// one caregiver's assessments; uuid.Nil lists every assessment for the child.
func (s *Service) ListByChild(ctx context.Context, childID, caregiverID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	return s.assessments.ListByChild(ctx, childID, caregiverID, limit, offset)
}

// Responses returns the stored answer rows for an assessment, newest tier
// last.
func (s *Service) Responses(ctx context.Context, assessmentID uuid.UUID) ([]*Response, error) {
	if _, err := s.assessments.GetByID(ctx, assessmentID); err != nil {
		return nil, err
	}
	return s.responses.ListByAssessment(ctx, assessmentID)
}

// Questionnaire returns the instrument a caregiver should answer next for
// this assessment. Tier 1 is always the full instrument; tier 2 is cut down
// to the domains flagged by tier-1 scoring.
func (s *Service) Questionnaire(ctx context.Context, assessmentID uuid.UUID, tier int) (*catalog.Questionnaire, error) {
	a, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	switch tier {
	case 1:
		return s.catalog.Questionnaire(a.AgeGroup, 1)
	case 2:
		if !a.Tier1Completed {
			return nil, fmt.Errorf("%w: tier 1 has not been submitted", ErrConflict)
		}
		if len(a.FlaggedDomains) == 0 {
			return nil, fmt.Errorf("%w: no domains were flagged for tier 2", ErrConflict)
		}
		full, err := s.catalog.Questionnaire(a.AgeGroup, 2)
		if err != nil {
			return nil, fmt.Errorf("resolve tier-2 instrument: %w", err)
		}
		filtered := *full
		filtered.Domains = nil
		for _, d := range full.Domains {
			if a.Flagged(d.ID) {
				filtered.Domains = append(filtered.Domains, d)
			}
		}
		if len(filtered.Domains) == 0 {
			return nil, fmt.Errorf("%w: tier-2 instrument covers none of the flagged domains", ErrInvariant)
		}
		return &filtered, nil
	default:
		return nil, fmt.Errorf("%w: tier must be 1 or 2", ErrValidation)
	}
}

// SubmitResponses accepts a tier's full answer set, scores it and advances
// the assessment state machine. The whole submission is atomic: responses
// and the updated assessment commit together or not at all.
func (s *Service) SubmitResponses(ctx context.Context, assessmentID uuid.UUID, in SubmitInput) (*Assessment, error) {
	// Expiry runs outside the transaction: the flip to EXPIRED must stick
	// even though the submission itself is rejected.
	a, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLife(ctx, a); err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		a, err := s.assessments.GetByID(ctx, assessmentID)
		if err != nil {
			return err
		}
		switch in.Tier {
		case 1:
			if a.Tier1Completed {
				return fmt.Errorf("%w: tier 1 already submitted", ErrConflict)
			}
			return s.submitTier1(ctx, a, in)
		case 2:
			if a.Status != StatusTier2Required {
				return fmt.Errorf("%w: assessment is %s, tier 2 not expected", ErrConflict, a.Status)
			}
			return s.submitTier2(ctx, a, in)
		default:
			return fmt.Errorf("%w: tier must be 1 or 2", ErrValidation)
		}
	})
	if err != nil {
		return nil, err
	}
	return s.assessments.GetByID(ctx, assessmentID)
}

// checkLife expires overdue assessments. Expiry is lazy: the state flips the
// first time a mutation touches an overdue assessment.
func (s *Service) checkLife(ctx context.Context, a *Assessment) error {
	switch a.Status {
	case StatusCompleted:
		return fmt.Errorf("%w: assessment already completed", ErrConflict)
	case StatusExpired:
		return ErrExpired
	}
	if s.now().After(a.ExpiresAt) {
		a.Status = StatusExpired
		if err := s.assessments.Update(ctx, a); err != nil {
			return err
		}
		return ErrExpired
	}
	return nil
}

// collect validates a submission against an instrument: every question
// answered exactly once, nothing extra, answers well-formed. Returns the
// answer map plus the domain of each question for response rows.
func collect(q *catalog.Questionnaire, in []ResponseInput) (map[string]Answer, map[string]string, error) {
	domainOf := make(map[string]string)
	for _, d := range q.Domains {
		for _, qn := range d.Questions {
			domainOf[qn.ID] = d.ID
		}
	}

	answers := make(map[string]Answer, len(in))
	for _, r := range in {
		if _, known := domainOf[r.QuestionID]; !known {
			return nil, nil, fmt.Errorf("%w: unknown question %s", ErrValidation, r.QuestionID)
		}
		if _, dup := answers[r.QuestionID]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate answer for question %s", ErrValidation, r.QuestionID)
		}
		switch r.Answer {
		case AnswerYes, AnswerSometimes, AnswerNotSure, AnswerNo:
		default:
			return nil, nil, fmt.Errorf("%w: question %s: unknown answer %q", ErrValidation, r.QuestionID, r.Answer)
		}
		answers[r.QuestionID] = r.Answer
	}
	if len(answers) != len(domainOf) {
		return nil, nil, fmt.Errorf("%w: expected %d answers, got %d", ErrValidation, len(domainOf), len(answers))
	}
	return answers, domainOf, nil
}

func (s *Service) storeResponses(ctx context.Context, a *Assessment, tier int, in []ResponseInput, domainOf map[string]string) error {
	rows := make([]*Response, 0, len(in))
	for _, r := range in {
		rows = append(rows, &Response{
			AssessmentID: a.ID,
			Tier:         tier,
			DomainID:     domainOf[r.QuestionID],
			QuestionID:   r.QuestionID,
			Answer:       r.Answer,
		})
	}
	return s.responses.CreateBatch(ctx, rows)
}

func (s *Service) submitTier1(ctx context.Context, a *Assessment, in SubmitInput) error {
	q, err := s.catalog.Questionnaire(a.AgeGroup, 1)
	if err != nil {
		return fmt.Errorf("resolve tier-1 instrument: %w", err)
	}
	answers, domainOf, err := collect(q, in.Responses)
	if err != nil {
		return err
	}
	if err := s.storeResponses(ctx, a, 1, in.Responses, domainOf); err != nil {
		return err
	}

	now := s.now()
	a.FlaggedDomains = nil
	for i := range q.Domains {
		ds, err := ScoreDomain(&q.Domains[i], 1, answers, now)
		if err != nil {
			return err
		}
		a.DomainScores[ds.DomainID] = ds
		if ds.Tier2Required {
			a.FlaggedDomains = append(a.FlaggedDomains, ds.DomainID)
		}
	}

	a.Tier1Completed = true
	if len(a.FlaggedDomains) == 0 {
		return s.complete(ctx, a, q, now)
	}
	a.Status = StatusTier2Required
	return s.assessments.Update(ctx, a)
}

func (s *Service) submitTier2(ctx context.Context, a *Assessment, in SubmitInput) error {
	q, err := s.Questionnaire(ctx, a.ID, 2)
	if err != nil {
		return err
	}
	answers, domainOf, err := collect(q, in.Responses)
	if err != nil {
		return err
	}
	if err := s.storeResponses(ctx, a, 2, in.Responses, domainOf); err != nil {
		return err
	}

	// Tier-2 scores replace the tier-1 entries for flagged domains. The
	// flagged set itself stays frozen even when tier 2 clears a domain.
	now := s.now()
	for i := range q.Domains {
		ds, err := ScoreDomain(&q.Domains[i], 2, answers, now)
		if err != nil {
			return err
		}
		a.DomainScores[ds.DomainID] = ds
	}
	a.Tier2Completed = true

	tier1, err := s.catalog.Questionnaire(a.AgeGroup, 1)
	if err != nil {
		return fmt.Errorf("resolve tier-1 instrument: %w", err)
	}
	return s.complete(ctx, a, tier1, now)
}

func (s *Service) complete(ctx context.Context, a *Assessment, tier1 *catalog.Questionnaire, now time.Time) error {
	// Aggregation only runs over finalized scores: every flagged domain must
	// have been rescored at tier 2 before the overall score means anything.
	for _, id := range a.FlaggedDomains {
		ds, ok := a.DomainScores[id]
		if !ok || ds.Tier != 2 {
			return fmt.Errorf("%w: flagged domain %s has no tier-2 score", ErrInvariant, id)
		}
	}
	overall, err := AggregateOverall(tier1, a.DomainScores)
	if err != nil {
		return err
	}
	a.OverallScore = &overall
	a.Status = StatusCompleted
	a.CompletedAt = &now
	return s.assessments.Update(ctx, a)
}

// Delete removes an assessment and its responses. Deletion is always an
// explicit caregiver action; nothing expires into deletion automatically.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.assessments.GetByID(ctx, id); err != nil {
			return err
		}
		if err := s.responses.DeleteByAssessment(ctx, id); err != nil {
			return err
		}
		return s.assessments.Delete(ctx, id)
	})
}
