package assessment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bloomscreen/bloomscreen/internal/domain/catalog"
	"github.com/bloomscreen/bloomscreen/internal/domain/child"
)

// -- test doubles --

type mockAssessmentRepo struct {
	byID map[uuid.UUID]*Assessment
}

func newMockAssessmentRepo() *mockAssessmentRepo {
	return &mockAssessmentRepo{byID: make(map[uuid.UUID]*Assessment)}
}

func copyAssessment(a *Assessment) *Assessment {
	cp := *a
	cp.DomainScores = make(map[string]DomainScore, len(a.DomainScores))
	for k, v := range a.DomainScores {
		cp.DomainScores[k] = v
	}
	cp.FlaggedDomains = append([]string(nil), a.FlaggedDomains...)
	return &cp
}

func (m *mockAssessmentRepo) Create(_ context.Context, a *Assessment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.byID[a.ID] = copyAssessment(a)
	return nil
}

func (m *mockAssessmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Assessment, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAssessment(a), nil
}

func (m *mockAssessmentRepo) Update(_ context.Context, a *Assessment) error {
	if _, ok := m.byID[a.ID]; !ok {
		return ErrNotFound
	}
	m.byID[a.ID] = copyAssessment(a)
	return nil
}

func (m *mockAssessmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *mockAssessmentRepo) ListByChild(_ context.Context, childID, caregiverID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	var out []*Assessment
	for _, a := range m.byID {
		if a.ChildID != childID {
			continue
		}
		if caregiverID != uuid.Nil && a.CaregiverID != caregiverID {
			continue
		}
		out = append(out, copyAssessment(a))
	}
	return out, len(out), nil
}

type mockResponseRepo struct {
	rows []*Response
	seen map[string]bool
}

func newMockResponseRepo() *mockResponseRepo {
	return &mockResponseRepo{seen: make(map[string]bool)}
}

func (m *mockResponseRepo) CreateBatch(_ context.Context, responses []*Response) error {
	for _, r := range responses {
		key := fmt.Sprintf("%s/%d/%s", r.AssessmentID, r.Tier, r.QuestionID)
		if m.seen[key] {
			return fmt.Errorf("%w: duplicate response %s", ErrConflict, key)
		}
		m.seen[key] = true
		r.ID = uuid.New()
		cp := *r
		m.rows = append(m.rows, &cp)
	}
	return nil
}

func (m *mockResponseRepo) ListByAssessment(_ context.Context, assessmentID uuid.UUID) ([]*Response, error) {
	var out []*Response
	for _, r := range m.rows {
		if r.AssessmentID == assessmentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockResponseRepo) DeleteByAssessment(_ context.Context, assessmentID uuid.UUID) error {
	var kept []*Response
	for _, r := range m.rows {
		if r.AssessmentID != assessmentID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

type mockChildren struct {
	byID map[uuid.UUID]*child.Child
}

func (m *mockChildren) Get(_ context.Context, id uuid.UUID) (*child.Child, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, child.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type stubCatalog struct {
	byKey map[string]*catalog.Questionnaire
}

func (s *stubCatalog) Questionnaire(ageGroup string, tier int) (*catalog.Questionnaire, error) {
	q, ok := s.byKey[fmt.Sprintf("%s/%d", ageGroup, tier)]
	if !ok {
		return nil, fmt.Errorf("%w: %s tier %d", catalog.ErrNotFound, ageGroup, tier)
	}
	return q, nil
}

type nopTx struct{ pgx.Tx }

func (nopTx) Commit(context.Context) error   { return nil }
func (nopTx) Rollback(context.Context) error { return nil }

// -- fixture --

var testNow = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

// Two-domain instrument: domain "a" is plain, domain "b" carries a red flag
// on one of its two questions.
func testInstruments() *stubCatalog {
	tier1 := &catalog.Questionnaire{
		AgeGroup: "24-36-months",
		Tier:     1,
		Version:  "1.0.0",
		Domains: []catalog.Domain{
			{ID: "a", Name: "Domain A", Questions: []catalog.Question{
				{ID: "a1", Weight: 1},
				{ID: "a2", Weight: 1},
			}},
			{ID: "b", Name: "Domain B", Questions: []catalog.Question{
				{ID: "b1", Weight: 1, RedFlag: true},
				{ID: "b2", Weight: 1},
			}},
		},
	}
	tier2 := &catalog.Questionnaire{
		AgeGroup: "24-36-months",
		Tier:     2,
		Version:  "1.0.0",
		Domains: []catalog.Domain{
			{ID: "a", Name: "Domain A", Questions: []catalog.Question{
				{ID: "a21", Weight: 1},
				{ID: "a22", Weight: 1},
			}},
			{ID: "b", Name: "Domain B", Questions: []catalog.Question{
				{ID: "b21", Weight: 1, RedFlag: true},
				{ID: "b22", Weight: 1},
				{ID: "b23", Weight: 1},
			}},
		},
	}
	return &stubCatalog{byKey: map[string]*catalog.Questionnaire{
		"24-36-months/1": tier1,
		"24-36-months/2": tier2,
	}}
}

type fixture struct {
	svc         *Service
	assessments *mockAssessmentRepo
	responses   *mockResponseRepo
	caregiverID uuid.UUID
	childID     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	caregiverID := uuid.New()
	childID := uuid.New()
	children := &mockChildren{byID: map[uuid.UUID]*child.Child{
		childID: {
			ID:          childID,
			CaregiverID: caregiverID,
			FirstName:   "Noor",
			DateOfBirth: testNow.AddDate(0, -30, 0),
		},
	}}
	assessments := newMockAssessmentRepo()
	responses := newMockResponseRepo()
	svc := NewService(assessments, responses, children, testInstruments(), 30*24*time.Hour)
	svc.beginTx = func(ctx context.Context) (pgx.Tx, context.Context, error) {
		return nopTx{}, ctx, nil
	}
	svc.now = func() time.Time { return testNow }
	return &fixture{
		svc:         svc,
		assessments: assessments,
		responses:   responses,
		caregiverID: caregiverID,
		childID:     childID,
	}
}

func (f *fixture) create(t *testing.T) *Assessment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), f.childID, f.caregiverID)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return a
}

func answersFor(tier int, a map[string]Answer) SubmitInput {
	in := SubmitInput{Tier: tier}
	for q, ans := range a {
		in.Responses = append(in.Responses, ResponseInput{QuestionID: q, Answer: ans})
	}
	return in
}

// -- tests --

func TestCreateSelectsAgeGroup(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)

	if a.AgeGroup != "24-36-months" {
		t.Errorf("AgeGroup = %s, want 24-36-months for a 30-month-old", a.AgeGroup)
	}
	if a.Status != StatusInProgress {
		t.Errorf("Status = %s, want IN_PROGRESS", a.Status)
	}
	if a.CatalogVersion != "1.0.0" {
		t.Errorf("CatalogVersion = %s, want pinned from the tier-1 instrument", a.CatalogVersion)
	}
	if got := a.ExpiresAt.Sub(a.CreatedAt); a.ExpiresAt != testNow.Add(30*24*time.Hour) {
		t.Errorf("ExpiresAt = %v (ttl %v), want created+30d", a.ExpiresAt, got)
	}
}

func TestCreateRejectsOutOfRangeAge(t *testing.T) {
	f := newFixture(t)
	infantID := uuid.New()
	f.svc.children.(*mockChildren).byID[infantID] = &child.Child{
		ID:          infantID,
		CaregiverID: f.caregiverID,
		DateOfBirth: testNow.AddDate(0, -5, 0),
	}
	if _, err := f.svc.Create(context.Background(), infantID, f.caregiverID); !errors.Is(err, ErrValidation) {
		t.Errorf("Create(5-month-old) error = %v, want ErrValidation", err)
	}
}

func TestCreateHidesForeignChildren(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Create(context.Background(), f.childID, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Create() by non-owner error = %v, want ErrNotFound", err)
	}
}

func TestEndToEndEscalationAndCompletion(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	ctx := context.Background()

	// Tier 1: domain a clean, domain b all NO including the red flag.
	a, err := f.svc.SubmitResponses(ctx, a.ID, answersFor(1, map[string]Answer{
		"a1": AnswerYes, "a2": AnswerYes,
		"b1": AnswerNo, "b2": AnswerNo,
	}))
	if err != nil {
		t.Fatalf("tier-1 SubmitResponses() error: %v", err)
	}

	if a.Status != StatusTier2Required {
		t.Fatalf("Status = %s, want TIER2_REQUIRED", a.Status)
	}
	if !a.Tier1Completed || a.Tier2Completed {
		t.Errorf("tier flags = (%v, %v), want (true, false)", a.Tier1Completed, a.Tier2Completed)
	}
	if len(a.FlaggedDomains) != 1 || a.FlaggedDomains[0] != "b" {
		t.Fatalf("FlaggedDomains = %v, want [b]", a.FlaggedDomains)
	}
	if a.OverallScore != nil {
		t.Error("OverallScore set before completion")
	}
	bScore := a.DomainScores["b"]
	if bScore.RiskIndex != 1 || bScore.Zone != ZoneRed {
		t.Errorf("domain b = (%v, %s), want (1, RED)", bScore.RiskIndex, bScore.Zone)
	}
	if bScore.Tier2Reason != ReasonRedFlag {
		t.Errorf("domain b Tier2Reason = %s, want RED_FLAG", bScore.Tier2Reason)
	}
	aScore := a.DomainScores["a"]
	if aScore.RiskIndex != 0 || aScore.Zone != ZoneGreen {
		t.Errorf("domain a = (%v, %s), want (0, GREEN)", aScore.RiskIndex, aScore.Zone)
	}

	// Tier-2 instrument is cut down to the flagged domain.
	q2, err := f.svc.Questionnaire(ctx, a.ID, 2)
	if err != nil {
		t.Fatalf("Questionnaire(tier 2) error: %v", err)
	}
	if len(q2.Domains) != 1 || q2.Domains[0].ID != "b" {
		t.Fatalf("tier-2 domains = %+v, want only b", q2.Domains)
	}

	// Tier 2: all YES clears the domain.
	a, err = f.svc.SubmitResponses(ctx, a.ID, answersFor(2, map[string]Answer{
		"b21": AnswerYes, "b22": AnswerYes, "b23": AnswerYes,
	}))
	if err != nil {
		t.Fatalf("tier-2 SubmitResponses() error: %v", err)
	}

	if a.Status != StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", a.Status)
	}
	if a.OverallScore == nil || *a.OverallScore != 100 {
		t.Fatalf("OverallScore = %v, want 100 when both domains clear", a.OverallScore)
	}
	if a.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	// Tier-2 score replaced the tier-1 entry.
	b := a.DomainScores["b"]
	if b.Tier != 2 || b.RiskIndex != 0 || b.Zone != ZoneGreen {
		t.Errorf("domain b after tier 2 = %+v, want tier-2 GREEN 0", b)
	}
	// The flagged set is frozen: clearing the domain does not unflag it.
	if len(a.FlaggedDomains) != 1 || a.FlaggedDomains[0] != "b" {
		t.Errorf("FlaggedDomains = %v, want [b] frozen after tier 1", a.FlaggedDomains)
	}
}

func TestEscalationClosure(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)

	a, err := f.svc.SubmitResponses(context.Background(), a.ID, answersFor(1, map[string]Answer{
		"a1": AnswerYes, "a2": AnswerYes,
		"b1": AnswerYes, "b2": AnswerYes,
	}))
	if err != nil {
		t.Fatalf("SubmitResponses() error: %v", err)
	}
	if a.Status != StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED straight from tier 1", a.Status)
	}
	if len(a.FlaggedDomains) != 0 {
		t.Errorf("FlaggedDomains = %v, want empty", a.FlaggedDomains)
	}
	if a.OverallScore == nil || *a.OverallScore != 100 {
		t.Errorf("OverallScore = %v, want 100", a.OverallScore)
	}
}

func TestYellowZoneEscalatesOnRiskIndex(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)

	// Domain a: one SOMETIMES and one NO over equal weights gives
	// (1/3 + 1) / 2 = 2/3, RED. Red flag untouched, so reason is RISK_INDEX.
	a, err := f.svc.SubmitResponses(context.Background(), a.ID, answersFor(1, map[string]Answer{
		"a1": AnswerSometimes, "a2": AnswerNo,
		"b1": AnswerYes, "b2": AnswerYes,
	}))
	if err != nil {
		t.Fatalf("SubmitResponses() error: %v", err)
	}
	if a.Status != StatusTier2Required {
		t.Fatalf("Status = %s, want TIER2_REQUIRED", a.Status)
	}
	got := a.DomainScores["a"]
	if got.Zone != ZoneRed || got.Tier2Reason != ReasonRiskIndex {
		t.Errorf("domain a = (%s, %s), want (RED, RISK_INDEX)", got.Zone, got.Tier2Reason)
	}
}

func TestListByChildScopesToCaregiver(t *testing.T) {
	f := newFixture(t)
	mine := f.create(t)
	ctx := context.Background()

	// A second caregiver screened the same child.
	other := &Assessment{
		ChildID:      f.childID,
		CaregiverID:  uuid.New(),
		AgeGroup:     "24-36-months",
		Status:       StatusInProgress,
		DomainScores: make(map[string]DomainScore),
	}
	if err := f.assessments.Create(ctx, other); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	items, total, err := f.svc.ListByChild(ctx, f.childID, f.caregiverID, 20, 0)
	if err != nil {
		t.Fatalf("ListByChild() error: %v", err)
	}
	if len(items) != 1 || total != 1 {
		t.Fatalf("scoped ListByChild() = %d items, total %d, want 1 and 1", len(items), total)
	}
	if items[0].ID != mine.ID {
		t.Errorf("scoped ListByChild() returned %s, want %s", items[0].ID, mine.ID)
	}

	items, total, err = f.svc.ListByChild(ctx, f.childID, uuid.Nil, 20, 0)
	if err != nil {
		t.Fatalf("ListByChild() error: %v", err)
	}
	if len(items) != 2 || total != 2 {
		t.Errorf("unscoped ListByChild() = %d items, total %d, want 2 and 2", len(items), total)
	}
}

func TestTier2CoverageGapViolatesInvariant(t *testing.T) {
	f := newFixture(t)

	// Cut domain a out of the tier-2 instrument while tier 1 still flags it.
	// Completion must refuse to aggregate domain a's stale tier-1 score.
	cat := f.svc.catalog.(*stubCatalog)
	full := cat.byKey["24-36-months/2"]
	trimmed := *full
	trimmed.Domains = []catalog.Domain{full.Domains[1]}
	cat.byKey["24-36-months/2"] = &trimmed

	a := f.create(t)
	ctx := context.Background()

	a, err := f.svc.SubmitResponses(ctx, a.ID, answersFor(1, map[string]Answer{
		"a1": AnswerNo, "a2": AnswerNo,
		"b1": AnswerNo, "b2": AnswerNo,
	}))
	if err != nil {
		t.Fatalf("tier-1 SubmitResponses() error: %v", err)
	}
	if len(a.FlaggedDomains) != 2 {
		t.Fatalf("FlaggedDomains = %v, want both domains flagged", a.FlaggedDomains)
	}

	if _, err := f.svc.SubmitResponses(ctx, a.ID, answersFor(2, map[string]Answer{
		"b21": AnswerYes, "b22": AnswerYes, "b23": AnswerYes,
	})); !errors.Is(err, ErrInvariant) {
		t.Fatalf("tier-2 SubmitResponses() error = %v, want ErrInvariant", err)
	}

	got, err := f.svc.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != StatusTier2Required {
		t.Errorf("Status = %s, want TIER2_REQUIRED after refused completion", got.Status)
	}
	if got.OverallScore != nil {
		t.Errorf("OverallScore = %v, want nil", got.OverallScore)
	}
	if ds := got.DomainScores["a"]; ds.Tier != 1 {
		t.Errorf("domain a score tier = %d, want the tier-1 score left untouched", ds.Tier)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   SubmitInput
		want error
	}{
		{"missing answers", answersFor(1, map[string]Answer{"a1": AnswerYes}), ErrValidation},
		{"unknown question", answersFor(1, map[string]Answer{
			"a1": AnswerYes, "a2": AnswerYes, "b1": AnswerYes, "b2": AnswerYes, "zz": AnswerYes,
		}), ErrValidation},
		{"bad answer value", answersFor(1, map[string]Answer{
			"a1": "MAYBE", "a2": AnswerYes, "b1": AnswerYes, "b2": AnswerYes,
		}), ErrValidation},
		{"bad tier", answersFor(3, nil), ErrValidation},
		{"tier 2 before tier 1", answersFor(2, map[string]Answer{"b21": AnswerYes}), ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := f.create(t)
			if _, err := f.svc.SubmitResponses(ctx, a.ID, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("SubmitResponses() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDuplicateTierSubmissionConflicts(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	ctx := context.Background()

	clean := answersFor(1, map[string]Answer{
		"a1": AnswerYes, "a2": AnswerYes, "b1": AnswerNo, "b2": AnswerNo,
	})
	if _, err := f.svc.SubmitResponses(ctx, a.ID, clean); err != nil {
		t.Fatalf("first SubmitResponses() error: %v", err)
	}
	if _, err := f.svc.SubmitResponses(ctx, a.ID, clean); !errors.Is(err, ErrConflict) {
		t.Errorf("second tier-1 submission error = %v, want ErrConflict", err)
	}
}

func TestSubmitAfterCompletionConflicts(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	ctx := context.Background()

	if _, err := f.svc.SubmitResponses(ctx, a.ID, answersFor(1, map[string]Answer{
		"a1": AnswerYes, "a2": AnswerYes, "b1": AnswerYes, "b2": AnswerYes,
	})); err != nil {
		t.Fatalf("SubmitResponses() error: %v", err)
	}
	if _, err := f.svc.SubmitResponses(ctx, a.ID, answersFor(2, map[string]Answer{
		"b21": AnswerYes, "b22": AnswerYes, "b23": AnswerYes,
	})); !errors.Is(err, ErrConflict) {
		t.Errorf("tier-2 submission after completion error = %v, want ErrConflict", err)
	}
}

func TestExpiryIsLazyAndPersisted(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	ctx := context.Background()

	f.svc.now = func() time.Time { return testNow.Add(31 * 24 * time.Hour) }

	if _, err := f.svc.SubmitResponses(ctx, a.ID, answersFor(1, map[string]Answer{
		"a1": AnswerYes, "a2": AnswerYes, "b1": AnswerYes, "b2": AnswerYes,
	})); !errors.Is(err, ErrExpired) {
		t.Fatalf("SubmitResponses() on overdue assessment error = %v, want ErrExpired", err)
	}

	stored, err := f.svc.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Status != StatusExpired {
		t.Errorf("Status = %s, want EXPIRED persisted by the rejected mutation", stored.Status)
	}

	// And it stays terminal.
	if _, err := f.svc.SubmitResponses(ctx, a.ID, answersFor(1, map[string]Answer{
		"a1": AnswerYes, "a2": AnswerYes, "b1": AnswerYes, "b2": AnswerYes,
	})); !errors.Is(err, ErrExpired) {
		t.Errorf("second submission error = %v, want ErrExpired", err)
	}
}

func TestDeleteRemovesResponses(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	ctx := context.Background()

	if _, err := f.svc.SubmitResponses(ctx, a.ID, answersFor(1, map[string]Answer{
		"a1": AnswerYes, "a2": AnswerYes, "b1": AnswerYes, "b2": AnswerYes,
	})); err != nil {
		t.Fatalf("SubmitResponses() error: %v", err)
	}
	if err := f.svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := f.svc.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if len(f.responses.rows) != 0 {
		t.Errorf("responses left after delete: %d", len(f.responses.rows))
	}
	if err := f.svc.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestResponsesAreStoredPerTier(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	ctx := context.Background()

	if _, err := f.svc.SubmitResponses(ctx, a.ID, answersFor(1, map[string]Answer{
		"a1": AnswerYes, "a2": AnswerYes, "b1": AnswerNo, "b2": AnswerNo,
	})); err != nil {
		t.Fatalf("tier-1 SubmitResponses() error: %v", err)
	}
	if _, err := f.svc.SubmitResponses(ctx, a.ID, answersFor(2, map[string]Answer{
		"b21": AnswerYes, "b22": AnswerYes, "b23": AnswerYes,
	})); err != nil {
		t.Fatalf("tier-2 SubmitResponses() error: %v", err)
	}

	rows, err := f.svc.Responses(ctx, a.ID)
	if err != nil {
		t.Fatalf("Responses() error: %v", err)
	}
	byTier := map[int]int{}
	for _, r := range rows {
		byTier[r.Tier]++
		if r.DomainID == "" {
			t.Errorf("response %s missing domain id", r.QuestionID)
		}
	}
	if byTier[1] != 4 || byTier[2] != 3 {
		t.Errorf("responses per tier = %v, want 4 tier-1 and 3 tier-2", byTier)
	}
}
