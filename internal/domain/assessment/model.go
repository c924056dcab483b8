package assessment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the assessment lifecycle state.
type Status string

const (
	StatusInProgress    Status = "IN_PROGRESS"
	StatusTier2Required Status = "TIER2_REQUIRED"
	StatusCompleted     Status = "COMPLETED"
	StatusExpired       Status = "EXPIRED"
)

// Answer is a caregiver's response to one question.
type Answer string

const (
	AnswerYes       Answer = "YES"
	AnswerSometimes Answer = "SOMETIMES"
	AnswerNotSure   Answer = "NOT_SURE"
	AnswerNo        Answer = "NO"
)

// Zone classifies a domain's risk index into a traffic-light band.
type Zone string

const (
	ZoneGreen  Zone = "GREEN"
	ZoneYellow Zone = "YELLOW"
	ZoneRed    Zone = "RED"
)

// Tier2Reason records why a domain was escalated to the tier-2 instrument.
type Tier2Reason string

const (
	ReasonRiskIndex Tier2Reason = "RISK_INDEX"
	ReasonRedFlag   Tier2Reason = "RED_FLAG"
)

// DomainScore is the scored result for one domain at one tier. A tier-2
// score replaces the tier-1 entry for its domain in Assessment.DomainScores.
type DomainScore struct {
	DomainID      string      `json:"domain_id"`
	Tier          int         `json:"tier"`
	RiskIndex     float64     `json:"risk_index"`
	Zone          Zone        `json:"zone"`
	Tier2Required bool        `json:"tier2_required"`
	Tier2Reason   Tier2Reason `json:"tier2_reason,omitempty"`
	ScoredAt      time.Time   `json:"scored_at"`
}

// Assessment is one screening instance for one child. AgeGroup is selected
// from the child's age at creation and never changes afterwards, even if the
// child ages into the next bucket before finishing.
type Assessment struct {
	ID             uuid.UUID              `json:"id"`
	ChildID        uuid.UUID              `json:"child_id"`
	CaregiverID    uuid.UUID              `json:"caregiver_id"`
	AgeGroup       string                 `json:"age_group"`
	CatalogVersion string                 `json:"catalog_version"`
	Status         Status                 `json:"status"`
	Tier1Completed bool                   `json:"tier1_completed"`
	Tier2Completed bool                   `json:"tier2_completed"`
	DomainScores   map[string]DomainScore `json:"domain_scores,omitempty"`
	// FlaggedDomains is frozen once tier-1 scoring runs; tier-2 results
	// never grow or shrink it.
	FlaggedDomains []string   `json:"flagged_domains,omitempty"`
	OverallScore   *float64   `json:"overall_score,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

// Flagged reports whether the given domain was escalated from tier 1.
func (a *Assessment) Flagged(domainID string) bool {
	for _, d := range a.FlaggedDomains {
		if d == domainID {
			return true
		}
	}
	return false
}

// Response is one stored answer. Append-only: a tier's full response set is
// written in a single transaction and never amended.
type Response struct {
	ID           uuid.UUID `json:"id"`
	AssessmentID uuid.UUID `json:"assessment_id"`
	Tier         int       `json:"tier"`
	DomainID     string    `json:"domain_id"`
	QuestionID   string    `json:"question_id"`
	Answer       Answer    `json:"answer"`
	CreatedAt    time.Time `json:"created_at"`
}

// ResponseInput is one answer in a tier submission.
type ResponseInput struct {
	QuestionID string `json:"question_id"`
	Answer     Answer `json:"answer"`
}

// SubmitInput is a full tier submission. All answers for the tier arrive in
// one request and are accepted or rejected as a unit.
type SubmitInput struct {
	Tier      int             `json:"tier"`
	Responses []ResponseInput `json:"responses"`
}

// CreateInput starts a screening for a child.
type CreateInput struct {
	ChildID uuid.UUID `json:"child_id"`
}
