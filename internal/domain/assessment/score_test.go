package assessment

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bloomscreen/bloomscreen/internal/domain/catalog"
)

var scoreNow = time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)

func TestZoneBoundaries(t *testing.T) {
	tests := []struct {
		riskIndex float64
		want      Zone
	}{
		{0, ZoneGreen},
		{0.29, ZoneGreen},
		{0.2900001, ZoneYellow},
		{0.45, ZoneYellow},
		{0.4500001, ZoneRed},
		{1, ZoneRed},
	}
	for _, tt := range tests {
		if got := zoneFor(tt.riskIndex); got != tt.want {
			t.Errorf("zoneFor(%v) = %s, want %s", tt.riskIndex, got, tt.want)
		}
	}
}

func TestScoreDomainExactBoundary(t *testing.T) {
	// Engineered so riskIndex is exactly 29/100: one NO worth 29, one YES
	// worth 71. 0.29 sits on the GREEN side of the band edge.
	d := &catalog.Domain{ID: "fine-motor", Questions: []catalog.Question{
		{ID: "q1", Weight: 29},
		{ID: "q2", Weight: 71},
	}}
	ds, err := ScoreDomain(d, 1, map[string]Answer{"q1": AnswerNo, "q2": AnswerYes}, scoreNow)
	if err != nil {
		t.Fatalf("ScoreDomain() error: %v", err)
	}
	if ds.RiskIndex != 0.29 {
		t.Errorf("RiskIndex = %v, want exactly 0.29", ds.RiskIndex)
	}
	if ds.Zone != ZoneGreen {
		t.Errorf("Zone = %s, want GREEN at the boundary", ds.Zone)
	}
	if ds.Tier2Required {
		t.Error("Tier2Required = true for a GREEN domain without red flags")
	}
}

func TestScoreDomainDeterministic(t *testing.T) {
	d := &catalog.Domain{ID: "speech-language", Questions: []catalog.Question{
		{ID: "q1", Weight: 1.5},
		{ID: "q2", Weight: 1, RedFlag: true},
		{ID: "q3", Weight: 2},
	}}
	answers := map[string]Answer{"q1": AnswerSometimes, "q2": AnswerYes, "q3": AnswerNotSure}

	first, err := ScoreDomain(d, 1, answers, scoreNow)
	if err != nil {
		t.Fatalf("ScoreDomain() error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := ScoreDomain(d, 1, answers, scoreNow)
		if err != nil {
			t.Fatalf("ScoreDomain() error: %v", err)
		}
		if again != first {
			t.Fatalf("ScoreDomain() not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestRedFlagOverridesGreenZone(t *testing.T) {
	// riskIndex 0.05 would be GREEN, but the red-flag NO escalates anyway.
	d := &catalog.Domain{ID: "social-emotional", Questions: []catalog.Question{
		{ID: "rf", Weight: 1, RedFlag: true},
		{ID: "q2", Weight: 19},
	}}
	ds, err := ScoreDomain(d, 1, map[string]Answer{"rf": AnswerNo, "q2": AnswerYes}, scoreNow)
	if err != nil {
		t.Fatalf("ScoreDomain() error: %v", err)
	}
	if ds.RiskIndex != 0.05 {
		t.Errorf("RiskIndex = %v, want 0.05", ds.RiskIndex)
	}
	if ds.Zone != ZoneGreen {
		t.Errorf("Zone = %s, want GREEN", ds.Zone)
	}
	if !ds.Tier2Required || ds.Tier2Reason != ReasonRedFlag {
		t.Errorf("tier2 = (%v, %s), want (true, RED_FLAG)", ds.Tier2Required, ds.Tier2Reason)
	}
}

func TestRedFlagReasonWinsOverRiskIndex(t *testing.T) {
	d := &catalog.Domain{ID: "gross-motor", Questions: []catalog.Question{
		{ID: "rf", Weight: 1, RedFlag: true},
		{ID: "q2", Weight: 1},
	}}
	ds, err := ScoreDomain(d, 1, map[string]Answer{"rf": AnswerNo, "q2": AnswerNo}, scoreNow)
	if err != nil {
		t.Fatalf("ScoreDomain() error: %v", err)
	}
	if ds.Zone != ZoneRed {
		t.Errorf("Zone = %s, want RED", ds.Zone)
	}
	if ds.Tier2Reason != ReasonRedFlag {
		t.Errorf("Tier2Reason = %s, want RED_FLAG when both triggers fire", ds.Tier2Reason)
	}
}

func TestConcernPolarityInverts(t *testing.T) {
	d := &catalog.Domain{ID: "social-emotional", Questions: []catalog.Question{
		{ID: "q1", Weight: 1, Polarity: catalog.PolarityConcern},
	}}

	yes, err := ScoreDomain(d, 1, map[string]Answer{"q1": AnswerYes}, scoreNow)
	if err != nil {
		t.Fatalf("ScoreDomain() error: %v", err)
	}
	if yes.RiskIndex != 1 {
		t.Errorf("YES on a concern question: RiskIndex = %v, want 1", yes.RiskIndex)
	}

	no, err := ScoreDomain(d, 1, map[string]Answer{"q1": AnswerNo}, scoreNow)
	if err != nil {
		t.Fatalf("ScoreDomain() error: %v", err)
	}
	if no.RiskIndex != 0 {
		t.Errorf("NO on a concern question: RiskIndex = %v, want 0", no.RiskIndex)
	}
}

func TestConcernRedFlagFiresOnYes(t *testing.T) {
	d := &catalog.Domain{ID: "social-emotional", Questions: []catalog.Question{
		{ID: "rf", Weight: 1, RedFlag: true, Polarity: catalog.PolarityConcern},
		{ID: "q2", Weight: 9},
	}}
	ds, err := ScoreDomain(d, 1, map[string]Answer{"rf": AnswerYes, "q2": AnswerYes}, scoreNow)
	if err != nil {
		t.Fatalf("ScoreDomain() error: %v", err)
	}
	if !ds.Tier2Required || ds.Tier2Reason != ReasonRedFlag {
		t.Errorf("tier2 = (%v, %s), want (true, RED_FLAG)", ds.Tier2Required, ds.Tier2Reason)
	}
}

func TestNotSureScoresLikeSometimes(t *testing.T) {
	d := &catalog.Domain{ID: "fine-motor", Questions: []catalog.Question{
		{ID: "q1", Weight: 2},
	}}
	sometimes, _ := ScoreDomain(d, 1, map[string]Answer{"q1": AnswerSometimes}, scoreNow)
	notSure, _ := ScoreDomain(d, 1, map[string]Answer{"q1": AnswerNotSure}, scoreNow)
	if sometimes.RiskIndex != notSure.RiskIndex {
		t.Errorf("SOMETIMES (%v) and NOT_SURE (%v) should score identically",
			sometimes.RiskIndex, notSure.RiskIndex)
	}
	if math.Abs(notSure.RiskIndex-1.0/3.0) > 1e-12 {
		t.Errorf("NOT_SURE RiskIndex = %v, want 1/3", notSure.RiskIndex)
	}
}

func TestScoreDomainRejectsBadInput(t *testing.T) {
	d := &catalog.Domain{ID: "fine-motor", Questions: []catalog.Question{
		{ID: "q1", Weight: 1},
		{ID: "q2", Weight: 1},
	}}

	if _, err := ScoreDomain(d, 1, map[string]Answer{"q1": AnswerYes}, scoreNow); !errors.Is(err, ErrValidation) {
		t.Errorf("missing answer: error = %v, want ErrValidation", err)
	}
	if _, err := ScoreDomain(d, 1, map[string]Answer{"q1": "MAYBE", "q2": AnswerYes}, scoreNow); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown answer: error = %v, want ErrValidation", err)
	}
}

func TestAggregateOverall(t *testing.T) {
	tier1 := &catalog.Questionnaire{
		AgeGroup: "24-36-months",
		Tier:     1,
		Domains: []catalog.Domain{
			{ID: "a", Questions: []catalog.Question{{ID: "a1", Weight: 1}, {ID: "a2", Weight: 1}, {ID: "a3", Weight: 1}}},
			{ID: "b", Questions: []catalog.Question{{ID: "b1", Weight: 1}}},
		},
	}

	t.Run("question count weighting", func(t *testing.T) {
		scores := map[string]DomainScore{
			"a": {DomainID: "a", RiskIndex: 0},
			"b": {DomainID: "b", RiskIndex: 1},
		}
		// Weighted average risk: (0×3 + 1×1) / 4 = 0.25.
		got, err := AggregateOverall(tier1, scores)
		if err != nil {
			t.Fatalf("AggregateOverall() error: %v", err)
		}
		if math.Abs(got-75) > 1e-9 {
			t.Errorf("overall = %v, want 75", got)
		}
	})

	t.Run("pinned weights take precedence", func(t *testing.T) {
		pinned := *tier1
		pinned.DomainWeights = map[string]float64{"a": 1, "b": 1}
		scores := map[string]DomainScore{
			"a": {DomainID: "a", RiskIndex: 0},
			"b": {DomainID: "b", RiskIndex: 1},
		}
		got, err := AggregateOverall(&pinned, scores)
		if err != nil {
			t.Fatalf("AggregateOverall() error: %v", err)
		}
		if math.Abs(got-50) > 1e-9 {
			t.Errorf("overall = %v, want 50 under equal pinned weights", got)
		}
	})

	t.Run("all clear scores 100", func(t *testing.T) {
		scores := map[string]DomainScore{
			"a": {DomainID: "a", RiskIndex: 0},
			"b": {DomainID: "b", RiskIndex: 0},
		}
		got, err := AggregateOverall(tier1, scores)
		if err != nil {
			t.Fatalf("AggregateOverall() error: %v", err)
		}
		if got != 100 {
			t.Errorf("overall = %v, want 100", got)
		}
	})

	t.Run("unknown domain fails", func(t *testing.T) {
		scores := map[string]DomainScore{"nope": {DomainID: "nope", RiskIndex: 0}}
		if _, err := AggregateOverall(tier1, scores); !errors.Is(err, ErrInvariant) {
			t.Errorf("error = %v, want ErrInvariant", err)
		}
	})
}
