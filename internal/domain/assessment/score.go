package assessment

import (
	"fmt"
	"time"

	"github.com/bloomscreen/bloomscreen/internal/domain/catalog"
)

// severity maps an answer to its numeric risk contribution. Questions are
// authored so that "yes" means typical development; NOT_SURE is scored the
// same as SOMETIMES, conservatively toward concern. Concern-polarity
// questions have their answer inverted before mapping, so "yes" on "does
// your child avoid eye contact?" scores as concern.
func severity(a Answer, pol catalog.Polarity) (float64, error) {
	if pol == catalog.PolarityConcern {
		switch a {
		case AnswerYes:
			a = AnswerNo
		case AnswerNo:
			a = AnswerYes
		}
	}
	switch a {
	case AnswerYes:
		return 0, nil
	case AnswerSometimes, AnswerNotSure:
		return 1.0 / 3.0, nil
	case AnswerNo:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: unknown answer %q", ErrValidation, a)
	}
}

// zoneFor classifies a risk index. The thresholds gate clinical escalation,
// so the comparisons are exact: 0.29 is still GREEN and 0.45 is still YELLOW.
func zoneFor(riskIndex float64) Zone {
	switch {
	case riskIndex <= 0.29:
		return ZoneGreen
	case riskIndex <= 0.45:
		return ZoneYellow
	default:
		return ZoneRed
	}
}

// ScoreDomain computes the DomainScore for one catalog domain at one tier
// from a complete answer set. Every question in the domain must be answered;
// answers for unknown questions are the caller's problem and are ignored
// here. The computation is pure: identical inputs always produce identical
// scores.
func ScoreDomain(d *catalog.Domain, tier int, answers map[string]Answer, now time.Time) (DomainScore, error) {
	var sum, weightSum float64
	redFlagged := false

	for _, q := range d.Questions {
		a, ok := answers[q.ID]
		if !ok {
			return DomainScore{}, fmt.Errorf("%w: missing answer for question %s", ErrValidation, q.ID)
		}
		sev, err := severity(a, q.EffectivePolarity())
		if err != nil {
			return DomainScore{}, fmt.Errorf("question %s: %w", q.ID, err)
		}
		sum += sev * q.Weight
		weightSum += q.Weight
		if q.RedFlag && sev == 1 {
			redFlagged = true
		}
	}
	if weightSum <= 0 {
		return DomainScore{}, fmt.Errorf("%w: domain %s has no scoreable questions", ErrInvariant, d.ID)
	}

	riskIndex := sum / weightSum
	if riskIndex < 0 || riskIndex > 1 {
		return DomainScore{}, fmt.Errorf("%w: risk index %v outside [0,1] for domain %s", ErrInvariant, riskIndex, d.ID)
	}

	ds := DomainScore{
		DomainID:  d.ID,
		Tier:      tier,
		RiskIndex: riskIndex,
		Zone:      zoneFor(riskIndex),
		ScoredAt:  now,
	}
	// Red flag wins over the risk-index trigger: the reason is single-valued
	// and clinicians treat a red flag as the stronger signal.
	switch {
	case redFlagged:
		ds.Tier2Required = true
		ds.Tier2Reason = ReasonRedFlag
	case ds.Zone != ZoneGreen:
		ds.Tier2Required = true
		ds.Tier2Reason = ReasonRiskIndex
	}
	return ds, nil
}

// domainWeight resolves the aggregation weight for one domain: the catalog's
// pinned weight when the age group defines one, otherwise the domain's
// tier-1 question count. The scheme is fixed per age group so re-running the
// aggregator on identical inputs always yields the same overall score.
func domainWeight(tier1 *catalog.Questionnaire, domainID string) float64 {
	if w, ok := tier1.DomainWeights[domainID]; ok {
		return w
	}
	if d := tier1.Domain(domainID); d != nil {
		return float64(len(d.Questions))
	}
	return 0
}

// AggregateOverall folds the final per-domain scores into the 0-100 overall
// score, where 100 means no developmental concern in any domain.
func AggregateOverall(tier1 *catalog.Questionnaire, scores map[string]DomainScore) (float64, error) {
	var sum, weightSum float64
	for id, ds := range scores {
		w := domainWeight(tier1, id)
		if w <= 0 {
			return 0, fmt.Errorf("%w: no aggregation weight for domain %s", ErrInvariant, id)
		}
		sum += ds.RiskIndex * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0, fmt.Errorf("%w: no domain scores to aggregate", ErrInvariant)
	}
	return 100 * (1 - sum/weightSum), nil
}
