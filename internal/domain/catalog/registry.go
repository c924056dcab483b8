package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
)

//go:embed data/*.json
var catalogFS embed.FS

// ErrNotFound is returned when no catalog entry exists for an
// (age group, tier) pair.
var ErrNotFound = fmt.Errorf("questionnaire not found")

// catalogFile is the on-disk shape of one age group's catalog entry.
type catalogFile struct {
	AgeGroup      string             `json:"age_group"`
	Version       string             `json:"version"`
	DomainWeights map[string]float64 `json:"domain_weights,omitempty"`
	Tiers         []struct {
		Tier    int      `json:"tier"`
		Domains []Domain `json:"domains"`
	} `json:"tiers"`
}

// Registry holds every loaded questionnaire, keyed by (age group, tier).
// It is built once at startup and never mutated afterwards, so it is safe
// to share across concurrent requests without locking.
type Registry struct {
	byKey map[string]*Questionnaire
}

func key(ageGroup string, tier int) string {
	return fmt.Sprintf("%s/%d", ageGroup, tier)
}

// Load parses every embedded catalog file and validates it against the
// defined age groups. It is an error to ship a catalog entry for an unknown
// age group, a question without a positive weight, or an age group bucket
// with no tier-1 instrument.
func Load() (*Registry, error) {
	entries, err := catalogFS.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("read embedded catalog: %w", err)
	}

	r := &Registry{byKey: make(map[string]*Questionnaire)}
	for _, entry := range entries {
		raw, err := catalogFS.ReadFile("data/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read catalog file %s: %w", entry.Name(), err)
		}

		var f catalogFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse catalog file %s: %w", entry.Name(), err)
		}
		if AgeGroupByID(f.AgeGroup) == nil {
			return nil, fmt.Errorf("catalog file %s: unknown age group %q", entry.Name(), f.AgeGroup)
		}

		for _, t := range f.Tiers {
			q := &Questionnaire{
				AgeGroup:      f.AgeGroup,
				Tier:          t.Tier,
				Version:       f.Version,
				Domains:       t.Domains,
				DomainWeights: f.DomainWeights,
			}
			if err := validate(q); err != nil {
				return nil, fmt.Errorf("catalog file %s tier %d: %w", entry.Name(), t.Tier, err)
			}
			k := key(f.AgeGroup, t.Tier)
			if _, dup := r.byKey[k]; dup {
				return nil, fmt.Errorf("catalog file %s: duplicate entry for %s", entry.Name(), k)
			}
			r.byKey[k] = q
		}
	}

	for _, g := range ageGroups {
		t1, ok := r.byKey[key(g.ID, 1)]
		if !ok {
			return nil, fmt.Errorf("age group %s has no tier-1 instrument", g.ID)
		}
		if t2, ok := r.byKey[key(g.ID, 2)]; ok {
			if err := checkTierCoverage(t1, t2); err != nil {
				return nil, fmt.Errorf("age group %s: %w", g.ID, err)
			}
		}
	}

	return r, nil
}

// checkTierCoverage verifies that the tier-2 instrument can rescore every
// domain tier 1 might flag. A gap here would leave an escalated assessment
// with no way to finalize the missing domain.
func checkTierCoverage(t1, t2 *Questionnaire) error {
	for _, d := range t1.Domains {
		if t2.Domain(d.ID) == nil {
			return fmt.Errorf("tier 2 does not cover domain %s", d.ID)
		}
	}
	return nil
}

func validate(q *Questionnaire) error {
	if q.Tier != 1 && q.Tier != 2 {
		return fmt.Errorf("tier must be 1 or 2, got %d", q.Tier)
	}
	if len(q.Domains) == 0 {
		return fmt.Errorf("no domains")
	}
	seenQ := make(map[string]bool)
	for _, d := range q.Domains {
		if d.ID == "" {
			return fmt.Errorf("domain with empty id")
		}
		if len(d.Questions) == 0 {
			return fmt.Errorf("domain %s has no questions", d.ID)
		}
		for _, qn := range d.Questions {
			if qn.ID == "" {
				return fmt.Errorf("domain %s: question with empty id", d.ID)
			}
			if seenQ[qn.ID] {
				return fmt.Errorf("duplicate question id %s", qn.ID)
			}
			seenQ[qn.ID] = true
			if qn.Weight <= 0 {
				return fmt.Errorf("question %s: weight must be positive, got %v", qn.ID, qn.Weight)
			}
			if qn.Polarity != "" && qn.Polarity != PolarityTypical && qn.Polarity != PolarityConcern {
				return fmt.Errorf("question %s: invalid polarity %q", qn.ID, qn.Polarity)
			}
		}
	}
	if q.DomainWeights != nil {
		for id, w := range q.DomainWeights {
			if q.Domain(id) == nil && q.Tier == 1 {
				return fmt.Errorf("domain weight for unknown domain %s", id)
			}
			if w <= 0 {
				return fmt.Errorf("domain weight for %s must be positive, got %v", id, w)
			}
		}
	}
	return nil
}

// Questionnaire resolves an (age group, tier) pair. Fails with ErrNotFound
// when no catalog entry exists for the pair.
func (r *Registry) Questionnaire(ageGroup string, tier int) (*Questionnaire, error) {
	q, ok := r.byKey[key(ageGroup, tier)]
	if !ok {
		return nil, fmt.Errorf("%w: age group %s tier %d", ErrNotFound, ageGroup, tier)
	}
	return q, nil
}

// Versions lists the loaded (age group, tier, version) triples, sorted for
// stable display.
func (r *Registry) Versions() []string {
	out := make([]string, 0, len(r.byKey))
	for k, q := range r.byKey {
		out = append(out, k+"@"+q.Version)
	}
	sort.Strings(out)
	return out
}
