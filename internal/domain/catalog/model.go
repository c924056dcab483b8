package catalog

// Polarity describes which direction a question's "yes" answer points.
// Nearly all questions are authored so that "yes" means typical development;
// a question phrased as a concern ("Does your child avoid eye contact?") must
// be marked PolarityConcern so the scorer inverts its severity mapping.
type Polarity string

const (
	PolarityTypical Polarity = "typical"
	PolarityConcern Polarity = "concern"
)

// AgeGroup is one of the fixed month-range buckets an instrument is
// authored for.
type AgeGroup struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	MinMonths int    `json:"min_months"`
	MaxMonths int    `json:"max_months"`
}

// Question is a single catalog item. Weight and RedFlag drive scoring;
// Construct, Sources and Rationale are carried through for audit and
// display only.
type Question struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Weight    float64  `json:"weight"`
	RedFlag   bool     `json:"red_flag"`
	Polarity  Polarity `json:"polarity,omitempty"`
	Construct string   `json:"construct,omitempty"`
	Sources   []string `json:"sources,omitempty"`
	Rationale string   `json:"rationale,omitempty"`
}

// Domain is a developmental area scored independently.
type Domain struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// Questionnaire is the ordered domain/question set for one (age group, tier)
// pair. Content is immutable once loaded; Version identifies the catalog
// revision it came from.
type Questionnaire struct {
	AgeGroup string   `json:"age_group"`
	Tier     int      `json:"tier"`
	Version  string   `json:"version"`
	Domains  []Domain `json:"domains"`
	// DomainWeights, when present, pins the aggregation weight per domain
	// for this age group. When absent the aggregator weights each domain
	// by its tier-1 question count.
	DomainWeights map[string]float64 `json:"domain_weights,omitempty"`
}

// Domain returns the domain with the given id, or nil.
func (q *Questionnaire) Domain(id string) *Domain {
	for i := range q.Domains {
		if q.Domains[i].ID == id {
			return &q.Domains[i]
		}
	}
	return nil
}

// QuestionCount returns the number of questions across all domains.
func (q *Questionnaire) QuestionCount() int {
	n := 0
	for _, d := range q.Domains {
		n += len(d.Questions)
	}
	return n
}

// EffectivePolarity defaults to PolarityTypical when the catalog author left
// the field unset.
func (qn Question) EffectivePolarity() Polarity {
	if qn.Polarity == PolarityConcern {
		return PolarityConcern
	}
	return PolarityTypical
}
