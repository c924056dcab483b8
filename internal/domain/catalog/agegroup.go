package catalog

import "time"

// ageGroups are the eight non-overlapping month buckets instruments are
// authored for. Order matters for display; ranges must not overlap.
var ageGroups = []AgeGroup{
	{ID: "12-15-months", Label: "12–15 months", MinMonths: 12, MaxMonths: 15},
	{ID: "16-24-months", Label: "16–24 months", MinMonths: 16, MaxMonths: 24},
	{ID: "24-36-months", Label: "2–3 years", MinMonths: 25, MaxMonths: 36},
	{ID: "3-4-years", Label: "3–4 years", MinMonths: 37, MaxMonths: 48},
	{ID: "4-5-years", Label: "4–5 years", MinMonths: 49, MaxMonths: 60},
	{ID: "5-6-years", Label: "5–6 years", MinMonths: 61, MaxMonths: 72},
	{ID: "6-8-years", Label: "6–8 years", MinMonths: 73, MaxMonths: 96},
	{ID: "8-10-years", Label: "8–10 years", MinMonths: 97, MaxMonths: 120},
}

// AgeGroups returns the defined buckets in ascending age order.
func AgeGroups() []AgeGroup {
	out := make([]AgeGroup, len(ageGroups))
	copy(out, ageGroups)
	return out
}

// AgeInMonths computes completed whole months between dob and asOf.
// A month only counts once the day-of-month has been reached, so a child
// born on the 20th is 11 months old on the 19th of the following year's
// month 12.
func AgeInMonths(dob, asOf time.Time) int {
	months := (asOf.Year()-dob.Year())*12 + int(asOf.Month()) - int(dob.Month())
	if asOf.Day() < dob.Day() {
		months--
	}
	return months
}

// AgeGroupFor maps a date of birth to the applicable bucket as of the given
// time. Returns nil when the child is too young or too old for any defined
// instrument; callers must treat nil as "no assessment offered".
func AgeGroupFor(dob, asOf time.Time) *AgeGroup {
	months := AgeInMonths(dob, asOf)
	for i := range ageGroups {
		if months >= ageGroups[i].MinMonths && months <= ageGroups[i].MaxMonths {
			g := ageGroups[i]
			return &g
		}
	}
	return nil
}

// AgeGroupByID returns the bucket with the given id, or nil.
func AgeGroupByID(id string) *AgeGroup {
	for i := range ageGroups {
		if ageGroups[i].ID == id {
			g := ageGroups[i]
			return &g
		}
	}
	return nil
}
