package ingest

import (
	"strings"
	"time"
)

// Classification is driven by ordered rule tables rather than ad hoc keyword
// checks so that each rule is unit-testable and the priority order is
// explicit policy.

// TypeRule maps keywords to an opportunity type. Rules are evaluated in
// order; the first match wins.
type TypeRule struct {
	Keywords []string
	Type     string
}

// DefaultTypeRules: fellowship beats scholarship beats award beats call.
// An unmatched text defaults to "grant".
var DefaultTypeRules = []TypeRule{
	{Keywords: []string{"fellowship"}, Type: "fellowship"},
	{Keywords: []string{"scholarship", "studentship", "bursary"}, Type: "scholarship"},
	{Keywords: []string{"award", "prize"}, Type: "award"},
	{Keywords: []string{"call for", "competition", "funding call"}, Type: "call"},
}

// ClassifyType assigns an opportunity type from the first matching rule.
func ClassifyType(text string, rules []TypeRule) string {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Type
			}
		}
	}
	return "grant"
}

var closedPhrases = []string{
	"applications closed", "now closed", "call closed", "has closed",
	"is closed", "closed to applications", "no longer accepting",
	"deadline has passed",
}

var openPhrases = []string{
	"now open", "applications open", "open for applications",
	"accepting applications", "apply now", "currently open",
	"applications are open", "is open",
}

// InferStatus decides open/closed/unknown from explicit language and the
// parsed deadline. Explicit closed language wins outright; a past deadline
// overrides explicit open language; otherwise the deadline decides; with no
// evidence at all the status is unknown.
func InferStatus(text, deadlineISO string, now time.Time) string {
	lower := strings.ToLower(text)

	for _, p := range closedPhrases {
		if strings.Contains(lower, p) {
			return "closed"
		}
	}

	deadlinePast := deadlineISO != "" && deadlineBefore(deadlineISO, now)
	if deadlinePast {
		return "closed"
	}

	for _, p := range openPhrases {
		if strings.Contains(lower, p) {
			return "open"
		}
	}

	if deadlineISO != "" {
		return "open"
	}
	return "unknown"
}

// TagRule maps keywords to a single eligibility tag. All matching rules
// contribute their tag, not just the first.
type TagRule struct {
	Keywords []string
	Tag      string
}

var levelRules = []TagRule{
	{Keywords: []string{"undergraduate", "bachelor"}, Tag: "undergraduate"},
	{Keywords: []string{"master's", "masters", "msc", "postgraduate taught"}, Tag: "masters"},
	{Keywords: []string{"phd", "doctoral", "doctorate", "dphil"}, Tag: "phd"},
	{Keywords: []string{"postdoc", "post-doc", "postdoctoral"}, Tag: "postdoctoral"},
}

var careerStageRules = []TagRule{
	{Keywords: []string{"early career", "early-career", "first grant"}, Tag: "early career"},
	{Keywords: []string{"mid career", "mid-career"}, Tag: "mid career"},
	{Keywords: []string{"established researcher", "senior researcher", "professor"}, Tag: "established"},
	{Keywords: []string{"student"}, Tag: "student"},
}

var nationalityRules = []TagRule{
	{Keywords: []string{"uk resident", "uk national", "british citizen", "home student", "uk-based", "uk based"}, Tag: "uk"},
	{Keywords: []string{"eu national", "eea national", "european union"}, Tag: "eu"},
	{Keywords: []string{"international student", "international applicant", "any nationality", "all nationalities", "worldwide"}, Tag: "international"},
	{Keywords: []string{"commonwealth"}, Tag: "commonwealth"},
}

var disciplineRules = []TagRule{
	{Keywords: []string{"life science", "biology", "biological", "biotech", "biomedical science"}, Tag: "life sciences"},
	{Keywords: []string{"medicine", "medical", "clinical", "health research", "public health"}, Tag: "medicine"},
	{Keywords: []string{"engineering"}, Tag: "engineering"},
	{Keywords: []string{"computer science", "artificial intelligence", " ai ", "machine learning", "data science", "software"}, Tag: "computer science"},
	{Keywords: []string{"physics", "chemistry", "mathematics", "physical science", "astronomy"}, Tag: "physical sciences"},
	{Keywords: []string{"environment", "climate", "ecology", "sustainability", "conservation"}, Tag: "environment"},
	{Keywords: []string{"social science", "sociology", "economics", "political science", "psychology"}, Tag: "social sciences"},
	{Keywords: []string{"humanities", "history", "philosophy", "literature", "arts and culture"}, Tag: "humanities"},
	{Keywords: []string{"business", "entrepreneur", "management", "innovation", "startup"}, Tag: "business"},
}

// matchTags returns all tags whose rules match the text, in rule order.
func matchTags(lower string, rules []TagRule) []string {
	var tags []string
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				tags = append(tags, rule.Tag)
				break
			}
		}
	}
	return tags
}

// InferEligibility runs the per-dimension matchers over the text. Levels and
// career stages may come back empty ("no restriction detected"); nationality
// defaults to "any" and disciplines to "all disciplines" when nothing
// matches.
func InferEligibility(text string) Eligibility {
	lower := " " + strings.ToLower(text) + " "

	e := Eligibility{
		Levels:        matchTags(lower, levelRules),
		CareerStages:  matchTags(lower, careerStageRules),
		Nationalities: matchTags(lower, nationalityRules),
		Disciplines:   matchTags(lower, disciplineRules),
	}
	if len(e.Nationalities) == 0 {
		e.Nationalities = []string{"any"}
	}
	if len(e.Disciplines) == 0 {
		e.Disciplines = []string{"all disciplines"}
	}
	return e
}
