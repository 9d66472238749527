package features

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/starford/laguz/internal/models"
)

// categoryTaxonomy is the fixed classification taxonomy. Each category is
// recognised by marker terms; the category with the most hits wins.
var categoryTaxonomy = map[string][]string{
	"web_scraping":    {"scrape", "scraping", "crawler", "spider", "beautifulsoup", "selenium"},
	"data_processing": {"pandas", "numpy", "data", "csv", "excel", "dataframe"},
	"api_wrapper":     {"api", "rest", "endpoint", "wrapper", "client", "sdk"},
	"automation":      {"automate", "automation", "workflow", "task", "schedule"},
	"bot":             {"bot", "chatbot", "telegram", "discord", "slack"},
	"ml_ai":           {"machine learning", "ai", "neural", "model", "training", "tensorflow", "pytorch"},
	"web_dev":         {"flask", "django", "fastapi", "web", "server", "frontend"},
	"devops":          {"docker", "kubernetes", "ci/cd", "deployment", "infrastructure"},
	"security":        {"security", "encryption", "authentication", "oauth", "jwt"},
	"testing":         {"test", "testing", "pytest", "unittest", "qa"},
}

// CategoryGeneral is assigned when no taxonomy category matches.
const CategoryGeneral = "general"

var complexityMarkers = []struct {
	level models.ComplexityLevel
	terms []string
}{
	{models.ComplexityBeginner, []string{"simple", "basic", "beginner", "tutorial", "learn", "intro"}},
	{models.ComplexityIntermediate, []string{"intermediate", "moderate", "practical", "real-world"}},
	{models.ComplexityAdvanced, []string{"advanced", "complex", "production", "scalable", "enterprise"}},
}

var tutorialMarkers = []string{"tutorial", "how to", "guide", "step by step", "learn", "walkthrough"}

var documentationMarkers = []string{"documentation", "docs", "readme", "api reference", "manual"}

var wordRe = regexp.MustCompile(`\b[a-z]{3,}\b`)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {},
	"that": {}, "from": {}, "have": {}, "are": {}, "was": {},
}

// ExtractKeywords returns up to max keywords ranked by frequency.
// Ordering is deterministic: count descending, then alphabetical.
func ExtractKeywords(text string, max int) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	counts := make(map[string]int)
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		counts[w]++
	}

	ranked := make([]string, 0, len(counts))
	for w := range counts {
		ranked = append(ranked, w)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	if max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}

// Categorize classifies text into a primary category and up to three
// secondary categories from the fixed taxonomy. Texts matching nothing
// are filed under "general".
func Categorize(text string) (primary string, secondary []string) {
	lower := strings.ToLower(text)

	type catScore struct {
		name  string
		score int
	}
	var scored []catScore
	for name, terms := range categoryTaxonomy {
		hits := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				hits++
			}
		}
		if hits > 0 {
			scored = append(scored, catScore{name, hits})
		}
	}
	if len(scored) == 0 {
		return CategoryGeneral, nil
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].name < scored[j].name
	})

	primary = scored[0].name
	for _, cs := range scored[1:] {
		secondary = append(secondary, cs.name)
		if len(secondary) == 3 {
			break
		}
	}
	return primary, secondary
}

// DetectComplexityLevel infers the ordinal difficulty from marker terms,
// defaulting to intermediate.
func DetectComplexityLevel(text string) models.ComplexityLevel {
	lower := strings.ToLower(text)
	for _, cm := range complexityMarkers {
		for _, term := range cm.terms {
			if strings.Contains(lower, term) {
				return cm.level
			}
		}
	}
	return models.ComplexityIntermediate
}

// HasTutorialMarkers reports whether text reads like a tutorial.
func HasTutorialMarkers(text string) bool {
	return containsAny(strings.ToLower(text), tutorialMarkers)
}

// HasDocumentationMarkers reports whether text references docs.
func HasDocumentationMarkers(text string) bool {
	return containsAny(strings.ToLower(text), documentationMarkers)
}

func containsAny(lower string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// StripHTML reduces an HTML document to its visible text. Unparseable
// input is returned as-is; text analysis degrades to matching over markup.
func StripHTML(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find("script, style").Remove()
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return raw
	}
	return text
}
