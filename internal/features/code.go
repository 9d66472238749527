package features

import (
	"regexp"
	"strings"
)

// Lexical markers used to decide whether raw content contains code at all.
var codeIndicators = []string{"def ", "import ", "class ", "function", "func ", "package ", "#include"}

var (
	funcDefRe     = regexp.MustCompile(`(?m)^\s*(def |func |function\s|public \w+ \w+\()`)
	typeDefRe     = regexp.MustCompile(`(?m)^\s*(class |type \w+ (struct|interface)|public class )`)
	loopRe        = regexp.MustCompile(`(?m)(^|\W)(for|while)(\s|\()`)
	conditionalRe = regexp.MustCompile(`(?m)(^|\W)(if|switch|elif|else if)(\s|\()`)
	errHandlingRe = regexp.MustCompile(`(?m)(try\s*:|try\s*{|except\b|catch\s*\(|if err != nil)`)
)

// HasCode reports whether content plausibly contains code. Short snippets
// are ignored: prose quoting a keyword should not count.
func HasCode(content string) bool {
	if len(content) <= 100 {
		return false
	}
	for _, ind := range codeIndicators {
		if strings.Contains(content, ind) {
			return true
		}
	}
	return false
}

// DetectLanguage infers the programming language by lexical heuristics.
// Returns "unknown" when no signature matches.
func DetectLanguage(code string) string {
	switch {
	case strings.Contains(code, "package ") && (strings.Contains(code, "func ") || strings.Contains(code, ":=")):
		return "go"
	case strings.Contains(code, "def ") || strings.Contains(code, "import ") && strings.Contains(code, ":"):
		return "python"
	case strings.Contains(code, "function") && (strings.Contains(code, "{") || strings.Contains(code, "=>")):
		return "javascript"
	case strings.Contains(code, "public class") || strings.Contains(code, "private "):
		return "java"
	case strings.Contains(code, "#include") || strings.Contains(code, "int main"):
		return "c++"
	default:
		return "unknown"
	}
}

// EstimateComplexity computes a [0,1] complexity estimate by counting
// structural elements: function and type definitions, loops, branches,
// and error handling, weighted and normalized. Unknown languages fall
// back to a line-count heuristic; the function never fails.
func EstimateComplexity(code, language string) float64 {
	if language == "unknown" {
		return clamp01(float64(CountLines(code)) / 100.0)
	}

	funcs := len(funcDefRe.FindAllString(code, -1))
	types := len(typeDefRe.FindAllString(code, -1))
	loops := len(loopRe.FindAllString(code, -1))
	conds := len(conditionalRe.FindAllString(code, -1))
	errs := len(errHandlingRe.FindAllString(code, -1))

	weighted := float64(funcs)*2 + float64(types)*3 + float64(loops)*1.5 + float64(conds) + float64(errs)*2
	if weighted == 0 {
		return clamp01(float64(CountLines(code)) / 100.0)
	}
	return clamp01(weighted / 50.0)
}

// CountLines returns the number of non-empty lines.
func CountLines(code string) int {
	n := 0
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
