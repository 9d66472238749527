package features

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/starford/laguz/internal/models"
)

// recencyHalfLife controls how fast the recency score decays: a candidate
// this old scores 0.5.
const recencyHalfLife = 30 * 24 * time.Hour

var nonDigitRe = regexp.MustCompile(`[^\d]`)

// firstNumber extracts the leading integer from strings like
// "1,150 stars this week".
func firstNumber(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(nonDigitRe.ReplaceAllString(fields[0], ""))
	return n
}

// PopularityScore maps source-provided popularity signals into [0,1].
// GitHub saturates at 1000 stars, Reddit at 100 upvotes; sources without
// a known signal get a neutral 0.5.
func PopularityScore(metadata map[string]string, sourceType models.SourceType) float64 {
	switch sourceType {
	case models.SourceGitHub:
		return clamp01(float64(firstNumber(metadata["stars"])) / 1000.0)
	case models.SourceReddit:
		return clamp01(float64(firstNumber(metadata["upvotes"])) / 100.0)
	default:
		return 0.5
	}
}

// AuthorReputation scores the candidate author. Anonymous or bot authors
// score low; everyone else gets a moderate default until real reputation
// data is wired in.
func AuthorReputation(metadata map[string]string) float64 {
	switch metadata["author"] {
	case "", "unknown", "AutoModerator":
		return 0.3
	default:
		return 0.6
	}
}

// RecencyScore decays monotonically with candidate age using exponential
// half-life decay. Future timestamps clamp to 1.
func RecencyScore(discoveredAt, now time.Time) float64 {
	age := now.Sub(discoveredAt)
	if age <= 0 {
		return 1.0
	}
	return clamp01(math.Pow(0.5, float64(age)/float64(recencyHalfLife)))
}
