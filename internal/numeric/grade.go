package numeric

import (
	"regexp"
	"strconv"
)

// PercentileBreaks are the cumulative percentile upper bounds of grades 1-8;
// anything above the last one is grade 9.
var PercentileBreaks = [8]float64{4, 11, 23, 40, 60, 77, 89, 96}

// ZScoreBreaks are the lower z bounds of grades 1-8, descending;
// anything below the last one is grade 9.
var ZScoreBreaks = [8]float64{1.76, 1.226, 0.738, 0.26, -0.25, -0.73, -1.22, -1.75}

// Percentile returns the cohort percentile of a rank. With adjustTies the
// rank is moved to the middle of its tie group.
func Percentile(rank, tieCount, cohortSize int, adjustTies bool) (float64, bool) {
	if rank <= 0 || cohortSize <= 0 || rank > cohortSize {
		return 0, false
	}
	r := float64(rank)
	if adjustTies && tieCount > 1 {
		r += float64(tieCount-1) / 2
	}
	return r * 100 / float64(cohortSize), true
}

// PercentileGrade buckets a percentile into grade 1..9.
func PercentileGrade(p float64) int {
	for i, b := range PercentileBreaks {
		if p <= b {
			return i + 1
		}
	}
	return 9
}

// ZScore returns (raw-mean)/stddev; ok is false for a zero deviation.
func ZScore(raw, mean, stddev float64) (float64, bool) {
	if stddev == 0 {
		return 0, false
	}
	return (raw - mean) / stddev, true
}

// ZScoreGrade buckets a z-score into grade 1..9.
func ZScoreGrade(z float64) int {
	for i, b := range ZScoreBreaks {
		if z >= b {
			return i + 1
		}
	}
	return 9
}

var unitPattern = regexp.MustCompile(`-?[0-9]+(?:\.[0-9]+)?`)

// ParseUnit reads the first number out of a free-text unit weight.
// Unparseable or non-positive weights count as 1.
func ParseUnit(text string) float64 {
	m := unitPattern.FindString(text)
	if m == "" {
		return 1
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 {
		return 1
	}
	return v
}
