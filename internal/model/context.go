package model

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Bucket names a partial total one aggregator hands to a later one.
type Bucket string

const (
	BucketCommon  Bucket = "common"
	BucketCareer  Bucket = "career"
	BucketArts    Bucket = "arts"
	BucketSpecial Bucket = "special"
	BucketBonus   Bucket = "bonus"
)

var knownBuckets = map[Bucket]bool{
	BucketCommon:  true,
	BucketCareer:  true,
	BucketArts:    true,
	BucketSpecial: true,
	BucketBonus:   true,
}

// ErrUnknownBucket is returned for a bucket name outside the fixed set.
var ErrUnknownBucket = errors.New("unknown bucket")

// ParseBucket validates a bucket name coming from configuration.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.TrimSpace(s))
	if !knownBuckets[b] {
		return "", errors.Wrapf(ErrUnknownBucket, "%q", s)
	}
	return b, nil
}

// Subtotals carries the partial sums of one run.
type Subtotals struct {
	values map[Bucket]float64
}

func (t *Subtotals) Set(b Bucket, v float64) {
	if t.values == nil {
		t.values = make(map[Bucket]float64)
	}
	t.values[b] = v
}

// Get returns the bucket value, zero when it was never written.
func (t *Subtotals) Get(b Bucket) float64 {
	return t.values[b]
}

func (t *Subtotals) Has(b Bucket) bool {
	_, ok := t.values[b]
	return ok
}

// Buckets lists written buckets in name order.
func (t *Subtotals) Buckets() []Bucket {
	out := make([]Bucket, 0, len(t.values))
	for b := range t.values {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Context is the state threaded through one pipeline run.
type Context struct {
	Student   *Student
	Subtotals Subtotals

	stopped bool
}

func NewContext(s *Student) *Context {
	return &Context{Student: s}
}

// ShouldContinue is false once any stage has disqualified the student.
func (c *Context) ShouldContinue() bool {
	return !c.stopped
}

// Disqualify stops the pipeline and freezes the result at zero.
// The first disqualification wins.
func (c *Context) Disqualify(stage, reason string) {
	if c.stopped {
		return
	}
	c.stopped = true
	c.Student.Result = &ScoreResult{
		StudentID:    c.Student.ID,
		FinalScore:   0,
		Formula:      stage,
		Disqualified: true,
		Reason:       reason,
	}
}
