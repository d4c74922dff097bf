package stage

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/numeric"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/policy"
)

func init() {
	Register("remap", newRemap)
	Register("intervalTable", newIntervalTable)
	Register("round", newRound)
}

// refs parses the from/to pair shared by the value-to-value stages.
func refs(from, to string) (valueRef, valueRef, error) {
	f, err := parseRef(from)
	if err != nil {
		return valueRef{}, valueRef{}, err
	}
	if to == "" {
		return f, f, nil
	}
	t, err := parseRef(to)
	if err != nil {
		return valueRef{}, valueRef{}, err
	}
	return f, t, nil
}

// --- remap ---

type remapEntry struct {
	policy.Scope `yaml:",inline"`
	From         string   `yaml:"from"`
	To           string   `yaml:"to"`
	Multiplier   float64  `yaml:"multiplier" validate:"required"`
	Offset       float64  `yaml:"offset"`
	Min          *float64 `yaml:"min"`
	Max          *float64 `yaml:"max"`

	from, to valueRef
}

type remap struct {
	base
	entries []remapEntry
}

func newRemap(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []remapEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Entries {
		e := &cfg.Entries[i]
		var err error
		if e.from, e.to, err = refs(e.From, e.To); err != nil {
			return nil, err
		}
		if e.Min != nil && e.Max != nil && *e.Min > *e.Max {
			return nil, errors.Errorf("remap min %g above max %g", *e.Min, *e.Max)
		}
	}
	return &remap{base: base{"remap", pipeline.Aggregator}, entries: cfg.Entries}, nil
}

// Process maps x to clamp(offset + multiplier×x, min, max). A source that
// was never written leaves everything unchanged.
func (s *remap) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	x, ok := e.from.read(c)
	if !ok {
		return
	}
	y := e.Offset + e.Multiplier*x
	if e.Min != nil {
		y = math.Max(y, *e.Min)
	}
	if e.Max != nil {
		y = math.Min(y, *e.Max)
	}
	e.to.write(c, y, fmt.Sprintf("%s%+g×%s = %s", num(e.Offset), e.Multiplier, num(x), num(y)))
}

func (s *remap) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		p := fmt.Sprintf("%s: %s → %s = %s + %s×x", e.Scope, e.from, e.to, num(e.Offset), num(e.Multiplier))
		if e.Min != nil {
			p += " min " + num(*e.Min)
		}
		if e.Max != nil {
			p += " max " + num(*e.Max)
		}
		parts = append(parts, p)
	}
	return s.describe("score", "remaps a score linearly with optional clamping", joinEntries(parts))
}

// --- intervalTable ---

type intervalRow struct {
	UpTo  float64 `yaml:"upTo"`
	Score float64 `yaml:"score"`
}

type intervalEntry struct {
	policy.Scope `yaml:",inline"`
	From         string        `yaml:"from"`
	To           string        `yaml:"to"`
	Rows         []intervalRow `yaml:"rows" validate:"required,min=1"`
	// score when x is above every row
	Otherwise float64 `yaml:"otherwise"`

	from, to valueRef
}

type intervalTable struct {
	base
	entries []intervalEntry
}

func newIntervalTable(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []intervalEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Entries {
		e := &cfg.Entries[i]
		var err error
		if e.from, e.to, err = refs(e.From, e.To); err != nil {
			return nil, err
		}
		for j := 1; j < len(e.Rows); j++ {
			if e.Rows[j].UpTo <= e.Rows[j-1].UpTo {
				return nil, errors.Errorf("interval rows must ascend: %g after %g", e.Rows[j].UpTo, e.Rows[j-1].UpTo)
			}
		}
	}
	return &intervalTable{base: base{"intervalTable", pipeline.Aggregator}, entries: cfg.Entries}, nil
}

func (s *intervalTable) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	x, ok := e.from.read(c)
	if !ok {
		return
	}
	y := e.Otherwise
	for _, r := range e.Rows {
		if x <= r.UpTo {
			y = r.Score
			break
		}
	}
	e.to.write(c, y, fmt.Sprintf("interval(%s) = %s", num(x), num(y)))
}

func (s *intervalTable) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		rows := ""
		for _, r := range e.Rows {
			rows += fmt.Sprintf(" ≤%s→%s", num(r.UpTo), num(r.Score))
		}
		parts = append(parts, fmt.Sprintf("%s: %s → %s%s else %s", e.Scope, e.from, e.to, rows, num(e.Otherwise)))
	}
	return s.describe("score", "maps a score through an ascending interval table", joinEntries(parts))
}

// --- round ---

type roundEntry struct {
	policy.Scope `yaml:",inline"`
	Target       string       `yaml:"target"`
	Mode         numeric.Mode `yaml:"mode"`
	Digits       int          `yaml:"digits" validate:"min=0,max=10"`

	target valueRef
}

type round struct {
	base
	entries []roundEntry
}

func newRound(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []roundEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Entries {
		e := &cfg.Entries[i]
		if e.Mode == "" {
			e.Mode = numeric.HalfUp
		}
		if !e.Mode.Valid() {
			return nil, errors.Errorf("unknown rounding mode %q", e.Mode)
		}
		ref, err := parseRef(e.Target)
		if err != nil {
			return nil, err
		}
		e.target = ref
	}
	return &round{base: base{"round", pipeline.Aggregator}, entries: cfg.Entries}, nil
}

func (s *round) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	x, ok := e.target.read(c)
	if !ok {
		return
	}
	y := e.Mode.Apply(x, e.Digits)
	e.target.write(c, y, fmt.Sprintf("%s(%d) = %s", e.Mode, e.Digits, num(y)))
}

func (s *round) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: %s %s to %d digits", e.Scope, e.target, e.Mode, e.Digits))
	}
	return s.describe("score", "rounds a score to a fixed number of digits", joinEntries(parts))
}
