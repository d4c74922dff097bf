package calculator

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownInstitution is returned when no calculator is registered for
// the requested code.
var ErrUnknownInstitution = errors.New("unknown institution")

//go:embed institutions/*.yaml
var bundled embed.FS

// Registry holds the calculators by institution code. It is filled before
// use and only read afterwards.
type Registry struct {
	calcs map[string]*Calculator
}

func NewRegistry() *Registry {
	return &Registry{calcs: map[string]*Calculator{}}
}

// Add registers a calculator, replacing any with the same code.
func (r *Registry) Add(c *Calculator) { r.calcs[c.Code()] = c }

// Lookup returns the calculator for an institution code.
func (r *Registry) Lookup(code string) (*Calculator, error) {
	c, ok := r.calcs[strings.TrimSpace(code)]
	if !ok {
		return nil, errors.Wrap(ErrUnknownInstitution, code)
	}
	return c, nil
}

// Codes lists the registered institution codes in order.
func (r *Registry) Codes() []string {
	out := make([]string, 0, len(r.calcs))
	for k := range r.calcs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AddFS builds every *.yaml definition under dir in fsys.
func (r *Registry) AddFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return errors.Wrapf(err, "read %s", dir)
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		p := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return errors.Wrapf(err, "read %s", p)
		}
		def, err := Parse(data)
		if err != nil {
			return errors.Wrap(err, p)
		}
		c, err := Build(def)
		if err != nil {
			return errors.Wrap(err, p)
		}
		r.Add(c)
	}
	return nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// Load builds the bundled institutions, then any definitions found in
// extraDir, which may replace bundled ones by code.
func Load(extraDir string) (*Registry, error) {
	r := NewRegistry()
	if err := r.AddFS(bundled, "institutions"); err != nil {
		return nil, errors.Wrap(err, "bundled institutions")
	}
	if extraDir != "" {
		if err := r.AddFS(os.DirFS(extraDir), "."); err != nil {
			return nil, errors.Wrap(err, "institution dir")
		}
	}
	return r, nil
}
