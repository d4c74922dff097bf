package calculator

import (
	"bytes"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//
// Definition is the declarative form of one institution's calculator:
// the code-name catalogs and the ordered stage list.
//
type Definition struct {
	Code       string            `yaml:"code" validate:"required"`
	Name       string            `yaml:"name" validate:"required"`
	Admissions map[string]string `yaml:"admissions" validate:"required,min=1"`
	Units      map[string]string `yaml:"units" validate:"required,min=1"`
	Stages     []StageSpec       `yaml:"stages" validate:"required,min=1,dive"`
}

// StageSpec names a stage type and holds its still-undecoded config.
type StageSpec struct {
	Type   string    `yaml:"type" validate:"required"`
	Config yaml.Node `yaml:"config" validate:"-"`
}

// strictDecode decodes data into v, rejecting keys v has no field for.
func strictDecode(data []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

// decoder decodes the stage's config node; a missing node decodes to the
// zero config. The node is re-encoded so unknown keys are rejected.
func (s StageSpec) decoder() func(v interface{}) error {
	node := s.Config
	return func(v interface{}) error {
		if node.Kind == 0 {
			return nil
		}
		data, err := yaml.Marshal(&node)
		if err != nil {
			return errors.Wrap(err, "re-encode config")
		}
		return strictDecode(data, v)
	}
}

var validate = validator.New()

// Parse reads a YAML institution definition.
func Parse(data []byte) (Definition, error) {
	var def Definition
	if err := strictDecode(data, &def); err != nil {
		return def, errors.Wrap(err, "parse definition")
	}
	if err := validate.Struct(def); err != nil {
		return def, errors.Wrapf(err, "definition %q", def.Code)
	}
	return def, nil
}
