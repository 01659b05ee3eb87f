package modules

import (
	"bytes"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/value"
)

var validate = validator.New()

// decodeParams maps a rendered parameter mapping onto a module's params
// struct, rejecting unknown fields, and runs struct validation. Failures
// are ParamInvalid.
func decodeParams(module string, params value.Value, out interface{}) error {
	if params.Kind() != value.KindMap {
		return engine.NewErrorf(engine.KindParamInvalid,
			"%s: params must be a mapping, got %s", module, params.Kind())
	}
	raw, err := yaml.Marshal(params.ToGo())
	if err != nil {
		return engine.WrapError(engine.KindParamInvalid,
			fmt.Sprintf("%s: cannot encode params", module), err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return engine.WrapError(engine.KindParamInvalid,
			fmt.Sprintf("%s: invalid params %s", module, params.Summary()), err)
	}
	if err := validate.Struct(out); err != nil {
		return engine.WrapError(engine.KindParamInvalid,
			fmt.Sprintf("%s: invalid params %s", module, params.Summary()), err)
	}
	return nil
}

// stringList decodes either a scalar or a sequence of scalars.
type stringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*s = items
		return nil
	default:
		return fmt.Errorf("expected a string or a list of strings")
	}
}
