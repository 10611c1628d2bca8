package sweep

import (
	"fmt"
	"slices"
	"strings"
)

// Choice is the Value selected for one Variable of a Variant.
type Choice struct {
	Variable string
	Target   string
	Value    Value
}

// Variant is one point of a Suite's cartesian product: exactly one Value per
// Variable, in the Suite's Variable declaration order.
type Variant struct {
	suite   string
	choices []Choice
	label   string
}

func newVariant(suite string, choices []Choice) Variant {
	labels := make([]string, len(choices))
	for i, c := range choices {
		labels[i] = c.Value.ShortLabel
	}
	return Variant{
		suite:   suite,
		choices: choices,
		label:   strings.Join(labels, "_"),
	}
}

// Suite returns the name of the suite the variant was generated by. It is
// kept when the variant is concatenated into a ConcatSuite.
func (v Variant) Suite() string {
	return v.suite
}

// Label is the underscore-joined short labels of the selected values.
func (v Variant) Label() string {
	return v.label
}

// OutputFile is the name of the artifact the variant's job produces.
func (v Variant) OutputFile() string {
	return v.label + ".data"
}

// ParamsForTarget returns the parameter strings of the values whose variable
// targets target, in variable declaration order.
func (v Variant) ParamsForTarget(target string) []string {
	var params []string
	for _, c := range v.choices {
		if c.Target == target {
			params = append(params, c.Value.ParamString)
		}
	}
	return params
}

// ParamsExcluding returns the parameter strings of every value whose
// variable target is not one of targets, in variable declaration order.
func (v Variant) ParamsExcluding(targets ...string) []string {
	var params []string
	for _, c := range v.choices {
		if !slices.Contains(targets, c.Target) {
			params = append(params, c.Value.ParamString)
		}
	}
	return params
}

// Value returns the value selected for the named variable.
func (v Variant) Value(variable string) (Value, bool) {
	for _, c := range v.choices {
		if c.Variable == variable {
			return c.Value, true
		}
	}
	return Value{}, false
}

// Choices returns a copy of the selection in declaration order.
func (v Variant) Choices() []Choice {
	return append([]Choice(nil), v.choices...)
}

// Equal reports whether both variants select the same values from the same suite.
func (v Variant) Equal(o Variant) bool {
	return v.suite == o.suite && slices.Equal(v.choices, o.choices)
}

func (v Variant) String() string {
	return fmt.Sprintf("%s/%s", v.suite, v.label)
}
