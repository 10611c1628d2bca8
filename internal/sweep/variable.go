package sweep

import (
	"fmt"
	"strings"
)

// Value is one concrete choice for a Variable.
type Value struct {
	ShortLabel  string
	ParamString string
}

// NewValue creates a Value.
func NewValue(shortLabel, paramString string) Value {
	return Value{ShortLabel: shortLabel, ParamString: paramString}
}

func (v Value) String() string {
	return v.ShortLabel
}

// Variable is a named axis of variation. Target names the destination its
// rendered parameter is routed to.
type Variable struct {
	name   string
	target string
	values []Value
}

// NewVariable creates a Variable. It fails when no values are given or when
// a value has an empty short label.
func NewVariable(name, target string, values ...Value) (Variable, error) {
	if strings.TrimSpace(name) == "" {
		return Variable{}, fmt.Errorf("%w: variable name is required", ErrConfiguration)
	}
	if len(values) == 0 {
		return Variable{}, fmt.Errorf("%w: variable %q has no values", ErrConfiguration, name)
	}
	for i, v := range values {
		if v.ShortLabel == "" {
			return Variable{}, fmt.Errorf("%w: variable %q value %d has an empty label", ErrConfiguration, name, i)
		}
	}
	return Variable{
		name:   name,
		target: target,
		values: append([]Value(nil), values...),
	}, nil
}

// MustVariable is like NewVariable but panics on error. It is meant for
// statically declared sweeps.
func MustVariable(name, target string, values ...Value) Variable {
	v, err := NewVariable(name, target, values...)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatVariable generates one Value per item, labelled by the item and
// carrying fmt.Sprintf(format, item) as its parameter string.
func FormatVariable(name, target, format string, items ...string) (Variable, error) {
	values := make([]Value, 0, len(items))
	for _, item := range items {
		values = append(values, NewValue(item, fmt.Sprintf(format, item)))
	}
	return NewVariable(name, target, values...)
}

func (v Variable) Name() string   { return v.name }
func (v Variable) Target() string { return v.target }

// Values returns a copy of the variable's values in declaration order.
func (v Variable) Values() []Value {
	return append([]Value(nil), v.values...)
}

// Len returns the number of values.
func (v Variable) Len() int {
	return len(v.values)
}

func (v Variable) valid() bool {
	return v.name != "" && len(v.values) > 0
}
