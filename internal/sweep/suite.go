package sweep

import (
	"fmt"
	"sync"
)

// VariantSource is anything that produces an ordered list of variants.
// Suite and ConcatSuite both implement it, so suites can be nested.
type VariantSource interface {
	Name() string
	Variants() []Variant
}

// Suite is an ordered collection of Variables whose cartesian product forms
// a job list.
type Suite struct {
	name      string
	variables []Variable

	once     sync.Once
	variants []Variant
}

// NewSuite creates a Suite. It fails on an empty variable list, on an
// invalid variable and on two variables sharing a name.
func NewSuite(name string, variables ...Variable) (*Suite, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: suite name is required", ErrConfiguration)
	}
	if len(variables) == 0 {
		return nil, fmt.Errorf("%w: suite %q has no variables", ErrConfiguration, name)
	}
	seen := make(map[string]struct{}, len(variables))
	for i, v := range variables {
		if !v.valid() {
			return nil, fmt.Errorf("%w: suite %q variable %d is not initialized", ErrConfiguration, name, i)
		}
		if _, dup := seen[v.name]; dup {
			return nil, fmt.Errorf("%w: suite %q declares variable %q twice", ErrConfiguration, name, v.name)
		}
		seen[v.name] = struct{}{}
	}
	return &Suite{
		name:      name,
		variables: append([]Variable(nil), variables...),
	}, nil
}

// MustSuite is like NewSuite but panics on error.
func MustSuite(name string, variables ...Variable) *Suite {
	s, err := NewSuite(name, variables...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Suite) Name() string {
	return s.name
}

// Variables returns a copy of the declared variables.
func (s *Suite) Variables() []Variable {
	return append([]Variable(nil), s.variables...)
}

// Len returns the number of variants without materializing them.
func (s *Suite) Len() int {
	n := 1
	for _, v := range s.variables {
		n *= len(v.values)
	}
	return n
}

// Variants returns the cartesian product of the suite's variables. The last
// declared variable varies fastest. The product is computed once.
func (s *Suite) Variants() []Variant {
	s.once.Do(func() {
		s.variants = s.product()
	})
	return append([]Variant(nil), s.variants...)
}

func (s *Suite) product() []Variant {
	out := make([]Variant, 0, s.Len())
	odometer := make([]int, len(s.variables))
	for {
		choices := make([]Choice, len(s.variables))
		for i, v := range s.variables {
			choices[i] = Choice{Variable: v.name, Target: v.target, Value: v.values[odometer[i]]}
		}
		out = append(out, newVariant(s.name, choices))

		// Advance from the last variable, carrying leftwards.
		i := len(odometer) - 1
		for ; i >= 0; i-- {
			odometer[i]++
			if odometer[i] < len(s.variables[i].values) {
				break
			}
			odometer[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}

func (s *Suite) Naming() Naming {
	return Naming(s.name)
}

// ConcatSuite joins the variant lists of its component sources end to end.
type ConcatSuite struct {
	name   string
	suites []VariantSource
}

// NewConcatSuite creates a ConcatSuite from one or more sources.
func NewConcatSuite(name string, suites ...VariantSource) (*ConcatSuite, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: concat suite name is required", ErrConfiguration)
	}
	if len(suites) == 0 {
		return nil, fmt.Errorf("%w: concat suite %q has no suites", ErrConfiguration, name)
	}
	for i, s := range suites {
		if s == nil {
			return nil, fmt.Errorf("%w: concat suite %q component %d is nil", ErrConfiguration, name, i)
		}
	}
	return &ConcatSuite{
		name:   name,
		suites: append([]VariantSource(nil), suites...),
	}, nil
}

// MustConcatSuite is like NewConcatSuite but panics on error.
func MustConcatSuite(name string, suites ...VariantSource) *ConcatSuite {
	c, err := NewConcatSuite(name, suites...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *ConcatSuite) Name() string {
	return c.name
}

// Suites returns the component sources in order.
func (c *ConcatSuite) Suites() []VariantSource {
	return append([]VariantSource(nil), c.suites...)
}

// Variants returns the components' variants concatenated in component order.
func (c *ConcatSuite) Variants() []Variant {
	var out []Variant
	for _, s := range c.suites {
		out = append(out, s.Variants()...)
	}
	return out
}

func (c *ConcatSuite) Naming() Naming {
	return Naming(c.name)
}
