// Package query describes catalog lookups as data so the PostgreSQL and
// Elasticsearch stores can compile the same request.
package query

import (
	"fmt"
)

type Field string

const (
	FieldID        Field = "id"
	FieldGenres    Field = "genres"
	FieldTags      Field = "tags"
	FieldArtStyles Field = "art_styles"
	FieldIsActive  Field = "is_active"
	FieldViewCount Field = "view_count"
	FieldUpdatedAt Field = "updated_at"
	FieldRating    Field = "rating"
)

// Kind tells compilers how a field is stored.
type Kind int

const (
	KindScalar Kind = iota
	KindArray
	KindBool
	KindNumber
	KindTime
)

var fieldKinds = map[Field]Kind{
	FieldID:        KindScalar,
	FieldGenres:    KindArray,
	FieldTags:      KindArray,
	FieldArtStyles: KindArray,
	FieldIsActive:  KindBool,
	FieldViewCount: KindNumber,
	FieldUpdatedAt: KindTime,
	FieldRating:    KindNumber,
}

func (f Field) Kind() (Kind, bool) {
	k, ok := fieldKinds[f]
	return k, ok
}

type Operator string

const (
	OpEq    Operator = "eq"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

// Filter is one predicate. OpEq reads Value; OpIn and OpNotIn read Values.
// On array fields OpIn means "shares at least one element".
type Filter struct {
	Field  Field
	Op     Operator
	Value  interface{}
	Values []string
}

func Eq(field Field, value interface{}) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

func In(field Field, values ...string) Filter {
	return Filter{Field: field, Op: OpIn, Values: values}
}

func NotIn(field Field, values ...string) Filter {
	return Filter{Field: field, Op: OpNotIn, Values: values}
}

func Active() Filter {
	return Eq(FieldIsActive, true)
}

func (f Filter) Validate() error {
	kind, ok := f.Field.Kind()
	if !ok {
		return fmt.Errorf("unknown field %q", f.Field)
	}

	switch f.Op {
	case OpEq:
		if f.Value == nil {
			return fmt.Errorf("%s: eq needs a value", f.Field)
		}
		if kind == KindBool {
			if _, ok := f.Value.(bool); !ok {
				return fmt.Errorf("%s: eq needs a bool", f.Field)
			}
		}
	case OpIn, OpNotIn:
		if kind != KindScalar && kind != KindArray {
			return fmt.Errorf("%s: %s is not supported on this field", f.Field, f.Op)
		}
		if len(f.Values) == 0 {
			return fmt.Errorf("%s: %s needs at least one value", f.Field, f.Op)
		}
	default:
		return fmt.Errorf("%s: unknown operator %q", f.Field, f.Op)
	}
	return nil
}

type Sort struct {
	Field Field
	Desc  bool
}

// Catalog selects manhwas. Every All filter must hold; when Any is non-empty
// at least one of its filters must hold as well.
type Catalog struct {
	All    []Filter
	Any    []Filter
	Sort   []Sort
	Offset int
	Limit  int
}

// Where adds filters that carry values. Empty In/NotIn filters are dropped
// rather than matching nothing.
func (c *Catalog) Where(filters ...Filter) *Catalog {
	for _, f := range filters {
		if !f.empty() {
			c.All = append(c.All, f)
		}
	}
	return c
}

func (c *Catalog) Or(filters ...Filter) *Catalog {
	for _, f := range filters {
		if !f.empty() {
			c.Any = append(c.Any, f)
		}
	}
	return c
}

func (f Filter) empty() bool {
	return (f.Op == OpIn || f.Op == OpNotIn) && len(f.Values) == 0
}

func (c *Catalog) OrderBy(field Field, desc bool) *Catalog {
	c.Sort = append(c.Sort, Sort{Field: field, Desc: desc})
	return c
}

func (c *Catalog) Page(offset, limit int) *Catalog {
	c.Offset = offset
	c.Limit = limit
	return c
}

// HasFilter reports whether an All filter targets field.
func (c *Catalog) HasFilter(field Field) bool {
	for _, f := range c.All {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (c *Catalog) Validate() error {
	for _, f := range c.All {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, f := range c.Any {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, s := range c.Sort {
		kind, ok := s.Field.Kind()
		if !ok {
			return fmt.Errorf("unknown sort field %q", s.Field)
		}
		if kind == KindArray {
			return fmt.Errorf("cannot sort by array field %q", s.Field)
		}
	}
	if c.Offset < 0 {
		return fmt.Errorf("offset must be >= 0")
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must be >= 0")
	}
	return nil
}
