package domain

import (
	"sort"
	"strings"
)

// Filterable metadata fields.
const (
	FieldProcedureType = "procedure_type"
	FieldSpecialty     = "specialty"
	FieldRecordID      = "record_id"
)

// Filter is a metadata predicate. A nil Filter matches everything.
type Filter interface {
	Matches(m Metadata) bool
	// Conditions returns the equality leaves of the expression.
	Conditions() []Condition
	String() string
}

// Condition is a single field equality.
type Condition struct {
	Field string
	Value string
}

// Eq builds a field equality node.
func Eq(field, value string) Condition {
	return Condition{Field: field, Value: value}
}

func (c Condition) Matches(m Metadata) bool {
	v, ok := m.Field(c.Field)
	return ok && v == c.Value
}

func (c Condition) Conditions() []Condition {
	return []Condition{c}
}

func (c Condition) String() string {
	return c.Field + "=" + c.Value
}

// AndFilter is a conjunction of filters.
type AndFilter []Filter

// And combines filters into a conjunction. Nil operands are dropped; with no
// operands left it returns nil, with one it returns that operand.
func And(filters ...Filter) Filter {
	kept := make(AndFilter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			kept = append(kept, f)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return kept
}

func (a AndFilter) Matches(m Metadata) bool {
	for _, f := range a {
		if !f.Matches(m) {
			return false
		}
	}
	return true
}

func (a AndFilter) Conditions() []Condition {
	var out []Condition
	for _, f := range a {
		out = append(out, f.Conditions()...)
	}
	return out
}

// String renders the conditions in a canonical order, so equal filters built
// in a different order render the same.
func (a AndFilter) String() string {
	conds := a.Conditions()
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, " AND ")
}

// FilterKey renders f for use in cache keys.
func FilterKey(f Filter) string {
	if f == nil {
		return ""
	}
	return f.String()
}

// Filters are the optional retrieve-time restrictions. Empty means unset.
type Filters struct {
	Specialty     string
	ProcedureType string
}

// Expr compiles the filters into an expression: nil, a single Eq, or And(Eq, Eq).
func (f Filters) Expr() Filter {
	var parts []Filter
	if f.Specialty != "" {
		parts = append(parts, Eq(FieldSpecialty, f.Specialty))
	}
	if f.ProcedureType != "" {
		parts = append(parts, Eq(FieldProcedureType, f.ProcedureType))
	}
	return And(parts...)
}
