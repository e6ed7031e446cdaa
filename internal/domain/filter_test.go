package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFiltersExpr(t *testing.T) {
	tests := []struct {
		name    string
		filters Filters
		want    string
		isNil   bool
	}{
		{name: "none", filters: Filters{}, isNil: true},
		{name: "specialty only", filters: Filters{Specialty: "Urology"}, want: "specialty=Urology"},
		{name: "procedure only", filters: Filters{ProcedureType: "TURP"}, want: "procedure_type=TURP"},
		{
			name:    "both",
			filters: Filters{Specialty: "Urology", ProcedureType: "TURP"},
			want:    "procedure_type=TURP AND specialty=Urology",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := tt.filters.Expr()
			if tt.isNil {
				assert.Nil(t, expr)
				assert.Equal(t, "", FilterKey(expr))
				return
			}
			assert.Equal(t, tt.want, expr.String())
		})
	}
}

func TestFilterMatches(t *testing.T) {
	m := Metadata{ProcedureType: "P", Specialty: "S1", RecordID: 42}

	assert.True(t, Eq(FieldSpecialty, "S1").Matches(m))
	assert.False(t, Eq(FieldSpecialty, "S2").Matches(m))
	assert.True(t, Eq(FieldRecordID, "42").Matches(m))
	assert.False(t, Eq("surgeon", "anyone").Matches(m))

	both := And(Eq(FieldSpecialty, "S1"), Eq(FieldProcedureType, "P"))
	assert.True(t, both.Matches(m))
	assert.False(t, And(Eq(FieldSpecialty, "S1"), Eq(FieldProcedureType, "Q")).Matches(m))
	assert.Len(t, both.Conditions(), 2)
}

func TestAndFlattensTrivialCases(t *testing.T) {
	assert.Nil(t, And())
	assert.Nil(t, And(nil, nil))

	single := And(nil, Eq(FieldSpecialty, "S1"))
	assert.Equal(t, Eq(FieldSpecialty, "S1"), single)

	a := And(Eq(FieldSpecialty, "S1"), Eq(FieldProcedureType, "P"))
	b := And(Eq(FieldProcedureType, "P"), Eq(FieldSpecialty, "S1"))
	assert.Equal(t, FilterKey(a), FilterKey(b))
}

func TestRecordIndexable(t *testing.T) {
	assert.False(t, Record{ID: 1, Text: "   \n\t"}.Indexable())
	assert.True(t, Record{ID: 1, Text: " x "}.Indexable())

	md := Record{ID: 9, ProcedureType: "P", Specialty: "S"}.Metadata()
	assert.Equal(t, Metadata{ProcedureType: "P", Specialty: "S", RecordID: 9}, md)
}
