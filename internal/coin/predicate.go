package coin

import (
	"fmt"
	"strings"

	"cryptobroker/internal/domain"
)

// Field is the currency attribute a lookup matches on.
type Field int

const (
	FieldID Field = iota
	FieldName
	FieldSymbol
)

// fieldMeta maps a Field to its column and matching rule
var fieldMeta = map[Field]struct {
	Name            string
	Column          string
	CaseInsensitive bool
}{
	FieldID:     {Name: "id", Column: "id", CaseInsensitive: false},
	FieldName:   {Name: "name", Column: "name", CaseInsensitive: true},
	FieldSymbol: {Name: "symbol", Column: "symbol", CaseInsensitive: true},
}

func (f Field) String() string {
	if m, ok := fieldMeta[f]; ok {
		return m.Name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Column is the storage column backing the field.
func (f Field) Column() string { return fieldMeta[f].Column }

// CaseInsensitive reports whether values are compared ignoring case.
func (f Field) CaseInsensitive() bool { return fieldMeta[f].CaseInsensitive }

// Predicate is the single lookup condition chosen from a CoinKey.
type Predicate struct {
	Field Field
	Value string
}

// PredicateFor picks the highest priority field present in key: id, then name, then symbol.
func PredicateFor(key domain.CoinKey) (Predicate, error) {
	switch {
	case key.ID != "":
		return Predicate{Field: FieldID, Value: key.ID}, nil
	case key.Name != "":
		return Predicate{Field: FieldName, Value: key.Name}, nil
	case key.Symbol != "":
		return Predicate{Field: FieldSymbol, Value: key.Symbol}, nil
	}
	return Predicate{}, domain.ErrInvalidKey
}

// Matches evaluates the predicate against a record in memory.
func (p Predicate) Matches(rec domain.CurrencyRecord) bool {
	var got string
	switch p.Field {
	case FieldID:
		got = rec.ID
	case FieldName:
		got = rec.Name
	case FieldSymbol:
		got = rec.Symbol
	default:
		return false
	}
	if p.Field.CaseInsensitive() {
		return strings.EqualFold(got, p.Value)
	}
	return got == p.Value
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s=%q", p.Field, p.Value)
}
