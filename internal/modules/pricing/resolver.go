package pricing

import (
	"cmp"
	"slices"
	"strings"

	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
	"github.com/ilramdhan/calculator-engine/pkg/formula"
)

// Table is a price list indexed by tag, each tag's rows kept in scan order.
// It is immutable once built and safe for concurrent use.
type Table struct {
	byTag map[string][]entity.Price
}

// NewTable copies rows, stable-sorts them by Order and groups them by lower-cased tag
func NewTable(rows []entity.Price) *Table {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b entity.Price) int {
		return cmp.Compare(a.Order, b.Order)
	})

	byTag := make(map[string][]entity.Price)
	for _, row := range sorted {
		tag := strings.ToLower(row.TagName)
		byTag[tag] = append(byTag[tag], row)
	}
	return &Table{byTag: byTag}
}

// Resolve returns the price of the last row for tag whose filter matches env,
// or fallback when none does
func (t *Table) Resolve(tag string, env formula.Env, fallback float64) float64 {
	result := fallback
	for _, row := range t.byTag[strings.ToLower(tag)] {
		if Match(row.Extra, env) {
			result = row.Price
		}
	}
	return result
}

// PriceFunc binds the table to env for use by formula evaluation. env is read
// at call time, so bindings added after this call are visible.
func (t *Table) PriceFunc(env formula.Env) formula.PriceFunc {
	return func(tag string, fallback float64) float64 {
		return t.Resolve(tag, env, fallback)
	}
}

// Tags returns the number of distinct tags in the table
func (t *Table) Tags() int {
	return len(t.byTag)
}

// Resolve is the stateless form of Table.Resolve
func Resolve(tag string, env formula.Env, rows []entity.Price, fallback float64) float64 {
	return NewTable(rows).Resolve(tag, env, fallback)
}
