// Package filter narrows a contact table along independent, optional
// dimensions. Criteria are AND-combined across dimensions and OR-combined
// within one; an unset dimension imposes no constraint.
package filter

import (
	"sort"
	"strings"
	"time"

	"github.com/AngelCh415/prospection-kpi/internal/models"
)

// MatchMode selects how a TextFilter compares values.
type MatchMode uint8

const (
	MatchExact MatchMode = iota
	MatchContains
)

// ParseMatchMode maps "exact" / "contains"; anything else is exact.
func ParseMatchMode(s string) MatchMode {
	if strings.EqualFold(strings.TrimSpace(s), "contains") {
		return MatchContains
	}
	return MatchExact
}

func (m MatchMode) String() string {
	if m == MatchContains {
		return "contains"
	}
	return "exact"
}

// TextFilter matches a free-text field against any of Values.
type TextFilter struct {
	Values []string
	Mode   MatchMode
}

type Criteria struct {
	Start *time.Time
	End   *time.Time

	Campaigns []string
	Titles    TextFilter
	Sectors   []string
	Sizes     []string
	Locations TextFilter
}

// IsEmpty reports whether no dimension is constrained.
func (c Criteria) IsEmpty() bool {
	return c.Start == nil && c.End == nil &&
		len(toLowerSet(c.Campaigns)) == 0 &&
		len(toLowerSet(c.Titles.Values)) == 0 &&
		len(toLowerSet(c.Sectors)) == 0 &&
		len(toLowerSet(c.Sizes)) == 0 &&
		len(toLowerSet(c.Locations.Values)) == 0
}

type predicate func(models.Contact) bool

// Apply returns the records of table satisfying every criterion, in their
// original order. The input is never modified; the result is always a new
// slice, even when nothing is filtered out.
func Apply(table models.Table, c Criteria) models.Table {
	preds := c.compile()
	if len(preds) == 0 {
		return table.Clone()
	}

	out := make(models.Table, 0, len(table))
	for _, rec := range table {
		pass := true
		for _, p := range preds {
			if !p(rec) {
				pass = false
				break
			}
		}
		if pass {
			out = append(out, rec)
		}
	}
	return out
}

func (c Criteria) compile() []predicate {
	var preds []predicate
	if c.Start != nil || c.End != nil {
		preds = append(preds, dateRange(c.Start, c.End))
	}
	if p := memberOf(c.Campaigns, models.DimCampaign); p != nil {
		preds = append(preds, p)
	}
	if p := text(c.Titles, models.DimJobTitle); p != nil {
		preds = append(preds, p)
	}
	if p := memberOf(c.Sectors, models.DimSector); p != nil {
		preds = append(preds, p)
	}
	if p := memberOf(c.Sizes, models.DimCompanySize); p != nil {
		preds = append(preds, p)
	}
	if p := text(c.Locations, models.DimLocation); p != nil {
		preds = append(preds, p)
	}
	return preds
}

// dateRange compares calendar days in UTC; both bounds are inclusive.
// A record without a usable date never matches.
func dateRange(start, end *time.Time) predicate {
	var from, to time.Time
	if start != nil {
		from = dayUTC(*start)
	}
	if end != nil {
		to = dayUTC(*end)
	}
	return func(rec models.Contact) bool {
		if !rec.HasRecordDate {
			return false
		}
		d := dayUTC(rec.RecordDate)
		if start != nil && d.Before(from) {
			return false
		}
		if end != nil && d.After(to) {
			return false
		}
		return true
	}
}

func memberOf(values []string, dim string) predicate {
	set := toLowerSet(values)
	if len(set) == 0 {
		return nil
	}
	return func(rec models.Contact) bool {
		v := norm(rec.Dimension(dim))
		if v == "" {
			return false
		}
		_, ok := set[v]
		return ok
	}
}

func text(f TextFilter, dim string) predicate {
	if f.Mode == MatchExact {
		return memberOf(f.Values, dim)
	}
	needles := make([]string, 0, len(f.Values))
	for v := range toLowerSet(f.Values) {
		needles = append(needles, v)
	}
	if len(needles) == 0 {
		return nil
	}
	return func(rec models.Contact) bool {
		v := norm(rec.Dimension(dim))
		if v == "" {
			return false
		}
		for _, n := range needles {
			if strings.Contains(v, n) {
				return true
			}
		}
		return false
	}
}

// Facets returns the sorted distinct non-empty values of every segmentation
// dimension, keyed by dimension name.
func Facets(table models.Table) map[string][]string {
	out := make(map[string][]string, len(models.Dimensions))
	for _, dim := range models.Dimensions {
		seen := make(map[string]struct{})
		vals := []string{}
		for _, rec := range table {
			v := rec.Dimension(dim)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			vals = append(vals, v)
		}
		sort.Strings(vals)
		out[dim] = vals
	}
	return out
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func toLowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if v := norm(it); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func dayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
