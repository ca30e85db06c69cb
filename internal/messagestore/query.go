package messagestore

import (
	"sort"

	"github.com/onnwee/dwnd/internal/dwnmodel"
)

// candidate is the shape the shared query algorithm operates over; both
// InMemoryStore and PostgresStore reduce their storage to this before
// calling runQuery, so the filter/sort/cursor/limit logic — the part spec
// §8's testable properties are about — is implemented exactly once.
type candidate struct {
	messageCID string
	indexes    map[string]any
}

// MatchesFilters reports whether indexes satisfies filters' disjunction of
// conjunctions — the same predicate Query applies to stored messages,
// exported for internal/eventstream to test live commits against a
// subscription's filter without duplicating the matching algorithm.
func MatchesFilters(indexes map[string]any, filters []dwnmodel.FilterSet) bool {
	return matchesAnyFilterSet(candidate{indexes: indexes}, filters)
}

// matchesAnyFilterSet implements spec §4.3's "disjunction of conjunctions":
// true if c satisfies every clause of at least one FilterSet.
func matchesAnyFilterSet(c candidate, filters []dwnmodel.FilterSet) bool {
	if len(filters) == 0 {
		return true
	}
	for _, fs := range filters {
		if matchesFilterSet(c, fs) {
			return true
		}
	}
	return false
}

func matchesFilterSet(c candidate, fs dwnmodel.FilterSet) bool {
	for prop, clause := range fs {
		val, ok := c.indexes[prop]
		if !ok {
			return false
		}
		if !matchesClause(val, clause) {
			return false
		}
	}
	return true
}

func matchesClause(val any, clause dwnmodel.ClauseValue) bool {
	switch {
	case clause.Range != nil:
		ok, err := matchesRange(val, clause.Range)
		return err == nil && ok
	case len(clause.OneOf) > 0:
		for _, want := range clause.OneOf {
			if valuesEqual(val, want) {
				return true
			}
		}
		return false
	default:
		return valuesEqual(val, clause.Equals)
	}
}

// valuesEqual compares two indexable values for exact equality — never a
// prefix match — using their sortable encoding so a string and a
// differently-typed value (e.g. bool true vs. string "true") never
// compare equal even though their literal text might.
func valuesEqual(a, b any) bool {
	ea, err := EncodeSortable(a)
	if err != nil {
		return false
	}
	eb, err := EncodeSortable(b)
	if err != nil {
		return false
	}
	return ea == eb
}

func matchesRange(val any, r *dwnmodel.RangeClause) (bool, error) {
	encVal, err := EncodeSortable(val)
	if err != nil {
		return false, err
	}

	check := func(bound any, cmp func(a, b string) bool) (bool, error) {
		if bound == nil {
			return true, nil
		}
		encBound, err := EncodeSortable(bound)
		if err != nil {
			return false, err
		}
		if valueKind(encVal) != valueKind(encBound) {
			return false, nil
		}
		return cmp(encVal, encBound), nil
	}

	if ok, err := check(r.GTE, func(a, b string) bool { return a >= b }); err != nil || !ok {
		return ok, err
	}
	if ok, err := check(r.GT, func(a, b string) bool { return a > b }); err != nil || !ok {
		return ok, err
	}
	if ok, err := check(r.LTE, func(a, b string) bool { return a <= b }); err != nil || !ok {
		return ok, err
	}
	if ok, err := check(r.LT, func(a, b string) bool { return a < b }); err != nil || !ok {
		return ok, err
	}
	return true, nil
}

// sortKey returns the string this candidate sorts by: the encoded value of
// the sort property if present, else the messageCid (spec §4.3 step 4, and
// the fallback for candidates missing the sort property entirely).
func sortKey(c candidate, sortProp string) string {
	if sortProp != "" {
		if v, ok := c.indexes[sortProp]; ok {
			if enc, err := EncodeSortable(v); err == nil {
				return enc
			}
		}
	}
	return "s:" + c.messageCID
}

// runQuery applies spec §4.3's full algorithm — filter, sort, cursor,
// limit — to a tenant's full candidate set and returns the matching page
// plus the next cursor (empty if there is no further page).
func runQuery(candidates []candidate, filters []dwnmodel.FilterSet, opts QueryOptions) (matched []candidate, nextCursor string) {
	var selected []candidate
	for _, c := range candidates {
		if matchesAnyFilterSet(c, filters) {
			selected = append(selected, c)
		}
	}

	sortProp := ""
	desc := false
	if opts.Sort != nil {
		sortProp = opts.Sort.Property
		desc = opts.Sort.Direction == dwnmodel.SortDescending
	}

	sort.SliceStable(selected, func(i, j int) bool {
		ki, kj := sortKey(selected[i], sortProp), sortKey(selected[j], sortProp)
		if ki == kj {
			return selected[i].messageCID < selected[j].messageCID
		}
		if desc {
			return ki > kj
		}
		return ki < kj
	})

	if opts.Cursor != "" {
		cursorKey, cursorCID, ok := splitCursor(opts.Cursor)
		if !ok {
			// An invalid cursor yields the empty set, spec §4.3 step 5.
			return nil, ""
		}
		filtered := selected[:0:0]
		for _, c := range selected {
			after := afterCursor(sortKey(c, sortProp), c.messageCID, cursorKey, cursorCID, desc)
			if after {
				filtered = append(filtered, c)
			}
		}
		selected = filtered
	}

	if opts.Limit > 0 && len(selected) > opts.Limit {
		last := selected[opts.Limit-1]
		next := makeCursor(sortKey(last, sortProp), last.messageCID)
		return selected[:opts.Limit], next
	}

	return selected, ""
}

// afterCursor reports whether (key, cid) sorts strictly after (cursorKey,
// cursorCID) in the direction given, using the same (sortValue,
// messageCid) tie-break the main sort uses — spec §4.3 step 5 and §8's
// "sorting is stable under a fixed (sortValue, messageCid) tie-break".
func afterCursor(key, cid, cursorKey, cursorCID string, desc bool) bool {
	if key == cursorKey {
		return cid > cursorCID
	}
	if desc {
		return key < cursorKey
	}
	return key > cursorKey
}
