package dwnmodel

// FilterSet is one conjunct of a query's disjunction-of-conjunctions filter
// (spec §4.3): every clause in the map must match for the conjunct to
// match. A Filters slice as a whole is the union (OR) of its FilterSets.
type FilterSet map[string]ClauseValue

// ClauseValue is a single property's match clause: exactly one of Equals,
// OneOf, or Range is set.
type ClauseValue struct {
	// Equals matches a single scalar value exactly.
	Equals any
	// OneOf matches if the property equals any value in the slice (an OR
	// across values of the same property).
	OneOf []any
	// Range matches a sort-ordered property against inclusive/exclusive
	// bounds.
	Range *RangeClause
}

// RangeClause bounds a property's value; any subset of the four fields may
// be set. Bounds are compared after the same lexicographic encoding the
// index uses (see internal/messagestore/encode.go).
type RangeClause struct {
	GTE any
	GT  any
	LTE any
	LT  any
}

// QuerySort names the property to sort by and the direction. A nil Sort
// falls back to messageCid ascending, spec §4.3 step 4.
type QuerySort struct {
	Property  string
	Direction SortDirection
}

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// Pagination carries the optional cursor and limit of a query.
type Pagination struct {
	Cursor string
	Limit  int
}
