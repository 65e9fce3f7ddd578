package core

import "strings"

// DBOrdering is one "ORDER BY" term requested by a client, e.g. `?ordering=-submitted_date`.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderByClause maps the requested orderings to columns through allowed ({field: column}).
// Unknown fields are skipped; fallback is used when nothing is left.
func OrderByClause(orderings []DBOrdering, allowed map[string]string, fallback string) string {
	terms := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		terms = append(terms, DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(terms) == 0 {
		return fallback
	}
	return strings.Join(terms, ", ")
}
