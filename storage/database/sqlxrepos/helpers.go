package sqlxrepos

import (
	"strconv"

	"github.com/elimuhq/elimu/core"
)

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// orderByClause renders orderings into an ORDER BY clause; fallback is used
// when none are given. Ordering fields are validated at the binding layer.
func orderByClause(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		if fallback == "" {
			return ""
		}
		return " ORDER BY " + fallback
	}
	clause := " ORDER BY "
	for i, ord := range ordering {
		if i > 0 {
			clause += ", "
		}
		clause += ord.String()
	}
	return clause
}
