package echoapi

import (
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/elimuhq/elimu/core"
)

var (
	orderingParam = "ordering"

	// ordering fields end up in ORDER BY clauses; only plain column names pass
	orderingFieldRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !orderingFieldRegex.MatchString(field) {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}
