package cms

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eringen/spacetraveling"
)

// buildPredicates renders predicates in the API query syntax, one q
// parameter each. uid predicates need the document type to be known.
func buildPredicates(predicates []spacetraveling.Predicate) ([]string, error) {
	docType := ""
	for _, p := range predicates {
		if p.Kind == spacetraveling.PredicateType {
			docType = p.Value
		}
	}

	out := make([]string, 0, len(predicates))
	for _, p := range predicates {
		switch p.Kind {
		case spacetraveling.PredicateType:
			out = append(out, fmt.Sprintf(`[[at(document.type,%s)]]`, quote(p.Value)))
		case spacetraveling.PredicateID:
			out = append(out, fmt.Sprintf(`[[at(document.id,%s)]]`, quote(p.Value)))
		case spacetraveling.PredicateUID:
			if docType == "" {
				return nil, fmt.Errorf("uid predicate needs a document type")
			}
			out = append(out, fmt.Sprintf(`[[at(my.%s.uid,%s)]]`, docType, quote(p.Value)))
		case spacetraveling.PredicatePublishedBefore:
			out = append(out, `[[date.before(document.first_publication_date,`+strconv.FormatInt(p.Time.UnixMilli(), 10)+`)]]`)
		case spacetraveling.PredicatePublishedAfter:
			out = append(out, `[[date.after(document.first_publication_date,`+strconv.FormatInt(p.Time.UnixMilli(), 10)+`)]]`)
		default:
			return nil, fmt.Errorf("unsupported predicate %q", p.Kind)
		}
	}
	return out, nil
}

func buildOrderings(orderings []spacetraveling.Ordering) string {
	parts := make([]string, len(orderings))
	for i, o := range orderings {
		parts[i] = string(o.Field)
		if o.Desc {
			parts[i] += " desc"
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
