package notes

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

// OrderFields sorts the target fields so that a field whose prompt references
// another target is generated after it. Ties follow fieldOrder, then name.
func OrderFields(targets map[string]string, fieldOrder []string) ([]string, error) {
	byLower := make(map[string]string, len(targets))
	for name := range targets {
		byLower[strings.ToLower(name)] = name
	}
	less := fieldLess(fieldOrder)

	indegree := make(map[string]int, len(targets))
	dependents := make(map[string][]string, len(targets))
	for name, prompt := range targets {
		indegree[name] += 0
		for _, ref := range ExtractReferences(prompt) {
			dep, ok := byLower[strings.ToLower(ref)]
			if !ok || dep == name {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	order := make([]string, 0, len(targets))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) < len(targets) {
		var cyclic []string
		for name, n := range indegree {
			if n > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Slice(cyclic, func(i, j int) bool { return less(cyclic[i], cyclic[j]) })
		return nil, apperrors.Wrap(apperrors.CodeCycleDetected,
			fmt.Sprintf("smart fields reference each other in a cycle: %s", strings.Join(cyclic, ", ")), nil)
	}
	return order, nil
}

// fieldLess orders names by their position in fieldOrder, ignoring case.
// Unlisted names come last, sorted by name.
func fieldLess(fieldOrder []string) func(a, b string) bool {
	rank := make(map[string]int, len(fieldOrder))
	for i, name := range fieldOrder {
		rank[strings.ToLower(name)] = i
	}
	return func(a, b string) bool {
		ra, okA := rank[strings.ToLower(a)]
		rb, okB := rank[strings.ToLower(b)]
		switch {
		case okA && okB && ra != rb:
			return ra < rb
		case okA != okB:
			return okA
		default:
			return a < b
		}
	}
}
