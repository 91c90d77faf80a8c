package filter

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/listsync/internal/object"
)

// fold returns s NFC normalised and case folded for caseless matching.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// Keywords returns a predicate accepting objects whose searchable text
// contains every keyword. Searchable text is the namespace, the name and
// the string values found at the given dotted payload paths.
//
// Returns nil when no non-blank keyword is given, so the view is unfiltered.
func Keywords(keywords []string, fields ...string) object.Predicate {
	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			folded = append(folded, fold(k))
		}
	}
	if len(folded) == 0 {
		return nil
	}

	return func(o object.Tracked) bool {
		text := searchText(o, fields)
		for _, k := range folded {
			if !strings.Contains(text, k) {
				return false
			}
		}
		return true
	}
}

func searchText(o object.Tracked, fields []string) string {
	var b strings.Builder
	b.WriteString(o.Namespace)
	b.WriteByte('\n')
	b.WriteString(o.Name)
	for _, f := range fields {
		v, ok := lookup(o.Payload, splitPath(f))
		if !ok {
			continue
		}
		b.WriteByte('\n')
		switch v := v.(type) {
		case string:
			b.WriteString(v)
		default:
			fmt.Fprint(&b, v)
		}
	}
	return fold(b.String())
}

// Fuzzy returns a predicate accepting objects whose "namespace/name"
// matches query as a case-insensitive subsequence.
//
// Returns nil for a blank query.
func Fuzzy(query string) object.Predicate {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	pattern := fold(query)

	return func(o object.Tracked) bool {
		matches := fuzzy.Find(pattern, []string{fold(o.Key())})
		return len(matches) > 0
	}
}

// Labels returns a predicate accepting objects whose metadata.labels
// contain every key/value pair of selector.
//
// Returns nil for an empty selector.
func Labels(selector map[string]string) object.Predicate {
	if len(selector) == 0 {
		return nil
	}
	want := make(map[string]string, len(selector))
	for k, v := range selector {
		want[k] = v
	}

	return func(o object.Tracked) bool {
		raw, ok := lookup(o.Payload, []string{"metadata", "labels"})
		if !ok {
			return false
		}
		labels, ok := raw.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range want {
			got, ok := labels[k].(string)
			if !ok || got != v {
				return false
			}
		}
		return true
	}
}

// All returns the conjunction of preds. Nil predicates are skipped.
//
// Returns nil when every predicate is nil.
func All(preds ...object.Predicate) object.Predicate {
	var active []object.Predicate
	for _, p := range preds {
		if p != nil {
			active = append(active, p)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	}

	return func(o object.Tracked) bool {
		for _, p := range active {
			if !p(o) {
				return false
			}
		}
		return true
	}
}
