package filter

import (
	"maps"
	"strings"

	"github.com/roach88/listsync/internal/object"
)

// KeepFields returns a projection that keeps only the given dotted payload
// paths ("metadata.labels", "spec.provider.name"). Identity fields
// (UID, namespace, name, resource version) are never pruned.
//
// Paths that do not exist are ignored. Returns nil when no path is given,
// which leaves objects unpruned.
func KeepFields(paths ...string) object.Projection {
	var keep [][]string
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			keep = append(keep, splitPath(p))
		}
	}
	if len(keep) == 0 {
		return nil
	}

	return func(o object.Tracked) object.Tracked {
		if o.Payload == nil {
			return o
		}
		pruned := make(map[string]any)
		for _, path := range keep {
			v, ok := lookup(o.Payload, path)
			if !ok {
				continue
			}
			insert(pruned, path, v)
		}
		o.Payload = pruned
		return o
	}
}

func splitPath(p string) []string {
	return strings.Split(p, ".")
}

// lookup walks path through nested maps.
func lookup(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, seg := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// insert sets path in m. Intermediate maps are copied on the way down, so
// maps shared with the source payload are never written.
func insert(m map[string]any, path []string, v any) {
	for _, seg := range path[:len(path)-1] {
		next, ok := m[seg].(map[string]any)
		if ok {
			next = maps.Clone(next)
		} else {
			next = make(map[string]any)
		}
		m[seg] = next
		m = next
	}
	m[path[len(path)-1]] = v
}
