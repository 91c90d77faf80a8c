package object

// Tracked is a uniquely identified remote entity mirrored locally.
type Tracked struct {
	UID             string         `json:"uid"`
	Namespace       string         `json:"namespace,omitempty"`
	Name            string         `json:"name"`
	ResourceVersion string         `json:"resource_version,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// Key returns the display identity "namespace/name", or just the name for
// cluster-scoped objects.
func (t Tracked) Key() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "/" + t.Name
}

// Predicate decides whether an object belongs in the filtered view.
type Predicate func(Tracked) bool

// Projection shrinks an object before it is stored locally.
type Projection func(Tracked) Tracked

// UIDs returns the UIDs of objs in order.
func UIDs(objs []Tracked) []string {
	uids := make([]string, len(objs))
	for i, o := range objs {
		uids[i] = o.UID
	}
	return uids
}

// IndexByUID maps each UID to its position in objs.
// When a UID repeats, the last position wins.
func IndexByUID(objs []Tracked) map[string]int {
	idx := make(map[string]int, len(objs))
	for i, o := range objs {
		idx[o.UID] = i
	}
	return idx
}

// FilterSlice returns the objects of objs accepted by pred as a new slice.
// A nil pred accepts everything.
func FilterSlice(objs []Tracked, pred Predicate) []Tracked {
	out := make([]Tracked, 0, len(objs))
	for _, o := range objs {
		if pred == nil || pred(o) {
			out = append(out, o)
		}
	}
	return out
}
