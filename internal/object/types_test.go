package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracked_Key(t *testing.T) {
	assert.Equal(t, "ns/a", Tracked{Namespace: "ns", Name: "a"}.Key())
	assert.Equal(t, "a", Tracked{Name: "a"}.Key())
}

func TestFilterSlice(t *testing.T) {
	objs := []Tracked{{UID: "x1", Name: "x1"}, {UID: "y1", Name: "y1"}}

	all := FilterSlice(objs, nil)
	assert.Equal(t, []string{"x1", "y1"}, UIDs(all))

	onlyX := FilterSlice(objs, func(o Tracked) bool { return o.Name[0] == 'x' })
	assert.Equal(t, []string{"x1"}, UIDs(onlyX))

	// input untouched
	assert.Len(t, objs, 2)
}

func TestIndexByUID(t *testing.T) {
	idx := IndexByUID([]Tracked{{UID: "a"}, {UID: "b"}})
	assert.Equal(t, map[string]int{"a": 0, "b": 1}, idx)
}
