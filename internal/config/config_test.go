package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/roach88/listsync/internal/engine"
	"github.com/roach88/listsync/internal/object"
)

func TestLoad_Directory(t *testing.T) {
	cfg, err := Load("testdata")
	require.NoError(t, err)

	assert.Equal(t, []string{"providers", "workshops"}, cfg.Names())

	w, err := cfg.View("workshops")
	require.NoError(t, err)
	assert.Equal(t, "workshops", w.Name)
	assert.Equal(t, schema.GroupVersionKind{Group: "babylon.gpte.redhat.com", Version: "v1", Kind: "Workshop"}, w.GVK())
	assert.Equal(t, []string{"user-bob", "user-alice"}, w.Namespaces)
	assert.Equal(t, 50, w.PageSize, "default page size")
	assert.Equal(t, 20, w.Limit)
	assert.Equal(t, 30*time.Second, w.Interval(), "default refresh interval")

	p, err := cfg.View("providers")
	require.NoError(t, err)
	assert.Empty(t, p.Namespaces)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 90*time.Second, p.Interval())
	assert.Equal(t, map[string]string{"app": "poolboy"}, p.Labels)
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "views.cue"))
	require.NoError(t, err)
	assert.Len(t, cfg.Views, 2)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "path", cfgErr.Field)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse("empty.cue", []byte(""))
	require.NoError(t, err)
	assert.NotNil(t, cfg.Views)
	assert.Empty(t, cfg.Names())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown field", `views: a: {version: "v1", kind: "Workshop", pagesize: 10}`},
		{"missing version", `views: a: {kind: "Workshop"}`},
		{"lowercase kind", `views: a: {version: "v1", kind: "workshop"}`},
		{"zero page size", `views: a: {version: "v1", kind: "Workshop", pageSize: 0}`},
		{"negative limit", `views: a: {version: "v1", kind: "Workshop", limit: -1}`},
		{"bad interval", `views: a: {version: "v1", kind: "Workshop", refreshInterval: "soon"}`},
		{"syntax", `views: a: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.cue", []byte(tt.src))
			require.Error(t, err)
			var cfgErr *Error
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	src := "views: a: {\n\tversion: \"v1\"\n\tkind: \"Workshop\"\n\tlimit: -1\n}\n"
	_, err := Parse("pos.cue", []byte(src))
	require.Error(t, err)

	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	require.True(t, cfgErr.Pos.IsValid())
	assert.Contains(t, err.Error(), "pos.cue")
}

func TestView_NotDeclared(t *testing.T) {
	cfg, err := Parse("empty.cue", nil)
	require.NoError(t, err)
	_, err = cfg.View("ghost")
	assert.Error(t, err)
}

func TestView_FilterAndPrune(t *testing.T) {
	cfg, err := Load("testdata")
	require.NoError(t, err)
	w, err := cfg.View("workshops")
	require.NoError(t, err)

	match := object.Tracked{UID: "1", Namespace: "user-bob", Name: "lab", Payload: map[string]any{
		"spec":     map[string]any{"displayName": "Summit Lab", "huge": "x"},
		"metadata": map[string]any{"labels": map[string]any{"a": "b"}},
	}}
	miss := object.Tracked{UID: "2", Namespace: "user-bob", Name: "other"}

	pred := w.Filter()
	require.NotNil(t, pred)
	assert.True(t, pred(match))
	assert.False(t, pred(miss))

	pruned := w.Prune()(match)
	assert.Equal(t, map[string]any{
		"spec":     map[string]any{"displayName": "Summit Lab"},
		"metadata": map[string]any{"labels": map[string]any{"a": "b"}},
	}, pruned.Payload)

	p, err := cfg.View("providers")
	require.NoError(t, err)
	assert.Nil(t, p.Prune())
	assert.NotNil(t, p.Filter())
}

func TestView_PruneKeepsFilterPaths(t *testing.T) {
	cfg, err := Parse("views.cue", []byte(`views: mine: {
	version:  "v1"
	kind:     "Workshop"
	labels:   team: "a"
	keywords: ["summit"]
	fields:   ["spec.displayName"]
	keep:     ["spec.x"]
}`))
	require.NoError(t, err)
	v, err := cfg.View("mine")
	require.NoError(t, err)

	labelled := object.Tracked{UID: "1", Namespace: "ns", Name: "w1", ResourceVersion: "1", Payload: map[string]any{
		"spec":     map[string]any{"x": 1, "displayName": "Summit", "huge": "drop"},
		"metadata": map[string]any{"labels": map[string]any{"team": "a"}, "annotations": map[string]any{"k": "v"}},
	}}
	other := object.Tracked{UID: "2", Namespace: "ns", Name: "w2", ResourceVersion: "1", Payload: map[string]any{
		"spec":     map[string]any{"displayName": "Summit"},
		"metadata": map[string]any{"labels": map[string]any{"team": "b"}},
	}}

	pruned := v.Prune()(labelled)
	assert.Equal(t, map[string]any{
		"spec":     map[string]any{"x": 1, "displayName": "Summit"},
		"metadata": map[string]any{"labels": map[string]any{"team": "a"}},
	}, pruned.Payload)

	m := engine.NewMachine(engine.WithActivityIDs(engine.NewFixedGenerator("act")))
	st, err := m.Reduce(nil, v.StartFetch())
	require.NoError(t, err)
	st, err = m.Reduce(st, engine.PageArrived{ActivityID: "act", Items: []object.Tracked{labelled, other}})
	require.NoError(t, err)
	assert.Len(t, st.Items, 2)
	assert.Equal(t, []string{"1"}, object.UIDs(st.FilteredItems))
}

func TestView_StartFetch(t *testing.T) {
	cfg, err := Load("testdata")
	require.NoError(t, err)
	w, err := cfg.View("workshops")
	require.NoError(t, err)

	a := w.StartFetch()
	assert.Equal(t, []string{"user-bob", "user-alice"}, a.Namespaces)
	assert.Equal(t, 20, a.Limit)
	assert.Equal(t, 50, a.PageSize)
	assert.Equal(t, 30*time.Second, a.RefreshInterval)
	assert.NotNil(t, a.Filter)
	assert.NotNil(t, a.Prune)
}

func TestLoad_DirectoryFromTemp(t *testing.T) {
	dir := t.TempDir()
	src := `package views

views: actions: {version: "v1", group: "anarchy.gpte.redhat.com", kind: "AnarchyAction", refreshInterval: "0s"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "views.cue"), []byte(src), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	v, err := cfg.View("actions")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), v.Interval())
}
