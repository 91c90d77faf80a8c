package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/listsync/internal/object"
	"github.com/roach88/listsync/internal/source"
	"github.com/roach88/listsync/internal/store"
)

const demoConfig = `package demo

views: demo: {
	version:    "v1"
	kind:       "Workshop"
	namespaces: ["team-b", "team-a"]
	pageSize:   2
	keywords:   ["lab"]
}
`

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "views.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func demoSource() *source.Static {
	return source.NewStatic(
		object.Tracked{UID: "u1", Namespace: "team-a", Name: "lab-1", ResourceVersion: "1"},
		object.Tracked{UID: "u2", Namespace: "team-a", Name: "lab-2", ResourceVersion: "1"},
		object.Tracked{UID: "u3", Namespace: "team-a", Name: "demo", ResourceVersion: "1"},
		object.Tracked{UID: "u4", Namespace: "team-b", Name: "lab-3", ResourceVersion: "1"},
	)
}

// testCommand returns a bare command writing to out with a background context.
func testCommand(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	return cmd
}

// recordDemo watches the demo view once against demoSource, journaling to
// a fresh database. Returns the database path and the recorded activity ID.
func recordDemo(t *testing.T) (string, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	opts := &WatchOptions{
		RootOptions: &RootOptions{Format: "text"},
		Config:      writeConfig(t, demoConfig),
		View:        "demo",
		Database:    dbPath,
		Once:        true,
		Source:      demoSource(),
	}
	require.NoError(t, runWatch(opts, testCommand(&bytes.Buffer{})))

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	acts, err := st.ReadActivities(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, acts, 1)
	return dbPath, acts[0].ID
}
