package fsview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViewRoot(t *testing.T, labels ...string) *ViewRoot {
	t.Helper()
	views := make([]*View, 0, len(labels))
	for _, label := range labels {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, "x"), 0o755))
		v, err := NewView(label, dir, NewPermissionSet(Read, Write, Create, List, Delete, Rename))
		require.NoError(t, err)
		views = append(views, v)
	}
	return NewViewRoot(views)
}

func TestViewRootPseudoRootListing(t *testing.T) {
	vr := newTestViewRoot(t, "A", "B")
	entries, err := vr.ListDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, KindCurrentDir, entries[0].Kind)
	names := []string{entries[1].Name, entries[2].Name}
	assert.ElementsMatch(t, []string{"A", "B"}, names)
}

func TestViewRootCwdIntoExistingSubdir(t *testing.T) {
	vr := newTestViewRoot(t, "A")
	err := vr.ChangeWorkingDirectory("/A/x")
	require.NoError(t, err)
	assert.Equal(t, "/A/x", vr.GetCurrentWorkingDirectory())
}

func TestViewRootCwdIntoMissingSubdirLeavesPseudoRoot(t *testing.T) {
	vr := newTestViewRoot(t, "A")
	err := vr.ChangeWorkingDirectory("/A/missing")
	assert.Error(t, err)
	assert.Equal(t, "/", vr.GetCurrentWorkingDirectory())
}

func TestViewRootMultiViewScenario(t *testing.T) {
	vr := newTestViewRoot(t, "pub", "priv")
	assert.Equal(t, "/", vr.GetCurrentWorkingDirectory())
	entries, err := vr.ListDir("")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	require.NoError(t, vr.ChangeWorkingDirectory("priv"))
	assert.Equal(t, "/priv", vr.GetCurrentWorkingDirectory())
}
