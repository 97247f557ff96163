package fsview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/riverrun/vftpd/internal/ftpderr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestView(t *testing.T, perms ...Permission) *View {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	v, err := NewView("docs", dir, NewPermissionSet(perms...))
	require.NoError(t, err)
	return v
}

func TestViewCannotEscapeRoot(t *testing.T) {
	v := newTestView(t, Read, List)
	_, err := v.ListDir("../../../etc")
	require.Error(t, err)
	assert.True(t, ftpderr.Is(err, ftpderr.KindInvalidPath))
}

func TestViewCdUpAtRootFails(t *testing.T) {
	v := newTestView(t, Read, List)
	_, err := v.ChangeDir("..")
	require.Error(t, err)
	assert.True(t, ftpderr.Is(err, ftpderr.KindInvalidPath))
}

func TestViewListDirRequiresListPermission(t *testing.T) {
	v := newTestView(t, Read)
	_, err := v.ListDir(".")
	require.Error(t, err)
	assert.True(t, ftpderr.Is(err, ftpderr.KindPermission))
}

func TestViewListDirFirstEntryIsCurrentDir(t *testing.T) {
	v := newTestView(t, Read, List)
	entries, err := v.ListDir(".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, KindCurrentDir, entries[0].Kind)
}

func TestViewOpenRequiresWritePermission(t *testing.T) {
	v := newTestView(t, Read, List)
	_, err := v.Open("a.txt", OpenOptions{Write: true, Create: true, Truncate: true})
	require.Error(t, err)
	assert.True(t, ftpderr.Is(err, ftpderr.KindPermission))
}

func TestViewOpenReadExistingFile(t *testing.T) {
	v := newTestView(t, Read, List)
	f, err := v.Open("a.txt", OpenOptions{Read: true})
	require.NoError(t, err)
	defer f.Close()
	buf := make([]byte, 5)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestViewChangeDirIntoSubdir(t *testing.T) {
	v := newTestView(t, Read, List)
	display, err := v.ChangeDir("sub")
	require.NoError(t, err)
	assert.Equal(t, "/docs/sub", display)
}

func TestViewMkdirRequiresCreatePermission(t *testing.T) {
	v := newTestView(t, Read, List)
	err := v.Mkdir("newdir")
	require.Error(t, err)
	assert.True(t, ftpderr.Is(err, ftpderr.KindPermission))
}

func TestViewRmdirOnFileFails(t *testing.T) {
	v := newTestView(t, Delete)
	err := v.Rmdir("a.txt", false)
	require.Error(t, err)
	assert.True(t, ftpderr.Is(err, ftpderr.KindNotADirectory))
}
