// Package fsview implements the virtual filesystem: a single labeled root
// (View) and the multi-root aggregate (ViewRoot) that dispatches a client's
// flat path space onto the right View.
package fsview

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/riverrun/vftpd/internal/ftpderr"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "fsview")

// View is a single labeled mount exposing one host directory tree under a
// fixed permission set.
type View struct {
	Label       string
	root        string // canonicalized host root, construction-time fixed
	displayPath string
	perms       PermissionSet
	currentPath string // always begins with root
}

// NewView canonicalizes hostRoot and constructs a View rooted there.
// Construction fails if hostRoot does not exist.
func NewView(label, hostRoot string, perms PermissionSet) (*View, error) {
	abs, err := filepath.Abs(hostRoot)
	if err != nil {
		return nil, ftpderr.Wrap(ftpderr.KindOS, "resolve view root", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, ftpderr.Wrap(ftpderr.KindNotFound, "view root does not exist: "+hostRoot, err)
	}
	info, err := os.Stat(real)
	if err != nil || !info.IsDir() {
		return nil, ftpderr.New(ftpderr.KindNotADirectory, "view root is not a directory: "+hostRoot)
	}
	return &View{
		Label:       label,
		root:        real,
		displayPath: "/" + label,
		perms:       perms,
		currentPath: real,
	}, nil
}

// Permissions returns the view's immutable permission set.
func (v *View) Permissions() PermissionSet { return v.perms }

// DisplayPath returns the path as shown to the client (always "/<label>...").
func (v *View) DisplayPath() string { return v.displayPath }

// Root returns the canonical host root.
func (v *View) Root() string { return v.root }

// resolve computes the (host path, display path) an argument maps to,
// without mutating view state, validating the host path stays under root.
func (v *View) resolve(arg string) (hostPath, display string, err error) {
	arg = strings.ReplaceAll(arg, "\\", "/")
	switch {
	case arg == "" || arg == ".":
		return v.currentPath, v.displayPath, nil
	case arg == "..":
		if v.currentPath == v.root {
			return "", "", ftpderr.New(ftpderr.KindInvalidPath, "already at view root")
		}
		hostPath = filepath.Dir(v.currentPath)
		display = parentDisplay(v.displayPath)
	case arg == "/" || arg == "~":
		return v.root, "/" + v.Label, nil
	case strings.HasPrefix(arg, "/"):
		hostPath = filepath.Join(v.root, arg)
		display = "/" + v.Label + cleanSlash(arg)
	default:
		hostPath = filepath.Join(v.currentPath, arg)
		rel := strings.TrimPrefix(hostPath, v.root)
		display = "/" + v.Label + cleanSlash(rel)
	}
	hostPath = filepath.Clean(hostPath)
	if !withinRoot(hostPath, v.root) {
		return "", "", ftpderr.New(ftpderr.KindInvalidPath, "path escapes view root")
	}
	return hostPath, display, nil
}

func cleanSlash(p string) string {
	p = filepath.ToSlash(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func parentDisplay(display string) string {
	idx := strings.LastIndexByte(display, '/')
	if idx <= 0 {
		return "/"
	}
	return display[:idx]
}

func withinRoot(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// ChangeDir moves the view's current path per arg and returns the new
// display path.
func (v *View) ChangeDir(arg string) (string, error) {
	hostPath, display, err := v.resolve(arg)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(hostPath)
	if err != nil {
		return "", ftpderr.Wrap(ftpderr.KindNotFound, "no such directory", err)
	}
	if !withinRoot(real, v.root) {
		return "", ftpderr.New(ftpderr.KindInvalidPath, "path escapes view root")
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", ftpderr.Wrap(ftpderr.KindNotFound, "no such directory", err)
	}
	if !info.IsDir() {
		return "", ftpderr.New(ftpderr.KindNotADirectory, "not a directory")
	}
	v.currentPath = real
	v.displayPath = display
	return display, nil
}

// CurrentDisplayPath returns the view's current display path.
func (v *View) CurrentDisplayPath() string { return v.displayPath }

// ListDir lists the directory identified by arg. The first entry is always
// the current-dir pseudo-entry; unreadable entries are skipped, not fatal.
func (v *View) ListDir(arg string) ([]Entry, error) {
	if !v.perms.Has(List) {
		return nil, ftpderr.New(ftpderr.KindPermission, "listing not permitted")
	}
	hostPath, _, err := v.resolve(arg)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		return nil, ftpderr.Wrap(ftpderr.KindNotFound, "no such directory", err)
	}
	if !info.IsDir() {
		return nil, ftpderr.New(ftpderr.KindNotADirectory, "not a directory")
	}
	entries := []Entry{{
		Kind:    KindCurrentDir,
		Name:    ".",
		ModTime: info.ModTime(),
		Perms:   applicablePermissions(KindCurrentDir, v.perms),
	}}
	dirEntries, err := os.ReadDir(hostPath)
	if err != nil {
		return nil, ftpderr.Wrap(ftpderr.KindOS, "read directory", err)
	}
	for _, de := range dirEntries {
		fi, err := de.Info()
		if err != nil {
			log.WithError(err).WithField("name", de.Name()).Debug("skipping unreadable entry")
			continue
		}
		kind := KindFile
		if fi.IsDir() {
			kind = KindDir
		} else if fi.Mode()&os.ModeSymlink != 0 {
			kind = KindLink
		}
		entries = append(entries, Entry{
			Size:    fi.Size(),
			Kind:    kind,
			Name:    fi.Name(),
			ModTime: fi.ModTime(),
			Perms:   applicablePermissions(kind, v.perms),
		})
	}
	return entries, nil
}

// OpenOptions selects the access mode for Open.
type OpenOptions struct {
	Read     bool
	Write    bool
	Create   bool
	Append   bool
	Truncate bool
}

// Open opens the file identified by arg according to opts, enforcing the
// permission corresponding to each requested access.
func (v *View) Open(arg string, opts OpenOptions) (*os.File, error) {
	if opts.Read && !v.perms.Has(Read) {
		return nil, ftpderr.New(ftpderr.KindPermission, "read not permitted")
	}
	if (opts.Write || opts.Truncate) && !v.perms.Has(Write) {
		return nil, ftpderr.New(ftpderr.KindPermission, "write not permitted")
	}
	if opts.Append && !v.perms.Has(Append) {
		return nil, ftpderr.New(ftpderr.KindPermission, "append not permitted")
	}
	if opts.Create && !v.perms.Has(Create) {
		return nil, ftpderr.New(ftpderr.KindPermission, "create not permitted")
	}
	hostPath, _, err := v.resolve(arg)
	if err != nil {
		return nil, err
	}
	flags := os.O_RDONLY
	switch {
	case opts.Append:
		flags = os.O_WRONLY | os.O_APPEND
	case opts.Write || opts.Truncate:
		flags = os.O_WRONLY
	}
	if opts.Create {
		flags |= os.O_CREATE
	}
	if opts.Truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(hostPath, flags, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ftpderr.Wrap(ftpderr.KindNotFound, "no such file", err)
		}
		return nil, ftpderr.Wrap(ftpderr.KindOS, "open file", err)
	}
	if !withinRoot(hostPath, v.root) {
		f.Close()
		return nil, ftpderr.New(ftpderr.KindInvalidPath, "path escapes view root")
	}
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		f.Close()
		return nil, ftpderr.New(ftpderr.KindNotAFile, "is a directory")
	}
	return f, nil
}

// Mkdir creates a directory.
func (v *View) Mkdir(arg string) error {
	if !v.perms.Has(Create) {
		return ftpderr.New(ftpderr.KindPermission, "create not permitted")
	}
	hostPath, _, err := v.resolve(arg)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(hostPath); statErr == nil && !info.IsDir() {
		return ftpderr.New(ftpderr.KindNotADirectory, "exists and is not a directory")
	}
	if err := os.Mkdir(hostPath, 0o755); err != nil {
		return ftpderr.Wrap(ftpderr.KindOS, "mkdir", err)
	}
	return nil
}

// Rmdir removes an empty directory. recursive allows removing a non-empty
// tree (the RMDA verb).
func (v *View) Rmdir(arg string, recursive bool) error {
	if !v.perms.Has(Delete) {
		return ftpderr.New(ftpderr.KindPermission, "delete not permitted")
	}
	hostPath, _, err := v.resolve(arg)
	if err != nil {
		return err
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		return ftpderr.Wrap(ftpderr.KindNotFound, "no such directory", err)
	}
	if !info.IsDir() {
		return ftpderr.New(ftpderr.KindNotADirectory, "not a directory")
	}
	if recursive {
		if err := os.RemoveAll(hostPath); err != nil {
			return ftpderr.Wrap(ftpderr.KindOS, "rmdir -r", err)
		}
		return nil
	}
	if err := os.Remove(hostPath); err != nil {
		return ftpderr.Wrap(ftpderr.KindOS, "rmdir", err)
	}
	return nil
}

// Delete removes a file.
func (v *View) Delete(arg string) error {
	if !v.perms.Has(Delete) {
		return ftpderr.New(ftpderr.KindPermission, "delete not permitted")
	}
	hostPath, _, err := v.resolve(arg)
	if err != nil {
		return err
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		return ftpderr.Wrap(ftpderr.KindNotFound, "no such file", err)
	}
	if info.IsDir() {
		return ftpderr.New(ftpderr.KindNotAFile, "is a directory")
	}
	if err := os.Remove(hostPath); err != nil {
		return ftpderr.Wrap(ftpderr.KindOS, "delete", err)
	}
	return nil
}

// Rename moves fromArg to toArg.
func (v *View) Rename(fromArg, toArg string) error {
	if !v.perms.Has(Rename) {
		return ftpderr.New(ftpderr.KindPermission, "rename not permitted")
	}
	fromPath, _, err := v.resolve(fromArg)
	if err != nil {
		return err
	}
	toPath, _, err := v.resolve(toArg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(fromPath); err != nil {
		return ftpderr.Wrap(ftpderr.KindNotFound, "no such file or directory", err)
	}
	if err := os.Rename(fromPath, toPath); err != nil {
		return ftpderr.Wrap(ftpderr.KindOS, "rename", err)
	}
	return nil
}

// SetModTime implements MFMT/MFCT: it sets the mtime of the file at arg.
func (v *View) SetModTime(arg string, t time.Time) error {
	hostPath, _, err := v.resolve(arg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(hostPath); err != nil {
		return ftpderr.Wrap(ftpderr.KindNotFound, "no such file", err)
	}
	if err := os.Chtimes(hostPath, t, t); err != nil {
		return ftpderr.Wrap(ftpderr.KindOS, "set mtime", err)
	}
	return nil
}

// Stat resolves arg to an Entry without opening or listing it.
func (v *View) Stat(arg string) (Entry, error) {
	hostPath, _, err := v.resolve(arg)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		return Entry{}, ftpderr.Wrap(ftpderr.KindNotFound, "no such file", err)
	}
	kind := KindFile
	if info.IsDir() {
		kind = KindDir
	}
	return Entry{
		Size:    info.Size(),
		Kind:    kind,
		Name:    info.Name(),
		ModTime: info.ModTime(),
		Perms:   applicablePermissions(kind, v.perms),
	}, nil
}
