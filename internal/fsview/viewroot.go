package fsview

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/riverrun/vftpd/internal/ftpderr"
)

// ViewRoot aggregates multiple labeled Views and dispatches a client path
// to the right one, or synthesizes the pseudo-root listing when no view is
// current.
type ViewRoot struct {
	views   map[string]*View
	current string // label of the current view, "" means the pseudo-root
}

// NewViewRoot builds an aggregate from the given views, keyed by label.
func NewViewRoot(views []*View) *ViewRoot {
	m := make(map[string]*View, len(views))
	for _, v := range views {
		m[v.Label] = v
	}
	return &ViewRoot{views: m}
}

// splitLabel splits a leading "/LABEL" or "LABEL" segment from the rest.
func splitLabel(p string) (label, rest string) {
	p = strings.TrimPrefix(p, "/")
	idx := strings.IndexByte(p, '/')
	if idx < 0 {
		return p, ""
	}
	return p[:idx], p[idx:]
}

// dispatch resolves the view and remainder path an input targets: "", "."
// with no current view, "/" and "~" select the pseudo-root; absolute
// /LABEL/... routes to LABEL;
// relative with no current view treats the first segment as the label;
// relative with a current view routes to it.
func (vr *ViewRoot) dispatch(p string) (view *View, remainder string, pseudoRoot bool) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" || p == "." {
		if vr.current == "" {
			return nil, "", true
		}
		return vr.views[vr.current], "", false
	}
	if p == "/" || p == "~" {
		return nil, "", true
	}
	if strings.HasPrefix(p, "/") {
		label, rest := splitLabel(p)
		if v, ok := vr.views[label]; ok {
			if rest == "" {
				rest = "/"
			}
			return v, rest, false
		}
		return nil, "", false
	}
	if vr.current == "" {
		label, rest := splitLabel(p)
		if v, ok := vr.views[label]; ok {
			if rest == "" {
				rest = "/"
			}
			return v, rest, false
		}
		return nil, "", false
	}
	return vr.views[vr.current], p, false
}

// ChangeWorkingDirectory implements CWD/CDUP dispatch across the
// pseudo-root and views.
func (vr *ViewRoot) ChangeWorkingDirectory(arg string) error {
	arg = strings.ReplaceAll(arg, "\\", "/")
	if arg == "/" || arg == "~" || arg == "" {
		vr.current = ""
		return nil
	}
	view, remainder, pseudoRoot := vr.dispatch(arg)
	if pseudoRoot {
		vr.current = ""
		return nil
	}
	if view == nil {
		return ftpderr.New(ftpderr.KindNotFound, "no such view")
	}
	if _, err := view.ChangeDir(remainder); err != nil {
		return err
	}
	vr.current = view.Label
	return nil
}

// GetCurrentWorkingDirectory returns "/" at the pseudo-root, else the
// current view's display path.
func (vr *ViewRoot) GetCurrentWorkingDirectory() string {
	if vr.current == "" {
		return "/"
	}
	return vr.views[vr.current].CurrentDisplayPath()
}

// pseudoRootEntries lists the synthetic root: one current-dir entry plus
// one directory entry per registered view.
func (vr *ViewRoot) pseudoRootEntries() []Entry {
	entries := []Entry{{Kind: KindCurrentDir, Name: ".", ModTime: time.Now()}}
	labels := make([]string, 0, len(vr.views))
	for label := range vr.views {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		v := vr.views[label]
		entries = append(entries, Entry{
			Kind:    KindDir,
			Name:    label,
			ModTime: time.Now(),
			Perms:   applicablePermissions(KindDir, v.Permissions()),
		})
	}
	return entries
}

// ListDir lists the path, dispatching to the pseudo-root or the right view.
func (vr *ViewRoot) ListDir(arg string) ([]Entry, error) {
	view, remainder, pseudoRoot := vr.dispatch(arg)
	if pseudoRoot {
		return vr.pseudoRootEntries(), nil
	}
	if view == nil {
		return nil, ftpderr.New(ftpderr.KindNotFound, "no such view")
	}
	return view.ListDir(remainder)
}

// resolveView is the shared helper for operations that only make sense
// inside a concrete view (everything except listing and cwd).
func (vr *ViewRoot) resolveView(arg string) (*View, string, error) {
	view, remainder, pseudoRoot := vr.dispatch(arg)
	if pseudoRoot || view == nil {
		return nil, "", ftpderr.New(ftpderr.KindPermission, "operation not valid at pseudo-root")
	}
	return view, remainder, nil
}

// Open dispatches to the target view's Open.
func (vr *ViewRoot) Open(arg string, opts OpenOptions) (*FileHandle, error) {
	view, remainder, err := vr.resolveView(arg)
	if err != nil {
		return nil, err
	}
	f, err := view.Open(remainder, opts)
	if err != nil {
		return nil, err
	}
	return &FileHandle{File: f, View: view}, nil
}

// Mkdir dispatches to the target view's Mkdir.
func (vr *ViewRoot) Mkdir(arg string) error {
	view, remainder, err := vr.resolveView(arg)
	if err != nil {
		return err
	}
	return view.Mkdir(remainder)
}

// Rmdir dispatches to the target view's Rmdir.
func (vr *ViewRoot) Rmdir(arg string, recursive bool) error {
	view, remainder, err := vr.resolveView(arg)
	if err != nil {
		return err
	}
	return view.Rmdir(remainder, recursive)
}

// Delete dispatches to the target view's Delete.
func (vr *ViewRoot) Delete(arg string) error {
	view, remainder, err := vr.resolveView(arg)
	if err != nil {
		return err
	}
	return view.Delete(remainder)
}

// Rename dispatches to the target view's Rename; both paths must land in
// the same view.
func (vr *ViewRoot) Rename(fromArg, toArg string) error {
	fromView, fromRemainder, err := vr.resolveView(fromArg)
	if err != nil {
		return err
	}
	toView, toRemainder, err := vr.resolveView(toArg)
	if err != nil {
		return err
	}
	if fromView.Label != toView.Label {
		return ftpderr.New(ftpderr.KindInvalidPath, "rename across views is not supported")
	}
	return fromView.Rename(fromRemainder, toRemainder)
}

// SetModTime dispatches to the target view's SetModTime.
func (vr *ViewRoot) SetModTime(arg string, t time.Time) error {
	view, remainder, err := vr.resolveView(arg)
	if err != nil {
		return err
	}
	return view.SetModTime(remainder, t)
}

// Stat dispatches to the target view's Stat.
func (vr *ViewRoot) Stat(arg string) (Entry, error) {
	view, remainder, err := vr.resolveView(arg)
	if err != nil {
		return Entry{}, err
	}
	return view.Stat(remainder)
}

// FileHandle pairs an open *os.File with the View it was opened against,
// so command implementations can fsync/close without re-dispatching.
type FileHandle struct {
	*os.File
	View *View
}
