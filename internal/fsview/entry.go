package fsview

import (
	"fmt"
	"time"
)

// Kind is the classification of one filesystem entry, mirroring what the
// LIST/MLSD renderers need to distinguish.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindCurrentDir
	KindParentDir
	KindLink
)

// Entry describes one filesystem entry: enough to render both a UNIX-style
// LIST line and an MLSD key/value line.
type Entry struct {
	Size    int64
	Kind    Kind
	Perms   string // letters applicable to Kind, filtered to the view's PermissionSet
	ModTime time.Time
	Name    string
}

// applicablePermissions filters a view's permission letters down to the
// ones meaningful for the given kind: directories get list/create/delete/
// rename, files get read/write/append/delete/rename.
func applicablePermissions(kind Kind, set PermissionSet) string {
	var wanted []Permission
	switch kind {
	case KindDir, KindCurrentDir, KindParentDir:
		wanted = []Permission{Create, Delete, List, Rename}
	default:
		wanted = []Permission{Read, Write, Append, Delete, Rename}
	}
	filtered := PermissionSet{}
	for _, p := range wanted {
		if set.Has(p) {
			filtered[p] = struct{}{}
		}
	}
	return filtered.Letters()
}

// RenderLIST renders the entry as a UNIX-style `ls -l` line (no trailing
// CRLF; the caller frames lines).
func (e Entry) RenderLIST() string {
	kindChar := byte('-')
	switch e.Kind {
	case KindDir, KindCurrentDir, KindParentDir:
		kindChar = 'd'
	case KindLink:
		kindChar = 'l'
	}
	r, w, x := hasPerm(e.Perms, 'r'), hasPerm(e.Perms, 'w'), kindChar == 'd'
	triad := rwxTriad(r, w, x)
	mode := fmt.Sprintf("%c%s%s%s", kindChar, triad, triad, triad)
	ts := formatListTime(e.ModTime)
	return fmt.Sprintf("%s 1 user group %-13d %s %s", mode, e.Size, ts, e.Name)
}

func hasPerm(perms string, c byte) bool {
	for i := 0; i < len(perms); i++ {
		if perms[i] == c {
			return true
		}
	}
	return false
}

func rwxTriad(r, w, x bool) string {
	out := []byte("---")
	if r {
		out[0] = 'r'
	}
	if w {
		out[1] = 'w'
	}
	if x {
		out[2] = 'x'
	}
	return string(out)
}

// formatListTime follows `ls -l`'s convention: "Mon Day HH:MM" for entries
// modified within the last six months, else "Mon Day  YYYY".
func formatListTime(t time.Time) string {
	if time.Since(t) > 183*24*time.Hour || time.Until(t) > 0 {
		return t.Format("Jan _2  2006")
	}
	return t.Format("Jan _2 15:04")
}

// mlsdType maps an entry Kind to the MLSD "type=" fact.
func (e Entry) mlsdType() string {
	switch e.Kind {
	case KindCurrentDir:
		return "cdir"
	case KindParentDir:
		return "pdir"
	case KindDir:
		return "dir"
	default:
		return "file"
	}
}

// RenderMLSD renders the entry as an MLSD key/value fact line (no trailing
// CRLF).
func (e Entry) RenderMLSD() string {
	return fmt.Sprintf("size=%d;type=%s;modify=%s;perm=%s; %s",
		e.Size, e.mlsdType(), e.ModTime.UTC().Format("20060102150405"), e.Perms, e.Name)
}
