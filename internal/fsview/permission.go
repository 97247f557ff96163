package fsview

import "strings"

// Permission is one capability a view can grant. The single-letter
// serialization matches both entry rendering (LIST/MLSD perm= field) and
// the authentication record's stored "r;w;l;..." permission string.
type Permission int

const (
	Read Permission = iota
	Write
	Append
	Create
	Execute
	Rename
	List
	Delete
)

var permissionLetters = map[Permission]byte{
	Read:    'r',
	Write:   'w',
	Append:  'a',
	Create:  'c',
	Execute: 'e',
	Rename:  'f',
	List:    'l',
	Delete:  'd',
}

// Letter returns the single-character serialization of p.
func (p Permission) Letter() byte { return permissionLetters[p] }

// PermissionSet is an immutable (post-construction) set of Permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// ParsePermissionString parses the stored "r;w;l;..." form from the
// authentication backend (one letter per token, ';'-separated).
func ParsePermissionString(s string) PermissionSet {
	letterToPerm := map[byte]Permission{}
	for perm, letter := range permissionLetters {
		letterToPerm[letter] = perm
	}
	set := PermissionSet{}
	for _, tok := range strings.Split(s, ";") {
		tok = strings.TrimSpace(tok)
		if len(tok) != 1 {
			continue
		}
		if p, ok := letterToPerm[tok[0]]; ok {
			set[p] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set grants p.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Letters renders the set as a run of letters in the fixed order
// r,w,a,c,e,f,l,d (the full set renders as "rwacefld"),
// filtered down by the caller to only the letters applicable to an entry
// kind.
func (s PermissionSet) Letters() string {
	order := []Permission{Read, Write, Append, Create, Execute, Rename, List, Delete}
	var b strings.Builder
	for _, p := range order {
		if s.Has(p) {
			b.WriteByte(permissionLetters[p])
		}
	}
	return b.String()
}
