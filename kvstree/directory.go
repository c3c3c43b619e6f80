package kvstree

import (
	"fmt"
	"strings"
)

// Directory maps a name component to a directory entry. Names never
// contain '.'; the '.' separator is only used in the user-facing key path
// API (spec §3 "Directory").
type Directory map[string]Dirent

// ValidName reports whether name is usable as a directory key: non-empty
// and free of the '.' path separator.
func ValidName(name string) bool {
	return len(name) > 0 && !strings.ContainsRune(name, '.')
}

// SplitKey splits a user-facing dotted key path into its name components.
func SplitKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, ".")
}

// JoinKey re-joins path components into a dotted key.
func JoinKey(components []string) string {
	return strings.Join(components, ".")
}

// Set returns a shallow copy of d with name bound to entry. Directories are
// treated as immutable values once referenced by a Dirent, so every
// mutation during commit processing (spec §4.5) produces a new Directory
// rather than mutating a shared one in place.
func (d Directory) Set(name string, entry Dirent) (Directory, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("kvstree: invalid directory name %q", name)
	}
	out := make(Directory, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	out[name] = entry
	return out, nil
}

// Delete returns a shallow copy of d with name unbound (spec §3 "a null
// dirent deletes" — the delete is a distinct operation from Set, not a
// sentinel Dirent value, so a deleted-but-absent name is simply a no-op
// copy).
func (d Directory) Delete(name string) (Directory, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("kvstree: invalid directory name %q", name)
	}
	out := make(Directory, len(d))
	for k, v := range d {
		if k == name {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Get looks up name in d, reporting ok=false if absent.
func (d Directory) Get(name string) (Dirent, bool) {
	e, ok := d[name]
	return e, ok
}

// Clone returns a shallow copy of d.
func (d Directory) Clone() Directory {
	out := make(Directory, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
