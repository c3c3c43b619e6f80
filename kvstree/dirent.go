package kvstree

import (
	"encoding/json"
	"fmt"
)

// Tag identifies which field of a Dirent is populated (spec §3
// "Directory entry"). Exactly one tag is populated per entry.
type Tag int

const (
	// FileVal is an inline value.
	FileVal Tag = iota
	// FileRef is a reference to a blob whose content is a value.
	FileRef
	// DirVal is an inline directory.
	DirVal
	// DirRef is a reference to a blob whose content is a directory.
	DirRef
	// LinkVal is a symbolic link: a key path resolved relative to the
	// current root.
	LinkVal
)

func (t Tag) String() string {
	switch t {
	case FileVal:
		return "FILEVAL"
	case FileRef:
		return "FILEREF"
	case DirVal:
		return "DIRVAL"
	case DirRef:
		return "DIRREF"
	case LinkVal:
		return "LINKVAL"
	default:
		return "UNKNOWN"
	}
}

// Dirent is a tagged directory entry. Only the field matching Tag is
// meaningful; constructors (NewFileVal, NewFileRef, ...) are the supported
// way to build one.
type Dirent struct {
	Tag  Tag
	Val  interface{} // FileVal
	Ref  Ref         // FileRef / DirRef
	Dir  Directory   // DirVal
	Link string      // LinkVal
}

// NewFileVal builds a FILEVAL entry carrying an inline value.
func NewFileVal(v interface{}) Dirent { return Dirent{Tag: FileVal, Val: v} }

// NewFileRef builds a FILEREF entry pointing at a blob containing a value.
func NewFileRef(ref Ref) Dirent { return Dirent{Tag: FileRef, Ref: ref} }

// NewDirVal builds a DIRVAL entry carrying an inline directory.
func NewDirVal(d Directory) Dirent { return Dirent{Tag: DirVal, Dir: d} }

// NewDirRef builds a DIRREF entry pointing at a blob containing a
// directory.
func NewDirRef(ref Ref) Dirent { return Dirent{Tag: DirRef, Ref: ref} }

// NewLinkVal builds a LINKVAL entry: a symlink to the given key path.
func NewLinkVal(path string) Dirent { return Dirent{Tag: LinkVal, Link: path} }

// direntWire is the on-the-wire encoding: a single-key object naming the
// populated tag, enforcing the "exactly one tag populated" invariant by
// construction rather than by validation.
type direntWire struct {
	FileVal *json.RawMessage `json:"FILEVAL,omitempty"`
	FileRef *string          `json:"FILEREF,omitempty"`
	DirVal  Directory        `json:"DIRVAL,omitempty"`
	DirRef  *string          `json:"DIRREF,omitempty"`
	LinkVal *string          `json:"LINKVAL,omitempty"`
}

// MarshalJSON encodes the Dirent canonically: a single-key object.
func (d Dirent) MarshalJSON() ([]byte, error) {
	var w direntWire
	switch d.Tag {
	case FileVal:
		raw, err := json.Marshal(d.Val)
		if err != nil {
			return nil, err
		}
		msg := json.RawMessage(raw)
		w.FileVal = &msg
	case FileRef:
		s := string(d.Ref)
		w.FileRef = &s
	case DirVal:
		if len(d.Dir) == 0 {
			// omitempty would drop an empty map, leaving no tag at all.
			return []byte(`{"DIRVAL":{}}`), nil
		}
		w.DirVal = d.Dir
	case DirRef:
		s := string(d.Ref)
		w.DirRef = &s
	case LinkVal:
		w.LinkVal = &d.Link
	default:
		return nil, fmt.Errorf("kvstree: unknown dirent tag %v", d.Tag)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a Dirent from its single-key wire form.
func (d *Dirent) UnmarshalJSON(data []byte) error {
	var w direntWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.FileVal == nil {
		// A FILEVAL of JSON null leaves the pointer nil; look for the key
		// itself so an inline null value still decodes as FILEVAL.
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(data, &keys); err == nil {
			if raw, ok := keys["FILEVAL"]; ok {
				w.FileVal = &raw
			}
		}
	}
	switch {
	case w.FileVal != nil:
		var v interface{}
		if err := json.Unmarshal(*w.FileVal, &v); err != nil {
			return err
		}
		*d = NewFileVal(v)
	case w.FileRef != nil:
		*d = NewFileRef(Ref(*w.FileRef))
	case w.DirVal != nil:
		*d = NewDirVal(w.DirVal)
	case w.DirRef != nil:
		*d = NewDirRef(Ref(*w.DirRef))
	case w.LinkVal != nil:
		*d = NewLinkVal(*w.LinkVal)
	default:
		return fmt.Errorf("kvstree: dirent has no populated tag")
	}
	return nil
}
