package kdbx

import "strings"

// Attr is one custom attribute of a database entry, in document order.
type Attr struct {
	Key   string
	Value string
}

// Entry is a decoded credential record. Standard KeePass fields are
// promoted to struct fields; everything else lands in Attrs.
type Entry struct {
	UUID     string
	Title    string
	Username string
	URL      string
	Notes    string
	Attrs    []Attr
}

// Attr returns the value of the named custom attribute using
// case-insensitive key matching.
func (e Entry) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if strings.EqualFold(a.Key, name) {
			return a.Value, true
		}
	}
	return "", false
}

// HasFieldReferences reports whether any field of the entry contains a
// KeePass {REF:...} field reference. Referencing entries mirror another
// entry's data and are skipped during import.
func (e Entry) HasFieldReferences() bool {
	if containsRef(e.Title) || containsRef(e.Username) || containsRef(e.URL) || containsRef(e.Notes) {
		return true
	}
	for _, a := range e.Attrs {
		if containsRef(a.Value) {
			return true
		}
	}
	return false
}

func containsRef(s string) bool {
	return strings.Contains(strings.ToUpper(s), "{REF:")
}
