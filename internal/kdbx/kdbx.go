// Package kdbx opens KeePass 2.x database files and flattens their
// contents into plain entry records for OTP extraction.
package kdbx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tobischo/gokeepasslib/v3"
)

// Sentinel errors, surfaced distinctly so the UI can tell a bad password
// apart from a missing or mangled file. None of them ever carries
// credential material.
var (
	ErrDatabaseNotFound   = errors.New("database file not found")
	ErrInvalidCredentials = errors.New("invalid database credentials")
	ErrCorruptDatabase    = errors.New("corrupt or unsupported database file")
)

// kdbxMagic is the fixed 8-byte signature of a KeePass 2.x file.
var kdbxMagic = []byte{0x03, 0xd9, 0xa2, 0x9a, 0x67, 0xfb, 0x4b, 0xb5}

// Open decrypts the database at path with the master password and an
// optional key file, and returns all entries with protected values
// unlocked. Group hierarchy is flattened; entry order follows document
// order so downstream key disambiguation is stable across runs.
func Open(path, password, keyfile string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	if err := checkMagic(f); err != nil {
		return nil, err
	}

	creds, err := credentials(password, keyfile)
	if err != nil {
		return nil, err
	}

	db := gokeepasslib.NewDatabase()
	db.Credentials = creds

	if err := gokeepasslib.NewDecoder(f).Decode(db); err != nil {
		// The signature already checked out, so a decode failure on a
		// well-formed file almost always means a failed HMAC check,
		// i.e. wrong password or key file.
		return nil, ErrInvalidCredentials
	}

	if err := db.UnlockProtectedEntries(); err != nil {
		return nil, ErrCorruptDatabase
	}

	if db.Content == nil || db.Content.Root == nil {
		return nil, ErrCorruptDatabase
	}

	var out []Entry
	for i := range db.Content.Root.Groups {
		collect(&db.Content.Root.Groups[i], &out)
	}
	return out, nil
}

func credentials(password, keyfile string) (*gokeepasslib.DBCredentials, error) {
	if keyfile == "" {
		return gokeepasslib.NewPasswordCredentials(password), nil
	}
	creds, err := gokeepasslib.NewPasswordAndKeyCredentials(password, keyfile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: key file %s", ErrDatabaseNotFound, keyfile)
		}
		return nil, err
	}
	return creds, nil
}

func checkMagic(f *os.File) error {
	header := make([]byte, len(kdbxMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return ErrCorruptDatabase
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if !bytes.Equal(header, kdbxMagic) {
		return ErrCorruptDatabase
	}
	return nil
}

func collect(g *gokeepasslib.Group, out *[]Entry) {
	for i := range g.Entries {
		*out = append(*out, convert(&g.Entries[i]))
	}
	for i := range g.Groups {
		collect(&g.Groups[i], out)
	}
}

var standardKeys = map[string]struct{}{
	"Title":    {},
	"UserName": {},
	"Password": {},
	"URL":      {},
	"Notes":    {},
}

func convert(e *gokeepasslib.Entry) Entry {
	entry := Entry{UUID: uuid.UUID(e.UUID).String()}
	for _, v := range e.Values {
		switch v.Key {
		case "Title":
			entry.Title = v.Value.Content
		case "UserName":
			entry.Username = v.Value.Content
		case "URL":
			entry.URL = v.Value.Content
		case "Notes":
			entry.Notes = v.Value.Content
		default:
			if _, std := standardKeys[v.Key]; !std {
				entry.Attrs = append(entry.Attrs, Attr{Key: v.Key, Value: v.Value.Content})
			}
		}
	}
	return entry
}
