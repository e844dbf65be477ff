package models

import "time"

// Vault is one imported KeePass database: the extracted OTP descriptor
// set sealed with AES-GCM. Salt is the per-vault argon2id salt used to
// derive the sealing key from the server secret; the database file
// itself is destroyed after import.
type Vault struct {
	ID          string
	UserID      string
	Name        string
	Blob        []byte
	Nonce       []byte
	Salt        []byte
	SnapshotKey string
	EntryCount  int
	CreatedAt   time.Time
}
