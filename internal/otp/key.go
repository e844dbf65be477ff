package otp

import (
	"fmt"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// SensorKey derives the canonical sensor key for a descriptor: the entry
// name (issuer as fallback) lowercased, with every run of characters
// that are not ASCII letters or digits collapsed into one underscore,
// and leading/trailing underscores trimmed.
func SensorKey(d *Descriptor) string {
	name := strings.TrimSpace(d.EntryName)
	if name == "" {
		name = strings.TrimSpace(d.Issuer)
	}
	key := nonAlnum.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(key, "_")
}

// KeyAllocator hands out unique sensor keys within one scan. The first
// descriptor with a given base key gets it verbatim; later claimants get
// _2, _3 and so on in scan order, so keys stay stable as long as the
// database keeps its entry order.
type KeyAllocator struct {
	used map[string]struct{}
}

func NewKeyAllocator() *KeyAllocator {
	return &KeyAllocator{used: make(map[string]struct{})}
}

// Allocate returns the unique key for d and marks it as taken.
func (a *KeyAllocator) Allocate(d *Descriptor) string {
	base := SensorKey(d)
	if base == "" {
		base = "otp"
	}
	if _, taken := a.used[base]; !taken {
		a.used[base] = struct{}{}
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", base, n)
		if _, taken := a.used[candidate]; !taken {
			a.used[candidate] = struct{}{}
			return candidate
		}
	}
}
