package grouping

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint hashes a dimension map into the 32-hex grouping key shared by
// fresh event groups and existing alerts. Entries are sorted by key and
// joined as "key:value" pairs with "|", so the digest is independent of map
// iteration order. An empty map hashes the empty byte string. MD5 is a
// content address here, not a security boundary.
func Fingerprint(dimensions map[string]string) string {
	if len(dimensions) == 0 {
		sum := md5.Sum(nil)
		return hex.EncodeToString(sum[:])
	}

	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+":"+dimensions[k])
	}

	sum := md5.Sum([]byte(strings.Join(pairs, "|")))
	return hex.EncodeToString(sum[:])
}

// ValidateDimensions rejects dimension maps that would fold distinct groups
// into one degenerate fingerprint: every key and value must be non-empty.
func ValidateDimensions(dimensions map[string]string) error {
	for k, v := range dimensions {
		if k == "" {
			return fmt.Errorf("dimension key must not be empty")
		}
		if v == "" {
			return fmt.Errorf("dimension %q has empty value", k)
		}
	}
	return nil
}
