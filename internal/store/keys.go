package store

import "strings"

// kvPrefix namespaces every user-visible key. Internal bookkeeping keys
// (none today) would live outside it so Clear cannot touch them.
const kvPrefix = "kv:"

// kvKey builds the badger key of a store key.
// Badger keeps references to keys passed to txn.Set until commit, so the
// slice is freshly allocated rather than pooled.
func kvKey(name string) []byte {
	buf := make([]byte, 0, len(kvPrefix)+len(name))
	buf = append(buf, kvPrefix...)
	buf = append(buf, name...)
	return buf
}

// kvName strips the namespace from a badger key.
func kvName(key []byte) string {
	return strings.TrimPrefix(string(key), kvPrefix)
}
