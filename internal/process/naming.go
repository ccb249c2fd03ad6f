// Package process creates and drives engine processes on behalf of cargoes,
// jobs, and VMs: labelling, env/secret injection, hostname and network
// defaulting, and concurrent replica creation with init-container gating
// (§4.3), grounded on original_source's utils/cargo.rs and
// utils/container/cargo.rs.
package process

import (
	"crypto/rand"
	"fmt"
)

const shortIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateShortID returns an n-character random alphanumeric suffix, the way
// utils::key::generate_short_id does for process and init-container names.
func GenerateShortID(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; there is no
		// sane fallback for a name that must be collision-resistant.
		panic(fmt.Sprintf("process: reading random bytes: %v", err))
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = shortIDAlphabet[int(b)%len(shortIDAlphabet)]
	}
	return string(out)
}

// MainName builds a main-container name: "<stem>-<6-alnum>.<namespace>.<kind_tag>".
func MainName(stem, namespace, kindTag string) string {
	return fmt.Sprintf("%s-%s.%s.%s", stem, GenerateShortID(6), namespace, kindTag)
}

// InitName builds an init-container name: "init-<stem>-<6-alnum>.<namespace>.c".
func InitName(stem, namespace string) string {
	return fmt.Sprintf("init-%s-%s.%s.c", stem, GenerateShortID(6), namespace)
}

// TmpName builds the zero-downtime update's rename target for an existing
// process name (§4.4 step 1).
func TmpName(originalName string) string {
	return "tmp-" + originalName
}
