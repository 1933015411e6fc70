// Package storepath implements key normalization, joining, and the
// prefix/depth filters the storage engine uses to route and enumerate keys.
// A key is a colon-separated ordered sequence of non-empty segments
// (e.g. "users:42:profile"); slashes in input are coerced to colons.
package storepath

import "strings"

// Separator is the canonical segment separator. Input keys using "/" or "\\"
// are coerced to it before any other processing.
const Separator = ":"

// MetaSuffix marks a key as reserved metadata; such keys are excluded from
// enumeration.
const MetaSuffix = "$"

// Normalize trims leading/trailing separators, collapses runs of separators,
// strips any "?"-suffixed query portion, and coerces "/" and "\\" to ":".
// Normalize is idempotent: Normalize(Normalize(k)) == Normalize(k).
func Normalize(key string) string {
	if idx := strings.IndexByte(key, '?'); idx >= 0 {
		key = key[:idx]
	}
	key = strings.ReplaceAll(key, "\\", Separator)
	key = strings.ReplaceAll(key, "/", Separator)

	segments := splitNonEmpty(key)
	return strings.Join(segments, Separator)
}

// splitNonEmpty splits on Separator and drops empty segments, which both
// trims leading/trailing separators and collapses runs of them.
func splitNonEmpty(key string) []string {
	parts := strings.Split(key, Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Join joins a base (which may be empty, or may or may not carry a trailing
// separator) and a relative key, normalizing the result.
func Join(base, rel string) string {
	if base == "" {
		return Normalize(rel)
	}
	if rel == "" {
		return Normalize(base)
	}
	return Normalize(base + Separator + rel)
}

// IsBase reports whether key denotes a subtree root: either the empty string
// (the overall root) or a key ending in the separator.
func IsBase(key string) bool {
	return key == "" || strings.HasSuffix(key, Separator)
}

// IsMeta reports whether key is a reserved metadata key (ends in "$").
func IsMeta(key string) bool {
	return strings.HasSuffix(key, MetaSuffix)
}

// IsValid reports whether a normalized key is free of traversal sequences:
// no leading/trailing separator, no "/" or "\\", and no "..:" substring or
// trailing "..". This blocks a bare ".." path segment (which always either
// precedes a separator or ends the key) while still permitting ".."
// embedded inside a legitimate segment, e.g. "te..st..js".
func IsValid(key string) bool {
	if strings.ContainsAny(key, `/\`) {
		return false
	}
	if strings.HasPrefix(key, Separator) || strings.HasSuffix(key, Separator) {
		return false
	}
	if strings.Contains(key, "..:") || strings.HasSuffix(key, "..") {
		return false
	}
	return true
}

// HasPrefix reports whether key starts with base, treating base as a
// segment-aligned prefix (so "ab" is not considered a prefix of "abc:d").
func HasPrefix(key, base string) bool {
	if base == "" {
		return true
	}
	baseNorm := strings.TrimSuffix(base, Separator)
	if !strings.HasPrefix(key, baseNorm) {
		return false
	}
	rest := key[len(baseNorm):]
	return rest == "" || strings.HasPrefix(rest, Separator)
}

// Relative strips base from key, returning the mount-relative remainder
// (never starting with the separator).
func Relative(key, base string) string {
	baseNorm := strings.TrimSuffix(base, Separator)
	rel := strings.TrimPrefix(key[len(baseNorm):], Separator)
	return rel
}

// Depth returns the 0-indexed nesting depth of key beneath base: a direct
// child of base (e.g. "a" beneath "") is depth 0, "a:b" is depth 1, and so
// on. Depth("", "") is 0.
func Depth(key, base string) int {
	rel := Relative(key, base)
	if rel == "" {
		return 0
	}
	return strings.Count(rel, Separator)
}

// WithinDepth reports whether key is at most maxDepth levels beneath base
// (0-indexed, see Depth). maxDepth <= 0 means unlimited.
func WithinDepth(key, base string, maxDepth int) bool {
	if maxDepth <= 0 {
		return true
	}
	return Depth(key, base) <= maxDepth
}

// ToSlashes renders a colon-separated key using "/" separators, for
// client-friendly surfaces like the HTTP protocol's JSON key listings.
func ToSlashes(key string) string {
	return strings.ReplaceAll(key, Separator, "/")
}

// FromSlashes is the inverse of ToSlashes.
func FromSlashes(key string) string {
	return strings.ReplaceAll(key, "/", Separator)
}
