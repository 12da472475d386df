package cache

import "strings"

// Key addresses one stored response: method, normalized host, path+query,
// and a Vary fingerprint. Always including the normalized host prevents
// cross-tenant collisions between virtual hosts sharing a path (the
// resolution spec.md §9 calls for, over variants seen in the source corpus
// that keyed on path alone or on a full absolute URI).
type Key struct {
	Method          string
	Host            string
	PathWithQuery   string
	VaryFingerprint string // pre-rendered, see buildVaryFingerprint
}

// simpleKey is the same tuple with an empty fingerprint, used as the first
// probe on every lookup and as the lookup target for un-varied resources.
func simpleKey(method, host, pathWithQuery string) Key {
	return Key{Method: method, Host: host, PathWithQuery: pathWithQuery}
}

// buildVaryFingerprint renders an ordered mapping from lowercased header
// name to exact request header value, for the set of names the stored
// response declared in its Vary header. Header names are rendered in the
// order given (the order the stored Vary list specified), not sorted — two
// requests that agree on every varied header produce the same fingerprint
// regardless of map iteration order because we never range a map here.
func buildVaryFingerprint(varyNames []string, reqHeaderGet func(string) string) string {
	if len(varyNames) == 0 {
		return ""
	}
	var b strings.Builder
	for i, name := range varyNames {
		if i > 0 {
			b.WriteByte('\x00')
		}
		trimmed := strings.TrimSpace(name)
		lname := strings.ToLower(trimmed)
		b.WriteString(lname)
		b.WriteByte('=')
		b.WriteString(reqHeaderGet(trimmed))
	}
	return b.String()
}

// resourceID identifies a resource independent of its Vary variant — the
// simple key's tuple, used to index the VaryIndex.
type resourceID struct {
	Method        string
	Host          string
	PathWithQuery string
}

func (k Key) resource() resourceID {
	return resourceID{Method: k.Method, Host: k.Host, PathWithQuery: k.PathWithQuery}
}
