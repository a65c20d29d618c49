package http

import (
	"sort"
	"strings"
)

// defaultCookies are sent with every request. nw=1 skips the content
// warning interstitial on restricted galleries.
var defaultCookies = map[string]string{
	"nw": "1",
}

// MergeCookies overlays a raw Cookie header value onto the default cookies
// and returns the combined header value.
//
// The raw string uses the usual "name=value; name2=value2" form. Later
// entries win on name collisions, including over the defaults. Entries
// without a name are dropped. The result is sorted by name so the same input
// always produces the same header.
//
// Example:
//
//	MergeCookies("ipb_member_id=42; nw=0") // Returns "ipb_member_id=42; nw=0"
//	MergeCookies("")                       // Returns "nw=1"
func MergeCookies(raw string) string {
	jar := make(map[string]string, len(defaultCookies))
	for name, value := range defaultCookies {
		jar[name] = value
	}

	for _, part := range strings.Split(raw, ";") {
		name, value, found := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			continue
		}
		jar[name] = strings.TrimSpace(value)
	}

	names := make([]string, 0, len(jar))
	for name := range jar {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = name + "=" + jar[name]
	}
	return strings.Join(pairs, "; ")
}
