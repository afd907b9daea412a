package generation

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// maxWalkDepth bounds the recursive payload walk so a pathological provider
// response cannot blow the stack.
const maxWalkDepth = 8

// mediaExtensions are file extensions that identify a result URL even when
// the host is unfamiliar.
var mediaExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true,
	".mp4": true, ".webm": true, ".mov": true,
}

// mediaHostMarkers identify known provider CDN hosts whose URLs may lack a
// file extension.
var mediaHostMarkers = []string{"fal.media", "cdn."}

// ExtractMediaURLs walks an arbitrarily shaped decoded JSON payload and
// collects every string that plausibly points at generated media. Providers
// are not schema-compatible with each other and change shape between calls,
// so this is a heuristic walk, not a fixed-path accessor. The walk is total
// and bounded; the result order is deterministic (arrays in element order,
// maps in sorted key order) and duplicates are dropped.
func ExtractMediaURLs(payload any) []string {
	seen := make(map[string]bool)
	var urls []string
	walk(payload, 0, func(s string) {
		if !seen[s] {
			seen[s] = true
			urls = append(urls, s)
		}
	})
	return urls
}

func walk(v any, depth int, emit func(string)) {
	if depth > maxWalkDepth {
		return
	}
	switch t := v.(type) {
	case string:
		if LooksLikeMediaURL(t) {
			emit(t)
		}
	case []any:
		for _, item := range t {
			walk(item, depth+1, emit)
		}
	case map[string]any:
		// Sorted keys keep discovery order stable across runs.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(t[k], depth+1, emit)
		}
	}
}

// LooksLikeMediaURL reports whether s is plausibly a URL to a generated
// image or video: an absolute http(s) URL with a known media extension or a
// known media CDN host.
func LooksLikeMediaURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	parsed, err := url.Parse(s)
	if err != nil || parsed.Host == "" {
		return false
	}

	if mediaExtensions[strings.ToLower(path.Ext(parsed.Path))] {
		return true
	}
	host := strings.ToLower(parsed.Host)
	for _, marker := range mediaHostMarkers {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}
