// Package format adapts authored HTML content to each destination's markup
// dialect and length limits. Per-destination behavior is table-driven: a
// destination is a Profile row, and one generic formatting function
// interprets it.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrContentTooLong is returned when formatted content exceeds the
// destination's hard limit. Content is never silently truncated; the caller
// decides whether to split or reject.
var ErrContentTooLong = errors.New("formatted content is too long")

// Profile describes how one destination shapes content.
type Profile struct {
	Name string

	// AllowedTags maps accepted markup tags to their canonical form
	// (e.g., strong → b). Empty means the destination accepts no markup at
	// all and every tag is stripped.
	AllowedTags map[string]string

	// MaxLength is the destination's hard text limit.
	MaxLength int

	// CaptionLimit is the small-text threshold for single-request
	// media+caption publishing.
	CaptionLimit int
}

// RichMarkup reports whether the profile keeps any markup.
func (p Profile) RichMarkup() bool {
	return len(p.AllowedTags) > 0
}

// chatAllowedTags is the restricted allow-list of chat-style destinations.
var chatAllowedTags = map[string]string{
	"b": "b", "strong": "b",
	"i": "i", "em": "i",
	"u": "u", "ins": "u",
	"s": "s", "strike": "s", "del": "s",
	"code": "code",
	"pre":  "pre",
	"a":    "a",
}

// ChatProfile returns the profile for a chat-style destination that accepts
// restricted HTML.
func ChatProfile(name string, maxLength, captionLimit int) Profile {
	return Profile{
		Name:         name,
		AllowedTags:  chatAllowedTags,
		MaxLength:    maxLength,
		CaptionLimit: captionLimit,
	}
}

// PlainProfile returns the profile for a destination with no markup support.
func PlainProfile(name string, maxLength, captionLimit int) Profile {
	return Profile{
		Name:         name,
		MaxLength:    maxLength,
		CaptionLimit: captionLimit,
	}
}

var (
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	doctypeRe = regexp.MustCompile(`(?i)<!DOCTYPE[^>]*>`)

	brRe        = regexp.MustCompile(`(?i)<br\s*/?>`)
	paragraphRe = regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`)
	divRe       = regexp.MustCompile(`(?is)<div[^>]*>(.*?)</div>`)
	headingRe   = regexp.MustCompile(`(?is)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	listItemRe  = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	listWrapRe  = regexp.MustCompile(`(?is)</?[ou]l[^>]*>`)

	anchorRe = regexp.MustCompile(`(?is)<a\s[^>]*?href=["']([^"']*)["'][^>]*>(.*?)</a>`)
	tagRe    = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)((?:\s[^>]*?)?)>`)
	hrefRe   = regexp.MustCompile(`(?i)href=["']([^"']*)["']`)

	multiNewlineRe  = regexp.MustCompile(`\n{3,}`)
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
)

// Formatter formats content for a set of destination profiles.
type Formatter struct {
	profiles map[string]Profile
}

// New creates a Formatter over the given profiles, keyed by destination name.
func New(profiles ...Profile) *Formatter {
	m := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		m[p.Name] = p
	}
	return &Formatter{profiles: m}
}

// Profile returns the profile for a destination.
func (f *Formatter) Profile(destination string) (Profile, bool) {
	p, ok := f.profiles[destination]
	return p, ok
}

// Format renders body for the named destination. Formatting is idempotent:
// formatting an already-formatted string yields the same result.
func (f *Formatter) Format(destination, body string) (string, error) {
	profile, ok := f.profiles[destination]
	if !ok {
		return "", fmt.Errorf("no format profile for destination %q", destination)
	}
	return FormatWith(profile, body)
}

// FormatWith renders body using an explicit profile.
func FormatWith(profile Profile, body string) (string, error) {
	text := convertStructural(body, profile.RichMarkup())

	if profile.RichMarkup() {
		text = repairTags(text, profile.AllowedTags)
	} else {
		text = anchorRe.ReplaceAllString(text, "$2 ($1)")
		text = tagRe.ReplaceAllString(text, "")
	}

	text = trailingSpaceRe.ReplaceAllString(text, "\n")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if profile.MaxLength > 0 && len([]rune(text)) > profile.MaxLength {
		return "", fmt.Errorf("%w: %d characters exceeds %s limit of %d",
			ErrContentTooLong, len([]rune(text)), profile.Name, profile.MaxLength)
	}
	return text, nil
}

// convertStructural rewrites block-level tags into newline and bullet
// equivalents. Rich destinations keep headings as bold; plain destinations
// flatten them.
func convertStructural(text string, rich bool) string {
	text = commentRe.ReplaceAllString(text, "")
	text = doctypeRe.ReplaceAllString(text, "")

	text = brRe.ReplaceAllString(text, "\n")
	text = paragraphRe.ReplaceAllString(text, "$1\n\n")
	text = divRe.ReplaceAllString(text, "$1\n")
	if rich {
		text = headingRe.ReplaceAllString(text, "<b>$1</b>\n\n")
	} else {
		text = headingRe.ReplaceAllString(text, "$1\n\n")
	}
	text = listItemRe.ReplaceAllString(text, "• $1\n")
	text = listWrapRe.ReplaceAllString(text, "\n")
	return text
}

// repairTags walks the text with a stack of open allow-listed tags: unknown
// tags are stripped (content kept), closing tags that do not match the top
// of the stack are dropped, anchors without an href are dropped, and any
// tags still open at end of string are auto-closed.
func repairTags(text string, allowed map[string]string) string {
	var out strings.Builder
	var stack []string

	last := 0
	for _, match := range tagRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := match[0], match[1]
		out.WriteString(text[last:start])
		last = end

		full := text[start:end]
		name := strings.ToLower(text[match[2]:match[3]])
		attrs := text[match[4]:match[5]]
		closing := strings.HasPrefix(full, "</")

		canonical, ok := allowed[name]
		if !ok {
			continue
		}

		if closing {
			if len(stack) > 0 && stack[len(stack)-1] == canonical {
				stack = stack[:len(stack)-1]
				out.WriteString("</" + canonical + ">")
			}
			// A closer that does not match the top of the stack is dropped.
			continue
		}

		if canonical == "a" {
			href := hrefRe.FindStringSubmatch(attrs)
			if href == nil || href[1] == "" {
				// Bare anchors are invalid at chat destinations.
				continue
			}
			stack = append(stack, canonical)
			out.WriteString(`<a href="` + href[1] + `">`)
			continue
		}

		stack = append(stack, canonical)
		out.WriteString("<" + canonical + ">")
	}
	out.WriteString(text[last:])

	for i := len(stack) - 1; i >= 0; i-- {
		out.WriteString("</" + stack[i] + ">")
	}
	return out.String()
}

// AppendHashtags appends a hashtag line, replacing inner whitespace with
// underscores the way the authoring layer expects.
func AppendHashtags(text string, tags []string) string {
	if len(tags) == 0 {
		return text
	}
	rendered := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "#"))
		if tag == "" {
			continue
		}
		rendered = append(rendered, "#"+strings.Join(strings.Fields(tag), "_"))
	}
	if len(rendered) == 0 {
		return text
	}
	if text == "" {
		return strings.Join(rendered, " ")
	}
	return text + "\n\n" + strings.Join(rendered, " ")
}
