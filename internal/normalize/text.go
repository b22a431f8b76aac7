package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"notiflink/internal/host"
)

// unprintable matches control characters other than whitespace, so tabs and
// newlines survive.
var unprintable = runes.Predicate(func(r rune) bool {
	return unicode.IsControl(r) && !unicode.IsSpace(r)
})

// StripControl removes non-printable control characters from s.
func StripControl(s string) string {
	if s == "" {
		return s
	}
	out, _, err := transform.String(runes.Remove(unprintable), s)
	if err != nil {
		return s
	}
	return out
}

// ExtractText returns the title and body of ev. The long-form text replaces
// the body when preferLong is set and it is non-blank; a messaging-style
// event with no body falls back to its last message.
func ExtractText(ev host.Event, preferLong bool) (title, body string) {
	title = ev.Extras.Title
	body = ev.Extras.Text
	if preferLong && strings.TrimSpace(ev.Extras.BigText) != "" {
		body = ev.Extras.BigText
	}
	if strings.TrimSpace(body) == "" && len(ev.Extras.Messages) > 0 {
		last := ev.Extras.Messages[len(ev.Extras.Messages)-1]
		body = last.Text
		if title == "" {
			title = last.Sender
		}
	}
	return StripControl(title), StripControl(body)
}

var pictureMIME = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// PictureRef returns the inline picture reference, or the content item when
// it is a supported image type.
func PictureRef(ev host.Event) string {
	if ev.Extras.Picture != "" {
		return ev.Extras.Picture
	}
	if ev.Extras.ContentURI == "" {
		return ""
	}
	mime := strings.ToLower(strings.TrimSpace(ev.Extras.ContentMIME))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if _, ok := pictureMIME[mime]; ok {
		return ev.Extras.ContentURI
	}
	return ""
}
