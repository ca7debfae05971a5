package name

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// EscapeChar introduces every escape sequence. It is itself escaped so
	// the mapping stays injective.
	EscapeChar = '_'
)

// safeByte reports whether b may appear verbatim in an engine resource name.
// The engine accepts [A-Za-z0-9-]; everything else is escaped.
func safeByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '-':
		return true
	}
	return false
}

// Escape maps s onto the engine-safe alphabet. Every byte outside
// [A-Za-z0-9-], and the escape character itself, becomes the escape
// character followed by two uppercase hex digits. Distinct inputs always
// produce distinct outputs.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if safeByte(c) && c != EscapeChar {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%c%02X", EscapeChar, c)
	}
	return b.String()
}

// Unescape inverts Escape. It fails on a truncated or non-hex escape
// sequence.
func Unescape(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != EscapeChar {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape sequence at offset %d in %q", i, s)
		}
		var v byte
		if _, err := fmt.Sscanf(s[i+1:i+3], "%02x", &v); err != nil {
			return "", fmt.Errorf("invalid escape sequence %q at offset %d: %w", s[i:i+3], i, err)
		}
		b.WriteByte(v)
		i += 2
	}
	return b.String(), nil
}

var placeholderRe = regexp.MustCompile(`\{([a-z]+)\}`)

// Deriver computes the stable engine service name for one user session.
// Escaping is requested repeatedly by the volume translator and discovery,
// so the escaped username is computed once and cached.
type Deriver struct {
	username string
	escaped  string
}

// NewDeriver returns a Deriver for the given raw username.
func NewDeriver(username string) *Deriver {
	return &Deriver{username: username}
}

// Username returns the raw username the deriver was built for.
func (d *Deriver) Username() string {
	return d.username
}

// EscapedUsername returns the engine-safe form of the username.
func (d *Deriver) EscapedUsername() string {
	if d.escaped == "" {
		d.escaped = Escape(d.username)
	}
	return d.escaped
}

// ServiceName expands template into the engine service name for this user.
// Recognized placeholders are {username} (escaped), {imagename} (image with
// "/" replaced by "_"), {servername} and {prefix}. A template referencing any
// other placeholder is a configuration error.
func (d *Deriver) ServiceName(template, image, serverName, prefix string) (string, error) {
	values := map[string]string{
		"username":   d.EscapedUsername(),
		"imagename":  strings.ReplaceAll(image, "/", "_"),
		"servername": serverName,
		"prefix":     prefix,
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if _, ok := values[m[1]]; !ok {
			return "", fmt.Errorf("unknown placeholder %q in service name template %q", m[0], template)
		}
	}
	out := template
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out, nil
}
