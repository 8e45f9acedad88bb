// Package cursor implements freeze/thaw's textual cursor grammar (spec.md
// §4.9, §6, C10): splitting a cursor into its SET/POSITION/STATE pieces,
// parsing a SET into its iterator kind, bounds, and nested sub-cursors, and
// dispatching a parsed SET back into a live iterator tree.
package cursor

import (
	"strconv"
	"strings"

	"github.com/graphd/queryengine/internal/domain/primitive"
)

// Cursor is the parsed top-level "SET/POSITION/STATE" cursor (spec.md §4.9).
// Any piece may be empty — an absent piece is legal at every level.
type Cursor struct {
	Set      string
	Position string
	State    string
}

// Split parses the "/"-delimited top-level cursor, respecting paren/bracket
// nesting so a sub-cursor's own characters never get mistaken for a
// top-level separator.
func Split(text string) Cursor {
	parts := splitTopLevel(text, '/', 3)
	var c Cursor
	if len(parts) > 0 {
		c.Set = parts[0]
	}
	if len(parts) > 1 {
		c.Position = parts[1]
	}
	if len(parts) > 2 {
		c.State = parts[2]
	}
	return c
}

// Join reassembles a Cursor into its textual form, omitting trailing empty
// pieces (spec.md: "any piece may be absent").
func (c Cursor) Join() string {
	if c.State != "" {
		return c.Set + "/" + c.Position + "/" + c.State
	}
	if c.Position != "" {
		return c.Set + "/" + c.Position
	}
	return c.Set
}

func splitTopLevel(text string, sep byte, max int) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		default:
			if text[i] == sep && depth == 0 && len(out) < max-1 {
				out = append(out, text[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, text[start:])
	return out
}

// Set is a parsed SET piece: iter_name ":" dir? low ["-" high] ":" body,
// plus any trailing "[k:v]" options and "(sub-cursor)" children (spec.md
// §6 cursor grammar).
type Set struct {
	Kind    string
	Forward bool
	Low     primitive.Id
	High    primitive.Id
	Body    string
	Options map[string]string
	Subs    []string
}

// ParseSet parses one SET piece. Unknown bracket keys are kept in Options
// verbatim — thaw skips keys it doesn't recognise (forwards compatible,
// spec.md §6).
func ParseSet(text string) (Set, bool) {
	var s Set
	s.Options = map[string]string{}

	first := strings.IndexByte(text, ':')
	if first < 0 {
		return s, false
	}
	s.Kind = text[:first]
	rest := text[first+1:]

	second := -1
	depth := 0
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 {
				second = i
			}
		}
		if second >= 0 {
			break
		}
	}
	if second < 0 {
		return s, false
	}
	rangeText := rest[:second]
	tail := rest[second+1:]

	s.Forward = true
	if strings.HasPrefix(rangeText, "~") {
		s.Forward = false
		rangeText = rangeText[1:]
	}
	boundParts := strings.SplitN(rangeText, "-", 2)
	low, err := strconv.ParseUint(boundParts[0], 10, 64)
	if err != nil {
		return s, false
	}
	s.Low = primitive.Id(low)
	s.High = primitive.Max
	if len(boundParts) == 2 && boundParts[1] != "" {
		high, err := strconv.ParseUint(boundParts[1], 10, 64)
		if err == nil {
			s.High = primitive.Id(high)
		}
	}

	// tail now holds body text interleaved with "[k:v]" options and
	// "(sub-cursor)" children, in the order Freeze wrote them.
	var body strings.Builder
	i := 0
	for i < len(tail) {
		switch tail[i] {
		case '[':
			j := matchClose(tail, i, '[', ']')
			kv := tail[i+1 : j]
			if eq := strings.IndexByte(kv, ':'); eq >= 0 {
				s.Options[kv[:eq]] = kv[eq+1:]
			}
			i = j + 1
		case '(':
			j := matchClose(tail, i, '(', ')')
			s.Subs = append(s.Subs, tail[i+1:j])
			i = j + 1
		default:
			body.WriteByte(tail[i])
			i++
		}
	}
	s.Body = body.String()
	return s, true
}

// matchClose finds the index of the bracket/paren matching the opener at
// openIdx, accounting for nesting. Returns len(text)-1 if unmatched (a
// malformed cursor thaw will then surface as a parse failure downstream).
func matchClose(text string, openIdx int, open, close byte) int {
	depth := 0
	for i := openIdx; i < len(text); i++ {
		switch text[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(text) - 1
}
