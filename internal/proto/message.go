// Package proto renders the relay's outbound frames.
//
// Every frame is a flat JSON object with a "type" key. Strings are escaped
// here rather than by encoding/json so that the text clients render is exactly
// what the relay produced, byte for byte, for every recipient.
package proto

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Outbound frame types.
const (
	TypeSystem  = "system"
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeMessage = "message"
	TypeUsers   = "users"
)

// RosterSeparator joins usernames in a users frame.
const RosterSeparator = ", "

const hexDigits = "0123456789abcdef"

// Escape makes s safe to embed between double quotes in a JSON document.
// Backslash, quote, newline, carriage return and tab get their short escapes;
// any other control character below 0x20 becomes \u00XX. Bytes that are not
// valid UTF-8 become U+FFFD, so frames are always valid text.
func Escape(s string) string {
	var b strings.Builder
	writeEscaped(&b, s)
	return b.String()
}

func writeEscaped(b *strings.Builder, s string) {
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				b.WriteRune(utf8.RuneError)
			} else {
				b.WriteString(s[i : i+size])
			}
			i += size
			continue
		}
		i++
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xf])
				continue
			}
			b.WriteByte(c)
		}
	}
}

// frame accumulates one flat JSON object.
type frame struct {
	b     strings.Builder
	empty bool
}

func newFrame(typ string) *frame {
	f := &frame{empty: true}
	f.b.WriteByte('{')
	return f.str("type", typ)
}

func (f *frame) key(k string) {
	if !f.empty {
		f.b.WriteByte(',')
	}
	f.empty = false
	f.b.WriteByte('"')
	writeEscaped(&f.b, k)
	f.b.WriteString(`":`)
}

func (f *frame) str(k, v string) *frame {
	f.key(k)
	f.b.WriteByte('"')
	writeEscaped(&f.b, v)
	f.b.WriteByte('"')
	return f
}

func (f *frame) num(k string, v int64) *frame {
	f.key(k)
	f.b.WriteString(strconv.FormatInt(v, 10))
	return f
}

func (f *frame) boolean(k string, v bool) *frame {
	f.key(k)
	f.b.WriteString(strconv.FormatBool(v))
	return f
}

func (f *frame) String() string {
	f.b.WriteByte('}')
	return f.b.String()
}

// System is a notice addressed to a single client.
func System(text string) string {
	return newFrame(TypeSystem).str("message", text).String()
}

// Welcome is the system notice a client gets after joining room.
func Welcome(username, room string) string {
	return System("Welcome " + username + " to " + room + "!")
}

// Join announces that user entered the room.
func Join(user string) string {
	return newFrame(TypeJoin).str("user", user).String()
}

// Leave announces that user left the room.
func Leave(user string) string {
	return newFrame(TypeLeave).str("user", user).String()
}

// Message carries chat text; sentAt is unix milliseconds.
func Message(user, body string, sentAt int64) string {
	return newFrame(TypeMessage).
		str("user", user).
		str("message", body).
		num("time", sentAt).
		String()
}

// History is a replayed message, delivered only to a joining client.
func History(user, body string, sentAt int64) string {
	return newFrame(TypeMessage).
		str("user", user).
		str("message", body).
		num("time", sentAt).
		boolean("history", true).
		String()
}

// Users is the roster of a room at broadcast time.
func Users(names []string) string {
	return newFrame(TypeUsers).
		str("users", strings.Join(names, RosterSeparator)).
		num("count", int64(len(names))).
		String()
}
