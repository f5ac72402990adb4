package proto

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"testing/quick"
	"unicode/utf8"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("frame is not valid JSON: %v\n%s", err, raw)
	}
	return out
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{`he said "hi"`, `he said \"hi\"`},
		{`back\slash`, `back\\slash`},
		{"line\nbreak", `line\nbreak`},
		{"cr\rlf", `cr\rlf`},
		{"tab\there", `tab\there`},
		{"bell\x07", `bell\u0007`},
		{"\x1f", `\u001f`},
		{"héllo ☃", "héllo ☃"},
		{"bob\xff", "bob\uFFFD"},
		{"cut\xe2\x82", "cut\uFFFD\uFFFD"},
		{"\xc0\x80", "\uFFFD\uFFFD"},
		{"€\xff€", "€\uFFFD€"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Escape(tt.in); got != tt.want {
			t.Fatalf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// escapeInput draws strings from the characters that need escaping plus a few plain ones.
type escapeInput string

func (escapeInput) Generate(r *rand.Rand, size int) reflect.Value {
	alphabet := []string{`\`, `"`, "\n", "\r", "\t", "a", " ", "é", "\x01", "u", "0"}
	var b strings.Builder
	for i := 0; i < r.Intn(size+1); i++ {
		b.WriteString(alphabet[r.Intn(len(alphabet))])
	}
	return reflect.ValueOf(escapeInput(b.String()))
}

func TestEscapeRoundTripsThroughJSON(t *testing.T) {
	roundTrip := func(in escapeInput) bool {
		var out string
		if err := json.Unmarshal([]byte(`"`+Escape(string(in))+`"`), &out); err != nil {
			return false
		}
		return out == string(in)
	}
	if err := quick.Check(roundTrip, &quick.Config{MaxCount: 500}); err != nil {
		t.Fatal(err)
	}
}

func TestMessageFrame(t *testing.T) {
	raw := Message("alice", `he said "hi"`, 1700000000123)

	if !strings.Contains(raw, `"message":"he said \"hi\""`) {
		t.Fatalf("body not escaped in frame: %s", raw)
	}

	got := decode(t, raw)
	if got["type"] != TypeMessage || got["user"] != "alice" || got["message"] != `he said "hi"` {
		t.Fatalf("unexpected frame: %v", got)
	}
	if got["time"] != float64(1700000000123) {
		t.Fatalf("unexpected time: %v", got["time"])
	}
	if _, ok := got["history"]; ok {
		t.Fatalf("live message must not carry history flag: %v", got)
	}
}

func TestHistoryFrame(t *testing.T) {
	got := decode(t, History("bob", "old", 5))
	if got["type"] != TypeMessage || got["history"] != true || got["time"] != float64(5) {
		t.Fatalf("unexpected frame: %v", got)
	}
}

func TestPresenceAndSystemFrames(t *testing.T) {
	tests := []struct {
		raw  string
		want map[string]any
	}{
		{Join("bo\"b"), map[string]any{"type": TypeJoin, "user": "bo\"b"}},
		{Leave("bob"), map[string]any{"type": TypeLeave, "user": "bob"}},
		{System("hello"), map[string]any{"type": TypeSystem, "message": "hello"}},
		{Welcome("alice", "lobby"), map[string]any{"type": TypeSystem, "message": "Welcome alice to lobby!"}},
	}
	for _, tt := range tests {
		if got := decode(t, tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("frame %s decoded to %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestUsersFrame(t *testing.T) {
	got := decode(t, Users([]string{"alice", "bob"}))
	if got["type"] != TypeUsers || got["users"] != "alice, bob" || got["count"] != float64(2) {
		t.Fatalf("unexpected roster frame: %v", got)
	}

	empty := decode(t, Users(nil))
	if empty["users"] != "" || empty["count"] != float64(0) {
		t.Fatalf("unexpected empty roster: %v", empty)
	}
}

func TestFramesAreValidUTF8(t *testing.T) {
	bad := "bob\xff\xfe"
	frames := []string{
		Join(bad),
		Leave(bad),
		Welcome(bad, "lob\xc3by"),
		Users([]string{"alice", bad}),
		Message(bad, "body\xed\xa0\x80", 1),
		History(bad, "x", 1),
		System(bad),
	}
	for _, raw := range frames {
		if !utf8.ValidString(raw) {
			t.Fatalf("frame is not valid UTF-8: %q", raw)
		}
		decode(t, raw)
	}
}
