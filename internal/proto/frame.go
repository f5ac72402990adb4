package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame is the decoded form of any outbound frame. Clients use it; the
// relay itself only renders frames.
type Frame struct {
	Type    string `json:"type"`
	User    string `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
	Time    int64  `json:"time,omitempty"`
	History bool   `json:"history,omitempty"`
	Users   string `json:"users,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// ParseFrame decodes one outbound frame.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}

// Roster splits the users field of a users frame.
func (f Frame) Roster() []string {
	if f.Users == "" {
		return nil
	}
	return strings.Split(f.Users, RosterSeparator)
}
