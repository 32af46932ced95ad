// Package export models the ChatGPT GDPR data-portability archive: a JSON
// array of conversation trees, each a mapping of nodes linked by parent ids.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNotArray is returned when the top-level JSON value of the source file is
// not an array of conversations.
var ErrNotArray = errors.New("source JSON must be an array of conversations")

// Conversation is one unit of the export. Timestamps arrive as epoch seconds
// that may be fractional, strings, or missing, so they stay untyped here and
// are coerced at use sites.
type Conversation struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	CreateTime  any             `json:"create_time"`
	UpdateTime  any             `json:"update_time"`
	Mapping     map[string]Node `json:"mapping"`
	CurrentNode string          `json:"current_node"`
}

// Node is one vertex of a conversation's message tree. Nodes without a
// message (visual roots, placeholders) still carry ancestry links.
type Node struct {
	ID       string   `json:"id"`
	Parent   string   `json:"parent"`
	Children []string `json:"children"`
	Message  *Message `json:"message"`
}

type Message struct {
	ID         string          `json:"id"`
	Author     Author          `json:"author"`
	CreateTime any             `json:"create_time"`
	Content    json.RawMessage `json:"content"`
	Metadata   map[string]any  `json:"metadata"`
}

type Author struct {
	Role string `json:"role"`
}

// Load reads a conversations.json export. It fails fast when the top-level
// value is not an array; individual conversations that do not decode are
// skipped rather than failing the whole file.
func Load(path string) ([]Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return Parse(data)
}

// Parse decodes a raw export document.
func Parse(data []byte) ([]Conversation, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}

	convos := make([]Conversation, 0, len(items))
	for _, item := range items {
		var c Conversation
		if err := json.Unmarshal(item, &c); err != nil {
			continue // skip malformed entries
		}
		for key, node := range c.Mapping {
			// Some exports omit the node's own id field; the mapping key is
			// the same identifier.
			if node.ID == "" {
				node.ID = key
				c.Mapping[key] = node
			}
		}
		convos = append(convos, c)
	}
	return convos, nil
}
