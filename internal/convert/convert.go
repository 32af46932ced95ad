// Package convert linearizes a branching ChatGPT conversation tree into an
// Open WebUI chat: only the active branch (current_node back to the root) is
// kept, and the surviving messages form a single parent/child chain.
package convert

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chatmigrate/owui-import/internal/export"
	"github.com/chatmigrate/owui-import/internal/webui"
)

const (
	// DefaultTitle is used when the source conversation has no title.
	DefaultTitle = "ChatGPT import"
	// DefaultModel is the sentinel model slug when none is recorded.
	DefaultModel = "chatgpt-import"
)

// Options control which messages survive linearization.
type Options struct {
	IncludeSystem bool
	IncludeTool   bool
	KeepEmpty     bool
}

// Stats describes one conversion attempt, for reporting and bookkeeping.
type Stats struct {
	SourceID          string
	SourceTitle       string
	SourceNodes       int
	ConvertedMessages int
}

// Convert linearizes one conversation. It returns nil when the conversation
// is not convertible: empty mapping, no resolvable leaf, or no messages left
// after filtering. Stats are populated either way.
func Convert(conv export.Conversation, opts Options) (*webui.Chat, Stats) {
	stats := Stats{
		SourceID:    conv.ID,
		SourceTitle: conv.Title,
		SourceNodes: len(conv.Mapping),
	}

	if len(conv.Mapping) == 0 {
		return nil, stats
	}

	chain := activeBranch(conv)
	if chain == nil {
		return nil, stats
	}

	convoTS := EpochSeconds(conv.CreateTime, EpochSeconds(conv.UpdateTime, time.Now().Unix()))

	messages := make(map[string]*webui.ChatMessage)
	var orderedIDs []string
	modelSet := make(map[string]bool)
	var lastID *string

	for _, node := range chain {
		msg := node.Message
		if msg == nil {
			continue
		}

		role := strings.TrimSpace(msg.Author.Role)
		if !allowedRole(role, opts) {
			continue
		}

		content := ExtractText(msg.Content)
		if content == "" && !opts.KeepEmpty {
			continue
		}

		model := modelSlug(msg.Metadata)
		if role == "assistant" {
			modelSet[model] = true
		}

		id := msg.ID
		if id == "" {
			id = node.ID
		}
		if id == "" {
			id = fmt.Sprintf("msg-%d", len(orderedIDs)+1)
		}
		if _, taken := messages[id]; taken {
			id = fmt.Sprintf("%s-%d", id, len(orderedIDs)+1)
		}

		converted := &webui.ChatMessage{
			ID:          id,
			ParentID:    lastID,
			ChildrenIDs: []string{},
			Role:        role,
			Content:     content,
			Model:       model,
			Timestamp:   EpochSeconds(msg.CreateTime, convoTS),
			Done:        true,
		}

		if lastID != nil {
			messages[*lastID].ChildrenIDs = append(messages[*lastID].ChildrenIDs, id)
		}

		messages[id] = converted
		orderedIDs = append(orderedIDs, id)
		lastID = &converted.ID
	}

	if len(orderedIDs) == 0 {
		return nil, stats
	}
	stats.ConvertedMessages = len(orderedIDs)

	var models []string
	for m := range modelSet {
		models = append(models, m)
	}
	sort.Strings(models)
	if len(models) == 0 {
		models = []string{DefaultModel}
	}

	title := conv.Title
	if title == "" {
		title = DefaultTitle
	}

	ordered := make([]*webui.ChatMessage, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		ordered = append(ordered, messages[id])
	}

	return &webui.Chat{
		Title: title,
		History: webui.History{
			CurrentID: orderedIDs[len(orderedIDs)-1],
			Messages:  messages,
		},
		Models:    models,
		Messages:  ordered,
		Options:   map[string]any{},
		Timestamp: convoTS,
	}, stats
}

// activeBranch resolves the leaf node and walks parent links back to the
// root, returning the chain in root-to-leaf order. Returns nil when no leaf
// can be resolved. A visited set guards against parent cycles in malformed
// exports.
func activeBranch(conv export.Conversation) []export.Node {
	nodeID := conv.CurrentNode
	if _, ok := conv.Mapping[nodeID]; nodeID == "" || !ok {
		nodeID = fallbackLeaf(conv.Mapping)
		if nodeID == "" {
			return nil
		}
	}

	var chain []export.Node
	visited := make(map[string]bool)
	for nodeID != "" && !visited[nodeID] {
		node, ok := conv.Mapping[nodeID]
		if !ok {
			break
		}
		visited[nodeID] = true
		chain = append(chain, node)
		nodeID = node.Parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// fallbackLeaf picks the lexicographically smallest childless node id, so
// conversations without a usable current_node convert deterministically.
func fallbackLeaf(mapping map[string]export.Node) string {
	var leaf string
	for id, node := range mapping {
		if len(node.Children) != 0 {
			continue
		}
		if leaf == "" || id < leaf {
			leaf = id
		}
	}
	return leaf
}

func allowedRole(role string, opts Options) bool {
	switch role {
	case "user", "assistant":
		return true
	case "system":
		return opts.IncludeSystem
	case "tool":
		return opts.IncludeTool
	default:
		return false
	}
}

// modelSlug resolves the model identifier from message metadata, trying the
// candidate keys in priority order.
func modelSlug(metadata map[string]any) string {
	for _, key := range []string{"model_slug", "default_model_slug", "resolved_model_slug"} {
		if v, ok := metadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return DefaultModel
}
