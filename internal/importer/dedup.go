package importer

import "github.com/chatmigrate/owui-import/internal/webui"

// RemoteImportedIDs filters a chat listing down to chats this tool created
// (marked by meta.import_source) and collects their source conversation ids.
func RemoteImportedIDs(records []webui.ChatRecord) map[string]bool {
	ids := make(map[string]bool)
	for _, r := range records {
		if r.Meta.ImportSource != webui.ImportSource {
			continue
		}
		if r.Meta.ConversationID != "" {
			ids[r.Meta.ConversationID] = true
		}
	}
	return ids
}

// union merges id sets from independent sources (local state file, remote
// query). Either source alone stays correct when the other is disabled.
func union(sets ...map[string]bool) map[string]bool {
	merged := make(map[string]bool)
	for _, set := range sets {
		for id := range set {
			merged[id] = true
		}
	}
	return merged
}
