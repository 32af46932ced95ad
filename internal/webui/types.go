package webui

// ImportSource marks chats created by this tool. The remote dedup lookup
// filters on this value, so changing it orphans previously imported chats.
const ImportSource = "chatgpt-gdpr"

// ChatMessage is one entry in an Open WebUI chat history. Imported chats are
// linear: at most one parent and one child per message.
type ChatMessage struct {
	ID          string   `json:"id"`
	ParentID    *string  `json:"parentId"`
	ChildrenIDs []string `json:"childrenIds"`
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	Model       string   `json:"model"`
	Timestamp   int64    `json:"timestamp"`
	Done        bool     `json:"done"`
	Context     any      `json:"context"`
}

// History is the keyed-by-id view of a chat, with the active leaf id.
type History struct {
	CurrentID string                  `json:"currentId"`
	Messages  map[string]*ChatMessage `json:"messages"`
}

// Chat is the Open WebUI chat object carried inside an import form.
type Chat struct {
	Title     string         `json:"title"`
	History   History        `json:"history"`
	Models    []string       `json:"models"`
	Messages  []*ChatMessage `json:"messages"`
	Options   map[string]any `json:"options"`
	Timestamp int64          `json:"timestamp"`
}

// ChatMeta is the provenance triple recorded on every imported chat.
type ChatMeta struct {
	ImportSource   string `json:"import_source,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	OriginalTitle  string `json:"original_title,omitempty"`
}

// ChatForm is one element of the /chats/import request body.
type ChatForm struct {
	Chat      *Chat    `json:"chat"`
	Meta      ChatMeta `json:"meta"`
	Pinned    bool     `json:"pinned"`
	FolderID  *string  `json:"folder_id"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

// ImportPayload is the /chats/import request body.
type ImportPayload struct {
	Chats []ChatForm `json:"chats"`
}

// ImportedChat is one element of the /chats/import response.
type ImportedChat struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updated_at"`
}

// ChatRecord is one element of the chat-listing response. Only the fields the
// dedup lookup needs are decoded.
type ChatRecord struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Meta  ChatMeta `json:"meta"`
}
