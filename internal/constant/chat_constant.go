package constant

const (
	// Roles stored with history messages
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleSystem    = "system"

	// Title shown for a session before its first exchange lands
	ChatSessionDefaultTitle = "New Conversation"

	// Session title is truncated to this many runes of the leading query
	ChatSessionTitleMaxLen = 80
)
