package assistant

import (
	"regexp"

	openai "github.com/sashabaranov/go-openai"
)

const filtered = "[FILTERED]"

var (
	roleMarkerPattern  = regexp.MustCompile(`(?i)system:|as system:|system message:|<system>|assistant:|\bas\s+the\s+system\b`)
	overridePattern    = regexp.MustCompile(`(?i)ignore previous instructions|ignore your instructions|new instructions|disregard|forget`)
	fencedRolePattern  = regexp.MustCompile("(?i)```system|```assistant")
	fencedRoleReplaced = "```" + filtered
)

// sanitizeUserInput masks text that tries to pass itself off as a higher
// privileged role or to cancel the system prompt.
func sanitizeUserInput(content string) string {
	content = roleMarkerPattern.ReplaceAllLiteralString(content, filtered)
	content = overridePattern.ReplaceAllLiteralString(content, filtered)
	return fencedRolePattern.ReplaceAllLiteralString(content, fencedRoleReplaced)
}

func validRole(role string) bool {
	switch role {
	case openai.ChatMessageRoleSystem,
		openai.ChatMessageRoleUser,
		openai.ChatMessageRoleAssistant,
		openai.ChatMessageRoleTool,
		openai.ChatMessageRoleFunction:
		return true
	}
	return false
}
