package executor

import (
	"fmt"
	"strings"

	"github.com/cpunion/threadwatch/pkg/types"
)

// DefaultPersona is the system instruction used when none is configured.
const DefaultPersona = "You are a regular member of this community. Keep responses EXTREMELY brief - max 2 sentences. Be casual, direct and concise."

// buildOPPrompt builds the prompt for a first reply to a post.
func buildOPPrompt(post types.Post, topicHint string) string {
	var sb strings.Builder
	sb.WriteString("Imagine you are the first person to reply to this post. Give your initial reaction.\n")
	if topicHint != "" {
		sb.WriteString(topicHint)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Post title: %s\n", post.Title)
	if body := strings.TrimSpace(post.Body); body != "" {
		fmt.Fprintf(&sb, "Post body: %s\n", body)
	}
	return sb.String()
}

// buildCommentPrompt frames a comment reply as joining a conversation, so the
// model answers the commenter rather than the original post.
func buildCommentPrompt(post types.Post, c types.Comment, topicHint string) string {
	var sb strings.Builder
	sb.WriteString("CONTEXT: This is a conversation:\n")
	fmt.Fprintf(&sb, "1. Someone posted: %q\n", post.Title)
	if body := strings.TrimSpace(post.Body); body != "" {
		fmt.Fprintf(&sb, "   Their post said: %q\n", body)
	}
	fmt.Fprintf(&sb, "2. Then u/%s replied saying: %q\n", c.Author, c.Body)
	fmt.Fprintf(&sb, "3. You are now replying to u/%s's comment.\n\n", c.Author)
	fmt.Fprintf(&sb, "You are casually joining this conversation. Reply to what u/%s said, not to the original post.", c.Author)
	if topicHint != "" {
		sb.WriteString("\n")
		sb.WriteString(topicHint)
	}
	return sb.String()
}
