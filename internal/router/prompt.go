package router

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dohr-michael/pokus/internal/sessions"
	"github.com/dohr-michael/pokus/internal/tasks"
)

const systemPrompt = `You are a strict request router. You pick which specialized task handler
should answer the user's latest message. Return JSON only, no prose.`

// BuildPrompt renders the classification prompt for req.
func BuildPrompt(req *Request) string {
	var b strings.Builder

	b.WriteString("Available handlers:\n")
	for _, t := range req.Tasks {
		fmt.Fprintf(&b, "- id=%s name=%q\n  description: %s\n", t.ID, t.DisplayName, t.Description)
		if len(t.Keywords) > 0 {
			fmt.Fprintf(&b, "  keywords: %s\n", strings.Join(t.Keywords, ", "))
		}
	}
	fmt.Fprintf(&b, "- id=%s\n  description: greetings, questions about your capabilities, anything no handler above covers\n\n",
		tasks.DirectResponseID)

	b.WriteString("JSON schema:\n")
	fmt.Fprintf(&b, `{"chosen_task_id":"one of: %s","rationale":"short","summary":"one line describing what the user wants"}`+"\n\n",
		strings.Join(allowedIDs(req.Tasks), "|"))

	b.WriteString("Rules:\n")
	b.WriteString("- chosen_task_id must be exactly one of the ids listed above.\n")
	b.WriteString("- If the request relates to a handler's domain, even loosely, choose that handler.\n")
	fmt.Fprintf(&b, "- Use %s only when no handler fits.\n", tasks.DirectResponseID)
	if req.LastActiveHandler != "" {
		fmt.Fprintf(&b, "- The previous turn was handled by %q. Follow-ups (\"yes\", \"that one\", answers to its questions) belong to the same handler.\n",
			req.LastActiveHandler)
	}
	if req.FollowUp {
		fmt.Fprintf(&b, "- The latest message looks like a short follow-up: prefer %q unless it clearly asks for something else.\n",
			req.LastActiveHandler)
	}
	b.WriteString("\n")

	if req.EarlierSummary != "" {
		b.WriteString("Earlier conversation (summarized):\n")
		b.WriteString(req.EarlierSummary)
		b.WriteString("\n\n")
	}
	if len(req.Context) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range req.Context {
			fmt.Fprintf(&b, "%s: %s\n", roleLabel(m.Role), Snippet(m.Content, req.SnippetChars))
		}
		b.WriteString("\n")
	}

	b.WriteString("Latest user message:\n")
	b.WriteString(req.Message)
	b.WriteString("\n")
	return b.String()
}

func allowedIDs(routing []tasks.RoutingInfo) []string {
	ids := make([]string, 0, len(routing)+1)
	for _, t := range routing {
		ids = append(ids, t.ID)
	}
	return append(ids, tasks.DirectResponseID)
}

func roleLabel(r sessions.Role) string {
	switch r {
	case sessions.RoleUser:
		return "User"
	case sessions.RoleSystem:
		return "System"
	default:
		return "Assistant"
	}
}

// Snippet truncates s to n runes, marking the cut with "...".
func Snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// summarizeEarlier digests messages that fell out of the window. It is
// deterministic so replays produce identical prompts.
func summarizeEarlier(msgs []sessions.Message, snippetChars int) string {
	if len(msgs) == 0 {
		return ""
	}
	var users []string
	for _, m := range msgs {
		if m.Role == sessions.RoleUser {
			users = append(users, m.Content)
		}
	}
	const keep = 3
	if len(users) > keep {
		users = users[len(users)-keep:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d earlier messages.", len(msgs))
	if len(users) > 0 {
		b.WriteString(" Earlier user requests:")
		for _, u := range users {
			fmt.Fprintf(&b, "\n- %s", Snippet(u, snippetChars))
		}
	}
	return b.String()
}

// ParseVerdict extracts the JSON verdict from raw oracle output. Output
// without a JSON object, or with an empty id, is a classification failure.
func ParseVerdict(text string) (*Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("%w: json object not found", ErrClassification)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	if v.TaskID == "" {
		return nil, fmt.Errorf("%w: missing chosen_task_id", ErrClassification)
	}
	return &v, nil
}
