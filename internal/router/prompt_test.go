package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/pokus/internal/sessions"
	"github.com/dohr-michael/pokus/internal/tasks"
)

func TestBuildPrompt(t *testing.T) {
	req := &Request{
		Tasks: []tasks.RoutingInfo{
			{ID: "alpha", DisplayName: "Alpha", Description: "alpha things", Keywords: []string{"foo"}},
		},
		Context: []sessions.Message{
			{Role: sessions.RoleUser, Content: strings.Repeat("x", 300)},
			{Role: sessions.RoleAssistant, Content: "short"},
		},
		Message:      "yes",
		SnippetChars: 200,
	}
	p := BuildPrompt(req)

	for _, want := range []string{
		"id=alpha", "keywords: foo", "id=direct_response", "alpha|direct_response",
		"User: " + strings.Repeat("x", 200) + "...", "Assistant: short", "Latest user message:\nyes",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q\n%s", want, p)
		}
	}
	if strings.Contains(p, strings.Repeat("x", 201)) {
		t.Error("snippet not truncated")
	}
	if strings.Contains(p, "previous turn") {
		t.Error("continuity rule without an active handler")
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("  héllo  ", 3); got != "hél..." {
		t.Errorf("Snippet = %q", got)
	}
	if got := Snippet("abc", 3); got != "abc" {
		t.Errorf("Snippet = %q", got)
	}
}

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict("```json\n{\"chosen_task_id\":\"alpha\",\"rationale\":\"r\",\"summary\":\"s\"}\n```")
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.TaskID != "alpha" || v.Rationale != "r" || v.Summary != "s" {
		t.Errorf("verdict = %+v", v)
	}

	for _, bad := range []string{"alpha", "{}", "{not json}", `{"rationale":"x"}`, ""} {
		if _, err := ParseVerdict(bad); !errors.Is(err, ErrClassification) {
			t.Errorf("ParseVerdict(%q) = %v, want ErrClassification", bad, err)
		}
	}
}

type scriptedModel struct {
	reply string
	err   error
	got   []*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.got = in
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestModelClassifier(t *testing.T) {
	m := &scriptedModel{reply: `{"chosen_task_id":"beta","rationale":"bar mentioned"}`}
	e := NewEngine(testRegistry(t), NewModelClassifier(m), Options{})

	d := e.Decide(context.Background(), userMsgs("bar please"), "")
	if d.TaskID != "beta" {
		t.Errorf("Decide = %+v, want beta", d)
	}
	if len(m.got) != 2 || m.got[0].Role != schema.System {
		t.Errorf("model input = %+v", m.got)
	}

	m.reply = "I think beta is best"
	if d := e.Decide(context.Background(), userMsgs("bar"), ""); !d.IsFallback() {
		t.Errorf("unparseable output should fall back, got %+v", d)
	}
}
