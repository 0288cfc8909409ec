package router

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ModelClassifier asks a chat model to classify the request.
type ModelClassifier struct {
	model model.BaseChatModel
}

// NewModelClassifier wraps a chat model as a classification oracle.
func NewModelClassifier(m model.BaseChatModel) *ModelClassifier {
	return &ModelClassifier{model: m}
}

// Classify renders the prompt, calls the model, and parses its JSON verdict.
func (c *ModelClassifier) Classify(ctx context.Context, req *Request) (*Verdict, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(BuildPrompt(req)),
	}

	resp, err := c.model.Generate(ctx, msgs, model.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty model response", ErrClassification)
	}
	return ParseVerdict(resp.Content)
}
