package litellm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
	"github.com/Strob0t/Tasktrack/internal/port/summarizer"
	"github.com/Strob0t/Tasktrack/internal/resilience"
)

const summaryPrompt = `You review documents submitted as evidence that a task was completed.
Base every statement only on the document content. Do not infer work that is not described.

Return STRICT JSON with this shape:
{
  "summary": "2-3 sentence summary of the completed work",
  "key_points": ["3-5 key points or findings"],
  "document_type": "work_report | technical_doc | meeting_notes | proposal | other",
  "quality_assessment": "high | medium | low",
  "verification_recommendation": "approve | needs_review | reject"
}`

// Summarizer implements summarizer.Summarizer with a chat-completions call.
type Summarizer struct {
	client     *Client
	model      string
	maxContent int
}

var _ summarizer.Summarizer = (*Summarizer)(nil)

// NewSummarizer creates a summarizer that sends at most maxContent bytes
// of document text to model.
func NewSummarizer(client *Client, model string, maxContent int) *Summarizer {
	return &Summarizer{client: client, model: model, maxContent: maxContent}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize asks the model for a structured summary. A reply that is not
// the requested JSON is kept as free-text summary with a needs_review
// recommendation.
func (s *Summarizer) Summarize(ctx context.Context, req summarizer.Request) (*evidence.Summary, error) {
	content := req.Content
	if s.maxContent > 0 && len(content) > s.maxContent {
		content = content[:s.maxContent] + "\n...[truncated]"
	}
	if strings.TrimSpace(content) == "" {
		return nil, resilience.Permanent(errors.New("document has no text content"))
	}

	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: summaryPrompt},
			{Role: "user", Content: fmt.Sprintf("TASK: %s\nFILE: %s\n\nDOCUMENT CONTENT:\n%s", req.TaskTitle, req.Filename, content)},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	data, err := s.client.doRequest(ctx, http.MethodPost, "/v1/chat/completions", body)
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", req.Filename, err)
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("summarize: empty choices")
	}
	return parseSummary(resp.Choices[0].Message.Content), nil
}

// parseSummary reads the model reply, tolerating markdown code fences.
func parseSummary(out string) *evidence.Summary {
	raw := strings.TrimSpace(out)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var sum evidence.Summary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil || strings.TrimSpace(sum.Summary) == "" {
		return &evidence.Summary{
			Summary:                    strings.TrimSpace(out),
			DocumentType:               "other",
			QualityAssessment:          "medium",
			VerificationRecommendation: "needs_review",
		}
	}
	return &sum
}
