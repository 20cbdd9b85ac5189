package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/foxai-labs/oceep/internal/logging"
)

// ShouldUseRetrieval asks a cheap deterministic model whether the
// prompt needs live search. Any failure means "no": a missed search is
// a worse-grounded answer, a false error would kill the whole send.
func (c *Client) ShouldUseRetrieval(ctx context.Context, prompt string) bool {
	c.rateLimit()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.ring.Next()})
	if err != nil {
		logging.APIWarn("gatekeeper: client creation failed, defaulting to no search: %v", err)
		return false
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(gatekeeperInstruction)},
		},
		Temperature:     genai.Ptr(float32(0)),
		MaxOutputTokens: 5,
	}
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{genai.NewPartFromText(fmt.Sprintf("Query: %q", prompt))},
	}}

	resp, err := client.Models.GenerateContent(ctx, modelFlash, contents, cfg)
	if err != nil {
		logging.APIWarn("gatekeeper check failed, defaulting to no search: %v", err)
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Text()))
	logging.APIDebug("gatekeeper answered %q", answer)
	return strings.Contains(answer, "yes")
}
