// Package gemini is the backend boundary. It maps generate requests
// onto Gemini API calls and converts provider parts into the closed
// fragment variant exactly once; nothing above this package sees
// provider payloads.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/foxai-labs/oceep/internal/logging"
	"github.com/foxai-labs/oceep/internal/types"
)

// ErrNoAPIKey means the client was built without any key.
var ErrNoAPIKey = errors.New("no API key configured")

// Config holds Gemini client configuration.
type Config struct {
	// APIKeys is the rotation pool; each attempt takes the next key.
	APIKeys []string

	// Timeout bounds a single generation attempt.
	Timeout time.Duration

	// MinRequestGap spaces consecutive API calls.
	MinRequestGap time.Duration
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       120 * time.Second,
		MinRequestGap: 100 * time.Millisecond,
	}
}

// Client talks to the Gemini API with key rotation and retries.
type Client struct {
	ring    *keyRing
	timeout time.Duration
	gap     time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a Gemini client.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, ErrNoAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MinRequestGap <= 0 {
		cfg.MinRequestGap = 100 * time.Millisecond
	}
	return &Client{
		ring:    newKeyRing(cfg.APIKeys),
		timeout: cfg.Timeout,
		gap:     cfg.MinRequestGap,
	}, nil
}

// maxAttempts gives every key a few chances without spinning forever
// on a single-key setup.
func (c *Client) maxAttempts() int {
	n := c.ring.Len() * 3
	if n < 5 {
		n = 5
	}
	return n
}

// rateLimit enforces minimum spacing between API calls.
func (c *Client) rateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if since := time.Since(c.lastRequest); since < c.gap {
		time.Sleep(c.gap - since)
	}
	c.lastRequest = time.Now()
}

// Generate streams fragments for one request. Both channels close when
// the run ends; at most one error is sent. The consumer owns pacing:
// the content channel is buffered and the producer blocks when it
// fills, so abandoned runs must keep draining.
func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (<-chan types.Fragment, <-chan error) {
	frags := make(chan types.Fragment, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(frags)
		defer close(errs)
		if err := c.generate(ctx, req, frags); err != nil {
			errs <- err
		}
	}()

	return frags, errs
}

func (c *Client) generate(ctx context.Context, req types.GenerateRequest, out chan<- types.Fragment) error {
	plan := planRequest(req)
	contents := buildContents(req)
	attempts := c.maxAttempts()

	logging.API("generate: model=%s tier=%s search=%v tools=%d", plan.Model, req.Tier, req.UseRetrieval, len(plan.Tools))
	timer := logging.StartTimer(logging.CategoryAPI, "generate stream")
	defer timer.Stop()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			// Longer backoff when the quota is the problem.
			wait := time.Second
			if IsRateLimited(lastErr) {
				wait = time.Duration(attempt) * 1500 * time.Millisecond
			}
			logging.APIWarn("generate attempt %d/%d failed: %v (retrying in %v)", attempt, attempts, lastErr, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		c.rateLimit()

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		emitted, err := c.streamOnce(attemptCtx, plan, contents, out)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		if emitted {
			// Fragments already reached the consumer; restarting would
			// duplicate content, so surface the error instead.
			return fmt.Errorf("stream interrupted: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("generate failed after %d attempts: %w", attempts, lastErr)
}

// streamOnce runs a single attempt against the next key. It reports
// whether any fragment was already delivered downstream.
func (c *Client) streamOnce(ctx context.Context, plan requestPlan, contents []*genai.Content, out chan<- types.Fragment) (bool, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.ring.Next()})
	if err != nil {
		return false, fmt.Errorf("failed to create client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		Tools:          plan.Tools,
		ThinkingConfig: plan.Thinking,
	}
	if plan.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(plan.SystemInstruction)},
		}
	}

	emitted := false
	send := func(f types.Fragment) error {
		select {
		case out <- f:
			emitted = true
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for resp, err := range client.Models.GenerateContentStream(ctx, plan.Model, contents, cfg) {
		if err != nil {
			return emitted, err
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		cand := resp.Candidates[0]

		if cites := convertCitations(cand.GroundingMetadata); len(cites) > 0 {
			if err := send(types.CitationsFragment{Citations: cites}); err != nil {
				return emitted, err
			}
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			frag := convertPart(part)
			if frag == nil {
				continue
			}
			if err := send(frag); err != nil {
				return emitted, err
			}
		}
	}

	return emitted, nil
}

// convertPart classifies one provider part into the fragment variant.
// Unrecognized parts are dropped here, at the boundary.
func convertPart(p *genai.Part) types.Fragment {
	if p == nil {
		return nil
	}
	switch {
	case p.ExecutableCode != nil:
		lang := strings.ToLower(string(p.ExecutableCode.Language))
		if lang == "language_unspecified" {
			lang = ""
		}
		return types.ExecutableCodeFragment{Language: lang, Code: p.ExecutableCode.Code}
	case p.CodeExecutionResult != nil:
		return types.ExecutionResultFragment{
			OK:     p.CodeExecutionResult.Outcome == genai.OutcomeOK,
			Output: p.CodeExecutionResult.Output,
		}
	case p.Thought && p.Text != "":
		return types.ThoughtFragment{Text: p.Text}
	case p.Text != "":
		return types.TextFragment{Text: p.Text}
	}
	return nil
}

// convertCitations keeps only grounding chunks with a web URI, in the
// provider's order so 1-indexed markers stay aligned.
func convertCitations(gm *genai.GroundingMetadata) []types.Citation {
	if gm == nil {
		return nil
	}
	var cites []types.Citation
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		cites = append(cites, types.Citation{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return cites
}

var dataURLRe = regexp.MustCompile(`^data:([^;]+);base64,(.+)$`)

// buildContents converts history plus the new prompt into provider
// contents. Attachments ride as inline data; malformed data URLs are
// skipped. Empty text becomes a single space because the API rejects
// empty parts.
func buildContents(req types.GenerateRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)

	for _, msg := range req.History {
		role := genai.RoleUser
		if msg.Role == types.RoleModel {
			role = genai.RoleModel
		}
		parts := attachmentParts(msg.Attachments)
		parts = append(parts, genai.NewPartFromText(orSpace(msg.Content)))
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	parts := attachmentParts(req.Attachments)
	parts = append(parts, genai.NewPartFromText(orSpace(req.Prompt)))
	contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})

	return contents
}

func attachmentParts(attachments []string) []*genai.Part {
	var parts []*genai.Part
	for _, att := range attachments {
		m := dataURLRe.FindStringSubmatch(att)
		if m == nil {
			logging.APIWarn("skipping attachment that is not a data URL")
			continue
		}
		data, err := base64.StdEncoding.DecodeString(m[2])
		if err != nil {
			logging.APIWarn("skipping attachment with invalid base64: %v", err)
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(data, m[1]))
	}
	return parts
}

func orSpace(s string) string {
	if s == "" {
		return " "
	}
	return s
}

// IsRateLimited reports whether err looks like a quota rejection.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "quota")
}
