package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/foxai-labs/oceep/internal/logging"
)

const ttsVoice = "Gacrux"

// Synthesize turns text into base64-encoded PCM audio. It retries
// across the key ring with a fixed delay; TTS quota trips more easily
// than text generation.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	attempts := c.maxAttempts()
	timer := logging.StartTimer(logging.CategorySpeech, "synthesize")
	defer timer.Stop()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		c.rateLimit()

		audio, err := c.synthesizeOnce(ctx, text)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.SpeechWarn("synthesize attempt %d/%d failed: %v", attempt+1, attempts, err)
	}

	return "", fmt.Errorf("speech synthesis failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) synthesizeOnce(ctx context.Context, text string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client, err := genai.NewClient(attemptCtx, &genai.ClientConfig{APIKey: c.ring.Next()})
	if err != nil {
		return "", fmt.Errorf("failed to create client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: ttsVoice},
			},
		},
	}
	contents := []*genai.Content{{
		Parts: []*genai.Part{genai.NewPartFromText(text)},
	}}

	resp, err := client.Models.GenerateContent(attemptCtx, modelTTS, contents, cfg)
	if err != nil {
		return "", err
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
			}
		}
	}

	return "", errors.New("no audio data in response")
}
