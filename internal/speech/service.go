// Package speech wraps the TTS backend with call collapsing: stop and
// resend races can request audio for the same finalized text twice,
// and only one synthesis should hit the API.
package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/sync/singleflight"

	"github.com/foxai-labs/oceep/internal/logging"
)

// Synthesizer produces base64 PCM audio for text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Service deduplicates concurrent synthesis of identical text.
type Service struct {
	synth Synthesizer
	group singleflight.Group
}

// NewService wraps a synthesizer.
func NewService(s Synthesizer) *Service {
	return &Service{synth: s}
}

// Synthesize returns audio for text. Concurrent calls with the same
// text share one backend call and its result.
func (s *Service) Synthesize(ctx context.Context, text string) (string, error) {
	sum := sha256.Sum256([]byte(text))
	key := hex.EncodeToString(sum[:])

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.synth.Synthesize(ctx, text)
	})
	if shared {
		logging.Speech("synthesis shared across concurrent callers (key=%s)", key[:8])
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
