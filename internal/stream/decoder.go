// Package stream folds backend fragments into renderable message
// content. The decoder owns the delimiter protocol: reasoning is
// wrapped in <think> tags, executed code becomes a fenced block, and
// execution results become labeled quote blocks. Downstream extraction
// operates on the decoded string only, never on raw fragments.
package stream

import (
	"fmt"
	"strings"

	"github.com/foxai-labs/oceep/internal/logging"
	"github.com/foxai-labs/oceep/internal/types"
)

// Reasoning span delimiters. The extractor in internal/blocks matches
// these exact strings.
const (
	ThoughtOpen  = "<think>"
	ThoughtClose = "</think>"
)

// Decoder accumulates fragments into content. It is a pure fold: the
// output depends only on the concatenated fragment sequence, so any
// rechunking of the same stream decodes to the same string. Not safe
// for concurrent use; each generation run owns one decoder.
type Decoder struct {
	content   strings.Builder
	citations []types.Citation
	inThought bool
	sawClose  bool

	// textTail holds the last few bytes of text so a literal close
	// delimiter split across fragment boundaries is still seen.
	textTail string
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends one fragment to the decoded content.
func (d *Decoder) Feed(frag types.Fragment) {
	switch f := frag.(type) {
	case types.ThoughtFragment:
		if !d.inThought {
			d.content.WriteString(ThoughtOpen)
			d.inThought = true
		}
		d.content.WriteString(f.Text)

	case types.TextFragment:
		d.closeThought()
		d.content.WriteString(f.Text)
		// Thinking-capable tiers without native thought parts emit the
		// delimiters as plain text, per the prompt protocol. The check
		// spans fragment boundaries: detection must not depend on how
		// the stream was chunked.
		window := d.textTail + f.Text
		if strings.Contains(window, ThoughtClose) {
			d.sawClose = true
		}
		d.textTail = tailOf(window, len(ThoughtClose)-1)

	case types.ExecutableCodeFragment:
		d.closeThought()
		lang := f.Language
		if lang == "" {
			lang = "python"
		}
		fmt.Fprintf(&d.content, "\n```%s\n%s\n```\n", lang, f.Code)

	case types.ExecutionResultFragment:
		d.closeThought()
		label := "Error"
		if f.OK {
			label = "Output"
		}
		fmt.Fprintf(&d.content, "\n> **%s:**\n```\n%s\n```\n", label, f.Output)

	case types.CitationsFragment:
		// Replace, don't merge: the backend sends the full set each
		// time and the last one wins.
		d.citations = append([]types.Citation(nil), f.Citations...)

	default:
		logging.StreamDebug("decoder: ignoring unknown fragment %T", frag)
	}
}

func tailOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func (d *Decoder) closeThought() {
	if d.inThought {
		d.content.WriteString(ThoughtClose)
		d.inThought = false
		d.sawClose = true
	}
}

// Close terminates an unterminated reasoning span. Call once when the
// stream ends; further Feed calls are undefined.
func (d *Decoder) Close() {
	d.closeThought()
}

// Content returns the content decoded so far.
func (d *Decoder) Content() string {
	return d.content.String()
}

// Citations returns the current citation set (last CitationsFragment
// observed), or nil if none arrived.
func (d *Decoder) Citations() []types.Citation {
	if d.citations == nil {
		return nil
	}
	return append([]types.Citation(nil), d.citations...)
}

// ThoughtClosed reports whether a reasoning span has completed, either
// via a non-thought fragment or a literal close delimiter in text. The
// orchestrator samples this to record thinking duration exactly once.
func (d *Decoder) ThoughtClosed() bool {
	return d.sawClose
}
