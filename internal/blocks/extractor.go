// Package blocks turns decoded message content into its renderable
// parts: prose, the collapsed reasoning span, executed code, rich
// cards, and rewritten citation markers. Extraction is a pure function
// of the content string so it can re-run on every render tick.
package blocks

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/foxai-labs/oceep/internal/logging"
	"github.com/foxai-labs/oceep/internal/stream"
	"github.com/foxai-labs/oceep/internal/types"
)

const (
	cardMarker = ":::"
	codeFence  = "```python"
	fenceEnd   = "```"

	// codePlaceholder stands in for code lifted out of the reasoning
	// text so it is not shown twice.
	codePlaceholder = "[Code Execution...]"
)

// Extraction is everything derived from one message's content.
type Extraction struct {
	// Prose is the visible answer: reasoning spans and card blocks
	// removed, citation markers rewritten as links.
	Prose string

	// Reasoning is the joined reasoning span text with executed code
	// replaced by a placeholder.
	Reasoning string

	// ExecutedCode is the code lifted out of the reasoning spans,
	// segments joined by blank lines.
	ExecutedCode string

	Cards Cards
}

// Extract parses content in a single left-to-right pass per concern.
// A malformed card drops only that card; everything else survives.
func Extract(content string, citations []types.Citation) Extraction {
	reasoning, prose := splitReasoning(content)
	reasoning, code := liftExecutedCode(reasoning)
	prose, cards := scanCards(prose)
	prose = RewriteCitations(strings.TrimSpace(prose), citations)

	return Extraction{
		Prose:        strings.TrimSpace(prose),
		Reasoning:    reasoning,
		ExecutedCode: code,
		Cards:        cards,
	}
}

// StripReasoning removes reasoning spans (including their delimiters)
// and trims the result. The speech side task reads this.
func StripReasoning(content string) string {
	_, prose := splitReasoning(content)
	return strings.TrimSpace(prose)
}

// HasTodo reports whether content carries a todo card block. Messages
// with a todo card skip speech synthesis.
func HasTodo(content string) bool {
	return strings.Contains(content, cardMarker+string(KindTodo))
}

// splitReasoning separates <think> spans from the rest. A span left
// open at end of content extends to the end. Spans are joined with
// blank lines and trimmed.
func splitReasoning(s string) (reasoning, prose string) {
	var spans []string
	var rest strings.Builder
	for {
		i := strings.Index(s, stream.ThoughtOpen)
		if i < 0 {
			rest.WriteString(s)
			break
		}
		rest.WriteString(s[:i])
		s = s[i+len(stream.ThoughtOpen):]
		j := strings.Index(s, stream.ThoughtClose)
		if j < 0 {
			spans = append(spans, s)
			break
		}
		spans = append(spans, s[:j])
		s = s[j+len(stream.ThoughtClose):]
	}
	return strings.TrimSpace(strings.Join(spans, "\n\n")), rest.String()
}

// liftExecutedCode pulls ```python fences out of the reasoning text so
// the code renders in its own panel instead of inside the collapsed
// reasoning view.
func liftExecutedCode(reasoning string) (string, string) {
	if !strings.Contains(reasoning, codeFence) {
		return reasoning, ""
	}

	var segments []string
	var out strings.Builder
	s := reasoning
	for {
		i := strings.Index(s, codeFence)
		if i < 0 {
			out.WriteString(s)
			break
		}
		body := s[i+len(codeFence):]
		j := strings.Index(body, fenceEnd)
		if j < 0 {
			// Unterminated fence stays where it is.
			out.WriteString(s)
			break
		}
		segments = append(segments, body[:j])
		out.WriteString(s[:i])
		out.WriteString(codePlaceholder)
		s = body[j+len(fenceEnd):]
	}

	if len(segments) == 0 {
		return reasoning, ""
	}
	return strings.TrimSpace(out.String()), strings.TrimSpace(strings.Join(segments, "\n\n"))
}

// scanCards removes every well-formed card block from the prose and
// folds it into Cards. Unknown kinds and unterminated blocks are left
// in the prose untouched.
func scanCards(s string) (string, Cards) {
	var cards Cards
	if !strings.Contains(s, cardMarker) {
		return s, cards
	}

	var out strings.Builder
	for {
		i := strings.Index(s, cardMarker)
		if i < 0 {
			out.WriteString(s)
			break
		}
		rest := s[i+len(cardMarker):]
		k := 0
		for k < len(rest) && rest[k] >= 'a' && rest[k] <= 'z' {
			k++
		}
		kind := Kind(rest[:k])
		if !knownKinds[kind] {
			// Not a card opener; emit the marker and keep scanning.
			out.WriteString(s[:i+len(cardMarker)])
			s = rest
			continue
		}
		body := rest[k:]
		j := strings.Index(body, cardMarker)
		if j < 0 {
			out.WriteString(s)
			break
		}
		out.WriteString(s[:i])
		cards.reduce(kind, body[:j])
		s = body[j+len(cardMarker):]
	}
	return out.String(), cards
}

// reduce parses one card payload and folds it in: singular kinds are
// last-wins, locations accumulate.
func (c *Cards) reduce(kind Kind, payload string) {
	raw := trimPayloadFences(payload)
	switch kind {
	case KindTodo:
		var d TodoData
		if parseCard(kind, raw, &d) {
			c.Todo = &d
		}
	case KindWeather:
		var d WeatherData
		if parseCard(kind, raw, &d) {
			c.Weather = &d
		}
	case KindStock:
		var d StockData
		if parseCard(kind, raw, &d) {
			c.Stock = &d
		}
	case KindCurrency:
		var d CurrencyData
		if parseCard(kind, raw, &d) {
			c.Currency = &d
		}
	case KindSport:
		var d SportData
		if parseCard(kind, raw, &d) {
			c.Sport = &d
		}
	case KindFlight:
		var d FlightData
		if parseCard(kind, raw, &d) {
			c.Flight = &d
		}
	case KindCalc:
		var d CalcData
		if parseCard(kind, raw, &d) {
			c.Calc = &d
		}
	case KindTime:
		var d TimeData
		if parseCard(kind, raw, &d) {
			c.Time = &d
		}
	case KindLocation:
		var d LocationData
		if parseCard(kind, raw, &d) {
			c.Locations = append(c.Locations, d)
		}
	}
}

func parseCard(kind Kind, raw string, v any) bool {
	if err := unmarshalCard([]byte(raw), v); err != nil {
		logging.BlocksWarn("dropping malformed %s card: %v", kind, err)
		return false
	}
	return true
}

// unmarshalCard parses strictly first, then once more after repairing
// the JSON. Models sometimes emit trailing commas or bare keys.
func unmarshalCard(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// trimPayloadFences strips a markdown code fence the model wrapped the
// payload in despite instructions.
func trimPayloadFences(payload string) string {
	s := strings.TrimSpace(payload)
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		s = strings.TrimLeft(rest, " \t\r\n")
	} else if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = strings.TrimLeft(rest, " \t\r\n")
	}
	s = strings.TrimSuffix(s, "```")
	return s
}

// =============================================================================
// CITATIONS
// =============================================================================

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// RewriteCitations replaces [n] markers with [[n]](uri) links. Markers
// are 1-indexed into citations. With no citations, or for markers out
// of range or pointing at a citation without a URI, the text passes
// through unchanged.
func RewriteCitations(text string, citations []types.Citation) string {
	if len(citations) == 0 {
		return text
	}
	return citationRe.ReplaceAllStringFunc(text, func(m string) string {
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || n < 1 || n > len(citations) {
			return m
		}
		c := citations[n-1]
		if c.URI == "" {
			return m
		}
		return fmt.Sprintf("[[%d]](%s)", n, c.URI)
	})
}
