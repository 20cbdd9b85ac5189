package gemini

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/foxai-labs/oceep/internal/types"
)

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	c, err := NewClient(Config{APIKeys: []string{"k"}})
	require.NoError(t, err)
	assert.Equal(t, 5, c.maxAttempts(), "one key still gets five attempts")

	c, err = NewClient(Config{APIKeys: []string{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, 9, c.maxAttempts())
}

func TestConvertPart(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		frag := convertPart(&genai.Part{Text: "hello"})
		assert.Equal(t, types.TextFragment{Text: "hello"}, frag)
	})

	t.Run("thought", func(t *testing.T) {
		frag := convertPart(&genai.Part{Text: "mull it over", Thought: true})
		assert.Equal(t, types.ThoughtFragment{Text: "mull it over"}, frag)
	})

	t.Run("executable code lowercases language", func(t *testing.T) {
		frag := convertPart(&genai.Part{ExecutableCode: &genai.ExecutableCode{
			Code:     "print(1)",
			Language: genai.LanguagePython,
		}})
		assert.Equal(t, types.ExecutableCodeFragment{Language: "python", Code: "print(1)"}, frag)
	})

	t.Run("execution result outcome", func(t *testing.T) {
		frag := convertPart(&genai.Part{CodeExecutionResult: &genai.CodeExecutionResult{
			Outcome: genai.OutcomeOK,
			Output:  "1\n",
		}})
		assert.Equal(t, types.ExecutionResultFragment{OK: true, Output: "1\n"}, frag)

		frag = convertPart(&genai.Part{CodeExecutionResult: &genai.CodeExecutionResult{
			Outcome: genai.OutcomeFailed,
			Output:  "boom",
		}})
		assert.Equal(t, types.ExecutionResultFragment{OK: false, Output: "boom"}, frag)
	})

	t.Run("empty part dropped", func(t *testing.T) {
		assert.Nil(t, convertPart(&genai.Part{}))
		assert.Nil(t, convertPart(nil))
	})
}

func TestConvertCitations(t *testing.T) {
	gm := &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://a.example", Title: "A"}},
			{Web: &genai.GroundingChunkWeb{URI: ""}}, // no uri, dropped
			nil,
			{Web: &genai.GroundingChunkWeb{URI: "https://b.example", Title: "B"}},
		},
	}

	cites := convertCitations(gm)
	require.Len(t, cites, 2)
	assert.Equal(t, "https://a.example", cites[0].URI)
	assert.Equal(t, "B", cites[1].Title)

	assert.Nil(t, convertCitations(nil))
}

func TestBuildContents(t *testing.T) {
	req := types.GenerateRequest{
		History: []types.Message{
			{Role: types.RoleUser, Content: "hi"},
			{Role: types.RoleModel, Content: "hello"},
			{Role: types.RoleUser, Content: "", Attachments: []string{"data:image/png;base64,aGk="}},
		},
		Prompt: "what is in the image?",
	}

	contents := buildContents(req)
	require.Len(t, contents, 4)

	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)

	// Attachment message: inline data part then a space placeholder.
	require.Len(t, contents[2].Parts, 2)
	require.NotNil(t, contents[2].Parts[0].InlineData)
	assert.Equal(t, "image/png", contents[2].Parts[0].InlineData.MIMEType)
	assert.Equal(t, []byte("hi"), contents[2].Parts[0].InlineData.Data)
	assert.Equal(t, " ", contents[2].Parts[1].Text)

	// The new prompt is the final user content.
	last := contents[3]
	assert.Equal(t, genai.RoleUser, last.Role)
	assert.Equal(t, "what is in the image?", last.Parts[0].Text)
}

func TestBuildContentsSkipsBadAttachments(t *testing.T) {
	req := types.GenerateRequest{
		Prompt:      "hi",
		Attachments: []string{"not-a-data-url", "data:image/png;base64,%%%bad"},
	}

	contents := buildContents(req)
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 1, "both attachments dropped")
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(genai.APIError{Code: 429, Message: "slow down"}))
	assert.True(t, IsRateLimited(errors.New("RESOURCE_EXHAUSTED: per-minute quota")))
	assert.True(t, IsRateLimited(errors.New("http 429")))
	assert.False(t, IsRateLimited(errors.New("connection refused")))
	assert.False(t, IsRateLimited(nil))
}
