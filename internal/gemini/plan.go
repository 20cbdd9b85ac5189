package gemini

import (
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/foxai-labs/oceep/internal/types"
)

const (
	modelFlash = "gemini-3-flash-preview"
	modelPro   = "gemini-3-pro-preview"
	modelTTS   = "gemini-2.5-flash-preview-tts"
)

// mathOrCodeRe spots prompts that benefit from the code execution
// tool even on non-thinking tiers.
var mathOrCodeRe = regexp.MustCompile(`(?i)count|tính|đếm|bao nhiêu|how many|calculate|math|code|python`)

// requestPlan is the resolved provider call: which model, which
// thinking config, which tools, and the assembled system instruction.
type requestPlan struct {
	Model             string
	Thinking          *genai.ThinkingConfig
	Tools             []*genai.Tool
	SystemInstruction string
}

func thinkingTier(t types.ModelTier) bool {
	return t == types.TierSmart || t == types.TierSuper || t == types.TierDeep
}

// planRequest maps a generate request onto model, thinking, tools and
// system instruction.
func planRequest(req types.GenerateRequest) requestPlan {
	p := requestPlan{Model: modelFlash}

	useSearch := req.UseRetrieval || req.Tier == types.TierDeep

	switch {
	case req.UseRetrieval && req.Tier != types.TierDeep:
		// Grounded answers stream fastest on flash without thinking.
		p.Model = modelFlash
	case req.PersonaID == PersonaTodo || req.PersonaID == PersonaTeacherPro:
		p.Model = modelPro
		p.Thinking = &genai.ThinkingConfig{IncludeThoughts: true, ThinkingLevel: genai.ThinkingLevelHigh}
	default:
		switch req.Tier {
		case types.TierFast:
			p.Thinking = &genai.ThinkingConfig{IncludeThoughts: false}
		case types.TierSmart:
			p.Thinking = &genai.ThinkingConfig{IncludeThoughts: true, ThinkingLevel: genai.ThinkingLevelHigh}
		case types.TierSuper, types.TierDeep:
			p.Model = modelPro
			p.Thinking = &genai.ThinkingConfig{IncludeThoughts: true, ThinkingLevel: genai.ThinkingLevelHigh}
		}
	}

	if useSearch {
		p.Tools = append(p.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if thinkingTier(req.Tier) || mathOrCodeRe.MatchString(req.Prompt) {
		p.Tools = append(p.Tools, &genai.Tool{CodeExecution: &genai.ToolCodeExecution{}})
		// Execution-heavy prompts get the pro model even off-tier.
		if p.Model == modelFlash {
			p.Model = modelPro
			if p.Thinking == nil {
				p.Thinking = &genai.ThinkingConfig{IncludeThoughts: true, ThinkingLevel: genai.ThinkingLevelHigh}
			}
		}
	}

	p.SystemInstruction = buildSystemInstruction(req, useSearch)
	return p
}

// buildSystemInstruction layers the identity header, the persona (or
// special-mode override), and the protocol addons.
func buildSystemInstruction(req types.GenerateRequest, useSearch bool) string {
	var sb strings.Builder
	sb.WriteString(identityHeader(req.UserLabel))

	switch {
	case req.SpecialMode == types.ModeTeacher:
		sb.WriteString("\n" + teacherInstruction)
	case req.SpecialMode == types.ModeValentine:
		sb.WriteString("\n" + valentineInstruction)
	case req.SpecialMode == types.ModeStress:
		sb.WriteString("\n" + stressInstruction)
	case req.PersonaID == PersonaTodo:
		sb.WriteString("\n" + todoInstruction)
	case req.PersonaInstruction != "":
		sb.WriteString("\n" + req.PersonaInstruction)
	case req.TutorMode:
		sb.WriteString("\n" + tutorInstruction)
	default:
		sb.WriteString("\n" + moodInstruction(req.Mood))
	}

	if useSearch {
		sb.WriteString("\n" + searchRules)
		sb.WriteString("\n" + searchEnhancement)
	}
	if req.Tier == types.TierDeep {
		sb.WriteString("\n" + deepResearchAddon)
	}
	if thinkingTier(req.Tier) {
		sb.WriteString(thoughtProcessAddon)
	}

	return sb.String()
}
