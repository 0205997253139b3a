package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/LaithMimi/blendarchatbot2/models"
)

// Material is one lesson-material document as stored in the material store
type Material map[string]interface{}

// StudentProfile is the learning context a prompt is built for
type StudentProfile struct {
	Level    string
	Week     string
	Gender   string
	Language string
}

// PromptBuilder renders the tutor system prompt
type PromptBuilder struct {
	cfg          *models.TutorPromptConfig
	historyTurns int
}

// NewPromptBuilder creates a builder over cfg. A nil cfg uses the
// process-wide models.TutorPrompt.
func NewPromptBuilder(cfg *models.TutorPromptConfig, historyTurns int) *PromptBuilder {
	if cfg == nil {
		cfg = models.TutorPrompt
	}
	if historyTurns <= 0 {
		historyTurns = 5
	}
	return &PromptBuilder{cfg: cfg, historyTurns: historyTurns}
}

// Build assembles persona, materials, language guidance and recent history
func (b *PromptBuilder) Build(profile StudentProfile, materials []Material, session *models.ChatSession) string {
	var sb strings.Builder

	replacer := strings.NewReplacer(
		"{level}", profile.Level,
		"{week}", profile.Week,
		"{gender}", profile.Gender,
		"{language}", profile.Language,
	)
	sb.WriteString(replacer.Replace(b.cfg.Base()))

	sb.WriteString(b.cfg.MaterialsHeader)
	for i, m := range materials {
		fmt.Fprintf(&sb, "Material %d: %s\n", i+1, formatMaterial(m))
	}

	sb.WriteString(b.cfg.FinalWarning)
	sb.WriteString(b.cfg.Guidance(profile.Language))

	var recent []models.Message
	if session != nil {
		recent = session.LastMessages(b.historyTurns)
	}
	if len(recent) > 0 {
		sb.WriteString("\nPREVIOUS CONVERSATION CONTEXT:\n")
		for _, msg := range recent {
			role := "You (Laith)"
			if msg.IsUser || msg.Sender == models.SenderUser {
				role = "Student"
			}
			fmt.Fprintf(&sb, "%s: %s\n", role, msg.Text)
		}
	}

	return sb.String()
}

// formatMaterial renders a material with stable key order
func formatMaterial(m Material) string {
	if content, ok := m["content"].(string); ok && content != "" {
		return content
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
