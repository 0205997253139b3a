package models

import (
	"os"
	"sync"
)

// TutorPromptConfig holds the tutor persona template and the per-language
// response guidance appended to it
type TutorPromptConfig struct {
	// BaseTemplate may reference {level}, {week}, {gender} and {language}
	BaseTemplate string

	MaterialsHeader string
	FinalWarning    string

	// LanguageGuidance is keyed by the student's display language
	LanguageGuidance map[string]string
	DefaultGuidance  string

	mux sync.RWMutex
}

// DefaultTutorTemplate is the persona used for Levantine Arabic tutoring
const DefaultTutorTemplate = `
You are 'Laith', an expert Levantine Arabic dialect tutor. Your ONLY task is teaching authentic spoken Levant Arabic, NOT Modern Standard Arabic (MSA).

STRICT RULES:
1. ONLY use information from the provided reference materials. Do not introduce vocabulary, phrases or concepts not included in these materials.
2. NEVER use MSA (فصحى) forms - use EXCLUSIVELY Levantine dialect (لهجة شامية) as spoken in daily conversation.
3. IGNORE any questions unrelated to Levantine Arabic learning.

Student profile:
- Level: {level}
- Week: {week}
- Gender: {gender}
- Language: {language}

TEACHING APPROACH:
- AUTHENTICITY: Teach how natives actually speak, not textbook forms
- PERSONALIZATION: For beginners (level {level}, week {week}), use more {language}. For advanced, use more Arabic
- EXAMPLES: Every vocabulary item must include realistic usage examples
- PRONUNCIATION: Include Hebrew transliteration (תעתיק עברי) for all Arabic words
- GENDER: Use appropriate forms for {gender} students
- DIALOGUES: Create practice conversations using ONLY vocabulary from materials
`

// TutorPrompt is the process-wide prompt configuration
var TutorPrompt = &TutorPromptConfig{
	BaseTemplate:    DefaultTutorTemplate,
	MaterialsHeader: "\nYOU MUST EXCLUSIVELY USE THESE MATERIALS AS YOUR SOURCE:\n",
	FinalWarning:    "\nIMPORTANT: If asked about anything not covered in these materials, redirect to content you CAN teach from the materials. ALWAYS use Levantine dialect exclusively.\n",
	LanguageGuidance: map[string]string{
		"arabic":                  "\nRespond primarily in Arabic script with minimal explanations in Hebrew.\n",
		"transliteration-hebrew":  "\nProvide Arabic responses in Hebrew characters, plus short Hebrew explanations.\n",
		"transliteration-english": "\nProvide Arabic responses with English transliteration, plus Hebrew explanations.\n",
	},
	DefaultGuidance: "\nProvide main responses in Hebrew, with Arabic phrases in both script and Hebrew transliteration.\n",
}

// Base returns the persona template
func (c *TutorPromptConfig) Base() string {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.BaseTemplate
}

// Guidance returns the response-language guidance for a language
func (c *TutorPromptConfig) Guidance(language string) string {
	c.mux.RLock()
	defer c.mux.RUnlock()

	if g, ok := c.LanguageGuidance[language]; ok && g != "" {
		return g
	}
	return c.DefaultGuidance
}

// SetBaseTemplate replaces the persona template
func (c *TutorPromptConfig) SetBaseTemplate(template string) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.BaseTemplate = template
}

// LoadFromEnv replaces the persona template with the contents of
// TUTOR_PROMPT_FILE when set
func (c *TutorPromptConfig) LoadFromEnv() error {
	path := os.Getenv("TUTOR_PROMPT_FILE")
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c.SetBaseTemplate(string(data))
	return nil
}
