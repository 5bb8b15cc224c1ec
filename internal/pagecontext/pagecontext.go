// Package pagecontext builds the system context sent with every generation
// call from a reference document.
package pagecontext

import (
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MaxRunes bounds the document text embedded in the system context.
const MaxRunes = 20000

const persona = `You are a voice assistant that answers questions about the reference document below.

Reference document:
%s

Instructions:
1. Be professional, concise and helpful. Answers are read aloud, so keep them short.
2. If the answer is in the document, use it.
3. If the answer is not in the document, say politely that you can only answer about its content.
4. Reply in the language the user writes in (usually Spanish or English).`

const thinkingInstruction = `5. Before answering, briefly analyze the user's intent and the relevant parts of the document inside <thinking></thinking> tags, then give the answer after the closing tag.`

var strict = bluemonday.StrictPolicy()

// Extract returns the visible text of doc, which may be HTML or plain text.
// Markup is dropped, whitespace collapsed and the result capped at MaxRunes.
func Extract(doc string) string {
	text := html.UnescapeString(strict.Sanitize(doc))
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > MaxRunes {
		text = string(r[:MaxRunes])
	}
	return text
}

// Load reads and extracts the document at path. An empty path yields an
// empty document.
func Load(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading context document: %w", err)
	}
	return Extract(string(raw)), nil
}

// SystemPrompt wraps the extracted document in the assistant instructions.
func SystemPrompt(document string, thinking bool) string {
	prompt := fmt.Sprintf(persona, document)
	if thinking {
		prompt += "\n" + thinkingInstruction
	}
	return prompt
}
