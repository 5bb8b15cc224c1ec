// Package markup handles the light formatting embedded in bot replies.
package markup

import (
	"regexp"
	"strings"
)

var (
	thinkingRE = regexp.MustCompile(`(?is)<thinking>(.*?)</thinking>`)
	speechRE   = regexp.MustCompile("[*`]")
)

// Split separates the reasoning blocks of a reply from its answer text.
func Split(reply string) (thinking []string, answer string) {
	for _, m := range thinkingRE.FindAllStringSubmatch(reply, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			thinking = append(thinking, t)
		}
	}
	return thinking, StripThinking(reply)
}

func StripThinking(reply string) string {
	return strings.TrimSpace(thinkingRE.ReplaceAllString(reply, ""))
}

// ForSpeech returns the text of reply that should be read aloud.
func ForSpeech(reply string) string {
	return strings.TrimSpace(speechRE.ReplaceAllString(StripThinking(reply), ""))
}
