package ui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"murmur/internal/markup"
	"murmur/internal/styles"
)

var (
	boldRE = regexp.MustCompile(`\*\*(.+?)\*\*`)
	codeRE = regexp.MustCompile("`([^`]+)`")
)

func WrappedLineCount(value string, width int) int {
	if width <= 0 {
		return 1
	}
	lines := strings.Split(value, "\n")
	if len(lines) == 0 {
		return 1
	}
	count := 0
	for _, line := range lines {
		w := runewidth.StringWidth(line)
		if w == 0 {
			count++
			continue
		}
		count += (w-1)/width + 1
	}
	return count
}

func PromptPreview(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.Join(strings.Fields(s), " ")
	const maxRunes = 500
	r := []rune(s)
	if len(r) > maxRunes {
		return string(r[:maxRunes])
	}
	return s
}

// TruncateRunes cuts s to max display cells, ending with an ellipsis.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return runewidth.Truncate(s, max, "…")
}

func RelativeTime(t time.Time) string {
	d := time.Since(t)
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	}
	if d < 24*time.Hour {
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1 hr ago"
		}
		return fmt.Sprintf("%d hrs ago", hrs)
	}
	days := int(d.Hours() / 24)
	if days < 14 {
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
	weeks := days / 7
	if weeks == 1 {
		return "1 week ago"
	}
	return fmt.Sprintf("%d weeks ago", weeks)
}

// InlineMarkup renders **bold** and `code` spans for terminals without a
// markdown renderer.
func InlineMarkup(s string) string {
	s = boldRE.ReplaceAllStringFunc(s, func(m string) string {
		return styles.BoldStyle.Render(boldRE.FindStringSubmatch(m)[1])
	})
	return codeRE.ReplaceAllStringFunc(s, func(m string) string {
		return styles.CodeStyle.Render(codeRE.FindStringSubmatch(m)[1])
	})
}

func FormatUserMessage(content string, width int, isFirst bool) string {
	label := styles.UserLabelStyle.Render("YOU")
	msg := styles.UserMsgStyle.Width(width - 4).Render(content)
	if isFirst {
		return fmt.Sprintf("\n%s\n%s", label, msg)
	}
	return fmt.Sprintf("%s\n%s", label, msg)
}

// FormatBotMessage renders a reply. Thinking sections are collapsed to a
// single line under label unless showThinking is set.
func FormatBotMessage(content string, r *glamour.TermRenderer, showThinking bool, label string) string {
	thinking, answer := markup.Split(content)

	var parts []string
	parts = append(parts, styles.BotLabelStyle.Render("MURMUR"))
	if len(thinking) > 0 {
		if showThinking {
			parts = append(parts, styles.ThinkingStyle.Render("▾ "+label))
			for _, t := range thinking {
				parts = append(parts, styles.ThinkingStyle.Render(t))
			}
		} else {
			parts = append(parts, styles.ThinkingStyle.Render(fmt.Sprintf("▸ %s (%d) · ctrl+t", label, len(thinking))))
		}
	}

	body := InlineMarkup(answer)
	if r != nil {
		if out, err := r.Render(answer); err == nil {
			body = strings.TrimRight(out, "\n")
		}
	}
	parts = append(parts, styles.BotMsgStyle.Render(body))
	return strings.Join(parts, "\n")
}

func FormatSystemMessage(content string, width int) string {
	return styles.SystemMsgStyle.Width(width - 4).Render(content)
}
