package styles

import "github.com/charmbracelet/lipgloss"

// Theme defines a complete color scheme for the application
type Theme struct {
	// Core colors
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color

	// Text colors
	TextPrimary   lipgloss.Color
	TextSecondary lipgloss.Color
	TextMuted     lipgloss.Color

	// Semantic colors
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color

	Border lipgloss.Color

	// Speech indicators
	Listening lipgloss.Color
	Speaking  lipgloss.Color
	Paused    lipgloss.Color
}

// DarkTheme is the dark mode color scheme
var DarkTheme = Theme{
	Primary:   lipgloss.Color("#818CF8"), // Indigo 400
	Secondary: lipgloss.Color("#22D3EE"), // Cyan 400
	Accent:    lipgloss.Color("#F472B6"), // Pink 400

	TextPrimary:   lipgloss.Color("#F1F5F9"),
	TextSecondary: lipgloss.Color("#94A3B8"),
	TextMuted:     lipgloss.Color("#64748B"),

	Success: lipgloss.Color("#34D399"),
	Warning: lipgloss.Color("#FBBF24"),
	Error:   lipgloss.Color("#FB7185"),
	Info:    lipgloss.Color("#60A5FA"),

	Border: lipgloss.Color("#27272A"),

	Listening: lipgloss.Color("#FB7185"),
	Speaking:  lipgloss.Color("#34D399"),
	Paused:    lipgloss.Color("#FBBF24"),
}

// LightTheme is the light mode color scheme
var LightTheme = Theme{
	Primary:   lipgloss.Color("#4F46E5"), // Indigo 600
	Secondary: lipgloss.Color("#0891B2"), // Cyan 600
	Accent:    lipgloss.Color("#DB2777"), // Pink 600

	TextPrimary:   lipgloss.Color("#18181B"),
	TextSecondary: lipgloss.Color("#52525B"),
	TextMuted:     lipgloss.Color("#A1A1AA"),

	Success: lipgloss.Color("#10B981"),
	Warning: lipgloss.Color("#F59E0B"),
	Error:   lipgloss.Color("#EF4444"),
	Info:    lipgloss.Color("#3B82F6"),

	Border: lipgloss.Color("#E4E4E7"),

	Listening: lipgloss.Color("#E11D48"),
	Speaking:  lipgloss.Color("#059669"),
	Paused:    lipgloss.Color("#D97706"),
}

// CurrentTheme holds the active theme (set at runtime based on terminal)
var CurrentTheme = DarkTheme

// ProviderColorMap returns the color for each model provider
var ProviderColorMap = map[string]lipgloss.Color{
	"Gemini": lipgloss.Color("#A78BFA"),
	"OpenAI": lipgloss.Color("#10B981"),
}

func GetProviderColor(provider string) lipgloss.Color {
	if c, ok := ProviderColorMap[provider]; ok {
		return c
	}
	return CurrentTheme.Primary
}

// InitTheme sets the current theme based on terminal background
func InitTheme() {
	if lipgloss.HasDarkBackground() {
		CurrentTheme = DarkTheme
	} else {
		CurrentTheme = LightTheme
	}
}
