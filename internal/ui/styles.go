package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors for the UI theme - Muted Professional Palette
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorSecondary = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess   = lipgloss.Color("#059669") // Emerald 600 (muted green)
	ColorWarning   = lipgloss.Color("#D97706") // Amber 600 (muted amber)
	ColorError     = lipgloss.Color("#DC2626") // Red 600 (muted red)
	ColorMuted     = lipgloss.Color("#9CA3AF") // Neutral Gray (Gray 400)
	ColorDim       = lipgloss.Color("#6B7280") // Gray 500
	ColorRunning   = lipgloss.Color("#60A5FA") // Sky Blue (Blue 400)
	ColorInfo      = lipgloss.Color("#2DD4BF") // Teal Info (Teal 400)
	ColorNetwork   = lipgloss.Color("#818CF8") // Indigo 500
)

// MessageIcons provides consistent icons for different message types
var MessageIcons = map[string]string{
	"success": "✓",
	"error":   "✗",
	"warning": "⚠",
	"info":    "ℹ",
	"pending": "○",
}

// ToolIcons maps tool families to icons.
var ToolIcons = map[string]string{
	"graph":    "🧩",
	"workflow": "🔧",
	"execute":  "🎬",
	"search":   "🔍",
	"library":  "📚",
	"web":      "🌍",
	"default":  "⚙️",
}

// toolFamily groups tool names for icons and colors.
func toolFamily(name string) string {
	switch name {
	case "addNode", "removeNode", "connectNodes", "getNode", "setNodeWidgetValue", "getWorkflow", "clearWorkflow":
		return "graph"
	case "validateWorkflow", "applyWorkflow":
		return "workflow"
	case "executeWorkflow":
		return "execute"
	case "searchInstalledNodes", "getInstalledModels", "refreshEnvironment":
		return "search"
	case "webFetch", "webSearch":
		return "web"
	}
	if strings.HasSuffix(name, "Skill") || strings.HasSuffix(name, "Skills") || strings.HasSuffix(name, "Template") || strings.HasSuffix(name, "Templates") {
		return "library"
	}
	return "default"
}

// GetToolIcon returns the icon for a given tool name.
func GetToolIcon(toolName string) string {
	return ToolIcons[toolFamily(toolName)]
}

// GetToolIconColor returns the semantic color for a given tool name.
func GetToolIconColor(toolName string) lipgloss.Color {
	switch toolFamily(toolName) {
	case "graph":
		return ColorPrimary
	case "workflow":
		return ColorWarning
	case "execute":
		return ColorRunning
	case "search":
		return ColorSecondary
	case "library":
		return ColorInfo
	case "web":
		return ColorNetwork
	default:
		return ColorMuted
	}
}

// Styles contains all UI styles.
type Styles struct {
	UserPrompt lipgloss.Style
	ToolHeader lipgloss.Style
	ToolResult lipgloss.Style
	Error      lipgloss.Style
	Warning    lipgloss.Style
	Dim        lipgloss.Style
	Accent     lipgloss.Style
	Notice     lipgloss.Style
}

// DefaultStyles returns the default styles.
func DefaultStyles() *Styles {
	return &Styles{
		UserPrompt: lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true),
		ToolHeader: lipgloss.NewStyle().Bold(true),
		ToolResult: lipgloss.NewStyle().Foreground(ColorMuted).PaddingLeft(2),
		Error:      lipgloss.NewStyle().Foreground(ColorError),
		Warning:    lipgloss.NewStyle().Foreground(ColorWarning),
		Dim:        lipgloss.NewStyle().Foreground(ColorDim),
		Accent:     lipgloss.NewStyle().Foreground(ColorPrimary),
		Notice: lipgloss.NewStyle().
			Foreground(ColorWarning).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorWarning).
			Padding(0, 1),
	}
}
