package silog

import "github.com/charmbracelet/lipgloss"

// Style defines the visual presentation of a [Logger]'s output:
// the colors and decorations applied to level labels, messages,
// and attributes.
type Style struct {
	// LevelLabels holds the label rendered at the start of each
	// log line, one per level (e.g. "DBG", "INF", "WRN", "ERR", "FTL").
	LevelLabels ByLevel[lipgloss.Style]

	// Messages holds the style applied to the log message body,
	// one per level.
	Messages ByLevel[lipgloss.Style]

	// Key is the style applied to attribute keys.
	Key lipgloss.Style

	// Values holds per-key styles for attribute values.
	// A key with no entry here is rendered unstyled.
	Values map[string]lipgloss.Style

	// KeyValueDelimiter separates an attribute's key from its value.
	KeyValueDelimiter lipgloss.Style

	// PrefixDelimiter separates a logger's prefix from its message.
	PrefixDelimiter lipgloss.Style

	// MultilinePrefix is rendered at the start of each continuation
	// line of a multi-line attribute value.
	MultilinePrefix lipgloss.Style
}

// DefaultStyle returns the [Style] used for terminal output:
// colored level labels and dimmed delimiters.
func DefaultStyle() *Style {
	return &Style{
		LevelLabels: ByLevel[lipgloss.Style]{
			Debug: lipgloss.NewStyle().SetString("DBG").Foreground(lipgloss.Color("243")),
			Info:  lipgloss.NewStyle().SetString("INF").Foreground(lipgloss.Color("36")),
			Warn:  lipgloss.NewStyle().SetString("WRN").Foreground(lipgloss.Color("214")),
			Error: lipgloss.NewStyle().SetString("ERR").Foreground(lipgloss.Color("204")),
			Fatal: lipgloss.NewStyle().SetString("FTL").Foreground(lipgloss.Color("204")).Bold(true),
		},
		Messages: ByLevel[lipgloss.Style]{
			Debug: lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
			Info:  lipgloss.NewStyle(),
			Warn:  lipgloss.NewStyle(),
			Error: lipgloss.NewStyle(),
			Fatal: lipgloss.NewStyle().Bold(true),
		},
		Key:               lipgloss.NewStyle().Foreground(lipgloss.Color("110")),
		Values:            make(map[string]lipgloss.Style),
		KeyValueDelimiter: lipgloss.NewStyle().Faint(true).SetString("="),
		PrefixDelimiter:   lipgloss.NewStyle().Faint(true).SetString(": "),
		MultilinePrefix:   lipgloss.NewStyle().Faint(true).SetString("  | "),
	}
}

// PlainStyle returns a [Style] with no colors or decorations applied.
// It's used when output is not a terminal (e.g. redirected to a file
// or pipe), where ANSI escapes would only add noise.
func PlainStyle() *Style {
	plain := lipgloss.NewStyle()
	return &Style{
		LevelLabels: ByLevel[lipgloss.Style]{
			Debug: plain.SetString("DBG"),
			Info:  plain.SetString("INF"),
			Warn:  plain.SetString("WRN"),
			Error: plain.SetString("ERR"),
			Fatal: plain.SetString("FTL"),
		},
		Messages:          ByLevel[lipgloss.Style]{},
		Key:               lipgloss.NewStyle(),
		Values:            make(map[string]lipgloss.Style),
		KeyValueDelimiter: lipgloss.NewStyle().SetString("="),
		PrefixDelimiter:   lipgloss.NewStyle().SetString(": "),
		MultilinePrefix:   lipgloss.NewStyle().SetString("  | "),
	}
}
