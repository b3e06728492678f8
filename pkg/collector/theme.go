package collector

import "github.com/charmbracelet/lipgloss"

// Theme styles the finalize tree.
type Theme struct {
	Name    string
	Header  lipgloss.Style
	Subtest lipgloss.Style
	Pass    lipgloss.Style
	Fail    lipgloss.Style
	Skip    lipgloss.Style
	Icons   Icons
}

// Icons are the per-label markers printed before each label.
type Icons struct {
	Pass string
	Fail string
	Skip string
}

// Icon returns the marker for l.
func (t Theme) Icon(l Label) string {
	switch l {
	case LabelPassed:
		return t.Icons.Pass
	case LabelSkipped:
		return t.Icons.Skip
	default:
		return t.Icons.Fail
	}
}

// Style returns the style for l.
func (t Theme) Style(l Label) lipgloss.Style {
	switch l {
	case LabelPassed:
		return t.Pass
	case LabelSkipped:
		return t.Skip
	default:
		return t.Fail
	}
}

// DefaultTheme returns a vibrant color theme.
func DefaultTheme() Theme {
	return Theme{
		Name:    "default",
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")), // blue
		Subtest: lipgloss.NewStyle(),
		Pass:    lipgloss.NewStyle().Foreground(lipgloss.Color("34")),  // green
		Fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")), // red
		Skip:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // orange
		Icons:   Icons{Pass: "✓", Fail: "✗", Skip: "○"},
	}
}

// OrcaTheme returns a muted theme.
func OrcaTheme() Theme {
	return Theme{
		Name:    "orca",
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")), // pale blue
		Subtest: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Pass:    lipgloss.NewStyle().Foreground(lipgloss.Color("108")), // sage green
		Fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("167")), // muted red
		Skip:    lipgloss.NewStyle().Foreground(lipgloss.Color("179")), // muted gold
		Icons:   Icons{Pass: "✓", Fail: "✗", Skip: "·"},
	}
}

// MonoTheme returns a theme without colors or bold, safe for pipes and logs.
func MonoTheme() Theme {
	return Theme{
		Name:    "mono",
		Header:  lipgloss.NewStyle(),
		Subtest: lipgloss.NewStyle(),
		Pass:    lipgloss.NewStyle(),
		Fail:    lipgloss.NewStyle(),
		Skip:    lipgloss.NewStyle(),
		Icons:   Icons{Pass: "+", Fail: "x", Skip: "-"},
	}
}

// ThemeByName returns a theme by name, defaulting to DefaultTheme.
func ThemeByName(name string) Theme {
	switch name {
	case "orca":
		return OrcaTheme()
	case "mono":
		return MonoTheme()
	default:
		return DefaultTheme()
	}
}

// ThemeNames lists the names ThemeByName recognizes.
func ThemeNames() []string {
	return []string{"default", "orca", "mono"}
}
