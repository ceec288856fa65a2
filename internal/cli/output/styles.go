package output

import "github.com/charmbracelet/lipgloss"

// Styles is the lipgloss style set a renderer hands to commands. In
// non-colored modes every style is a pass-through, so callers can render
// unconditionally.
type Styles struct {
	Header1  lipgloss.Style
	Header2  lipgloss.Style
	Bold     lipgloss.Style
	Success  lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Info     lipgloss.Style
	Muted    lipgloss.Style
	TankName lipgloss.Style
	Player   lipgloss.Style
}

func newStyles(colored bool) *Styles {
	if !colored {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header1:  plain,
			Header2:  plain,
			Bold:     plain,
			Success:  plain,
			Error:    plain,
			Warning:  plain,
			Info:     plain,
			Muted:    plain,
			TankName: plain,
			Player:   plain,
		}
	}
	return &Styles{
		Header1:  lipgloss.NewStyle().Bold(true).Underline(true),
		Header2:  lipgloss.NewStyle().Bold(true),
		Bold:     lipgloss.NewStyle().Bold(true),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Info:     lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		TankName: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Player:   lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
}
