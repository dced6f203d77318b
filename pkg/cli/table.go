package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// MaxCellWidth bounds a rendered cell; longer text is cut with "…".
const MaxCellWidth = 48

// Theme defines the table colors.
type Theme struct {
	Primary lipgloss.Color // Header and border color
	Dim     lipgloss.Color // Secondary cell color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
	Dim    lipgloss.Style
	Border lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Cell:   lipgloss.NewStyle().Padding(0, 1),
		Dim:    lipgloss.NewStyle().Foreground(t.Dim).Padding(0, 1),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
	}
}

// DefaultStyles returns NewStyles(DefaultTheme).
func DefaultStyles() Styles { return NewStyles(DefaultTheme) }

// Tabular is implemented by results that have a table rendering.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

// Table is a ready-made Tabular.
type Table struct {
	Columns []string
	Data    [][]string

	// DimColumns are rendered with the Dim style.
	DimColumns []int
}

func (t Table) Header() []string { return t.Columns }
func (t Table) Rows() [][]string { return t.Data }

// RenderTable renders t with rounded borders.
func RenderTable(s Styles, t Tabular) string {
	dim := map[int]bool{}
	if tt, ok := t.(Table); ok {
		for _, c := range tt.DimColumns {
			dim[c] = true
		}
	}

	rows := t.Rows()
	cut := make([][]string, len(rows))
	for i, r := range rows {
		cut[i] = make([]string, len(r))
		for j, cell := range r {
			cut[i][j] = truncate(cell, MaxCellWidth)
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return s.Header
			case dim[col]:
				return s.Dim
			default:
				return s.Cell
			}
		}).
		Headers(t.Header()...).
		Rows(cut...).
		String()
}

// truncate cuts s to width display cells, handling multi-byte characters.
func truncate(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	cur := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if cur+w > width-1 {
			return string(runes[:i]) + "…"
		}
		cur += w
	}
	return s
}
