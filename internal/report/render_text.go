package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderSummary writes the per-proxy pass table and the overall result.
func RenderSummary(w io.Writer, r *TestReport) error {
	st := newStyles(w)

	header := []string{"PROXY", "PASSED", "HEALTH"}
	rows := make([][]string, 0, len(r.TestRun.PerProxy))
	for _, p := range r.TestRun.PerProxy {
		rows = append(rows, []string{
			p.Proxy,
			fmt.Sprintf("%d/%d", p.Successful, p.Total),
			healthLabel(p.Healthy),
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := []string{renderRow(header, widths, func(int) lipgloss.Style { return st.Header })}
	for i, row := range rows {
		p := r.TestRun.PerProxy[i]
		lines = append(lines, renderRow(row, widths, func(col int) lipgloss.Style {
			if col != 1 {
				return st.Cell
			}
			switch {
			case p.Successful == p.Total:
				return st.Pass
			case p.Successful == 0:
				return st.Fail
			}
			return st.Partial
		}))
	}
	tbl := st.Border.
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))

	var b strings.Builder
	b.WriteString(st.Title.Render("Overall test summary"))
	b.WriteString("\n")
	if r.TestRun.RunID != "" {
		b.WriteString(st.Dim.Render("run " + r.TestRun.RunID))
		b.WriteString("\n")
	}
	b.WriteString(tbl)
	b.WriteString("\n")

	overall := fmt.Sprintf("%d/%d tests passed", r.TestRun.SuccessfulTests, r.TestRun.TotalTests)
	if r.Passed() {
		b.WriteString(st.Pass.UnsetPadding().Render(overall))
	} else {
		b.WriteString(st.Fail.UnsetPadding().Render(fmt.Sprintf("%s, %d failed", overall, r.Failed())))
	}
	b.WriteString("\n")
	if r.TestRun.CaptureFile != "" {
		b.WriteString(st.Dim.Render("capture " + r.TestRun.CaptureFile))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderRow(cells []string, widths []int, style func(col int) lipgloss.Style) string {
	out := make([]string, len(cells))
	for i, cell := range cells {
		// +2 for the cell padding
		out[i] = style(i).Width(widths[i] + 2).Render(cell)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, out...)
}

func healthLabel(h *bool) string {
	switch {
	case h == nil:
		return "-"
	case *h:
		return "ok"
	}
	return "unreachable"
}
