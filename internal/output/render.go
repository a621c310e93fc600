package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/term"
	"github.com/muesli/termenv"

	"github.com/preorder/preorder-cli/internal/observability"
)

// Palette
var (
	colorPrimary = lipgloss.Color("#e07a2f")
	colorMuted   = lipgloss.Color("#8a8a8a")
	colorText    = lipgloss.Color("#e4e4e4")
	colorError   = lipgloss.Color("#e5534b")
	colorSuccess = lipgloss.Color("#57ab5a")
)

// Renderer handles styled terminal output.
type Renderer struct {
	width  int
	styled bool

	// Text styles
	Summary lipgloss.Style
	Muted   lipgloss.Style
	Data    lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Success lipgloss.Style

	// Table styles
	Header    lipgloss.Style
	Cell      lipgloss.Style
	CellMuted lipgloss.Style
}

// NewRenderer creates a renderer.
// Styling is enabled when writing to a TTY, or when forceStyled is true,
// and always disabled when NO_COLOR is set.
func NewRenderer(w io.Writer, forceStyled bool) *Renderer {
	width, tty := terminalInfo(w)
	styled := (tty || forceStyled) && os.Getenv("NO_COLOR") == ""

	r := &Renderer{width: width, styled: styled}

	// The default lipgloss renderer probes stdout, not w.
	if styled {
		lipgloss.SetColorProfile(termenv.TrueColor)
	} else {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	if !styled {
		plain := lipgloss.NewStyle()
		r.Summary, r.Muted, r.Data, r.Error, r.Hint = plain, plain, plain, plain, plain
		r.Success, r.Header, r.Cell, r.CellMuted = plain, plain, plain, plain
		return r
	}

	r.Summary = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	r.Muted = lipgloss.NewStyle().Foreground(colorMuted)
	r.Data = lipgloss.NewStyle().Foreground(colorText)
	r.Error = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	r.Hint = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	r.Success = lipgloss.NewStyle().Foreground(colorSuccess)
	r.Header = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	r.Cell = lipgloss.NewStyle().Foreground(colorText)
	r.CellMuted = lipgloss.NewStyle().Foreground(colorMuted)
	return r
}

// terminalInfo returns the terminal width and whether the writer is a TTY.
func terminalInfo(w io.Writer) (width int, isTTY bool) {
	width = 80

	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(f.Fd()); err == nil && cols >= 40 {
			width = cols
		}
		isTTY = term.IsTerminal(f.Fd())
	}
	return width, isTTY
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(r.Summary.Render(resp.Summary))
		b.WriteString("\n\n")
	}

	r.renderData(&b, NormalizeData(resp.Data))

	if len(resp.Breadcrumbs) > 0 {
		b.WriteString("\n")
		b.WriteString(r.Muted.Render("Next:"))
		b.WriteString("\n")
		for _, bc := range resp.Breadcrumbs {
			line := r.Muted.Render("  " + bc.Cmd)
			if bc.Description != "" {
				line += r.Muted.Render("  # " + bc.Description)
			}
			b.WriteString(line + "\n")
		}
	}

	if stats := extractStats(resp.Meta); stats != nil {
		if parts := observability.SessionMetricsFromMap(stats).FormatParts(); len(parts) > 0 {
			b.WriteString("\n")
			b.WriteString(r.Muted.Render("Stats: " + strings.Join(parts, " | ")))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	b.WriteString(r.Error.Render("Error: " + resp.Error))
	b.WriteString("\n")

	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case []map[string]any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		r.renderTable(b, d)

	case map[string]any:
		r.renderObject(b, d)

	case []any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		for _, item := range d {
			b.WriteString(r.Data.Render("• " + formatCell(item)))
			b.WriteString("\n")
		}

	case string:
		b.WriteString(r.Data.Render(d))
		b.WriteString("\n")

	case nil:
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")

	default:
		b.WriteString(r.Data.Render(fmt.Sprintf("%v", data)))
		b.WriteString("\n")
	}
}

func (r *Renderer) renderTable(b *strings.Builder, data []map[string]any) {
	columns := r.selectColumns(detectColumns(data), data)
	if len(columns) == 0 {
		return
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.Header
			}
			if col < len(columns) && columns[col].muted {
				return r.CellMuted
			}
			return r.Cell
		})

	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = col.header
	}
	t.Headers(headers...)

	for _, item := range data {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = formatCell(item[col.key])
		}
		t.Row(row...)
	}

	b.WriteString(t.String())
	b.WriteString("\n")
}

// selectColumns drops lowest-priority columns until the table fits the terminal.
func (r *Renderer) selectColumns(cols []column, data []map[string]any) []column {
	for i := range cols {
		cols[i].width = lipgloss.Width(cols[i].header)
		for _, row := range data {
			if w := lipgloss.Width(formatCell(row[cols[i].key])); w > cols[i].width {
				cols[i].width = w
			}
		}
		if cols[i].width > 40 {
			cols[i].width = 40
		}
	}

	const padding = 2
	selected := cols
	for len(selected) > 1 {
		total := 0
		for _, col := range selected {
			total += col.width + padding
		}
		if total <= r.width {
			break
		}
		selected = selected[:len(selected)-1]
	}
	return selected
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	fields := objectFields(data)
	if len(fields) == 0 {
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
		return
	}

	maxLen := 0
	for _, f := range fields {
		if l := len(formatHeader(f)); l > maxLen {
			maxLen = l
		}
	}

	for _, f := range fields {
		label := r.Muted.Render(fmt.Sprintf("%-*s: ", maxLen, formatHeader(f)))
		style := r.Data
		if mutedColumns[f] {
			style = r.CellMuted
		}
		b.WriteString(label + style.Render(formatDateValue(f, data[f])) + "\n")
	}
}

// Column priority for table rendering (lower = higher priority)
var columnPriority = map[string]int{
	"id":                 1,
	"_id":                1,
	"name":               2,
	"username":           2,
	"itemType":           3,
	"price":              3,
	"quantity":           4,
	"status":             4,
	"role":               4,
	"totalPrice":         5,
	"people":             5,
	"requiredByDateTime": 6,
	"available":          6,
	"email":              6,
	"number":             7,
	"description":        8,
	"notes":              8,
	"createdAt":          9,
}

// Columns to render in muted style
var mutedColumns = map[string]bool{
	"id":        true,
	"_id":       true,
	"createdAt": true,
}

// Columns to skip in tables and objects
var skipColumns = map[string]bool{
	"imageUrl": true,
	"password": true,
	"__v":      true,
}

type column struct {
	key      string
	header   string
	priority int
	muted    bool
	width    int
}

func priorityOf(key string) int {
	if p := columnPriority[key]; p != 0 {
		return p
	}
	return 50
}

func detectColumns(data []map[string]any) []column {
	if len(data) == 0 {
		return nil
	}

	var cols []column
	for key, val := range data[0] {
		if skipColumns[key] {
			continue
		}
		switch val.(type) {
		case map[string]any, []map[string]any, []any:
			continue
		}
		cols = append(cols, column{
			key:      key,
			header:   formatHeader(key),
			priority: priorityOf(key),
			muted:    mutedColumns[key],
		})
	}

	sort.Slice(cols, func(i, j int) bool {
		if cols[i].priority != cols[j].priority {
			return cols[i].priority < cols[j].priority
		}
		return cols[i].key < cols[j].key
	})
	return cols
}

// objectFields returns renderable keys of an object in display order.
func objectFields(data map[string]any) []string {
	var fields []string
	for k, v := range data {
		if skipColumns[k] {
			continue
		}
		if _, nested := v.(map[string]any); nested {
			continue
		}
		if _, nested := v.([]map[string]any); nested {
			continue
		}
		fields = append(fields, k)
	}
	sort.Slice(fields, func(i, j int) bool {
		pi, pj := priorityOf(fields[i]), priorityOf(fields[j])
		if pi != pj {
			return pi < pj
		}
		return fields[i] < fields[j]
	})
	return fields
}

// formatHeader turns "requiredByDateTime" or "created_at" into "Required By Date Time" / "Created".
func formatHeader(key string) string {
	key = strings.TrimPrefix(key, "_")
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, ch := range key {
		switch {
		case ch == '_' || ch == '-' || ch == ' ':
			flush()
		case unicode.IsUpper(ch) && len(cur) > 0 && !unicode.IsUpper(cur[len(cur)-1]):
			flush()
			cur = append(cur, ch)
		default:
			cur = append(cur, ch)
		}
	}
	flush()

	if n := len(words); n > 1 && (strings.EqualFold(words[n-1], "at") || strings.EqualFold(words[n-1], "on")) {
		words = words[:n-1]
	}
	for i, w := range words {
		if strings.EqualFold(w, "id") {
			words[i] = "ID"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		if len([]rune(v)) > 40 {
			return string([]rune(v)[:37]) + "..."
		}
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%.2f", v)
	case int, int64:
		return fmt.Sprintf("%d", v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if name, ok := m["name"].(string); ok {
					items = append(items, name)
					continue
				}
			}
			items = append(items, formatCell(item))
		}
		return strings.Join(items, ", ")
	case map[string]any:
		if oid, ok := v["$oid"].(string); ok {
			return oid
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatDateValue renders timestamp fields in a human-readable way.
func formatDateValue(key string, val any) string {
	lower := strings.ToLower(key)
	isDate := strings.HasSuffix(lower, "at") || strings.HasSuffix(lower, "datetime") || strings.HasSuffix(lower, "_on")
	str, ok := val.(string)
	if !isDate || !ok || str == "" {
		return formatCell(val)
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		t, err = time.ParseInLocation("2006-01-02T15:04:05", str, time.Local)
		if err != nil {
			t, err = time.ParseInLocation("2006-01-02T15:04", str, time.Local)
			if err != nil {
				return formatCell(val)
			}
		}
	}
	return t.Format("Mon Jan 2, 2006 3:04 PM")
}

// MarkdownRenderer outputs literal Markdown syntax (portable, pipeable).
type MarkdownRenderer struct {
	width int
}

// NewMarkdownRenderer creates a renderer for literal Markdown output.
func NewMarkdownRenderer(w io.Writer) *MarkdownRenderer {
	width, _ := terminalInfo(w)
	return &MarkdownRenderer{width: width}
}

// RenderResponse renders a success response as literal Markdown.
func (r *MarkdownRenderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString("## " + resp.Summary + "\n\n")
	}

	r.renderData(&b, NormalizeData(resp.Data))

	if len(resp.Breadcrumbs) > 0 {
		b.WriteString("\n### Next\n\n")
		for _, bc := range resp.Breadcrumbs {
			line := "- `" + bc.Cmd + "`"
			if bc.Description != "" {
				line += ": " + bc.Description
			}
			b.WriteString(line + "\n")
		}
	}

	if stats := extractStats(resp.Meta); stats != nil {
		if parts := observability.SessionMetricsFromMap(stats).FormatParts(); len(parts) > 0 {
			b.WriteString("\n*Stats: " + strings.Join(parts, " | ") + "*\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response as literal Markdown.
func (r *MarkdownRenderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	b.WriteString("**Error:** " + resp.Error + "\n")
	if resp.Hint != "" {
		b.WriteString("\n*Hint: " + resp.Hint + "*\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *MarkdownRenderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case []map[string]any:
		if len(d) == 0 {
			b.WriteString("*No results*\n")
			return
		}
		r.renderTable(b, d)

	case map[string]any:
		fields := objectFields(d)
		if len(fields) == 0 {
			b.WriteString("*No data*\n")
			return
		}
		for _, f := range fields {
			b.WriteString("- **" + formatHeader(f) + ":** " + formatDateValue(f, d[f]) + "\n")
		}

	case []any:
		if len(d) == 0 {
			b.WriteString("*No results*\n")
			return
		}
		for _, item := range d {
			b.WriteString("- " + formatCell(item) + "\n")
		}

	case string:
		b.WriteString(d + "\n")

	case nil:
		b.WriteString("*No data*\n")

	default:
		fmt.Fprintf(b, "%v\n", data)
	}
}

func (r *MarkdownRenderer) renderTable(b *strings.Builder, data []map[string]any) {
	cols := detectColumns(data)
	if len(cols) == 0 {
		return
	}

	headers := make([]string, len(cols))
	seps := make([]string, len(cols))
	for i, col := range cols {
		headers[i] = col.header
		seps[i] = "---"
	}
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("| " + strings.Join(seps, " | ") + " |\n")

	for _, item := range data {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = strings.ReplaceAll(formatCell(item[col.key]), "|", "\\|")
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

// extractStats pulls stats from response meta if present.
func extractStats(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	stats, _ := meta["stats"].(map[string]any)
	return stats
}
