package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/itchyny/gojq"
	"gopkg.in/yaml.v3"
)

// Response is the success envelope for JSON output.
type Response struct {
	OK          bool           `json:"ok" yaml:"ok"`
	Data        any            `json:"data,omitempty" yaml:"data,omitempty"`
	Summary     string         `json:"summary,omitempty" yaml:"summary,omitempty"`
	Breadcrumbs []Breadcrumb   `json:"breadcrumbs,omitempty" yaml:"breadcrumbs,omitempty"`
	Context     map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	Meta        map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Breadcrumb is a suggested follow-up action.
type Breadcrumb struct {
	Action      string `json:"action" yaml:"action"`
	Cmd         string `json:"cmd" yaml:"cmd"`
	Description string `json:"description" yaml:"description"`
}

// ErrorResponse is the error envelope for JSON output.
type ErrorResponse struct {
	OK     bool   `json:"ok" yaml:"ok"`
	Error  string `json:"error" yaml:"error"`
	Code   string `json:"code" yaml:"code"`
	Hint   string `json:"hint,omitempty" yaml:"hint,omitempty"`
	Status int    `json:"status,omitempty" yaml:"status,omitempty"`
}

// Format specifies the output format.
type Format int

const (
	FormatAuto Format = iota // Auto-detect: TTY → Styled, non-TTY → JSON
	FormatJSON
	FormatMarkdown // Literal Markdown syntax (portable, pipeable)
	FormatStyled   // ANSI styled output (forced, even when piped)
	FormatQuiet
	FormatIDs
	FormatCount
	FormatYAML
)

// ParseFormat maps a config/env format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "auto":
		return FormatAuto, nil
	case "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "styled":
		return FormatStyled, nil
	case "quiet":
		return FormatQuiet, nil
	case "ids":
		return FormatIDs, nil
	case "count":
		return FormatCount, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return FormatAuto, ErrUsage(fmt.Sprintf("unknown output format %q", s))
	}
}

// Options controls output behavior.
type Options struct {
	Format  Format
	Writer  io.Writer
	Verbose bool
	// JQ is a jq expression applied to the JSON envelope; results are printed as JSON.
	JQ string
}

// DefaultOptions returns options for standard output.
func DefaultOptions() Options {
	return Options{
		Format: FormatAuto,
		Writer: os.Stdout,
	}
}

// Writer handles all output formatting.
type Writer struct {
	opts Options
}

// New creates a new output writer.
func New(opts Options) *Writer {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	return &Writer{opts: opts}
}

// Format returns the configured output format.
func (w *Writer) Format() Format {
	return w.opts.Format
}

// OK outputs a success response.
func (w *Writer) OK(data any, opts ...ResponseOption) error {
	resp := &Response{OK: true, Data: data}
	for _, opt := range opts {
		opt(resp)
	}
	return w.write(resp)
}

// Err outputs an error response.
func (w *Writer) Err(err error) error {
	e := AsError(err)
	resp := &ErrorResponse{
		OK:     false,
		Error:  e.Message,
		Code:   e.Code,
		Hint:   e.Hint,
		Status: e.HTTPStatus,
	}
	return w.write(resp)
}

func (w *Writer) write(v any) error {
	if w.opts.JQ != "" {
		return w.writeJQ(v)
	}

	format := w.opts.Format

	// Auto-detect format: TTY → Styled, non-TTY → JSON
	if format == FormatAuto {
		if isTTY(w.opts.Writer) {
			format = FormatStyled
		} else {
			format = FormatJSON
		}
	}

	switch format {
	case FormatQuiet:
		// Extract just the data field for quiet mode
		if resp, ok := v.(*Response); ok {
			return w.writeJSON(resp.Data)
		}
		return w.writeJSON(v)
	case FormatIDs:
		return w.writeIDs(v)
	case FormatCount:
		return w.writeCount(v)
	case FormatYAML:
		return w.writeYAML(v)
	case FormatMarkdown:
		return w.writeLiteralMarkdown(v)
	case FormatStyled:
		return w.writeStyled(v)
	default:
		return w.writeJSON(v)
	}
}

// isTTY checks if the writer is a terminal.
func isTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(f.Fd())
	}
	return false
}

func (w *Writer) writeJSON(v any) error {
	enc := json.NewEncoder(w.opts.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML goes through the JSON form so json.RawMessage and struct tags
// render the same way in both formats.
func (w *Writer) writeYAML(v any) error {
	generic, err := toGeneric(v)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w.opts.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func (w *Writer) writeJQ(v any) error {
	query, err := gojq.Parse(w.opts.JQ)
	if err != nil {
		return ErrUsage(fmt.Sprintf("invalid --jq expression: %v", err))
	}
	input, err := toGeneric(v)
	if err != nil {
		return err
	}

	iter := query.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := result.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				return nil
			}
			return ErrUsage(fmt.Sprintf("--jq: %v", err))
		}
		if s, ok := result.(string); ok {
			fmt.Fprintln(w.opts.Writer, s)
			continue
		}
		b, err := gojq.Marshal(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(w.opts.Writer, string(b))
	}
}

// toGeneric converts v to plain maps, slices, and scalars via JSON.
func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Writer) writeIDs(v any) error {
	resp, ok := v.(*Response)
	if !ok {
		return w.writeJSON(v)
	}

	switch d := NormalizeData(resp.Data).(type) {
	case []map[string]any:
		for _, item := range d {
			if id, ok := itemID(item); ok {
				fmt.Fprintln(w.opts.Writer, id)
			}
		}
	case map[string]any:
		if id, ok := itemID(d); ok {
			fmt.Fprintln(w.opts.Writer, id)
		}
	}
	return nil
}

// itemID returns an object's id, accepting either "id" or "_id".
func itemID(item map[string]any) (any, bool) {
	if id, ok := item["id"]; ok {
		return id, true
	}
	id, ok := item["_id"]
	return id, ok
}

func (w *Writer) writeCount(v any) error {
	resp, ok := v.(*Response)
	if !ok {
		return w.writeJSON(v)
	}

	switch d := NormalizeData(resp.Data).(type) {
	case []any:
		fmt.Fprintln(w.opts.Writer, len(d))
	case []map[string]any:
		fmt.Fprintln(w.opts.Writer, len(d))
	default:
		fmt.Fprintln(w.opts.Writer, 1)
	}
	return nil
}

// NormalizeData converts json.RawMessage and other types to standard Go types.
func NormalizeData(data any) any {
	if raw, ok := data.(json.RawMessage); ok {
		var unmarshaled any
		if err := json.Unmarshal(raw, &unmarshaled); err == nil {
			return normalizeUnmarshaled(unmarshaled)
		}
		return data
	}

	switch data.(type) {
	case []map[string]any, map[string]any, []any, string:
		return data
	case nil:
		return data
	default:
		// Convert struct types to map[string]any via JSON round-trip
		generic, err := toGeneric(data)
		if err != nil {
			return data
		}
		return normalizeUnmarshaled(generic)
	}
}

// normalizeUnmarshaled converts []any to []map[string]any if all elements are maps.
func normalizeUnmarshaled(v any) any {
	switch d := v.(type) {
	case []any:
		if len(d) == 0 {
			return []map[string]any{}
		}
		maps := make([]map[string]any, 0, len(d))
		for _, item := range d {
			if m, ok := item.(map[string]any); ok {
				maps = append(maps, m)
			} else {
				return v // Mixed types, return as-is
			}
		}
		return maps
	default:
		return v
	}
}

// writeStyled outputs ANSI styled terminal output.
func (w *Writer) writeStyled(v any) error {
	r := NewRenderer(w.opts.Writer, true)
	switch resp := v.(type) {
	case *Response:
		return r.RenderResponse(w.opts.Writer, resp)
	case *ErrorResponse:
		return r.RenderError(w.opts.Writer, resp)
	default:
		return w.writeJSON(v)
	}
}

// writeLiteralMarkdown outputs literal Markdown syntax (portable, pipeable).
func (w *Writer) writeLiteralMarkdown(v any) error {
	r := NewMarkdownRenderer(w.opts.Writer)
	switch resp := v.(type) {
	case *Response:
		return r.RenderResponse(w.opts.Writer, resp)
	case *ErrorResponse:
		return r.RenderError(w.opts.Writer, resp)
	default:
		return w.writeJSON(v)
	}
}

// ResponseOption modifies a Response.
type ResponseOption func(*Response)

// WithSummary adds a summary to the response.
func WithSummary(s string) ResponseOption {
	return func(r *Response) { r.Summary = s }
}

// WithBreadcrumbs adds breadcrumbs to the response.
func WithBreadcrumbs(b ...Breadcrumb) ResponseOption {
	return func(r *Response) { r.Breadcrumbs = append(r.Breadcrumbs, b...) }
}

// WithContext adds context to the response.
func WithContext(key string, value any) ResponseOption {
	return func(r *Response) {
		if r.Context == nil {
			r.Context = make(map[string]any)
		}
		r.Context[key] = value
	}
}

// WithMeta adds metadata to the response.
func WithMeta(key string, value any) ResponseOption {
	return func(r *Response) {
		if r.Meta == nil {
			r.Meta = make(map[string]any)
		}
		r.Meta[key] = value
	}
}
