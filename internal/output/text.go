package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/ledger"
	"github.com/efiadm/api-categorizer-aggr/internal/tester"
	"github.com/efiadm/api-categorizer-aggr/internal/transcript"
)

const timeLayout = "2006-01-02 15:04:05"

type textStyles struct {
	header    lipgloss.Style
	title     lipgloss.Style
	id        lipgloss.Style
	count     lipgloss.Style
	date      lipgloss.Style
	label     lipgloss.Style
	dim       lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	ok        lipgloss.Style
	fail      lipgloss.Style
	status    map[catalog.Status]lipgloss.Style
}

func newTextStyles(r *lipgloss.Renderer) textStyles {
	return textStyles{
		header: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")),
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		id: r.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),
		count: r.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true),
		date:      r.NewStyle().Foreground(lipgloss.Color("243")),
		label:     r.NewStyle().Foreground(lipgloss.Color("135")),
		dim:       r.NewStyle().Foreground(lipgloss.Color("240")),
		user:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		assistant: r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		ok:        r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		fail:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("160")),
		status: map[catalog.Status]lipgloss.Style{
			catalog.StatusActive:     r.NewStyle().Foreground(lipgloss.Color("42")),
			catalog.StatusBeta:       r.NewStyle().Foreground(lipgloss.Color("214")),
			catalog.StatusDeprecated: r.NewStyle().Foreground(lipgloss.Color("160")),
		},
	}
}

// TextWriter renders human-readable, styled output. Colors are dropped
// automatically when the destination is not a terminal.
type TextWriter struct {
	mu     sync.Mutex
	writer io.Writer
	styles textStyles
	stream bool
	closed bool
}

// NewTextWriter creates a new text writer.
func NewTextWriter(w io.Writer, stream bool) *TextWriter {
	return &TextWriter{
		writer: w,
		styles: newTextStyles(lipgloss.NewRenderer(w)),
		stream: stream,
	}
}

func (t *TextWriter) render(fn func(w io.Writer) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	return fn(t.writer)
}

func (t *TextWriter) statusStyle(s catalog.Status) lipgloss.Style {
	if style, ok := t.styles.status[s]; ok {
		return style
	}
	return t.styles.dim
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// WriteAPIs renders a table of entries.
func (t *TextWriter) WriteAPIs(apis []catalog.API) error {
	return t.render(func(w io.Writer) error {
		if len(apis) == 0 {
			_, err := fmt.Fprintln(w, t.styles.header.Render("No APIs found"))
			return err
		}

		fmt.Fprintln(w, t.styles.header.Render(fmt.Sprintf("Found %d API(s)", len(apis))))
		fmt.Fprintln(w)

		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		fmt.Fprintln(tw, strings.Join([]string{
			t.styles.title.Render("ID"),
			t.styles.title.Render("Name"),
			t.styles.title.Render("Category"),
			t.styles.title.Render("Method"),
			t.styles.title.Render("Status"),
		}, "\t")+"\t")
		for _, api := range apis {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
				t.styles.id.Render(api.ID),
				truncate(api.Name, 40),
				api.Category,
				string(api.Method),
				t.statusStyle(api.Status).Render(string(api.Status)),
			)
		}
		return tw.Flush()
	})
}

// WriteAPI renders one entry in detail.
func (t *TextWriter) WriteAPI(api catalog.API) error {
	return t.render(func(w io.Writer) error {
		fmt.Fprintln(w, t.styles.header.Render(api.Name)+" "+t.styles.id.Render(api.ID))
		if api.Description != "" {
			fmt.Fprintln(w, api.Description)
		}
		fmt.Fprintln(w)

		auth := "not required"
		if api.AuthRequired {
			auth = "required"
		}
		rows := [][2]string{
			{"Category", api.Category},
			{"Endpoint", api.Endpoint},
			{"Method", string(api.Method)},
			{"Status", t.statusStyle(api.Status).Render(string(api.Status))},
			{"Auth", auth},
		}
		if api.RateLimit != "" {
			rows = append(rows, [2]string{"Rate limit", api.RateLimit})
		}
		if api.Documentation != "" {
			rows = append(rows, [2]string{"Docs", api.Documentation})
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, row := range rows {
			fmt.Fprintf(tw, "%s\t%s\n", t.styles.label.Render(row[0]), row[1])
		}
		return tw.Flush()
	})
}

// WriteCategories renders the category index with a total row.
func (t *TextWriter) WriteCategories(counts []catalog.CategoryCount) error {
	return t.render(func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "%s\t%s\t\n", t.styles.title.Render("Category"), t.styles.title.Render("APIs"))
		for _, c := range counts {
			fmt.Fprintf(tw, "%s\t%s\t\n", c.Category, t.styles.count.Render(strconv.Itoa(c.Count)))
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", t.styles.dim.Render("All"), t.styles.count.Render(strconv.Itoa(catalog.Total(counts))))
		return tw.Flush()
	})
}

// WriteHistory renders the view log, most recent first.
func (t *TextWriter) WriteHistory(entries []ledger.Entry) error {
	return t.render(func(w io.Writer) error {
		if len(entries) == 0 {
			_, err := fmt.Fprintln(w, t.styles.header.Render("No recently viewed APIs"))
			return err
		}

		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "%s\t%s\t\n", t.styles.title.Render("ID"), t.styles.title.Render("Viewed"))
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t\n", t.styles.id.Render(e.APIID), t.styles.date.Render(e.Timestamp.Local().Format(timeLayout)))
		}
		return tw.Flush()
	})
}

// WriteMessages renders chat messages with their sources.
func (t *TextWriter) WriteMessages(msgs []transcript.Message) error {
	return t.render(func(w io.Writer) error {
		if len(msgs) == 0 {
			_, err := fmt.Fprintln(w, t.styles.header.Render("No messages yet"))
			return err
		}

		for i, m := range msgs {
			if i > 0 {
				fmt.Fprintln(w)
			}
			role := t.styles.user.Render("you")
			if m.Role == transcript.RoleAssistant {
				role = t.styles.assistant.Render("assistant")
			}
			fmt.Fprintf(w, "%s %s\n", role, t.styles.date.Render(m.Timestamp.Local().Format(timeLayout)))
			fmt.Fprintln(w, m.Content)
			for _, src := range m.APISources {
				fmt.Fprintf(w, "  %s %s %s\n", t.styles.dim.Render("via"), src.Name, t.styles.id.Render("("+src.Category+")"))
			}
		}
		return nil
	})
}

// WriteTest renders a mock test result.
func (t *TextWriter) WriteTest(res tester.Result) error {
	return t.render(func(w io.Writer) error {
		verdict := t.styles.ok.Render("API test successful")
		if !res.Success {
			verdict = t.styles.fail.Render("API test failed")
		}
		fmt.Fprintf(w, "%s %s\n", verdict, t.styles.id.Render(res.RequestID))
		_, err := fmt.Fprintln(w, res.Body)
		return err
	})
}

// WriteEvent renders an event in streaming mode.
func (t *TextWriter) WriteEvent(event StreamEvent) error {
	if !t.stream {
		return nil
	}
	return t.render(func(w io.Writer) error {
		_, err := fmt.Fprintln(w, t.styles.dim.Render(fmt.Sprintf("%s: %v", event.Type, event.Data)))
		return err
	})
}

// Flush flushes the writer.
func (t *TextWriter) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return flushWriter(t.writer)
}

// Close closes the writer.
func (t *TextWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	return closeWriter(t.writer)
}
