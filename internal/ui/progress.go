// Package ui renders interactive progress for multi-file analysis runs.
//
// The view is driven directly by driver events: a ProgramSink injects
// each event into the Bubble Tea program, one row tracks each module,
// and the aggregate bar reflects completed pipeline steps rather than a
// tuned weight table. Finished modules show their recovered coverage.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"typelift/internal/driver"
)

// EventMsg delivers one driver event into the running program.
type EventMsg driver.Event

// DoneMsg tells the view the whole request finished.
type DoneMsg struct{}

// ProgramSink forwards driver events straight into a program. Send is
// safe from the analysis goroutines and becomes a no-op once the
// program stops.
type ProgramSink struct {
	Program *tea.Program
}

// OnEvent implements driver.Sink.
func (s ProgramSink) OnEvent(ev driver.Event) {
	s.Program.Send(EventMsg(ev))
}

var (
	headStyle  = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	runStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	queueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// row is the visible state of one module.
type row struct {
	path    string
	stage   driver.Stage
	status  driver.Status
	percent float64
}

// annotation is the right-hand column of a row: the active stage while
// working, the coverage share once done.
func (r row) annotation() string {
	switch r.status {
	case driver.StatusDone:
		return fmt.Sprintf("%.2f%% covered", r.percent)
	case driver.StatusError:
		return "failed"
	case driver.StatusWorking:
		return string(r.stage)
	default:
		return "queued"
	}
}

// steps reports how many pipeline steps the row has completed.
func (r row) steps() float64 {
	switch r.status {
	case driver.StatusDone, driver.StatusError:
		return float64(len(driver.Steps))
	case driver.StatusWorking:
		for i, s := range driver.Steps {
			if s == r.stage {
				return float64(i)
			}
		}
	}
	return 0
}

// Model is the progress view for one analysis request.
type Model struct {
	rows   []row
	byPath map[string]int

	spin     spinner.Model
	bar      progress.Model
	width    int
	finished bool
}

// NewModel builds the view for the given input files.
func NewModel(files []string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = runStyle

	rows := make([]row, len(files))
	byPath := make(map[string]int, len(files))
	for i, f := range files {
		rows[i] = row{path: f, status: driver.StatusQueued}
		byPath[f] = i
	}
	return &Model{
		rows:   rows,
		byPath: byPath,
		spin:   sp,
		bar:    progress.New(progress.WithDefaultGradient()),
		width:  80,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EventMsg:
		m.apply(driver.Event(msg))
		return m, m.bar.SetPercent(m.fraction())
	case DoneMsg:
		m.finished = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = msg.Width - 4
		}
		return m, nil
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// apply folds one driver event into the row it concerns.
func (m *Model) apply(ev driver.Event) {
	idx, ok := m.byPath[ev.File]
	if !ok {
		return
	}
	r := &m.rows[idx]
	r.status = ev.Status
	if ev.Status == driver.StatusWorking {
		r.stage = ev.Stage
	}
	if ev.Status == driver.StatusDone {
		r.percent = ev.Percent
	}
}

// fraction is the aggregate progress: completed pipeline steps over the
// steps the whole request needs.
func (m *Model) fraction() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	var done float64
	for _, r := range m.rows {
		done += r.steps()
	}
	return done / float64(len(m.rows)*len(driver.Steps))
}

// counts tallies finished and failed modules.
func (m *Model) counts() (done, failed int) {
	for _, r := range m.rows {
		switch r.status {
		case driver.StatusDone:
			done++
		case driver.StatusError:
			failed++
		}
	}
	return done, failed
}

// View implements tea.Model.
func (m *Model) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	done, failed := m.counts()
	head := fmt.Sprintf("typelift  %d/%d modules", done+failed, len(m.rows))
	if failed > 0 {
		head += errStyle.Render(fmt.Sprintf("  %d failed", failed))
	}

	var b strings.Builder
	b.WriteString(headStyle.Render(head))
	b.WriteString("\n\n")

	for _, r := range m.rows {
		b.WriteString(m.renderRow(r))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if m.finished {
		b.WriteString(m.bar.ViewAs(1.0))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteByte('\n')
	return b.String()
}

// renderRow lays one module out as `glyph path .... annotation`, with
// the annotation pushed to the right edge.
func (m *Model) renderRow(r row) string {
	var glyph string
	switch r.status {
	case driver.StatusDone:
		glyph = okStyle.Render("ok")
	case driver.StatusError:
		glyph = errStyle.Render("!!")
	case driver.StatusWorking:
		glyph = m.spin.View() + " "
	default:
		glyph = queueStyle.Render("..")
	}

	ann := r.annotation()
	maxName := m.width - runewidth.StringWidth(ann) - 7
	if maxName < 12 {
		maxName = 12
	}
	name := middleTruncate(r.path, maxName)

	gap := m.width - 5 - runewidth.StringWidth(name) - runewidth.StringWidth(ann)
	if gap < 1 {
		gap = 1
	}
	return fmt.Sprintf("  %s %s%s%s", glyph, name, strings.Repeat(" ", gap), ann)
}

// middleTruncate shortens long paths by eliding their middle, keeping
// the leading directory and the file name visible.
func middleTruncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	const ellipsis = "..."
	keep := width - len(ellipsis)
	if keep < 2 {
		return runewidth.Truncate(s, width, "")
	}
	head := keep / 2
	tail := keep - head
	left := runewidth.Truncate(s, head, "")
	right := runewidth.TruncateLeft(s, runewidth.StringWidth(s)-tail, "")
	return left + ellipsis + right
}
