package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/fyn/pkg/config"
	"github.com/matzehuels/fyn/pkg/observability"
	"github.com/matzehuels/fyn/pkg/pipeline"
)

// recentCount is how many resolved packages the live view lists.
const recentCount = 6

// =============================================================================
// Messages
// =============================================================================

type (
	startMsg struct {
		runID string
		roots int
	}
	depthMsg struct {
		depth, items int
	}
	resolvedMsg struct {
		id, source string
	}
	optionalMsg struct {
		id     string
		passed bool
	}
	completeMsg struct {
		packages int
		duration time.Duration
		err      error
	}
	finishedMsg struct{}
	tickMsg     time.Time
)

// tuiHooks forwards resolver events to a running program. Send is safe
// from any goroutine.
type tuiHooks struct {
	send func(tea.Msg)
}

var _ observability.ResolveHooks = tuiHooks{}

func (h tuiHooks) OnResolveStart(_ context.Context, runID string, roots int) {
	h.send(startMsg{runID: runID, roots: roots})
}

func (h tuiHooks) OnDepthComplete(_ context.Context, depth, items int) {
	h.send(depthMsg{depth: depth, items: items})
}

func (h tuiHooks) OnPackageResolved(_ context.Context, id, source string) {
	h.send(resolvedMsg{id: id, source: source})
}

func (h tuiHooks) OnOptionalChecked(_ context.Context, id string, passed bool) {
	h.send(optionalMsg{id: id, passed: passed})
}

func (h tuiHooks) OnResolveComplete(_ context.Context, packages int, d time.Duration, err error) {
	h.send(completeMsg{packages: packages, duration: d, err: err})
}

// =============================================================================
// resolveModel - live resolve progress
// =============================================================================

type resolveModel struct {
	runID     string
	roots     int
	depths    []depthMsg
	resolved  int
	bySource  map[string]int
	recent    []string
	optFailed []string
	complete  *completeMsg

	frame    int
	finished bool
	quitting bool
}

func newResolveModel() resolveModel {
	return resolveModel{bySource: map[string]int{}}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m resolveModel) Init() tea.Cmd {
	return tick()
}

func (m resolveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case startMsg:
		m.runID, m.roots = msg.runID, msg.roots
	case depthMsg:
		m.depths = append(m.depths, msg)
	case resolvedMsg:
		m.resolved++
		m.bySource[msg.source]++
		m.recent = append(m.recent, msg.id)
		if len(m.recent) > recentCount {
			m.recent = m.recent[len(m.recent)-recentCount:]
		}
	case optionalMsg:
		if !msg.passed {
			m.optFailed = append(m.optFailed, msg.id)
		}
	case completeMsg:
		m.complete = &msg
	case finishedMsg:
		m.finished = true
		return m, tea.Quit
	case tickMsg:
		m.frame++
		return m, tick()
	}
	return m, nil
}

func (m resolveModel) View() string {
	if m.finished || m.quitting {
		return ""
	}
	var b strings.Builder

	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	status := styleIconSpinner.Render(frames[m.frame%len(frames)]) + " " + StyleTitle.Render("Resolving")
	if m.complete != nil {
		status = styleIconSuccess.Render(iconSuccess) + " " + StyleTitle.Render("Writing lock")
	}
	b.WriteString(status)
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %d roots · %d resolved", m.roots, m.resolved)))
	b.WriteString("\n\n")

	if len(m.depths) > 0 {
		rows := make([][]string, len(m.depths))
		for i, d := range m.depths {
			rows[i] = []string{strconv.Itoa(d.depth), strconv.Itoa(d.items)}
		}
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
			Headers("Depth", "Requests").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return lipgloss.NewStyle().Foreground(colorGray).Bold(true).Padding(0, 1)
				}
				return lipgloss.NewStyle().Foreground(colorWhite).Padding(0, 1)
			})
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	if len(m.bySource) > 0 {
		b.WriteString(StyleDim.Render("  sources: " + sourceSummary(m.bySource)))
		b.WriteString("\n")
	}
	for _, id := range m.recent {
		b.WriteString("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(id) + "\n")
	}
	for _, id := range m.optFailed {
		b.WriteString("  " + StyleWarning.Render(iconWarning+" optional "+id+" skipped") + "\n")
	}

	b.WriteString("\n")
	b.WriteString(StyleDim.Render("q quit"))
	return b.String()
}

// sourceSummary renders counts as "lock 3 · registry 5", sorted by name.
func sourceSummary(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s %d", name, counts[name])
	}
	return strings.Join(parts, " · ")
}

// =============================================================================
// Runner glue
// =============================================================================

type outcome struct {
	result *pipeline.Result
	err    error
}

// runResolveTUI executes the pipeline behind a live progress view. Quitting
// the view cancels the run.
func (c *CLI) runResolveTUI(ctx context.Context, cfg *config.Config, opts pipeline.Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	restore := quiet(c.Logger)
	defer restore()

	p := tea.NewProgram(newResolveModel(), tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	runner := c.newRunner(ctx, cfg, observability.Hooks{Resolve: tuiHooks{send: p.Send}})
	defer runner.Close()

	done := make(chan outcome, 1)
	go func() {
		res, err := runner.Execute(ctx, opts)
		done <- outcome{res, err}
		p.Send(finishedMsg{})
	}()

	final, runErr := p.Run()
	if m, ok := final.(resolveModel); ok && m.quitting {
		cancel()
		<-done
		return context.Canceled
	}
	out := <-done
	if out.err != nil {
		return out.err
	}
	if runErr != nil {
		return runErr
	}
	restore()
	reportResult(out.result)
	return nil
}
