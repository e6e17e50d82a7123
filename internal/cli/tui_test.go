package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestTUIHooksForward(t *testing.T) {
	var got []tea.Msg
	h := tuiHooks{send: func(m tea.Msg) { got = append(got, m) }}
	ctx := context.Background()

	h.OnResolveStart(ctx, "run-1", 2)
	h.OnDepthComplete(ctx, 0, 2)
	h.OnPackageResolved(ctx, "a@1.3.0", "registry")
	h.OnOptionalChecked(ctx, "fsevents@2.3.3", false)
	h.OnResolveComplete(ctx, 3, time.Second, nil)

	want := []tea.Msg{
		startMsg{runID: "run-1", roots: 2},
		depthMsg{depth: 0, items: 2},
		resolvedMsg{id: "a@1.3.0", source: "registry"},
		optionalMsg{id: "fsevents@2.3.3", passed: false},
		completeMsg{packages: 3, duration: time.Second},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %#v, want %#v", i, got[i], want[i])
		}
	}
}

func TestResolveModel(t *testing.T) {
	var m tea.Model = newResolveModel()
	for _, msg := range []tea.Msg{
		startMsg{runID: "run-1", roots: 2},
		resolvedMsg{id: "a@1.3.0", source: "registry"},
		resolvedMsg{id: "c@3.0.0", source: "lock"},
		depthMsg{depth: 0, items: 2},
		resolvedMsg{id: "b@1.2.0", source: "registry"},
		optionalMsg{id: "fsevents@2.3.3", passed: false},
		optionalMsg{id: "esbuild@0.20.0", passed: true},
	} {
		m, _ = m.Update(msg)
	}

	rm := m.(resolveModel)
	if rm.resolved != 3 || rm.bySource["registry"] != 2 || rm.bySource["lock"] != 1 {
		t.Errorf("counts: resolved=%d sources=%v", rm.resolved, rm.bySource)
	}

	view := m.View()
	for _, want := range []string{"Resolving", "2 roots · 3 resolved", "Depth", "sources: lock 1 · registry 2", "b@1.2.0", "optional fsevents@2.3.3 skipped"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "esbuild") {
		t.Errorf("passed optional listed:\n%s", view)
	}

	m, _ = m.Update(completeMsg{packages: 3})
	if !strings.Contains(m.View(), "Writing lock") {
		t.Errorf("View() after complete:\n%s", m.View())
	}

	m, cmd := m.Update(finishedMsg{})
	if cmd == nil || m.View() != "" {
		t.Error("finishedMsg should quit with an empty view")
	}
}

func TestResolveModelRecentWindow(t *testing.T) {
	var m tea.Model = newResolveModel()
	for i := 0; i < recentCount+3; i++ {
		m, _ = m.Update(resolvedMsg{id: "p" + strings.Repeat("x", i), source: "registry"})
	}
	if got := len(m.(resolveModel).recent); got != recentCount {
		t.Errorf("recent = %d, want %d", got, recentCount)
	}
}

func TestResolveModelQuit(t *testing.T) {
	m, cmd := newResolveModel().Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !m.(resolveModel).quitting || cmd == nil {
		t.Error("q should quit")
	}
}
