// upsmon is a terminal status panel for a running upsbridge daemon. It polls
// the /status endpoint and renders the decoded UPS state.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	bridgeURL = flag.String("bridge", "http://localhost:8080", "upsbridge base URL")
	interval  = flag.Duration("interval", 2*time.Second, "poll interval")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFFF00")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34D399")).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#60A5FA")).
			Width(22)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))

	copyNoticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))
)

// statusMsg carries one poll result into the update loop.
type statusMsg struct {
	raw    []byte
	status map[string]any
	err    error
}

type tickMsg time.Time

type model struct {
	spinner    spinner.Model
	status     map[string]any
	raw        []byte
	err        error
	copyNotice string
}

func newModel() model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{spinner: s}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetchStatus, tick())
}

func tick() tea.Cmd {
	return tea.Tick(*interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchStatus() tea.Msg {
	resp, err := http.Get(*bridgeURL + "/status")
	if err != nil {
		return statusMsg{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return statusMsg{err: err}
	}
	var status map[string]any
	if err := json.Unmarshal(raw, &status); err != nil {
		return statusMsg{err: fmt.Errorf("bad status payload: %w", err)}
	}
	return statusMsg{raw: raw, status: status}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchStatus
		case "c":
			if len(m.raw) > 0 {
				if err := clipboard.WriteAll(string(m.raw)); err == nil {
					m.copyNotice = "status JSON copied"
				} else {
					m.copyNotice = "clipboard unavailable"
				}
			}
			return m, nil
		}

	case tickMsg:
		return m, tea.Batch(fetchStatus, tick())

	case statusMsg:
		m.copyNotice = ""
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.raw = msg.raw
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	header := titleStyle.Render(" UPS Monitor ") + "  " + helpStyle.Render(*bridgeURL)

	var body string
	switch {
	case m.err != nil:
		body = offlineStyle.Render("bridge unreachable") + "\n" + helpStyle.Render(m.err.Error())
	case m.status == nil:
		body = m.spinner.View() + " waiting for first poll..."
	case m.status["status"] == "online":
		body = onlineStyle.Render("● ONLINE") + "\n\n" + renderFields(m.status)
	default:
		body = offlineStyle.Render("○ OFFLINE") + "\n\n" + helpStyle.Render("no UPS attached")
	}

	footer := helpStyle.Render("r refresh · c copy JSON · q quit")
	if m.copyNotice != "" {
		footer = copyNoticeStyle.Render(m.copyNotice)
	}

	return header + "\n" + panelStyle.Render(body) + "\n" + footer + "\n"
}

func renderFields(status map[string]any) string {
	fields, ok := status["UPS"].(map[string]any)
	if !ok {
		return ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var out string
	for _, name := range names {
		out += labelStyle.Render(name) + renderValue(fields[name]) + "\n"
	}
	return out
}

func renderValue(v any) string {
	switch v := v.(type) {
	case bool:
		if v {
			return onlineStyle.Render("yes")
		}
		return "no"
	case float64:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func main() {
	flag.Parse()
	if _, err := tea.NewProgram(newModel()).Run(); err != nil {
		log.Fatalf("upsmon: %v", err)
	}
}
