// voiceflow-client is a local stand-in for the Twilio media gateway: it
// connects to a running voiceflow server, streams the microphone up as a
// Media Stream, plays the assistant's answers through the speaker, and
// echoes marks back as playback passes them. Useful for talking to the bot
// without placing a phone call.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	eventStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("249"))
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type logMsg string

type statusMsg string

type disconnectedMsg struct{ err error }

type model struct {
	viewport viewport.Model
	lines    []string
	status   string
	ready    bool
	width    int
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-3)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 3
		}
		m.refreshContent()
	case logMsg:
		stamp := timeStyle.Render(time.Now().Format("15:04:05"))
		m.lines = append(m.lines, stamp+" "+eventStyle.Render(string(msg)))
		m.refreshContent()
		m.viewport.GotoBottom()
	case statusMsg:
		m.status = string(msg)
	case disconnectedMsg:
		m.status = "disconnected"
		if msg.err != nil {
			m.lines = append(m.lines, eventStyle.Render("connection closed: "+msg.err.Error()))
			m.refreshContent()
		}
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) refreshContent() {
	if !m.ready {
		return
	}
	content := strings.Join(m.lines, "\n")
	if m.width > 0 {
		content = wordwrap.String(content, m.width)
	}
	m.viewport.SetContent(content)
}

func (m model) View() string {
	if !m.ready {
		return "connecting..."
	}
	header := titleStyle.Render("voiceflow client")
	footer := statusStyle.Render(m.status + "  (q to hang up)")
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer)
}

func main() {
	url := flag.String("url", "ws://localhost:8765/ws", "voiceflow media stream endpoint")
	flag.Parse()

	client, err := dialStream(*url)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.close()

	program := tea.NewProgram(model{status: "on call"}, tea.WithAltScreen())

	devices, err := newAudioIO(
		func(mulaw []byte) {
			if err := client.sendMedia(mulaw); err != nil {
				program.Send(disconnectedMsg{err: err})
			}
		},
		func(name string) {
			client.echoMark(name)
			program.Send(logMsg("played through mark " + name))
		},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer devices.Close()

	go client.readLoop(inboundHandlers{
		onMedia: func(mulaw []byte) {
			devices.queuePlayback(mulaw)
			program.Send(statusMsg("assistant speaking"))
		},
		onMark: func(name string) {
			devices.addMark(name)
		},
		onClear: func() {
			for _, name := range devices.clear() {
				client.echoMark(name)
			}
			program.Send(logMsg("assistant interrupted"))
			program.Send(statusMsg("listening"))
		},
		onError: func(err error) {
			program.Send(disconnectedMsg{err: err})
		},
	})

	if err := devices.Start(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	client.sendStop()
}
