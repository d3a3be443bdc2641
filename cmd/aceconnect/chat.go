package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	aceconnect "github.com/Zainktk/ace-connect-web"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

// ============================================================================
// Styles
// ============================================================================

var (
	colorText   = lipgloss.Color("#cdd6f4")
	colorMuted  = lipgloss.Color("#a6adc8")
	colorBorder = lipgloss.Color("#45475a")
	colorSelf   = lipgloss.Color("#a6e3a1")
	colorOther  = lipgloss.Color("#74c7ec")
	colorWarn   = lipgloss.Color("#fab387")

	titleStyle  = lipgloss.NewStyle().Foreground(colorOther).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	selfStyle   = lipgloss.NewStyle().Foreground(colorSelf).Bold(true)
	otherStyle  = lipgloss.NewStyle().Foreground(colorOther).Bold(true)
	bodyStyle   = lipgloss.NewStyle().Foreground(colorText)
	paneStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(colorBorder)
	headerStyle = lipgloss.NewStyle().Padding(0, 1)
)

// ============================================================================
// Messages
// ============================================================================

type conversationMsg struct {
	matchID  int64
	messages []aceconnect.Message
}

type channelStateMsg aceconnect.ChannelState

type selectDoneMsg struct{ err error }

type sendDoneMsg struct{ err error }

// ============================================================================
// Model
// ============================================================================

type chatModel struct {
	conv     *aceconnect.Conversations
	matchID  int64
	selfID   int64
	opponent string

	viewport viewport.Model
	input    textinput.Model
	messages []aceconnect.Message
	channel  aceconnect.ChannelState
	loading  bool
	status   string
	ready    bool
	width    int
	height   int
}

func newChatModel(conv *aceconnect.Conversations, matchID, selfID int64, opponent string) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message…"
	ti.CharLimit = 1000
	ti.Focus()

	return chatModel{
		conv:     conv,
		matchID:  matchID,
		selfID:   selfID,
		opponent: opponent,
		input:    ti,
		channel:  aceconnect.StateConnected,
		loading:  true,
	}
}

func (m chatModel) selectCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return selectDoneMsg{err: m.conv.Select(ctx, m.matchID)}
	}
}

func (m chatModel) resumeCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return selectDoneMsg{err: m.conv.Resume(ctx)}
	}
}

func (m chatModel) sendCmd(content string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return sendDoneMsg{err: m.conv.Send(ctx, content)}
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.selectCmd())
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := msg.Height - 6
		if h < 3 {
			h = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, h)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = h
		}
		m.input.Width = msg.Width - 4
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlR:
			m.loading = true
			m.status = "reloading…"
			return m, m.resumeCmd()
		case tea.KeyEnter:
			content := m.input.Value()
			if strings.TrimSpace(content) == "" {
				return m, nil
			}
			m.input.Reset()
			return m, m.sendCmd(content)
		}

	case conversationMsg:
		if msg.matchID == m.matchID {
			m.messages = msg.messages
			m.refresh()
		}
		return m, nil

	case channelStateMsg:
		m.channel = aceconnect.ChannelState(msg)
		return m, nil

	case selectDoneMsg:
		m.loading = false
		m.status = ""
		if msg.err != nil && !errors.Is(msg.err, aceconnect.ErrSelectionSuperseded) {
			m.status = "load failed: " + msg.err.Error()
		}
		m.messages = m.conv.Messages()
		m.refresh()
		return m, nil

	case sendDoneMsg:
		if msg.err != nil {
			m.status = "send failed: " + msg.err.Error()
		} else {
			m.status = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m chatModel) renderMessages() string {
	if len(m.messages) == 0 {
		if m.loading {
			return mutedStyle.Render("Loading conversation…")
		}
		return mutedStyle.Render("No messages yet. Say hi!")
	}
	var b strings.Builder
	for _, msg := range m.messages {
		name := otherStyle.Render(m.opponent)
		if msg.SenderID == m.selfID {
			name = selfStyle.Render("You")
		}
		b.WriteString(mutedStyle.Render(clock(msg.CreatedAt)))
		b.WriteString(" ")
		b.WriteString(name)
		b.WriteString(" ")
		b.WriteString(bodyStyle.Render(msg.Content))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  Connecting…"
	}
	conn := mutedStyle.Render(string(m.channel))
	if m.channel != aceconnect.StateConnected {
		conn = warnStyle.Render(string(m.channel) + " (ctrl+r to reload)")
	}
	header := headerStyle.Render(titleStyle.Render("Match #"+fmt.Sprint(m.matchID)+" · "+m.opponent) + "  " + conn)

	footer := mutedStyle.Render("enter send · ctrl+r reload · esc quit")
	if m.status != "" {
		footer = warnStyle.Render(m.status)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		paneStyle.Render(m.viewport.View()),
		m.input.View(),
		footer,
	)
}

// clock renders a timestamp as local HH:MM, or as-is when it is not RFC 3339.
func clock(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("15:04")
}

// ============================================================================
// Command
// ============================================================================

var chatCmd = &cobra.Command{
	Use:   "chat <match-id>",
	Short: "Open the live chat of a match",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		matchID, err := parseID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := cmdContext(20 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}

		opponent := "Opponent"
		if matches, err := client.Matchmaking.MyMatches(ctx); err == nil {
			for _, mt := range matches {
				if mt.ID == matchID && mt.OpponentName != "" {
					opponent = mt.OpponentName
				}
			}
		} else {
			logger.Debug("match list unavailable", zap.Error(err))
		}

		ch := client.NewChannel(&aceconnect.ChannelConfig{MaxReconnectAttempts: -1})
		if err := ch.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer ch.Disconnect()

		conv := aceconnect.NewConversations(ch, client.Matchmaking, client.Session(),
			&aceconnect.ConversationOptions{Logger: logger.Named("conversation")})
		defer conv.Close()

		p := tea.NewProgram(newChatModel(conv, matchID, client.Session().UserID(), opponent), tea.WithAltScreen())
		conv.OnChange(func(id int64, msgs []aceconnect.Message) {
			p.Send(conversationMsg{matchID: id, messages: msgs})
		})
		ch.OnStateChange(func(s aceconnect.ChannelState) {
			p.Send(channelStateMsg(s))
		})

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("chat view: %w", err)
		}
		return nil
	},
}
