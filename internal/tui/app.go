// Package tui is the operator surface: it triggers scans, shows ranked
// senders with verified/estimated counts, and dispatches delete and block
// actions with an explicit confirm step for blocks.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	gmailv1 "google.golang.org/api/gmail/v1"

	"sweepbox/internal/action"
	"sweepbox/internal/audit"
	"sweepbox/internal/config"
	"sweepbox/internal/gmail"
	"sweepbox/internal/model"
	"sweepbox/internal/rank"
	"sweepbox/internal/scan"
	"sweepbox/internal/session"
)

type viewState int

const (
	viewLoading  viewState = iota
	viewAuth               // waiting for auth code input
	viewHome               // welcome, last-scan timestamp
	viewScanning           // scan in progress
	viewResults            // ranked senders list
	viewConfirm            // block-future confirmation
)

type AppModel struct {
	// Core state
	cfg      *config.Config
	logger   *log.Logger
	recorder *audit.Recorder
	service  *gmailv1.Service
	sess     *session.ScanSession
	orch     *scan.Orchestrator
	pipeline *action.Pipeline
	provider *gmail.Provider
	Err      error
	status   string

	// Auth flow
	uiEvents      chan interface{}
	userResponses chan string
	textInput     textinput.Model
	authURL       string

	// View state machine
	view         viewState
	results      []model.RankedEntry
	pendingBlock string

	// Sub-models
	resultsList list.Model

	// Layout
	width, height int

	// Program reference for sending messages from goroutines
	program *tea.Program
}

// SetProgram stores a reference to the tea.Program so goroutines can send
// progress messages back to the Update loop.
func (m *AppModel) SetProgram(p *tea.Program) {
	m.program = p
}

func NewAppModel(cfg *config.Config, recorder *audit.Recorder, logger *log.Logger) AppModel {
	ti := textinput.New()
	ti.Placeholder = "Paste auth code here"
	ti.Focus()

	rl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	rl.KeyMap.Quit.SetKeys("q")
	rl.Title = "Ranked bulk senders"

	return AppModel{
		cfg:           cfg,
		logger:        logger,
		recorder:      recorder,
		sess:          session.New(cfg.Sketch.Rows, cfg.Sketch.Width),
		status:        "Authenticating...",
		view:          viewLoading,
		uiEvents:      make(chan interface{}),
		userResponses: make(chan string),
		textInput:     ti,
		resultsList:   rl,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.authenticateCmd(), textinput.Blink)
}

func (m *AppModel) authenticateCmd() tea.Cmd {
	return func() tea.Msg {
		go func() {
			svc, err := gmail.NewService(context.Background(), m.cfg.ConfigDir, m.uiEvents, m.userResponses)
			m.uiEvents <- authResultMsg{service: svc, err: err}
		}()

		// The auth flow sends a raw string (the auth URL) first, then the
		// goroutine above sends authResultMsg when done.
		event := <-m.uiEvents
		switch v := event.(type) {
		case string:
			return authURLMsg(v)
		default:
			return event
		}
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resultsList.SetSize(msg.Width, msg.Height-4) // room for footer
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case authResultMsg:
		if msg.err != nil {
			m.Err = msg.err
			m.status = "Authentication failed!"
			return m, tea.Quit
		}
		m.service = msg.service
		m.provider = gmail.NewProvider(m.service, m.cfg.Scan, m.logger)
		m.orch = scan.NewOrchestrator(m.provider, m.cfg.Scan, m.logger, m.recorder)
		m.pipeline = action.NewPipeline(m.provider, m.logger, m.recorder)
		m.view = viewHome
		m.status = ""
		return m, nil

	case authURLMsg:
		m.authURL = string(msg)
		m.view = viewAuth
		return m, nil

	case scanProgressMsg:
		m.status = fmt.Sprintf("Scanning %d / %d messages…", msg.Done, msg.Total)
		return m, nil

	case scanDoneMsg:
		if msg.err != nil {
			m.view = viewHome
			m.status = fmt.Sprintf("Scan failed: %v", msg.err)
			return m, clearStatusAfter(4 * time.Second)
		}
		m.status = "Verifying counts…"
		return m, m.rankCmd()

	case resultsMsg:
		m.results = msg.entries
		m.resultsList.SetItems(rankedToItems(m.results))
		m.resultsList.Title = fmt.Sprintf("Ranked bulk senders (top %d)", len(m.results))
		m.view = viewResults
		m.status = ""
		return m, nil

	case actionResultMsg:
		return m.applyActionResult(msg)

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	// Delegate to active sub-model
	var cmd tea.Cmd
	switch m.view {
	case viewAuth:
		m.textInput, cmd = m.textInput.Update(msg)
	case viewResults:
		m.resultsList, cmd = m.resultsList.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	switch key {
	case "ctrl+c":
		return m, tea.Quit
	}

	switch m.view {
	case viewAuth:
		switch key {
		case "enter":
			val := m.textInput.Value()
			m.textInput.Reset()
			return m, func() tea.Msg {
				m.userResponses <- val
				return <-m.uiEvents
			}
		case "q":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd

	case viewHome:
		switch key {
		case "q":
			return m, tea.Quit
		case "s":
			return m.startScan()
		case "R":
			m.sess.Reset()
			m.results = nil
			m.status = "All scan data cleared"
			return m, clearStatusAfter(2 * time.Second)
		case "v":
			gmail.OpenBrowser(gmail.RevokeAccessURL)
			return m, nil
		}
		return m, nil

	case viewResults:
		if m.resultsList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.resultsList, cmd = m.resultsList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewHome
			return m, nil
		case "s":
			return m.startScan()
		case "R":
			m.sess.Reset()
			m.results = nil
			m.resultsList.SetItems(nil)
			m.view = viewHome
			m.status = "All scan data cleared"
			return m, clearStatusAfter(2 * time.Second)
		case "d":
			return m.deleteSelected()
		case "b":
			return m.proposeBlockSelected()
		case "v":
			gmail.OpenBrowser(gmail.RevokeAccessURL)
			return m, nil
		}
		var cmd tea.Cmd
		m.resultsList, cmd = m.resultsList.Update(msg)
		return m, cmd

	case viewConfirm:
		switch key {
		case "y", "enter":
			sender := m.pendingBlock
			m.pendingBlock = ""
			m.view = viewResults
			m.status = "Creating filter…"
			return m, m.confirmBlockCmd(sender)
		case "n", "esc", "q":
			m.pipeline.CancelBlock(m.pendingBlock)
			m.pendingBlock = ""
			m.view = viewResults
			m.status = ""
			return m, nil
		}
		return m, nil
	}

	return m, nil
}

func (m *AppModel) startScan() (tea.Model, tea.Cmd) {
	m.view = viewScanning
	m.status = "Gathering email list…"
	return m, m.scanCmd()
}

func (m *AppModel) selectedSender() (string, bool) {
	selected := m.resultsList.SelectedItem()
	if selected == nil {
		return "", false
	}
	return selected.(rankedItem).Sender, true
}

func (m *AppModel) deleteSelected() (tea.Model, tea.Cmd) {
	sender, ok := m.selectedSender()
	if !ok {
		return m, nil
	}
	m.status = "Deleting past messages…"
	return m, m.deleteCmd(sender)
}

func (m *AppModel) proposeBlockSelected() (tea.Model, tea.Cmd) {
	sender, ok := m.selectedSender()
	if !ok {
		return m, nil
	}
	m.pipeline.ProposeBlock(sender)
	m.pendingBlock = sender
	m.view = viewConfirm
	return m, nil
}

func (m *AppModel) applyActionResult(msg actionResultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.status = fmt.Sprintf("%s failed: %v", msg.kind, msg.err)
		return m, clearStatusAfter(3 * time.Second)
	}
	switch msg.outcome.Status {
	case model.StatusNoMatches:
		m.status = fmt.Sprintf("No unread messages found for %s", msg.outcome.Sender)
	case model.StatusFailed:
		m.status = fmt.Sprintf("%s failed for %s", msg.kind, msg.outcome.Sender)
	default:
		if msg.kind == "block" {
			m.status = fmt.Sprintf("Blocked %s", msg.outcome.Sender)
		} else {
			m.status = fmt.Sprintf("Cleaned %d messages from %s", msg.outcome.ItemsAffected, msg.outcome.Sender)
		}
		// The pipeline dropped the sender from the leaderboard; mirror that.
		if msg.kind == "block" || msg.outcome.ItemsAffected > 0 {
			m.removeResult(msg.outcome.Sender)
		}
	}
	return m, clearStatusAfter(3 * time.Second)
}

func (m *AppModel) removeResult(sender string) {
	for i, e := range m.results {
		if e.Sender == sender {
			m.results = append(m.results[:i], m.results[i+1:]...)
			m.resultsList.RemoveItem(i)
			break
		}
	}
}

// Commands

func (m *AppModel) scanCmd() tea.Cmd {
	return func() tea.Msg {
		err := m.orch.Run(context.Background(), m.sess, func(p model.ScanProgress) {
			if m.program != nil {
				m.program.Send(scanProgressMsg(p))
			}
		})
		return scanDoneMsg{err: err}
	}
}

func (m *AppModel) rankCmd() tea.Cmd {
	return func() tea.Msg {
		top := rank.TopK(m.sess.Entries(), m.cfg.Rank.TopK)
		top = rank.Reconcile(context.Background(), m.provider, top, m.logger)
		return resultsMsg{entries: top}
	}
}

func (m *AppModel) deleteCmd(sender string) tea.Cmd {
	return func() tea.Msg {
		outcome := m.pipeline.DeletePast(context.Background(), m.sess, sender)
		return actionResultMsg{kind: "delete", outcome: outcome}
	}
}

func (m *AppModel) confirmBlockCmd(sender string) tea.Cmd {
	return func() tea.Msg {
		outcome, err := m.pipeline.ConfirmBlock(context.Background(), m.sess, sender)
		return actionResultMsg{kind: "block", outcome: outcome, err: err}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	if m.view == viewAuth {
		return "Please open this URL in your browser to authenticate:\n\n" +
			m.authURL + "\n\n" +
			m.textInput.View()
	}

	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	if m.view == viewLoading {
		if m.status != "" {
			return m.status + "\n"
		}
		return "Loading...\n"
	}

	var b strings.Builder

	switch m.view {
	case viewHome:
		b.WriteString("Sweepbox — clean up your unread inbox\n\n")
		if at, ok := m.sess.LastScanned(); ok {
			b.WriteString(fmt.Sprintf("Last successful scan: %s\n", at.Format("2006-01-02 15:04:05")))
		} else {
			b.WriteString("No scan data yet. Press s to start.\n")
		}
		b.WriteString(homeFooter())

	case viewScanning:
		b.WriteString("Scanning unread inbox\n\n")
		if m.status != "" {
			b.WriteString(m.status + "\n")
		}
		return b.String()

	case viewResults:
		b.WriteString(m.resultsList.View())
		b.WriteString("\n")
		b.WriteString(resultsFooter())

	case viewConfirm:
		b.WriteString(warnStyle.Render("Confirm auto-delete filter") + "\n\n")
		b.WriteString(fmt.Sprintf("This creates a permanent Gmail filter for %s.\n", m.pendingBlock))
		b.WriteString("Future emails from this sender will go straight to the Trash.\n\n")
		b.WriteString(footerStyle.Render("y: confirm block  n: cancel"))
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}

	return b.String()
}
