package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/tempmail/internal/model"
	appsync "github.com/nhle/tempmail/internal/sync"
	"github.com/nhle/tempmail/internal/theme"
	"github.com/nhle/tempmail/internal/ui"
	"github.com/nhle/tempmail/internal/ui/addressform"
	"github.com/nhle/tempmail/internal/ui/command"
	helpview "github.com/nhle/tempmail/internal/ui/help"
	"github.com/nhle/tempmail/internal/ui/inbox"
	messageview "github.com/nhle/tempmail/internal/ui/message"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewMessage
	ViewEdit
	ViewForget
	ViewHelp
	ViewCommand
)

// action names the lifecycle transition a sessionMsg reports on.
type action int

const (
	actionStart action = iota
	actionRename
	actionForget
	actionCheck
)

// sessionMsg carries the outcome of a lifecycle transition.
type sessionMsg struct {
	action  action
	session model.Session
	err     error
}

// inboxLoadedMsg carries the cached inbox of address.
type inboxLoadedMsg struct {
	address string
	inbox   model.Inbox
	err     error
}

// Model is the root Bubble Tea model that routes between views and
// drives the mailbox core.
type Model struct {
	core         *Core
	keys         *KeyMap
	layout       ui.Layout
	currentView  ViewState
	previousView ViewState
	inbox        inbox.Model
	message      messageview.Model
	form         addressform.Model
	forget       forgetPrompt
	helpView     helpview.Model
	commandView  command.Model
	session      model.Session
	busy         bool
	notice       string
	errMsg       string
	ready        bool
}

// New creates the root model over core. The lifecycle is started by Init.
func New(core *Core) Model {
	keys := DefaultKeyMap()
	return Model{
		core:        core,
		keys:        keys,
		currentView: ViewInbox,
		inbox:       inbox.New(keys, 80, 24),
		message:     messageview.New(keys, core.Config.Display.ShowImages, 80, 24),
		form:        addressform.New(core.Gateway.Domains(), 80, 24),
		helpView:    helpview.New(keys, 80, 24),
		commandView: command.New(80),
		busy:        true,
	}
}

// Init starts the mailbox and begins listening for poll results.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.startSession(),
		m.core.Sync.WaitForNextResult(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inbox.SetSize(w, h)
		m.message.SetSize(w, h)
		m.form.SetSize(w, h)
		m.forget.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetWidth(w)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case sessionMsg:
		return m.handleSession(msg)

	case inboxLoadedMsg:
		// A poll that already landed is at least as fresh as the cache.
		if msg.address != m.session.Address || m.inbox.Len() > 0 {
			return m, nil
		}
		if msg.err != nil {
			m.errMsg = "Could not read cached inbox: " + msg.err.Error()
			return m, nil
		}
		return m, m.inbox.SetMessages(msg.inbox)

	case appsync.SyncResultMsg:
		waitCmd := m.core.Sync.WaitForNextResult()
		// Results for an address that is no longer shown are dropped.
		if msg.Address != m.session.Address {
			return m, waitCmd
		}
		if msg.Error != nil {
			m.errMsg = "Sync failed: " + msg.Error.Error()
			return m, waitCmd
		}
		m.errMsg = ""
		if msg.Added > 0 {
			m.notice = pluralize(msg.Added, "new message")
		}
		return m, tea.Batch(m.inbox.SetMessages(msg.Inbox), waitCmd)

	case inbox.SelectedMsg:
		m.inbox.MarkOpened(msg.ID)
		m.message.Open(msg.ID)
		m.previousView = m.currentView
		m.currentView = ViewMessage
		return m, m.fetchMessage(msg.ID)

	case messageview.ReloadMsg:
		return m, m.fetchMessage(msg.ID)

	case messageview.LoadedMsg:
		var cmd tea.Cmd
		m.message, cmd = m.message.Update(msg)
		return m, cmd

	case messageview.BackMsg:
		m.currentView = ViewInbox
		return m, nil

	case addressform.SubmittedMsg:
		if err := m.core.Lifecycle.UpdateDraft(msg.Draft); err != nil {
			return m, m.form.Failed(err)
		}
		m.busy = true
		return m, m.saveRename()

	case addressform.CancelMsg:
		_ = m.core.Lifecycle.Cancel()
		m.currentView = ViewInbox
		return m, nil

	case forgetAnsweredMsg:
		m.currentView = ViewInbox
		if !msg.confirmed {
			return m, nil
		}
		m.busy = true
		m.notice = "Forgetting " + m.session.Address + "..."
		return m, m.invalidateSession()

	case copiedMsg:
		if msg.err != nil {
			m.errMsg = "Copy failed: " + msg.err.Error()
		} else {
			m.notice = "Copied " + msg.address
		}
		return m, nil

	case command.CommandMsg:
		m.commandView.Blur()
		m.currentView = m.previousView
		return m.executeCommand(string(msg))

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		// Forms own every key while they are open.
		if m.currentView == ViewEdit || m.currentView == ViewForget {
			break
		}

		switch {
		case m.currentView == ViewCommand && key.Matches(msg, m.keys.Back):
			m.commandView.Blur()
			m.currentView = m.previousView
			return m, nil

		case m.currentView == ViewCommand:
			break

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case m.currentView == ViewHelp && key.Matches(msg, m.keys.Back):
			m.currentView = m.previousView
			return m, nil

		case key.Matches(msg, m.keys.Command):
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case m.currentView != ViewInbox:
			break

		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		default:
			if handled, next, cmd := m.inboxAction(msg); handled {
				return next, cmd
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// inboxAction handles the mailbox keys of the inbox view.
func (m Model) inboxAction(msg tea.KeyMsg) (bool, tea.Model, tea.Cmd) {
	var name string
	switch {
	case key.Matches(msg, m.keys.Refresh):
		name = "refresh"
	case key.Matches(msg, m.keys.Rename):
		name = "rename"
	case key.Matches(msg, m.keys.Forget):
		name = "forget"
	case key.Matches(msg, m.keys.Copy):
		name = "copy"
	default:
		return false, m, nil
	}
	next, cmd := m.executeCommand(name)
	return true, next, cmd
}

// handleSession applies the outcome of a lifecycle transition.
func (m Model) handleSession(msg sessionMsg) (tea.Model, tea.Cmd) {
	m.busy = false

	if msg.err != nil {
		switch msg.action {
		case actionRename:
			// The manager stays in editing with the draft intact.
			return m, m.form.Failed(msg.err)
		case actionStart:
			m.errMsg = "Could not obtain an address: " + msg.err.Error() + " (r to retry)"
		case actionForget:
			m.errMsg = "Could not allocate a new address: " + msg.err.Error() + " (r to retry)"
		default:
			m.errMsg = "Session check failed: " + msg.err.Error()
		}
		m.notice = ""
		m.session = m.core.Lifecycle.Session()
		if !m.session.Valid() {
			return m, m.inbox.Reset("")
		}
		return m, nil
	}

	changed := msg.session.Address != m.session.Address
	m.session = msg.session
	m.errMsg = ""

	switch msg.action {
	case actionRename:
		m.notice = "Address changed to " + msg.session.Address
		m.currentView = ViewInbox
	case actionForget:
		m.notice = "New address " + msg.session.Address
	case actionCheck:
		if changed {
			m.notice = "Session expired, new address " + msg.session.Address
		} else {
			m.notice = "Session is valid"
		}
	}

	if !changed && msg.action != actionRename {
		return m, nil
	}
	if m.currentView == ViewMessage {
		m.currentView = ViewInbox
	}
	return m, tea.Batch(
		m.inbox.Reset(msg.session.Address),
		m.loadInbox(msg.session.Address),
	)
}

// executeCommand runs a named mailbox action from a key or the palette.
func (m Model) executeCommand(name string) (tea.Model, tea.Cmd) {
	m.notice = ""

	switch name {
	case "refresh", "sync":
		if m.busy {
			return m, nil
		}
		if !m.session.Valid() {
			m.busy = true
			return m, m.startSession()
		}
		if !m.core.Sync.Refresh() {
			m.notice = "Already up to date"
		}
		return m, nil

	case "check":
		if m.busy || !m.session.Valid() {
			return m, nil
		}
		m.busy = true
		return m, m.checkSession()

	case "rename", "edit":
		if m.busy {
			return m, nil
		}
		draft, err := m.core.Lifecycle.BeginEdit()
		if err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.previousView = ViewInbox
		m.currentView = ViewEdit
		return m, m.form.Start(draft, m.session.Address)

	case "forget", "delete":
		if m.busy || !m.session.Valid() {
			return m, nil
		}
		m.previousView = ViewInbox
		m.currentView = ViewForget
		return m, m.forget.Start(m.session.Address)

	case "copy":
		if !m.session.Valid() {
			return m, nil
		}
		return m, copyAddress(m.session.Address)

	case "images":
		m.message.ToggleImages()
		return m, nil

	case "help":
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil

	case "quit", "q":
		return m, tea.Quit

	default:
		m.errMsg = fmt.Sprintf("Unknown command %q", name)
		return m, nil
	}
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewMessage:
		m.message, cmd = m.message.Update(msg)
	case ViewEdit:
		m.form, cmd = m.form.Update(msg)
	case ViewForget:
		m.forget, cmd = m.forget.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	address := m.session.Address
	if address == "" {
		address = "tempmail"
	}
	header := m.layout.RenderHeader(address, m.syncStatus())
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.statusMessage())

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewInbox:
		return m.inbox.View()
	case ViewMessage:
		return m.message.View()
	case ViewEdit:
		return m.form.View()
	case ViewForget:
		return m.forget.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// syncStatus returns the styled synchronizer state for the header.
func (m Model) syncStatus() string {
	if m.busy {
		return theme.SyncStyle("syncing").Render("working...")
	}
	st := m.core.Sync.Status()
	if st.Address == "" {
		return theme.SyncStyle("idle").Render("offline")
	}

	text := st.State.String()
	if st.State == appsync.SyncIdle && !st.LastSync.IsZero() {
		text = "checked " + st.LastSync.Format("15:04:05")
	}
	return theme.SyncStyle(st.State.String()).Render(text)
}

// statusMessage returns the error or notice shown instead of key hints.
func (m Model) statusMessage() string {
	if m.currentView != ViewInbox && m.currentView != ViewMessage {
		return ""
	}
	if m.errMsg != "" {
		return theme.ErrorStyle.Inherit(theme.StatusBarStyle).Render(m.errMsg)
	}
	if m.notice != "" {
		return theme.NoticeStyle.Inherit(theme.StatusBarStyle).Render(m.notice)
	}
	return ""
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewMessage:
		return "esc back | i images | R reload | j/k scroll"
	case ViewEdit:
		return "enter next | esc cancel"
	case ViewForget:
		return "y yes | n no"
	default:
		return "q quit | enter open | r refresh | e rename | D forget | c copy | ? help"
	}
}

// startSession returns a command that starts the lifecycle.
func (m Model) startSession() tea.Cmd {
	mgr := m.core.Lifecycle
	return func() tea.Msg {
		sess, err := mgr.Start(context.Background())
		return sessionMsg{action: actionStart, session: sess, err: err}
	}
}

// saveRename returns a command that commits the rename draft.
func (m Model) saveRename() tea.Cmd {
	mgr := m.core.Lifecycle
	return func() tea.Msg {
		sess, err := mgr.Save(context.Background())
		return sessionMsg{action: actionRename, session: sess, err: err}
	}
}

// invalidateSession returns a command that forgets the mailbox and
// allocates a replacement.
func (m Model) invalidateSession() tea.Cmd {
	mgr := m.core.Lifecycle
	return func() tea.Msg {
		sess, err := mgr.Invalidate(context.Background())
		return sessionMsg{action: actionForget, session: sess, err: err}
	}
}

// checkSession returns a command that asks the provider whether the
// stored session is still live.
func (m Model) checkSession() tea.Cmd {
	mgr := m.core.Lifecycle
	return func() tea.Msg {
		sess, err := mgr.Refresh(context.Background())
		return sessionMsg{action: actionCheck, session: sess, err: err}
	}
}

// loadInbox returns a command that reads the cached inbox for address.
func (m Model) loadInbox(address string) tea.Cmd {
	s := m.core.Sync
	return func() tea.Msg {
		in, err := s.Inbox(context.Background())
		return inboxLoadedMsg{address: address, inbox: in, err: err}
	}
}

// fetchMessage returns a command that loads message id.
func (m Model) fetchMessage(id string) tea.Cmd {
	f := m.core.Fetcher
	token := m.session.Token
	return func() tea.Msg {
		d, err := f.GetDetail(context.Background(), token, id)
		return messageview.LoadedMsg{ID: id, Detail: d, Err: err}
	}
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
