// Package tui provides a Bubble Tea terminal user interface for deck-media.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/handiism/deck-media/internal/audio"
	"github.com/handiism/deck-media/internal/cache"
	"github.com/handiism/deck-media/internal/config"
	"github.com/handiism/deck-media/internal/download"
	"github.com/handiism/deck-media/internal/logging"
	"github.com/handiism/deck-media/internal/model"
	"github.com/handiism/deck-media/internal/report"
	"github.com/handiism/deck-media/internal/source"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	limitStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))
)

const maxLogs = 10

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateLoading
	StateRunning
	StateComplete
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   download.ProgressLevel
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	logs      []LogEntry
	items     int
	err       error

	ctx    context.Context
	cancel context.CancelFunc

	manager *download.Manager
	events  chan download.ProgressEvent
	logFile io.Closer

	// Latest counters from the manager
	snapshot download.Progress
	summary  report.Summary
	manifest string

	// Options
	playlist bool
	verbose  bool
	noCache  bool

	width  int
	height int
}

// NewModel creates a new TUI model. itemsPath pre-fills the input.
func NewModel(settings *config.Settings, itemsPath string) Model {
	if settings == nil {
		settings = config.DefaultSettings()
	}

	ti := textinput.New()
	ti.Placeholder = "words.csv"
	ti.SetValue(itemsPath)
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		playlist:  settings.CreatePlaylist,
		logs:      make([]LogEntry, 0),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// ProgressMsg carries one manager progress event.
	ProgressMsg struct {
		Event download.ProgressEvent
	}

	// LoadedMsg is sent when the item list has been read.
	LoadedMsg struct {
		Items   []*model.Item
		Manager *download.Manager
		Events  chan download.ProgressEvent
		LogFile io.Closer
		Err     error
	}

	// RunDoneMsg is sent when every item has a manifest.
	RunDoneMsg struct {
		Progress download.Progress
		Summary  report.Summary
		Manifest string
		Err      error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateRunning || m.state == StateLoading {
				// The run keeps going until every item is manifested.
				m.cancel()
			}

		case "enter":
			if m.state == StateInput && strings.TrimSpace(m.textInput.Value()) != "" {
				m.state = StateLoading
				return m, tea.Batch(m.loadItems(), m.spinner.Tick)
			}

		case "ctrl+p":
			if m.state == StateInput {
				m.playlist = !m.playlist
				return m, nil
			}

		case "ctrl+t":
			if m.state == StateInput {
				m.verbose = !m.verbose
				return m, nil
			}

		case "ctrl+n":
			if m.state == StateInput {
				m.noCache = !m.noCache
				return m, nil
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				m.state = StateInput
				m.logs = nil
				m.items = 0
				m.err = nil
				m.manager = nil
				m.events = nil
				m.snapshot = download.Progress{}
				m.summary = report.Summary{}
				m.manifest = ""
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.textInput.Focus()
				return m, nil
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		cmds = append(cmds, waitForEvent(m.events))
		if msg.Event.Level == download.LevelVerbose && !m.verbose {
			break
		}
		m.logs = append(m.logs, LogEntry{
			Message: msg.Event.Message,
			Level:   msg.Event.Level,
		})
		if len(m.logs) > maxLogs {
			m.logs = m.logs[len(m.logs)-maxLogs:]
		}

	case LoadedMsg:
		if msg.Err != nil {
			m.state = StateError
			m.err = msg.Err
			break
		}
		m.items = len(msg.Items)
		m.manager = msg.Manager
		m.events = msg.Events
		m.logFile = msg.LogFile
		m.state = StateRunning
		cmds = append(cmds, m.startRun(msg.Items), m.tickProgress(), waitForEvent(m.events))

	case RunDoneMsg:
		if m.logFile != nil {
			m.logFile.Close()
			m.logFile = nil
		}
		m.snapshot = msg.Progress
		m.summary = msg.Summary
		m.manifest = msg.Manifest
		switch {
		case errors.Is(msg.Err, context.Canceled):
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user; %d of %d items finished", msg.Summary.CompleteItems, m.items)
		case msg.Err != nil:
			m.state = StateError
			m.err = msg.Err
		default:
			m.state = StateComplete
		}

	case TickMsg:
		if m.manager != nil && m.state == StateRunning {
			m.snapshot = m.manager.GetProgress()
			cmds = append(cmds, m.progress.SetPercent(m.snapshot.Fraction()), m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// waitForEvent delivers the next progress event from ch.
func waitForEvent(ch chan download.ProgressEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return ProgressMsg{Event: event}
	}
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Deck Media"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Images and speech clips for vocabulary decks"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateLoading:
		b.WriteString(m.viewLoading())
	case StateRunning:
		b.WriteString(m.viewRunning())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Item list (CSV or JSON):"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s Create review playlist (ctrl+p)\n", checkbox(m.playlist)))
	b.WriteString(fmt.Sprintf("  %s Verbose output (ctrl+t)\n", checkbox(m.verbose)))
	b.WriteString(fmt.Sprintf("  %s Ignore cache index (ctrl+n)\n", checkbox(m.noCache)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Media directory: %s | Voice: %s", m.settings.MediaDir, m.settings.Voice)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewLoading() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render("Loading items..."))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewRunning() string {
	var b strings.Builder
	p := m.snapshot

	b.WriteString(m.progress.ViewAs(p.Fraction()))
	b.WriteString("\n")

	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Items: %d/%d | Assets: %d/%d | Failed: %d | Downloaded: %s",
		p.ItemsDone, p.ItemsTotal,
		p.AssetsDone, p.AssetsTotal,
		p.Failed,
		humanize.Bytes(uint64(p.Bytes)),
	)))
	b.WriteString("\n")
	b.WriteString(limitStyle.Render(fmt.Sprintf("Concurrency: %d in flight of %d", p.InFlight, p.Limit)))
	if m.ctx.Err() != nil {
		b.WriteString(" ")
		b.WriteString(warningStyle.Render("(cancelling...)"))
	}
	b.WriteString("\n\n")

	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder
	s := m.summary

	text := fmt.Sprintf(
		"Run complete\n\n"+
			"Items: %d complete, %d partial\n"+
			"Assets: %d acquired, %d failed\n"+
			"Size: %s\n"+
			"Elapsed: %s",
		s.CompleteItems, s.PartialItems,
		s.Acquired(), s.Failed(),
		humanize.Bytes(uint64(s.TotalBytes)),
		s.Elapsed.Round(time.Second),
	)
	if m.manifest != "" {
		text += "\nManifest: " + m.manifest
	}
	b.WriteString(boxStyle.Render(text))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}
	if m.manifest != "" {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  Manifest: " + m.manifest))
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case download.LevelError:
			style = errorStyle
			prefix = "✗"
		case download.LevelWarning:
			style = warningStyle
			prefix = "!"
		case download.LevelSuccess:
			style = successStyle
			prefix = "✓"
		case download.LevelInfo:
			style = infoStyle
			prefix = "›"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: start • ctrl+p: playlist • ctrl+t: verbose • ctrl+n: ignore cache • esc: quit"
	case StateLoading, StateRunning:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: new run • q: quit"
	}
	return ""
}

// loadItems reads the item list and creates the manager.
func (m *Model) loadItems() tea.Cmd {
	path := strings.TrimSpace(m.textInput.Value())
	settings := *m.settings
	settings.CreatePlaylist = m.playlist
	noCache := m.noCache

	return func() tea.Msg {
		items, err := source.NewLoader(source.DefaultColumns()).Load(path)
		if err != nil {
			return LoadedMsg{Err: fmt.Errorf("load %s: %w", path, err)}
		}
		if err := settings.Validate(); err != nil {
			return LoadedMsg{Err: err}
		}

		// Logging goes to the file only; the console belongs to the UI.
		log, logFile, err := logging.New(logging.Options{Level: settings.LogLevel, File: settings.LogFile})
		if err != nil {
			return LoadedMsg{Err: err}
		}

		events := make(chan download.ProgressEvent, 256)
		opts := []download.Option{download.WithLogger(log)}
		if noCache {
			opts = append(opts, download.WithCache(cache.Open(cache.Options{MinSize: settings.MinFileSize, Logger: log})))
		}
		manager := download.NewManager(&settings, func(event download.ProgressEvent) {
			select {
			case events <- event:
			default:
				// Drop rather than stall workers when the UI falls behind.
			}
		}, opts...)

		return LoadedMsg{Items: items, Manager: manager, Events: events, LogFile: logFile}
	}
}

// startRun runs the manager in the background and writes its outputs.
func (m *Model) startRun(items []*model.Item) tea.Cmd {
	manager := m.manager
	events := m.events
	ctx := m.ctx
	settings := m.settings
	playlist := m.playlist

	return func() tea.Msg {
		if manager == nil {
			return RunDoneMsg{Err: fmt.Errorf("no manager")}
		}

		manifests, err := manager.Run(ctx, items)
		// Run has returned, so no more events can be sent.
		close(events)
		done := RunDoneMsg{Progress: manager.GetProgress(), Summary: manager.Summary(), Err: err}
		if errors.Is(err, download.ErrStorage) {
			return done
		}

		path := filepath.Join(settings.MediaDir, "manifest.json")
		if werr := report.WriteManifests(path, uuid.NewString(), manifests, done.Summary); werr != nil {
			if done.Err == nil {
				done.Err = werr
			}
			return done
		}
		done.Manifest = path

		if playlist {
			if _, perr := audio.WriteReviewPlaylist(settings.MediaDir, manifests); perr != nil && done.Err == nil {
				done.Err = perr
			}
		}
		return done
	}
}

// Run starts the TUI application.
func Run(settings *config.Settings, itemsPath string) error {
	p := tea.NewProgram(NewModel(settings, itemsPath), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
