package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/riskdesk/internal/actions"
	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/doclist"
	"github.com/valter-silva-au/riskdesk/internal/present"
	"github.com/valter-silva-au/riskdesk/internal/reconcile"
	"github.com/valter-silva-au/riskdesk/internal/storage"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// Dashboard panel indices.
const (
	panelProjects = iota
	panelDocuments
	panelCount
)

const (
	// frameInterval paces the flush of batched list commits.
	frameInterval = time.Second / 30
	toastTTL      = 4 * time.Second
	maxToasts     = 4
)

// statusFilters cycles through "all" and every document status.
var statusFilters = append([]models.DocumentStatus{""}, models.AllDocumentStatuses...)

// Messages.
type (
	overviewLoadedMsg struct {
		stats    *models.Stats
		projects []models.Project
		err      error
	}
	projectLoadedMsg struct {
		projectID string
		err       error
	}
	filterAppliedMsg struct{ err error }
	docsChangedMsg   struct{}
	countChangedMsg  struct{ projectID string }
	actionDoneMsg    struct {
		op  actions.Op
		err error
	}
	confirmRequestMsg struct {
		prompt actions.Prompt
		reply  chan bool
	}
	noticeMsg    actions.Notice
	frameTickMsg time.Time
)

// uiBridge lets code running outside the Update loop talk to the program:
// notices and list changes become messages, confirmations block until the
// user answers.
type uiBridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func (b *uiBridge) attach(send func(tea.Msg)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send = send
}

func (b *uiBridge) Send(msg tea.Msg) bool {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send == nil {
		return false
	}
	send(msg)
	return true
}

// Post delivers msg without waiting for the event loop. Store commits
// flushed on a frame tick run inside Update, where Send would block.
func (b *uiBridge) Post(msg tea.Msg) bool {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send == nil {
		return false
	}
	go send(msg)
	return true
}

func (b *uiBridge) Confirm(p actions.Prompt) bool {
	reply := make(chan bool, 1)
	if !b.Send(confirmRequestMsg{prompt: p, reply: reply}) {
		return false
	}
	return <-reply
}

func (b *uiBridge) Notify(n actions.Notice) {
	b.Send(noticeMsg(n))
}

type toast struct {
	notice  actions.Notice
	expires time.Time
}

// dashboardDeps are the services the dashboard model runs against.
type dashboardDeps struct {
	ctx     context.Context
	backend api.Backend
	prefs   storage.PreferencesManager
	list    *doclist.Controller
	orch    *actions.Orchestrator
	sched   *reconcile.BatchScheduler
	bridge  *uiBridge
}

type dashboardModel struct {
	dashboardDeps

	activePanel int
	width       int
	height      int

	stats      *models.Stats
	projects   []models.Project
	projectIdx int
	projectID  string

	docs      []models.Document
	docIdx    int
	statusIdx int
	listErr   string

	search    textinput.Model
	searching bool
	spinner   spinner.Model

	loading bool
	busy    int
	err     error

	confirm *confirmRequestMsg
	toasts  []toast
	now     func() time.Time
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("238"))

	confirmStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// newDashboard wires the list controller, orchestrator and bridge for a
// dashboard session. The returned cleanup stops polling.
func newDashboard(ctx context.Context, backend api.Backend, prefs storage.PreferencesManager) (dashboardModel, func()) {
	bridge := &uiBridge{}
	sched := &reconcile.BatchScheduler{}
	list := doclist.New(ctx, doclist.Config{
		Backend:  backend,
		Store:    reconcile.NewStore(sched),
		Bus:      Bus,
		Interval: pollInterval(),
		Logger:   Logger,
		Events:   eventLogger(),
	})
	unsub := list.Store().Subscribe(func(reconcile.Change) {
		bridge.Post(docsChangedMsg{})
	})

	orch := actions.New(actions.Deps{
		Backend: backend,
		Store:   list.Store(),
		Confirm: bridge,
		Notify:  fanoutNotifier{bridge, &alertForwarder{notifier: Notifier, logger: Logger}},
		Saver:   actions.DirSaver{Dir: downloadDir()},
		Bus:     list.Bus(),
		Events:  eventLogger(),
		Refresh: func(ctx context.Context) { _ = list.Refresh(ctx, true) },
		OnDocumentCountChanged: func(projectID string) {
			bridge.Send(countChangedMsg{projectID: projectID})
		},
	})

	m := newDashboardModel(dashboardDeps{
		ctx:     ctx,
		backend: backend,
		prefs:   prefs,
		list:    list,
		orch:    orch,
		sched:   sched,
		bridge:  bridge,
	})
	return m, func() {
		unsub()
		list.Close()
	}
}

func newDashboardModel(deps dashboardDeps) dashboardModel {
	search := textinput.New()
	search.Placeholder = "search document names"
	search.Prompt = "/ "
	search.CharLimit = 120

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := dashboardModel{
		dashboardDeps: deps,
		activePanel:   panelProjects,
		loading:       true,
		search:        search,
		spinner:       sp,
		now:           time.Now,
	}
	if deps.prefs != nil {
		p := deps.prefs.Get()
		m.search.SetValue(p.LastSearch)
		for i, s := range statusFilters {
			if s == p.LastStatus {
				m.statusIdx = i
			}
		}
	}
	return m
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.loadOverview, m.spinner.Tick, frameTick())
}

func frameTick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameTickMsg(t) })
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case overviewLoadedMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.stats = msg.stats
		m.projects = msg.projects
		if m.projectID == "" && len(m.projects) > 0 {
			m.projectIdx = m.initialProject()
			m.loading = true
			return m, m.selectProject(m.projects[m.projectIdx].ID)
		}
		m.loading = false
		return m, nil

	case projectLoadedMsg:
		m.loading = false
		m.syncDocs()
		return m, nil

	case filterAppliedMsg:
		m.loading = false
		m.syncDocs()
		return m, nil

	case docsChangedMsg:
		m.syncDocs()
		return m, nil

	case countChangedMsg:
		return m, m.loadOverview

	case actionDoneMsg:
		if m.busy > 0 {
			m.busy--
		}
		m.syncDocs()
		if msg.op == actions.OpRebuildKB && msg.err == nil {
			return m, m.loadOverview
		}
		return m, nil

	case confirmRequestMsg:
		if m.confirm != nil {
			// One prompt at a time.
			msg.reply <- false
			return m, nil
		}
		m.confirm = &msg
		return m, nil

	case noticeMsg:
		m.toasts = append(m.toasts, toast{notice: actions.Notice(msg), expires: m.now().Add(toastTTL)})
		if len(m.toasts) > maxToasts {
			m.toasts = m.toasts[len(m.toasts)-maxToasts:]
		}
		return m, nil

	case frameTickMsg:
		if m.sched != nil && m.sched.Flush() > 0 {
			m.syncDocs()
		}
		m.pruneToasts()
		return m, frameTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m dashboardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm != nil {
		switch msg.String() {
		case "y", "Y", "enter":
			m.answer(true)
		case "n", "N", "esc", "q":
			m.answer(false)
		case "ctrl+c":
			m.answer(false)
			return m, m.quit()
		}
		return m, nil
	}

	if m.searching {
		switch msg.String() {
		case "enter":
			m.searching = false
			m.search.Blur()
			m.loading = true
			return m, m.applyFilter()
		case "esc":
			m.searching = false
			m.search.Blur()
			return m, nil
		case "ctrl+c":
			return m, m.quit()
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, m.quit()
	case "tab":
		m.activePanel = (m.activePanel + 1) % panelCount
	case "shift+tab":
		m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "enter":
		if m.activePanel == panelProjects && len(m.projects) > 0 {
			id := m.projects[m.projectIdx].ID
			if id != m.projectID {
				m.loading = true
				m.docIdx = 0
				return m, m.selectProject(id)
			}
			m.activePanel = panelDocuments
		}
	case "/":
		m.searching = true
		return m, m.search.Focus()
	case "s":
		m.statusIdx = (m.statusIdx + 1) % len(statusFilters)
		m.loading = true
		return m, m.applyFilter()
	case "r":
		m.loading = true
		return m, tea.Batch(m.loadOverview, m.refreshList)
	case "d":
		return m.runOnSelected(actions.OpDelete, m.orch.Delete)
	case "t":
		return m.runOnSelected(actions.OpRetry, m.orch.Retry)
	case "u":
		return m.runOnSelected(actions.OpUploadToKB, m.orch.UploadToKnowledgeBase)
	case "o":
		return m.runOnSelected("download", func(ctx context.Context, id int) error {
			_, err := m.orch.Download(ctx, id)
			return err
		})
	case "b":
		if m.projectID == "" {
			return m, nil
		}
		m.busy++
		projectID := m.projectID
		return m, func() tea.Msg {
			return actionDoneMsg{op: actions.OpRebuildKB, err: m.orch.RebuildKnowledgeBase(m.ctx, projectID)}
		}
	}
	return m, nil
}

func (m *dashboardModel) answer(yes bool) {
	if m.confirm == nil {
		return
	}
	m.confirm.reply <- yes
	m.confirm = nil
}

func (m *dashboardModel) quit() tea.Cmd {
	m.answer(false)
	if m.prefs != nil {
		_ = m.prefs.Save()
	}
	return tea.Quit
}

func (m *dashboardModel) moveCursor(delta int) {
	switch m.activePanel {
	case panelProjects:
		m.projectIdx = clamp(m.projectIdx+delta, len(m.projects))
	case panelDocuments:
		m.docIdx = clamp(m.docIdx+delta, len(m.docs))
	}
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func (m dashboardModel) runOnSelected(op actions.Op, fn func(context.Context, int) error) (tea.Model, tea.Cmd) {
	if len(m.docs) == 0 {
		return m, nil
	}
	id := m.docs[m.docIdx].ID
	m.busy++
	ctx := m.ctx
	return m, func() tea.Msg {
		err := fn(ctx, id)
		if errors.Is(err, actions.ErrInFlight) {
			m.bridge.Notify(actions.Notice{Level: actions.LevelInfo, Title: "Retry already in progress", Time: time.Now()})
		}
		return actionDoneMsg{op: op, err: err}
	}
}

// initialProject picks the last selected project when it still exists.
func (m dashboardModel) initialProject() int {
	if m.prefs == nil {
		return 0
	}
	last := m.prefs.Get().LastProjectID
	for i, p := range m.projects {
		if p.ID == last {
			return i
		}
	}
	return 0
}

func (m *dashboardModel) syncDocs() {
	m.docs = m.list.Documents()
	m.listErr = m.list.Err()
	m.docIdx = clamp(m.docIdx, len(m.docs))
}

func (m *dashboardModel) pruneToasts() {
	now := m.now()
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if now.Before(t.expires) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

// --- Commands ---

// loadOverview fetches stats and projects concurrently.
func (m dashboardModel) loadOverview() tea.Msg {
	var (
		stats    *models.Stats
		projects []models.Project
	)
	g, ctx := errgroup.WithContext(m.ctx)
	g.Go(func() error {
		s, err := m.backend.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("loading stats: %w", err)
		}
		stats = s
		return nil
	})
	g.Go(func() error {
		p, err := m.backend.ListProjects(ctx)
		if err != nil {
			return fmt.Errorf("loading projects: %w", err)
		}
		projects = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return overviewLoadedMsg{err: err}
	}
	return overviewLoadedMsg{stats: stats, projects: projects}
}

func (m *dashboardModel) selectProject(id string) tea.Cmd {
	m.projectID = id
	if m.prefs != nil {
		m.prefs.SelectProject(id)
	}
	list, ctx := m.list, m.ctx
	search, status := m.search.Value(), statusFilters[m.statusIdx]
	return func() tea.Msg {
		list.UseFilter(search, status)
		return projectLoadedMsg{projectID: id, err: list.SelectProject(ctx, id)}
	}
}

func (m *dashboardModel) applyFilter() tea.Cmd {
	search, status := m.search.Value(), statusFilters[m.statusIdx]
	if m.prefs != nil {
		m.prefs.SetFilter(search, status)
	}
	m.docIdx = 0
	list, ctx := m.list, m.ctx
	return func() tea.Msg {
		return filterAppliedMsg{err: list.SetFilter(ctx, search, status)}
	}
}

func (m dashboardModel) refreshList() tea.Msg {
	return filterAppliedMsg{err: m.list.Refresh(m.ctx, false)}
}

// --- View ---

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" RiskDesk ")
	help := helpStyle.Render("tab: panel | ↑/↓: move | enter: open | /: search | s: status | d: delete | o: download | t: retry | u: to KB | b: rebuild KB | r: refresh | q: quit")

	if m.err != nil && m.projects == nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, api.Message(m.err), help)
	}

	statsLine := m.renderStats()
	availableWidth := m.width - 2
	projectsWidth := availableWidth / 3
	if projectsWidth < 24 {
		projectsWidth = 24
	}
	docsWidth := availableWidth - projectsWidth - 4
	if docsWidth < 40 {
		docsWidth = 40
	}

	projects := m.applyPanelStyle(panelProjects, m.renderProjectsPanel(projectsWidth), projectsWidth)
	docs := m.applyPanelStyle(panelDocuments, m.renderDocumentsPanel(docsWidth), docsWidth)

	var body string
	if m.width > 100 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, projects, docs)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left, projects, docs)
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("  ")
	b.WriteString(statsLine)
	b.WriteString("\n\n")
	b.WriteString(body)
	b.WriteString("\n")
	if m.confirm != nil {
		b.WriteString(m.renderConfirm())
		b.WriteString("\n")
	}
	for _, t := range m.toasts {
		b.WriteString(renderToast(t.notice))
		b.WriteString("\n")
	}
	b.WriteString(help)
	return b.String()
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderStats() string {
	if m.stats == nil {
		return helpStyle.Render("loading stats…")
	}
	s := m.stats
	return fmt.Sprintf("%d projects · %d documents · %s processing · %s completed · %s failed · %s used",
		s.TotalProjects, s.TotalDocuments,
		present.Status(models.DocStatusProcessing).Style().Render(fmt.Sprint(s.ProcessingDocuments)),
		present.Status(models.DocStatusCompleted).Style().Render(fmt.Sprint(s.CompletedDocuments)),
		present.Status(models.DocStatusFailed).Style().Render(fmt.Sprint(s.FailedDocuments)),
		s.StorageUsed)
}

func (m dashboardModel) renderProjectsPanel(width int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Projects"))
	b.WriteString("\n")
	if len(m.projects) == 0 {
		b.WriteString("  No projects.")
		return b.String()
	}
	for i, p := range m.projects {
		marker := "  "
		if p.ID == m.projectID {
			marker = "▸ "
		}
		line := fmt.Sprintf("%s%s (%d)", marker, truncate(p.Name, width-10), p.Documents)
		if i == m.projectIdx && m.activePanel == panelProjects {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("    %s · %s", present.ProjectTypeLabel(p.Type), present.ProjectStatusLabel(p.Status))))
		b.WriteString("\n")
	}
	return b.String()
}

func (m dashboardModel) renderDocumentsPanel(width int) string {
	var b strings.Builder
	header := "Documents"
	if f := statusFilters[m.statusIdx]; f != "" {
		header += " · " + present.Status(f).Label
	}
	if q := m.search.Value(); q != "" && !m.searching {
		header += fmt.Sprintf(" · %q", q)
	}
	b.WriteString(headerStyle.Render(header))
	if m.loading || m.busy > 0 || m.list.PollingActive() {
		b.WriteString(" ")
		b.WriteString(m.spinner.View())
	}
	b.WriteString("\n")
	if m.searching {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}

	if m.listErr != "" {
		b.WriteString(errorStyle.Render("  " + m.listErr))
		return b.String()
	}
	if len(m.docs) == 0 {
		if m.loading {
			b.WriteString("  Loading…")
		} else {
			b.WriteString("  No documents.")
		}
		return b.String()
	}

	nameWidth := width - 40
	if nameWidth < 12 {
		nameWidth = 12
	}
	for i, d := range m.docs {
		status := present.Status(d.Status)
		line := fmt.Sprintf("%s %-*s %s",
			present.Type(d.Type).Icon,
			nameWidth, truncate(d.Name, nameWidth),
			status.Render())
		if d.Status.IsTransient() {
			line += " " + present.Progress(d.Progress, 8)
		}
		if i == m.docIdx && m.activePanel == panelDocuments {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m dashboardModel) renderConfirm() string {
	p := m.confirm.prompt
	title := headerStyle.Render(p.Title)
	if p.Danger {
		title = errorStyle.Render(p.Title)
	}
	return confirmStyle.Render(fmt.Sprintf("%s\n%s\n\n%s", title, p.Message, helpStyle.Render("y: confirm | n: cancel")))
}

func renderToast(n actions.Notice) string {
	var mark string
	switch n.Level {
	case actions.LevelSuccess:
		mark = successStyle.Render("✓")
	case actions.LevelError:
		mark = errorStyle.Render("✗")
	default:
		mark = infoStyle.Render("•")
	}
	if n.Message == "" {
		return fmt.Sprintf("%s %s", mark, n.Title)
	}
	return fmt.Sprintf("%s %s: %s", mark, n.Title, n.Message)
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI for projects and documents",
	Long: `Launch an interactive terminal dashboard showing totals, projects and the
document list of the selected project. The list follows documents that are
still being processed.

Navigate between panels with Tab, search with /, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		m, cleanup := newDashboard(ctx, Backend, Prefs)
		defer cleanup()

		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		m.bridge.attach(p.Send)
		_, err := p.Run()
		m.bridge.attach(nil)
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
