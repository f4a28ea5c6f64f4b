package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/valter-silva-au/riskdesk/internal/actions"
	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/observability"
	"github.com/valter-silva-au/riskdesk/internal/poller"
	"github.com/valter-silva-au/riskdesk/internal/reconcile"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// uploadTimeLayout is the format the backend uses for uploadTime.
const uploadTimeLayout = "2006-01-02 15:04"

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func requireBackend() error {
	if Backend == nil {
		return fmt.Errorf("backend not initialized")
	}
	return nil
}

func pollInterval() time.Duration {
	if Cfg == nil || Cfg.Polling.IntervalSeconds <= 0 {
		return poller.DefaultInterval
	}
	return time.Duration(Cfg.Polling.IntervalSeconds) * time.Second
}

func downloadDir() string {
	if Cfg == nil || Cfg.Download.Dir == "" {
		return "."
	}
	return Cfg.Download.Dir
}

// orchestratorOpts customises newOrchestrator for a command.
type orchestratorOpts struct {
	store   *reconcile.Store
	confirm actions.Confirmer
	notify  actions.Notifier
	refresh func(ctx context.Context)
}

// newOrchestrator wires an action orchestrator to the package services. Error
// notices are also forwarded to Slack when a notifier is configured.
func newOrchestrator(opts orchestratorOpts) *actions.Orchestrator {
	confirm := opts.confirm
	if assumeYes {
		confirm = actions.AlwaysConfirm
	}
	var notify actions.Notifier = fanoutNotifier{opts.notify, &alertForwarder{notifier: Notifier, logger: Logger}}
	return actions.New(actions.Deps{
		Backend: Backend,
		Store:   opts.store,
		Confirm: confirm,
		Notify:  notify,
		Saver:   actions.DirSaver{Dir: downloadDir()},
		Bus:     Bus,
		Events:  eventLogger(),
		Refresh: opts.refresh,
		OnDocumentCountChanged: func(projectID string) {
			Logger.Debug("document count changed", zap.String("project_id", projectID))
		},
	})
}

// eventLogger returns the activity recorder, or nil when none is configured.
func eventLogger() actions.EventLogger {
	if Recorder == nil {
		return nil
	}
	return Recorder
}

// loadStore fetches the documents of projectID (all projects when empty) into
// a fresh store so that actions can look documents up by id.
func loadStore(ctx context.Context, projectID string) (*reconcile.Store, error) {
	docs, err := Backend.ListDocuments(ctx, models.DocumentFilter{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	store := reconcile.NewStore(nil)
	store.Apply(docs)
	return store, nil
}

// --- Notifiers ---

// consoleNotifier prints notices as single styled lines.
type consoleNotifier struct {
	out io.Writer
}

func (c consoleNotifier) Notify(n actions.Notice) {
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
		fmt.Fprintf(c.out, "%s %s\n", mark, n.Title)
		return
	}
	fmt.Fprintf(c.out, "%s %s: %s\n", mark, n.Title, n.Message)
}

// fanoutNotifier delivers each notice to every non-nil notifier.
type fanoutNotifier []actions.Notifier

func (f fanoutNotifier) Notify(n actions.Notice) {
	for _, x := range f {
		if x != nil {
			x.Notify(n)
		}
	}
}

// pendingAlerts tracks forwarded alerts that are still being posted.
var pendingAlerts sync.WaitGroup

// alertDrainTimeout bounds how long Execute waits for pending alerts.
const alertDrainTimeout = 5 * time.Second

// alertForwarder turns error notices into alerts for an external notifier.
// Alerts are posted in the background so a slow webhook never holds up the
// action that failed.
type alertForwarder struct {
	notifier observability.Notifier
	logger   *zap.Logger
	pending  *sync.WaitGroup // nil means pendingAlerts
}

func (a *alertForwarder) Notify(n actions.Notice) {
	if a.notifier == nil || n.Level != actions.LevelError {
		return
	}
	at := n.Time
	if at.IsZero() {
		at = time.Now()
	}
	alert := observability.Alert{
		ID:           fmt.Sprintf("action-failed-%d", at.UnixNano()),
		Condition:    observability.EventActionFailed,
		Severity:     observability.SeverityMedium,
		Title:        n.Title,
		Message:      n.Message,
		TriggeredAt:  at.UTC(),
		DocumentID:   n.DocumentID,
		DocumentName: n.DocumentName,
		ProjectID:    n.ProjectID,
	}

	wg := a.pending
	if wg == nil {
		wg = &pendingAlerts
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.notifier.Notify([]observability.Alert{alert}); err != nil && a.logger != nil {
			a.logger.Warn("forwarding notice failed", zap.Error(err), zap.Int("document_id", alert.DocumentID))
		}
	}()
}

// waitForAlerts blocks until wg is done or timeout passes, and reports
// whether everything was sent.
func waitForAlerts(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// --- Confirmation ---

// lineConfirmer asks on out and reads a y/N answer from in.
type lineConfirmer struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newLineConfirmer(in io.Reader, out io.Writer) *lineConfirmer {
	return &lineConfirmer{in: bufio.NewReader(in), out: out}
}

func (c *lineConfirmer) Confirm(p actions.Prompt) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	title := p.Title
	if p.Danger {
		title = errorStyle.Render(title)
	}
	fmt.Fprintf(c.out, "%s\n%s [y/N]: ", title, p.Message)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(c.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// --- Formatting ---

// uploadedAgo renders an uploadTime relative to now, keeping the raw value
// when it cannot be parsed.
func uploadedAgo(raw string) string {
	t, err := time.ParseInLocation(uploadTimeLayout, raw, time.Local)
	if err != nil {
		return raw
	}
	return humanize.Time(t)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// friendly turns a backend error into the text shown to users.
func friendly(err error) error {
	if err == nil {
		return nil
	}
	switch api.Classify(err) {
	case api.KindNetwork:
		return fmt.Errorf("backend unreachable: %s", api.Message(err))
	case api.KindApplication:
		return fmt.Errorf("%s", api.Message(err))
	}
	return err
}
