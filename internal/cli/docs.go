package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/riskdesk/internal/actions"
	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/doclist"
	"github.com/valter-silva-au/riskdesk/internal/present"
	"github.com/valter-silva-au/riskdesk/internal/reconcile"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

var (
	docsProject string
	docsSearch  string
	docsStatus  string
	docsJSON    bool
	docsType    string
	docsName    string
)

var docsCmd = &cobra.Command{
	Use:     "docs",
	Aliases: []string{"documents"},
	Short:   "Manage project documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Long: `List documents, optionally narrowed to one project, a name search or a
status. Filtering is done by the backend.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		status := models.DocumentStatus(docsStatus)
		if status != "" && !status.Valid() {
			return fmt.Errorf("invalid status %q", docsStatus)
		}

		docs, err := Backend.ListDocuments(cmd.Context(), models.DocumentFilter{
			ProjectID: docsProject,
			Search:    docsSearch,
			Status:    status,
		})
		if err != nil {
			return friendly(err)
		}

		out := cmd.OutOrStdout()
		if docsJSON {
			return printJSON(out, docs)
		}
		if len(docs) == 0 {
			fmt.Fprintln(out, "No documents found.")
			return nil
		}
		printDocuments(out, docs)
		return nil
	},
}

var docsUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document to a project",
	Long: `Upload a file to a project. The document type is inferred from the file
extension unless --type is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()

		orch := newOrchestrator(orchestratorOpts{notify: consoleNotifier{out: cmd.OutOrStdout()}})
		doc, err := orch.Upload(cmd.Context(), api.UploadRequest{
			ProjectID: docsProject,
			Type:      models.DocumentType(docsType),
			Name:      docsName,
			FileName:  args[0],
			Content:   f,
		})
		if err != nil {
			return friendly(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Document %d created (%s)\n", doc.ID, present.Status(doc.Status).Label)
		return nil
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDocumentAction(cmd, args[0], func(ctx context.Context, o *actions.Orchestrator, id int) error {
			return o.Delete(ctx, id)
		})
	},
}

var docsDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download a document into the configured download directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDocumentAction(cmd, args[0], func(ctx context.Context, o *actions.Orchestrator, id int) error {
			_, err := o.Download(ctx, id)
			return err
		})
	},
}

var docsRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Retry processing or knowledge base parsing of a failed document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDocumentAction(cmd, args[0], func(ctx context.Context, o *actions.Orchestrator, id int) error {
			return o.Retry(ctx, id)
		})
	},
}

var docsKBUploadCmd = &cobra.Command{
	Use:   "kb-upload <id>",
	Short: "Upload a processed document to its project's knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDocumentAction(cmd, args[0], func(ctx context.Context, o *actions.Orchestrator, id int) error {
			return o.UploadToKnowledgeBase(ctx, id)
		})
	},
}

var docsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow documents until none is being processed",
	Long: `Load the document list and poll the backend while any document is in a
transient status (uploading, processing, uploading to or parsing the
knowledge base). Only real changes are printed. Stops when everything has
settled or on Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return watchDocuments(ctx, cmd.OutOrStdout(), docsProject)
	},
}

// runDocumentAction loads the current list, then runs fn on the document id.
func runDocumentAction(cmd *cobra.Command, rawID string, fn func(context.Context, *actions.Orchestrator, int) error) error {
	if err := requireBackend(); err != nil {
		return err
	}
	id, err := strconv.Atoi(rawID)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid document id %q", rawID)
	}
	ctx := cmd.Context()
	store, err := loadStore(ctx, docsProject)
	if err != nil {
		return friendly(err)
	}
	orch := newOrchestrator(orchestratorOpts{
		store:   store,
		confirm: newLineConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr()),
		notify:  consoleNotifier{out: cmd.OutOrStdout()},
	})
	err = fn(ctx, orch, id)
	if errors.Is(err, actions.ErrCancelled) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}
	return friendly(err)
}

// watchDocuments follows the list of projectID until no document is
// transient or ctx is done.
func watchDocuments(ctx context.Context, out io.Writer, projectID string) error {
	ctrl := doclist.New(ctx, doclist.Config{
		Backend:  Backend,
		Bus:      Bus,
		Interval: pollInterval(),
		Logger:   Logger,
		Events:   eventLogger(),
	})
	defer ctrl.Close()

	settled := make(chan struct{})
	var once sync.Once
	unsub := ctrl.Store().Subscribe(func(ch reconcile.Change) {
		if ch.Reason == "reset" {
			return
		}
		printChange(out, ch)
		if ch.Err == "" && !models.HasTransient(ch.Documents) {
			once.Do(func() { close(settled) })
		}
	})
	defer unsub()

	if err := ctrl.SelectProject(ctx, projectID); err != nil {
		return friendly(err)
	}
	if !ctrl.PollingActive() {
		fmt.Fprintln(out, "Nothing in progress.")
		return nil
	}

	select {
	case <-settled:
		fmt.Fprintln(out, "All documents settled.")
	case <-ctx.Done():
	}
	return nil
}

func printChange(out io.Writer, ch reconcile.Change) {
	stamp := dimStyle.Render(time.Now().Format("15:04:05"))
	if ch.Err != "" {
		fmt.Fprintf(out, "%s %s %s\n", stamp, errorStyle.Render("fetch failed:"), ch.Err)
		return
	}
	var parts []string
	for _, d := range ch.Documents {
		if d.Status.IsTransient() {
			parts = append(parts, fmt.Sprintf("#%d %s %s", d.ID, present.Status(d.Status).Label, present.Progress(d.Progress, 10)))
		}
	}
	summary := "no documents in progress"
	if len(parts) > 0 {
		summary = strings.Join(parts, " | ")
	}
	fmt.Fprintf(out, "%s %d document(s) [%s] %s\n", stamp, len(ch.Documents), ch.Reason, summary)
}

func printDocuments(out io.Writer, docs []models.Document) {
	fmt.Fprintf(out, "%-5s %-32s %-9s %-16s %-16s %-9s %s\n", "ID", "NAME", "TYPE", "STATUS", "PROGRESS", "SIZE", "UPLOADED")
	for _, d := range docs {
		fmt.Fprintf(out, "%-5d %-32s %-9s %-16s %-16s %-9s %s\n",
			d.ID,
			truncate(d.Name, 32),
			string(d.Type),
			present.Status(d.Status).Label,
			present.Progress(d.Progress, 10),
			d.Size,
			uploadedAgo(d.UploadTime))
	}
}

func init() {
	docsCmd.PersistentFlags().StringVarP(&docsProject, "project", "p", "", "Project ID (all projects when empty)")

	docsListCmd.Flags().StringVarP(&docsSearch, "search", "s", "", "Case-insensitive name search")
	docsListCmd.Flags().StringVar(&docsStatus, "status", "", "Only documents with this status")
	docsListCmd.Flags().BoolVar(&docsJSON, "json", false, "Output documents as JSON")

	docsUploadCmd.Flags().StringVarP(&docsType, "type", "t", "", "Document type (pdf, excel, word, image, markdown, text)")
	docsUploadCmd.Flags().StringVar(&docsName, "name", "", "Document name (defaults to the file name)")

	docsCmd.AddCommand(docsListCmd, docsUploadCmd, docsDeleteCmd, docsDownloadCmd, docsRetryCmd, docsKBUploadCmd, docsWatchCmd)
	rootCmd.AddCommand(docsCmd)
}
