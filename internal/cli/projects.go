package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/riskdesk/internal/actions"
	"github.com/valter-silva-au/riskdesk/internal/present"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

var (
	projectsJSON bool
	projectName  string
	projectType  string
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List and create credit review projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects with their document counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		projects, err := Backend.ListProjects(cmd.Context())
		if err != nil {
			return friendly(err)
		}

		out := cmd.OutOrStdout()
		if projectsJSON {
			return printJSON(out, projects)
		}
		if len(projects) == 0 {
			fmt.Fprintln(out, "No projects found.")
			return nil
		}

		last := ""
		if Prefs != nil {
			last = Prefs.Get().LastProjectID
		}
		fmt.Fprintf(out, "  %-6s %-40s %-11s %-11s %s\n", "ID", "NAME", "TYPE", "STATUS", "DOCUMENTS")
		for _, p := range projects {
			marker := " "
			if p.ID == last {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-6s %-40s %-11s %-11s %d\n",
				marker, p.ID, truncate(p.Name, 40),
				present.ProjectTypeLabel(p.Type), present.ProjectStatusLabel(p.Status), p.Documents)
		}
		return nil
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		name := strings.TrimSpace(projectName)
		if name == "" {
			return fmt.Errorf("--name is required")
		}
		typ := models.ProjectType(projectType)
		if typ != models.ProjectTypeEnterprise && typ != models.ProjectTypeIndividual {
			return fmt.Errorf("invalid project type %q: must be enterprise or individual", projectType)
		}

		p, err := Backend.CreateProject(cmd.Context(), models.NewProject{Name: name, Type: typ})
		if err != nil {
			return friendly(err)
		}
		if Prefs != nil {
			Prefs.SelectProject(p.ID)
			_ = Prefs.Save()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created project %s: %s\n", p.ID, p.Name)
		return nil
	},
}

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Knowledge base commands",
}

var kbRebuildCmd = &cobra.Command{
	Use:   "rebuild <project-id>",
	Short: "Rebuild a project's knowledge base",
	Long: `Rebuild the knowledge base of a project. Existing knowledge base entries
are replaced; documents re-enter the knowledge base pipeline.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		orch := newOrchestrator(orchestratorOpts{
			confirm: newLineConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr()),
			notify:  consoleNotifier{out: cmd.OutOrStdout()},
		})
		err := orch.RebuildKnowledgeBase(cmd.Context(), args[0])
		if errors.Is(err, actions.ErrCancelled) {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
		return friendly(err)
	},
}

func init() {
	projectsListCmd.Flags().BoolVar(&projectsJSON, "json", false, "Output projects as JSON")
	projectsCreateCmd.Flags().StringVar(&projectName, "name", "", "Project name")
	projectsCreateCmd.Flags().StringVar(&projectType, "type", string(models.ProjectTypeEnterprise), "Project type (enterprise or individual)")

	projectsCmd.AddCommand(projectsListCmd, projectsCreateCmd)
	kbCmd.AddCommand(kbRebuildCmd)
	rootCmd.AddCommand(projectsCmd, kbCmd)
}
