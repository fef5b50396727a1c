package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaharia-lab/notifyd/internal/config"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

// NewTemplatesCmd returns the "templates" command group for catalog management.
func NewTemplatesCmd(cfg *config.AppConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage the template catalog",
	}
	cmd.AddCommand(
		newTemplatesListCmd(cfg),
		newTemplatesImportCmd(cfg),
		newTemplatesStatusCmd(cfg, "enable", storage.TemplateEnabled),
		newTemplatesStatusCmd(cfg, "disable", storage.TemplateDisabled),
	)
	return cmd
}

func newTemplatesListCmd(cfg *config.AppConfig) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates in catalog order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				templates, err := a.svc.ListTemplates(ctx, code)
				if err != nil {
					return err
				}
				renderTemplates(cmd.OutOrStdout(), templates)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Only templates with this code")
	return cmd
}

func newTemplatesImportCmd(cfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import templates from a YAML file",
		Long: `Import templates from a YAML file. The file holds a "templates" list; each
entry has code, name, channels, variables, content (per channel) and an
optional status. Templates are appended to the catalog, so for a shared code
the earlier import wins a channel.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := loadTemplateFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				imported, err := a.svc.ImportTemplates(ctx, templates)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Imported %d template(s).", len(imported))))
				renderTemplates(cmd.OutOrStdout(), imported)
				return nil
			})
		},
	}
}

func newTemplatesStatusCmd(cfg *config.AppConfig, verb string, status storage.TemplateStatus) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: fmt.Sprintf("Mark a template %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", args[0])
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				if err := a.svc.SetTemplateStatus(ctx, id, status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Template %d is now %s.\n", id, status)
				return nil
			})
		},
	}
}

type templateFile struct {
	Templates []*storage.Template `yaml:"templates"`
}

// loadTemplateFile reads a YAML template import file.
func loadTemplateFile(path string) ([]*storage.Template, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("%s: no templates defined", path)
	}
	return f.Templates, nil
}
