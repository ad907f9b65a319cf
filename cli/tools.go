package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/tooldispatch/config"
	"github.com/petal-labs/tooldispatch/tool"
)

// NewToolsCmd creates the "tools" subcommand.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools a tools directory provides",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}
	cmd.Flags().String("tools-dir", config.DefaultToolsDir, "Directory of tool units")
	cmd.Flags().Bool("json", false, "Print the list as JSON")
	cmd.Flags().Bool("builtins", false, "List the builtin names native units can bind instead")
	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if builtins, _ := cmd.Flags().GetBool("builtins"); builtins {
		return printBuiltins(cmd, asJSON)
	}

	registry, _, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	if asJSON {
		tools := registry.Tools()
		if tools == nil {
			tools = []tool.Tool{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(tools); err != nil {
			return exitError(exitRuntime, "encoding tools: %v", err)
		}
		return nil
	}

	if registry.Len() == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tools loaded.")
		return nil
	}
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tORIGIN\tSOURCE\tDESCRIPTION")
	for _, t := range registry.Tools() {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", t.Name, t.Origin, dash(t.Source), dash(t.Description))
	}
	return writer.Flush()
}

func printBuiltins(cmd *cobra.Command, asJSON bool) error {
	names := tool.BuiltinNames()
	if asJSON {
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(names); err != nil {
			return exitError(exitRuntime, "encoding builtins: %v", err)
		}
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

// loadRegistry resolves config and loads the tools directory for one-shot
// commands. Load failures are logged to stderr.
func loadRegistry(cmd *cobra.Command) (*tool.Registry, config.Config, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, config.Config{}, err
	}
	logger := newLogger(cmd, cfg)
	registry, err := tool.LoadAll(cfg.ToolsDir, tool.LoadOptions{
		Logger: logger.With("component", "registry"),
	})
	if err != nil {
		return nil, config.Config{}, exitError(exitConfig, "loading tools: %v", err)
	}
	return registry, cfg, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
