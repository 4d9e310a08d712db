package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	docsqlite "github.com/mirelark/storyloom/internal/document/sqlite"
	"github.com/mirelark/storyloom/internal/scenario"
)

var lintFile string

var lintCmd = &cobra.Command{
	Use:   "lint [scenario-id[@version]]",
	Short: "Statically check a scenario graph",
	Long: `Lint validates a scenario graph and reports authoring findings:
edges to unknown nodes, orphan nodes, excessive fan-out, and cycles.

The graph is read from the document store by id (active version unless
@version is given), or from a JSON file with --file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLint,
}

func init() {
	lintCmd.Flags().StringVar(&lintFile, "file", "", "Lint a graph from a JSON file instead of the store")
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	raw, name, err := lintSource(cmd, args)
	if err != nil {
		return err
	}

	graph, err := scenario.Parse(raw)
	if err != nil {
		return err
	}
	if err := scenario.Validate(graph); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %v\n", color.RedString("invalid"), name, err)
		return err
	}

	findings := scenario.Lint(graph)
	if len(findings) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: no findings\n", color.GreenString("ok"), name)
		return nil
	}

	errors := 0
	for _, finding := range findings {
		label := color.YellowString(string(finding.Severity))
		if finding.Severity == scenario.SeverityError {
			label = color.RedString(string(finding.Severity))
			errors++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", label, finding.Code, finding.Message)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d finding(s) in %s\n", len(findings), name)
	if errors > 0 {
		return fmt.Errorf("%d error finding(s)", errors)
	}
	return nil
}

func lintSource(cmd *cobra.Command, args []string) (json.RawMessage, string, error) {
	if lintFile != "" {
		raw, err := os.ReadFile(lintFile)
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", lintFile, err)
		}
		return raw, lintFile, nil
	}
	if len(args) == 0 {
		return nil, "", fmt.Errorf("a scenario id or --file is required")
	}

	id, version := splitRef(args[0])
	store, err := docsqlite.Open(cfg.DocumentsDB)
	if err != nil {
		return nil, "", err
	}
	defer store.Close()

	if version > 0 {
		doc, err := store.Get(cmd.Context(), id, version)
		if err != nil {
			return nil, "", err
		}
		return doc.Content, args[0], nil
	}
	doc, err := store.GetActive(cmd.Context(), id)
	if err != nil {
		return nil, "", err
	}
	return doc.Content, fmt.Sprintf("%s@%d", doc.ID, doc.Version), nil
}

// splitRef parses "id@version"; a bare id returns version 0.
func splitRef(ref string) (string, int) {
	at := strings.LastIndex(ref, "@")
	if at == -1 {
		return ref, 0
	}
	version, err := strconv.Atoi(ref[at+1:])
	if err != nil {
		return ref, 0
	}
	return ref[:at], version
}
