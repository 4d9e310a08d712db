package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mirelark/storyloom/internal/document"
	docsqlite "github.com/mirelark/storyloom/internal/document/sqlite"
)

// seedFile is the YAML shape authored documents arrive in.
type seedFile struct {
	Documents []seedDocument `yaml:"documents"`
}

type seedDocument struct {
	ID      string `yaml:"id"`
	Version int    `yaml:"version"`
	Kind    string `yaml:"kind"`
	Active  bool   `yaml:"active"`
	Content any    `yaml:"content"`
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml> [file.yaml...]",
	Short: "Import authored YAML documents into the document store",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	store, err := docsqlite.Open(cfg.DocumentsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	imported := 0
	for _, path := range args {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var file seedFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for _, entry := range file.Documents {
			content, err := json.Marshal(entry.Content)
			if err != nil {
				return fmt.Errorf("%s: document %s content: %w", path, entry.ID, err)
			}
			doc, err := store.Put(cmd.Context(), document.Document{
				ID:      entry.ID,
				Version: entry.Version,
				Kind:    document.Kind(entry.Kind),
				Content: content,
				Active:  entry.Active,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s@%d (%s) %s\n",
				color.GreenString("imported"), doc.ID, doc.Version, doc.Kind, doc.Hash[:12])
			imported++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d document(s) imported into %s\n", imported, cfg.DocumentsDB)
	return nil
}
