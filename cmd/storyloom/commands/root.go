// Package commands implements the storyloom author/ops CLI.
package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mirelark/storyloom/internal/platform/config"
)

// Config holds CLI configuration, populated from the environment and
// overridable per-flag on the subcommands that use each value.
type Config struct {
	DocumentsDB string `env:"STORYLOOM_DOCUMENTS_DB" envDefault:"storyloom-documents.db"`
	TurnsDB     string `env:"STORYLOOM_TURNS_DB" envDefault:"storyloom-turns.db"`
	RedisAddr   string `env:"STORYLOOM_REDIS_ADDR"`

	OpenAIKey    string        `env:"STORYLOOM_OPENAI_API_KEY"`
	Model        string        `env:"STORYLOOM_MODEL" envDefault:"gpt-4o-mini"`
	Temperature  float64       `env:"STORYLOOM_TEMPERATURE" envDefault:"0.8"`
	ModelTimeout time.Duration `env:"STORYLOOM_MODEL_TIMEOUT" envDefault:"30s"`
	Instruction  string        `env:"STORYLOOM_INSTRUCTION" envDefault:"You are the narrator of an interactive story. Respond with a single JSON object containing narrative, choices, and optional actions and emotion."`

	MaxTokens    int `env:"STORYLOOM_MAX_TOKENS" envDefault:"6000"`
	ActiveNPCCap int `env:"STORYLOOM_ACTIVE_NPC_CAP" envDefault:"5"`
}

var cfg Config

var rootCmd = &cobra.Command{
	Use:   "storyloom",
	Short: "Storyloom turn-generation tooling",
	Long: `Storyloom assembles bounded model payloads from versioned authored
documents and live game state, and turns model output into validated game
turns.

Subcommands cover the authoring loop: seed imports documents, lint checks
scenario graphs, and turn runs one turn end-to-end.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.ParseEnv(&cfg)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
