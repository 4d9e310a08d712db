package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mirelark/storyloom/internal/bundle"
	"github.com/mirelark/storyloom/internal/document"
	docsqlite "github.com/mirelark/storyloom/internal/document/sqlite"
	"github.com/mirelark/storyloom/internal/modelprovider"
	"github.com/mirelark/storyloom/internal/platform/otel"
	"github.com/mirelark/storyloom/internal/state"
	"github.com/mirelark/storyloom/internal/telemetry"
	"github.com/mirelark/storyloom/internal/turn"
	"github.com/mirelark/storyloom/internal/turn/dedup"
	turnsqlite "github.com/mirelark/storyloom/internal/turn/sqlite"
)

var turnFlags struct {
	game         string
	session      string
	key          string
	input        string
	stateFile    string
	clockAdvance int64

	contract     string
	ruleset      string
	world        string
	adventure    string
	scenario     string
	npcs         []string
	injectionMap string
}

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Run one turn end-to-end",
	Long: `Turn assembles the bundle for one game turn, invokes the model, and
prints the normalized result. Document references use id@version; the
contract is looked up by active version.`,
	RunE: runTurn,
}

func init() {
	flags := turnCmd.Flags()
	flags.StringVar(&turnFlags.game, "game", "", "Game id")
	flags.StringVar(&turnFlags.session, "session", "", "Session id")
	flags.StringVar(&turnFlags.key, "key", "", "Idempotency key")
	flags.StringVar(&turnFlags.input, "input", "", "Player input text")
	flags.StringVar(&turnFlags.stateFile, "state", "", "JSON file holding the game-state snapshot")
	flags.Int64Var(&turnFlags.clockAdvance, "clock-advance", 0, "Story-clock ticks this turn advances")
	flags.StringVar(&turnFlags.contract, "contract", "", "Contract document id (active version)")
	flags.StringVar(&turnFlags.ruleset, "ruleset", "", "Ruleset reference (id@version)")
	flags.StringVar(&turnFlags.world, "world", "", "World reference (id@version)")
	flags.StringVar(&turnFlags.adventure, "adventure", "", "Adventure reference (id@version)")
	flags.StringVar(&turnFlags.scenario, "scenario", "", "Scenario reference (id@version)")
	flags.StringArrayVar(&turnFlags.npcs, "npc", nil, "NPC reference (id@version), repeatable")
	flags.StringVar(&turnFlags.injectionMap, "injection-map", "", "Injection-map reference (id@version)")
	for _, required := range []string{"game", "session", "key", "input", "contract", "ruleset", "world", "adventure", "scenario"} {
		_ = turnCmd.MarkFlagRequired(required)
	}
	rootCmd.AddCommand(turnCmd)
}

func runTurn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	shutdown, err := otel.Setup(ctx, "storyloom")
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(ctx) }()

	docs, err := docsqlite.Open(cfg.DocumentsDB)
	if err != nil {
		return err
	}
	defer docs.Close()

	turns, err := turnsqlite.Open(cfg.TurnsDB)
	if err != nil {
		return err
	}
	defer turns.Close()

	var locker turn.Locker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		locker = dedup.NewLocker(client, 0)
	}

	assembler := bundle.NewAssembler(docs, bundle.Config{
		MaxTokens:    cfg.MaxTokens,
		ActiveNPCCap: cfg.ActiveNPCCap,
	})
	invoker := modelprovider.NewOpenAIInvoker(modelprovider.OpenAIConfig{
		APIKey:  cfg.OpenAIKey,
		Timeout: cfg.ModelTimeout,
	})
	orch := turn.NewOrchestrator(assembler, invoker, turns, locker, telemetry.NewEmitter(turns), turn.Config{})

	snapshot, err := loadState(turnFlags.stateFile)
	if err != nil {
		return err
	}
	refs, err := turnRefs()
	if err != nil {
		return err
	}

	outcome, err := orch.Run(ctx, turn.Request{
		GameID:         turnFlags.game,
		SessionID:      turnFlags.session,
		IdempotencyKey: turnFlags.key,
		Bundle: bundle.Input{
			Refs:        refs,
			State:       snapshot,
			PlayerInput: turnFlags.input,
		},
		Model:             cfg.Model,
		Instruction:       cfg.Instruction,
		Temperature:       cfg.Temperature,
		StoryClockAdvance: turnFlags.clockAdvance,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	header := fmt.Sprintf("turn %d", outcome.TurnNumber)
	if outcome.Replayed {
		header += " (replayed)"
	}
	fmt.Fprintln(out, color.CyanString(header))
	fmt.Fprintln(out, outcome.Result.Narrative)
	for _, choice := range outcome.Result.Choices {
		fmt.Fprintf(out, "  %s %s\n", color.GreenString(choice.ID), choice.Label)
	}
	for _, warning := range outcome.Result.Warnings {
		fmt.Fprintf(out, "%s %s\n", color.YellowString("warning"), warning)
	}
	return nil
}

func loadState(path string) (state.Context, error) {
	if path == "" {
		return state.Context{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return state.Context{}, fmt.Errorf("read %s: %w", path, err)
	}
	var snapshot state.Context
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return state.Context{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return snapshot, nil
}

func turnRefs() (bundle.Refs, error) {
	refs := bundle.Refs{ContractID: turnFlags.contract}
	var err error
	if refs.Ruleset, err = parseRef(turnFlags.ruleset); err != nil {
		return bundle.Refs{}, err
	}
	if refs.World, err = parseRef(turnFlags.world); err != nil {
		return bundle.Refs{}, err
	}
	if refs.Adventure, err = parseRef(turnFlags.adventure); err != nil {
		return bundle.Refs{}, err
	}
	if refs.Scenario, err = parseRef(turnFlags.scenario); err != nil {
		return bundle.Refs{}, err
	}
	for _, raw := range turnFlags.npcs {
		ref, err := parseRef(raw)
		if err != nil {
			return bundle.Refs{}, err
		}
		refs.NPCs = append(refs.NPCs, ref)
	}
	if turnFlags.injectionMap != "" {
		if refs.InjectionMap, err = parseRef(turnFlags.injectionMap); err != nil {
			return bundle.Refs{}, err
		}
	}
	return refs, nil
}

// parseRef parses a required "id@version" reference.
func parseRef(raw string) (document.Ref, error) {
	id, version := splitRef(raw)
	if id == "" || version <= 0 {
		return document.Ref{}, fmt.Errorf("reference %q must be id@version", raw)
	}
	return document.Ref{ID: id, Version: version}, nil
}
