package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mirelark/storyloom/internal/document"
	apperrors "github.com/mirelark/storyloom/internal/errors"
	"github.com/mirelark/storyloom/internal/scenario"
	"github.com/mirelark/storyloom/internal/state"
)

// Policy flags recorded on an assembled bundle.
const (
	PolicyNPCDropped = "NPC_DROPPED"
)

// Refs names the resolved documents feeding one turn.
type Refs struct {
	ContractID   string
	Ruleset      document.Ref
	Modules      []document.Ref
	World        document.Ref
	Adventure    document.Ref
	Scenario     document.Ref
	NPCs         []document.Ref
	InjectionMap document.Ref
}

// Input is everything the assembler needs for one turn. It is recomputed
// from scratch every turn and never cached.
type Input struct {
	Refs        Refs
	State       state.Context
	PlayerInput string
	// Params feeds '@name' substitutions in injection source paths.
	Params map[string]string
}

// Bundle is the assembled payload plus its audit metadata.
type Bundle struct {
	Packet        *TurnPacket
	Pieces        []string
	Included      []string
	Dropped       []string
	TokenEstimate int
	PolicyFlags   []string
}

// Config tunes assembly limits.
type Config struct {
	// MaxTokens is the hard budget for the serialized packet.
	MaxTokens int
	// ActiveNPCCap is the NPC count bundles are reduced to when over budget.
	ActiveNPCCap int
	// Estimator defaults to HeuristicEstimator.
	Estimator TokenEstimator
}

// Assembler builds turn packets from documents and live state.
type Assembler struct {
	docs     document.Store
	estimate TokenEstimator
	budget   int
	npcCap   int
}

// NewAssembler creates an assembler over a document store.
func NewAssembler(docs document.Store, cfg Config) *Assembler {
	estimate := cfg.Estimator
	if estimate == nil {
		estimate = HeuristicEstimator
	}
	return &Assembler{
		docs:     docs,
		estimate: estimate,
		budget:   cfg.MaxTokens,
		npcCap:   cfg.ActiveNPCCap,
	}
}

type npcPiece struct {
	id       string
	active   bool
	priority float64
	content  map[string]any
}

// Assemble builds the bundle for one turn. Section order is fixed; trimming
// is deterministic; failures are typed (BUNDLE_MISSING_DOCUMENT,
// BUNDLE_OVER_BUDGET) and never silent mid-content truncation.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Bundle, error) {
	packet := NewTurnPacket()
	result := &Bundle{Packet: packet}

	contract, err := a.loadActive(ctx, in.Refs.ContractID)
	if err != nil {
		return nil, err
	}
	ruleset, err := a.load(ctx, in.Refs.Ruleset)
	if err != nil {
		return nil, err
	}
	world, err := a.load(ctx, in.Refs.World)
	if err != nil {
		return nil, err
	}
	adventure, err := a.load(ctx, in.Refs.Adventure)
	if err != nil {
		return nil, err
	}
	scenarioDoc, err := a.load(ctx, in.Refs.Scenario)
	if err != nil {
		return nil, err
	}
	graph, err := scenario.Parse(scenarioDoc.Content)
	if err != nil {
		return nil, err
	}

	packet.Set(SectionContract, decoded(contract.Content))
	packet.Set(SectionRuleset, decoded(ruleset.Content))
	packet.Set(SectionWorld, decoded(world.Content))
	packet.Set(SectionScenario, map[string]any{
		"adventure": decoded(adventure.Content),
		"graph":     decoded(scenarioDoc.Content),
		"reachable": scenario.Reachable(graph, in.State),
	})
	packet.Set(SectionState, stateSection(in.State))
	packet.Set(SectionInput, in.PlayerInput)

	result.Pieces = append(result.Pieces,
		pieceName("contract", contract),
		pieceName("ruleset", ruleset),
		pieceName("world", world),
		pieceName("adventure", adventure),
		pieceName("scenario", scenarioDoc),
	)

	modules := make([]any, 0, len(in.Refs.Modules))
	for _, ref := range sortedRefs(in.Refs.Modules) {
		doc, err := a.load(ctx, ref)
		if err != nil {
			return nil, err
		}
		modules = append(modules, map[string]any{"id": doc.ID, "content": decoded(doc.Content)})
		result.Pieces = append(result.Pieces, pieceName("module", doc))
	}
	packet.Set(SectionModules, modules)

	npcs, err := a.loadNPCs(ctx, in.Refs.NPCs)
	if err != nil {
		return nil, err
	}
	for _, npc := range npcs {
		result.Pieces = append(result.Pieces, "npc:"+npc.id)
	}
	setNPCSection(packet, npcs)

	if in.Refs.InjectionMap.ID != "" {
		injectionMap, err := a.load(ctx, in.Refs.InjectionMap)
		if err != nil {
			return nil, err
		}
		rules, err := parseInjectionMap(injectionMap.Content)
		if err != nil {
			return nil, err
		}
		result.Pieces = append(result.Pieces, pieceName("injection-map", injectionMap))
		if err := a.applyRules(packet, rules, in.Params); err != nil {
			return nil, err
		}
	}

	estimate, err := estimatePacket(packet, a.estimate)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalNormalization, err, "serialize packet")
	}

	dropped := []string{}
	if a.budget > 0 && estimate > a.budget && len(npcs) > a.npcCap {
		var kept []npcPiece
		kept, dropped = trimNPCs(npcs, a.npcCap)
		setNPCSection(packet, kept)
		result.PolicyFlags = append(result.PolicyFlags, PolicyNPCDropped)
		estimate, err = estimatePacket(packet, a.estimate)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternalNormalization, err, "serialize trimmed packet")
		}
	}
	if a.budget > 0 && estimate > a.budget {
		return nil, apperrors.New(apperrors.CodeBundleOverBudget,
			"packet estimates %d tokens after maximal trim, budget is %d", estimate, a.budget)
	}

	droppedSet := make(map[string]bool, len(dropped))
	for _, id := range dropped {
		droppedSet[id] = true
		result.Dropped = append(result.Dropped, "npc:"+id)
	}
	for _, piece := range result.Pieces {
		if len(piece) > 4 && piece[:4] == "npc:" && droppedSet[piece[4:]] {
			continue
		}
		result.Included = append(result.Included, piece)
	}
	result.TokenEstimate = estimate
	return result, nil
}

func (a *Assembler) loadActive(ctx context.Context, id string) (document.Document, error) {
	doc, err := a.docs.GetActive(ctx, id)
	if err != nil {
		return document.Document{}, apperrors.Wrap(apperrors.CodeBundleMissingDocument, err, "active document %s", id)
	}
	return doc, nil
}

func (a *Assembler) load(ctx context.Context, ref document.Ref) (document.Document, error) {
	doc, err := a.docs.Get(ctx, ref.ID, ref.Version)
	if err != nil {
		return document.Document{}, apperrors.Wrap(apperrors.CodeBundleMissingDocument, err, "document %s@%d", ref.ID, ref.Version)
	}
	return doc, nil
}

func (a *Assembler) loadNPCs(ctx context.Context, refs []document.Ref) ([]npcPiece, error) {
	npcs := make([]npcPiece, 0, len(refs))
	for _, ref := range sortedRefs(refs) {
		doc, err := a.load(ctx, ref)
		if err != nil {
			return nil, err
		}
		content, _ := decoded(doc.Content).(map[string]any)
		piece := npcPiece{id: doc.ID, active: true, content: content}
		if flag, ok := content["active"].(bool); ok {
			piece.active = flag
		}
		if priority, ok := content["priority"].(float64); ok {
			piece.priority = priority
		}
		npcs = append(npcs, piece)
	}
	return npcs, nil
}

// applyRules resolves each injection rule against the already-populated
// packet sections and writes the result at the target path.
func (a *Assembler) applyRules(packet *TurnPacket, rules []InjectionRule, params map[string]string) error {
	for i, rule := range rules {
		from := expandParams(rule.From, params)
		value, found := a.resolveSource(packet, from)
		if !found || isEmptyValue(value) {
			if rule.Fallback != nil {
				value = rule.Fallback
			} else if rule.SkipIfEmpty {
				continue
			} else if !found {
				return apperrors.New(apperrors.CodeBundleMissingDocument,
					"injection rule %d: source %q not found", i, from)
			}
		}
		if err := setPath(packet, rule.To, applyLimit(value, rule.Limit)); err != nil {
			return err
		}
	}
	return nil
}

// resolveSource resolves a from-path whose first segment is a packet section.
func (a *Assembler) resolveSource(packet *TurnPacket, from string) (any, bool) {
	section, rest, _ := cutPath(from)
	root, ok := packet.Get(Section(section))
	if !ok {
		return nil, false
	}
	return resolvePath(root, rest)
}

func cutPath(path string) (head, rest string, hasRest bool) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i], path[i+1:], true
		}
	}
	return path, "", false
}

// trimNPCs reduces npcs to cap entries, shedding inactive then low-priority
// pieces first, with id order breaking ties. Returns kept and dropped ids.
func trimNPCs(npcs []npcPiece, cap int) ([]npcPiece, []string) {
	if cap < 0 {
		cap = 0
	}
	ranked := make([]npcPiece, len(npcs))
	copy(ranked, npcs)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].active != ranked[j].active {
			return ranked[i].active
		}
		if ranked[i].priority != ranked[j].priority {
			return ranked[i].priority > ranked[j].priority
		}
		return ranked[i].id < ranked[j].id
	})

	kept := ranked[:cap]
	dropped := make([]string, 0, len(ranked)-cap)
	for _, npc := range ranked[cap:] {
		dropped = append(dropped, npc.id)
	}
	sort.Strings(dropped)

	// Stable id order in the packet regardless of rank order.
	sort.Slice(kept, func(i, j int) bool { return kept[i].id < kept[j].id })
	return kept, dropped
}

func setNPCSection(packet *TurnPacket, npcs []npcPiece) {
	section := make([]any, 0, len(npcs))
	for _, npc := range npcs {
		section = append(section, map[string]any{"id": npc.id, "content": npc.content})
	}
	packet.Set(SectionNPCs, section)
}

func stateSection(ctx state.Context) map[string]any {
	return map[string]any{
		"relationships": ctx.Relationships,
		"inventory":     ctx.Inventory,
		"currency":      ctx.Currency,
		"flags":         ctx.Flags,
		"clock": map[string]any{
			"storyTimeTicks": ctx.StoryTimeTicks,
			"worldTimeTicks": ctx.WorldTimeTicks,
		},
	}
}

func sortedRefs(refs []document.Ref) []document.Ref {
	ordered := make([]document.Ref, len(refs))
	copy(ordered, refs)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ID != ordered[j].ID {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Version < ordered[j].Version
	})
	return ordered
}

func pieceName(kind string, doc document.Document) string {
	return fmt.Sprintf("%s:%s@%d", kind, doc.ID, doc.Version)
}

// decoded parses canonical document content for packet embedding. Content is
// validated at write time, so a decode failure here is an internal bug; the
// raw JSON is preserved in that case rather than dropped.
func decoded(content json.RawMessage) any {
	var value any
	if err := json.Unmarshal(content, &value); err != nil {
		return string(content)
	}
	return value
}
