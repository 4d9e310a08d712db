// Package bundle assembles the bounded structured payload sent to the
// generative model for one turn.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Section names one top-level slot of the turn packet.
type Section string

const (
	SectionContract Section = "contract"
	SectionRuleset  Section = "ruleset"
	SectionModules  Section = "modules"
	SectionWorld    Section = "world"
	SectionScenario Section = "scenario"
	SectionNPCs     Section = "npcs"
	SectionState    Section = "state"
	SectionInput    Section = "input"
)

// SectionOrder is the fixed top-level ordering of the packet. It is a
// contract with the generative model (stable cue positions) and with diffing
// tooling, and is never reordered by input order.
var SectionOrder = []Section{
	SectionContract,
	SectionRuleset,
	SectionModules,
	SectionWorld,
	SectionScenario,
	SectionNPCs,
	SectionState,
	SectionInput,
}

// requiredSections are never trimmed, whatever the budget.
var requiredSections = map[Section]bool{
	SectionContract: true,
	SectionInput:    true,
}

// TurnPacket is the ordered model payload. Marshalling emits sections in
// SectionOrder, skipping empty slots, so repeated assembly of identical
// inputs yields byte-identical JSON.
type TurnPacket struct {
	sections map[Section]any
}

// NewTurnPacket returns an empty packet.
func NewTurnPacket() *TurnPacket {
	return &TurnPacket{sections: make(map[Section]any, len(SectionOrder))}
}

// Set stores a section value.
func (p *TurnPacket) Set(section Section, value any) {
	p.sections[section] = value
}

// Get returns a section value.
func (p *TurnPacket) Get(section Section) (any, bool) {
	value, ok := p.sections[section]
	return value, ok
}

// MarshalJSON writes sections in SectionOrder.
func (p *TurnPacket) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, section := range SectionOrder {
		value, ok := p.sections[section]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&buf, "%q:", section)
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode section %s: %w", section, err)
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
