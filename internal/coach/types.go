// Package coach runs one conversation turn: it builds the coaching
// instruction, asks the language model through a fallback chain, extracts a
// fixed result schema from whatever comes back, and attaches best-effort
// speech audio.
//
// Nothing in this package returns an error for a turn. Provider outages,
// malformed payloads and TTS failures all degrade to defined defaults so the
// learner always gets a reply.
package coach

import (
	"fmt"
	"strings"

	"github.com/MrWong99/genautapi/pkg/provider/tts"
)

// Contract selects the output format the instruction asks for and the
// extractor branch applied to the provider's answer.
type Contract int

const (
	// ContractLines asks for REPLY:/CORRECTED:/SHOULD_REPEAT:/PRONUNCIATION_TIP:/SCORE: lines.
	ContractLines Contract = iota + 1

	// ContractJSON asks for a single JSON object with sub-scores and memory.
	ContractJSON
)

// String returns the configuration name of the contract.
func (c Contract) String() string {
	switch c {
	case ContractLines:
		return "lines"
	case ContractJSON:
		return "json"
	}
	return fmt.Sprintf("contract(%d)", int(c))
}

// ParseContract maps "lines" or "json" (case-insensitive) to a Contract.
func ParseContract(s string) (Contract, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lines":
		return ContractLines, nil
	case "json":
		return ContractJSON, nil
	}
	return 0, fmt.Errorf("coach: unknown contract %q (want lines or json)", s)
}

// TurnRequest is the input to one coaching turn.
type TurnRequest struct {
	Transcript     string
	SourceLanguage string
	TargetLanguage string
	Topic          string
	Memory         string
	Streak         int
}

// Result is the outcome of one turn.
type Result struct {
	Reply              string
	Correction         string
	ShouldRepeat       bool
	PronunciationTip   string
	GrammarScore       int
	PronunciationScore int

	// OverallScore is SCORE for the line contract and the truncated mean of
	// the two sub-scores for the JSON contract.
	OverallScore int

	// XP is always OverallScore / 10.
	XP int

	// Memory is the summary to send with the next turn.
	Memory string

	// MemoryUpdated reports whether the payload carried a memory field.
	// Orchestrated results always have Memory filled in.
	MemoryUpdated bool

	// Audio is empty when no speech was produced.
	Audio tts.Audio

	// Simulated is set when no provider answered and a canned payload was used.
	Simulated bool

	// Provider names the adapter that produced the payload, or "simulation".
	Provider string
}

// xpFor converts an overall score to experience points.
func xpFor(score int) int { return score / 10 }
