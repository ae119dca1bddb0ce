package coach

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/genautapi/internal/resilience"
	"github.com/MrWong99/genautapi/pkg/provider/llm"
)

// Simulation reasons, used as log fields and metric attributes.
const (
	ReasonNoProviders       = "no_providers"
	ReasonMissingCredential = "missing_credential"
	ReasonProviderError     = "provider_error"
)

// Canned replies written into simulated payloads.
const (
	simulatedLinesNoLLM     = "Simulation: Genau! (no LLM configured)"
	simulatedJSONKeyMissing = "Simulation: (API key missing)"
	simulatedJSONAIError    = "Entschuldigung, ich habe ein Problem (AI Error)."
)

// simulatedJSON is the JSON-contract payload shape. memory is left out on
// purpose so the caller's memory carries over.
type simulatedJSON struct {
	Reply              string `json:"reply"`
	Correction         string `json:"correction"`
	ShouldRepeat       bool   `json:"should_repeat"`
	PronunciationTip   string `json:"pronunciation_tip"`
	GrammarScore       int    `json:"grammar_score"`
	PronunciationScore int    `json:"pronunciation_score"`
}

// classify decides which simulation path a chain failure takes.
func classify(err error) (reason, firstProvider string) {
	var all *resilience.AllFailedError
	if !errors.As(err, &all) {
		var pe *llm.ProviderError
		if errors.As(err, &pe) && errors.Is(err, llm.ErrMissingCredential) {
			return ReasonMissingCredential, pe.Provider
		}
		return ReasonProviderError, ""
	}
	if len(all.Attempts) == 0 {
		return ReasonNoProviders, ""
	}
	if all.Every(llm.ErrMissingCredential) {
		return ReasonMissingCredential, all.Attempts[0].Name
	}
	return ReasonProviderError, ""
}

// simulate returns the deterministic payload used when no provider answered.
func simulate(contract Contract, reason, provider string) string {
	if contract == ContractJSON {
		p := simulatedJSON{Reply: simulatedJSONAIError, GrammarScore: 75, PronunciationScore: 75}
		if reason != ReasonProviderError {
			p = simulatedJSON{Reply: simulatedJSONKeyMissing, GrammarScore: 50, PronunciationScore: 50}
		}
		data, _ := json.Marshal(p)
		return string(data)
	}

	reply, score := simulatedLinesNoLLM, defaultLinesScore
	if reason == ReasonMissingCredential {
		reply = fmt.Sprintf("Simulation: Genau! (%s key missing)", displayName(provider))
		score = 80
	}
	return linesPayload(reply, score)
}

func linesPayload(reply string, score int) string {
	return fmt.Sprintf("%s %s\n%s\n%s NO\n%s\n%s %d", keyReply, reply, keyCorrected, keyRepeat, keyTip, keyScore, score)
}

// displayName renders a registry name the way users know the vendor.
func displayName(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OpenAI"
	case "gemini":
		return "Gemini"
	case "":
		return "LLM"
	}
	r, size := utf8.DecodeRuneInString(provider)
	return string(unicode.ToUpper(r)) + provider[size:]
}
