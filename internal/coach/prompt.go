package coach

import (
	"fmt"
	"strings"
)

// DefaultTopic is the persona used for absent or unknown topics.
const DefaultTopic = "Free Conversation"

// persona pairs a topic key with its role instruction.
type persona struct {
	topic       string
	instruction string
}

// personas is the closed set of coaching roles, in display order.
var personas = []persona{
	{"Daily Life", "Act as friendly neighbor chatting about weather, family, weekend plans"},
	{"Shopping", "Act as German supermarket cashier. Keep it simple, correct politely"},
	{"Job Interview", "Act as HR manager conducting B1 German job interview. Professional but encouraging"},
	{DefaultTopic, "Act as a friendly conversational partner. Chat naturally. Prioritize keeping the conversation flowing."},
}

// Topics returns the persona keys in display order.
func Topics() []string {
	out := make([]string, len(personas))
	for i, p := range personas {
		out[i] = p.topic
	}
	return out
}

// Persona returns the role instruction for topic, falling back to the free
// conversation persona.
func Persona(topic string) string {
	for _, p := range personas {
		if p.topic == topic {
			return p.instruction
		}
	}
	return personas[len(personas)-1].instruction
}

// BuildInstruction renders the full provider instruction for req under the
// given contract. It is pure: equal inputs give equal output.
func BuildInstruction(req TurnRequest, contract Contract) string {
	var sb strings.Builder

	// ── Role ────────────────────────────────────────────────────────────────
	if contract == ContractJSON {
		sb.WriteString(`You are "Genau Tapi!", a friendly German language friend and speaking coach.`)
	} else {
		sb.WriteString("You are GenauTapi 🐶, a supportive speaking coach.")
	}
	sb.WriteString("\n")
	sb.WriteString(Persona(req.Topic))
	sb.WriteString(".\n\n")

	fmt.Fprintf(&sb, "The user is practicing %s (usually German).\n", req.TargetLanguage)
	fmt.Fprintf(&sb, "Their comfortable language is %s.\n\n", req.SourceLanguage)

	// ── Memory ──────────────────────────────────────────────────────────────
	sb.WriteString("MEMORY (context of previous chats):\n")
	fmt.Fprintf(&sb, "\"%s\"\n\n", req.Memory)

	fmt.Fprintf(&sb, "User said: \"%s\"\n\n", req.Transcript)

	// ── Goals ───────────────────────────────────────────────────────────────
	sb.WriteString("Goals:\n")
	fmt.Fprintf(&sb, "1. Reply PRIMARILY in %s.\n", req.TargetLanguage)
	fmt.Fprintf(&sb, "2. You MAY use %s occasionally to explain a mistake if needed, or if the user asks in that language.\n", req.SourceLanguage)
	sb.WriteString("3. Evaluate grammar, vocabulary and pronunciation quality of the user's sentence.\n")
	sb.WriteString("4. Decide if their pronunciation is good enough:\n")
	sb.WriteString("   - If it is GOOD: encourage them and do NOT ask to repeat.\n")
	sb.WriteString("   - If it is WEAK or CONFUSING: show a short corrected sentence and politely ask them to repeat it aloud.\n")
	sb.WriteString("5. When you ask for repetition, give a very short example of good pronunciation (describe it in words, not phonetic alphabet).\n")
	sb.WriteString("6. Keep your answer short and friendly (2–3 sentences).\n")
	if contract == ContractJSON {
		sb.WriteString("7. Update the MEMORY: topics, the user's name, or what you discussed. Keep it concise (max 2 sentences) and do not lose important past info.\n")
	}
	sb.WriteString("\n")

	// ── Scoring ─────────────────────────────────────────────────────────────
	sb.WriteString("Scoring:\n")
	sb.WriteString("- If the user speaks very well on the first attempt (like a natural sentence with minor issues), give a high score.\n")
	sb.WriteString("- If they consistently speak well for several turns (3–5 in a row), feel free to give 100/100.\n")
	sb.WriteString("- Otherwise, adjust the score proportionally to the quality (grammar, vocabulary, pronunciation).\n")
	if req.Streak > 1 {
		fmt.Fprintf(&sb, "- This is turn %d in a row for the user.\n", req.Streak)
	}
	sb.WriteString("\n")

	// ── Output contract ─────────────────────────────────────────────────────
	sb.WriteString("Output format (VERY IMPORTANT):\n")
	if contract == ContractJSON {
		writeJSONContract(&sb, req.TargetLanguage)
	} else {
		writeLinesContract(&sb, req.TargetLanguage)
	}
	return sb.String()
}

func writeLinesContract(sb *strings.Builder, target string) {
	sb.WriteString("You MUST answer in this structure in plain text:\n\n")
	sb.WriteString("REPLY: <your short reply that the app will speak aloud>\n")
	fmt.Fprintf(sb, "CORRECTED: <corrected version of what the user tried to say, in %s, or empty if not needed>\n", target)
	sb.WriteString("SHOULD_REPEAT: <YES or NO>\n")
	sb.WriteString("PRONUNCIATION_TIP: <one short tip or example if SHOULD_REPEAT is YES, else empty>\n")
	sb.WriteString("SCORE: <number 0-100>\n")
}

func writeJSONContract(sb *strings.Builder, target string) {
	sb.WriteString("Return exactly one JSON object and nothing else:\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "reply": "short spoken reply based on memory and input",` + "\n")
	fmt.Fprintf(sb, `  "correction": "corrected sentence in %s, or empty if not needed",`+"\n", target)
	sb.WriteString(`  "should_repeat": true or false,` + "\n")
	sb.WriteString(`  "pronunciation_tip": "one short tip if should_repeat is true, else empty",` + "\n")
	sb.WriteString(`  "memory": "UPDATED concise summary string",` + "\n")
	sb.WriteString(`  "grammar_score": 0-100,` + "\n")
	sb.WriteString(`  "pronunciation_score": 0-100` + "\n")
	sb.WriteString("}\n")
}
