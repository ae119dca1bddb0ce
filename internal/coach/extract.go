package coach

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Line-contract defaults, used when a field is absent or unreadable.
const (
	defaultLinesReply = "Genau! Erzähl mir mehr."
	defaultLinesScore = 75
)

// Line-contract field prefixes, matched case-sensitively after trimming.
const (
	keyReply     = "REPLY:"
	keyCorrected = "CORRECTED:"
	keyRepeat    = "SHOULD_REPEAT:"
	keyTip       = "PRONUNCIATION_TIP:"
	keyScore     = "SCORE:"
)

var lineKeys = []string{keyReply, keyCorrected, keyRepeat, keyTip, keyScore}

// Extract parses a raw provider payload under contract. It never fails: any
// field that is missing or malformed takes its default, and a payload that
// cannot be read at all yields an all-defaults result.
func Extract(raw string, contract Contract) Result {
	var r Result
	if contract == ContractJSON {
		r = extractJSON(raw)
	} else {
		r = extractLines(raw)
	}
	r.XP = xpFor(r.OverallScore)
	return r
}

// extractLines scans the payload once. The first line carrying a given
// prefix wins; later duplicates and unknown lines are ignored.
func extractLines(raw string) Result {
	r := Result{Reply: defaultLinesReply, OverallScore: defaultLinesScore}
	seen := make(map[string]bool, len(lineKeys))

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		for _, key := range lineKeys {
			after, ok := strings.CutPrefix(line, key)
			if !ok {
				continue
			}
			if seen[key] {
				break
			}
			seen[key] = true
			value := strings.TrimSpace(after)
			switch key {
			case keyReply:
				r.Reply = value
			case keyCorrected:
				r.Correction = value
			case keyRepeat:
				r.ShouldRepeat = strings.EqualFold(value, "YES")
			case keyTip:
				r.PronunciationTip = value
			case keyScore:
				n, err := strconv.Atoi(value)
				if err != nil {
					n = defaultLinesScore
				}
				r.OverallScore = n
			}
			break
		}
	}

	r.GrammarScore = r.OverallScore
	r.PronunciationScore = r.OverallScore
	return r
}

// extractJSON reads the JSON-object contract. overall is the truncated mean
// of the two sub-scores.
func extractJSON(raw string) Result {
	obj := decodeObject(raw)

	var r Result
	r.Reply = stringField(obj, "reply")
	r.Correction = stringField(obj, "correction")
	r.PronunciationTip = stringField(obj, "pronunciation_tip")
	if v, ok := obj["should_repeat"].(bool); ok {
		r.ShouldRepeat = v
	}
	if v, ok := obj["memory"].(string); ok {
		r.Memory = strings.TrimSpace(v)
		r.MemoryUpdated = true
	}
	r.GrammarScore = intField(obj, "grammar_score")
	r.PronunciationScore = intField(obj, "pronunciation_score")
	r.OverallScore = (r.GrammarScore + r.PronunciationScore) / 2
	return r
}

// decodeObject returns the top-level JSON object in raw, or nil. Markdown
// fences are removed first; if the cleaned text is not an object by itself the
// span from the first '{' to the last '}' is tried.
func decodeObject(raw string) map[string]any {
	cleaned := stripMarkdown(raw)
	if obj, ok := unmarshalObject(cleaned); ok {
		return obj
	}
	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return nil
	}
	obj, _ := unmarshalObject(cleaned[start : end+1])
	return obj
}

func unmarshalObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return obj, true
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// intField accepts JSON numbers and numeric strings; fractions are truncated.
// Anything else, including values outside the int32 range, reads as 0.
func intField(obj map[string]any, key string) int {
	var text string
	switch v := obj[key].(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return 0
	}
	if n, err := strconv.Atoi(text); err == nil {
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0
		}
		return n
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0
	}
	return int(f)
}
