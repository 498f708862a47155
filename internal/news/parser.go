package news

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/newspulse/newspulse/internal/logger"
	"github.com/newspulse/newspulse/internal/metrics"
)

// errorMarkers are substrings that identify an upstream failure notice posing
// as a model response. The scan runs before any JSON extraction, so a reply
// like "Error: 503 service overloaded" short-circuits to the placeholder.
var errorMarkers = []string{"503", "overload", "error", "failed", "unavailable"}

var (
	// arrayPattern grabs the outermost JSON array of objects in the reply,
	// ignoring any prose or markdown fencing around it. The optional comma
	// keeps an array that ends in ",]" extractable so the repair step can
	// still see it.
	arrayPattern = regexp.MustCompile(`(?s)\[\s*\{.*\},?\s*\]`)

	// trailingCommaPattern matches a comma left dangling before a closing
	// bracket or brace, the most common defect in model JSON.
	trailingCommaPattern = regexp.MustCompile(`,\s*([\]}])`)

	// bareKeyPattern matches an unquoted object key right after { or ,.
	bareKeyPattern = regexp.MustCompile(`([{,])\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// ParseRecords turns the model's free-form reply into validated records. It
// never fails: a reply that cannot be coaxed into at least one valid record
// yields the placeholder sentinel instead, and the caller decides whether
// that run is worth delivering.
func ParseRecords(raw string) []Record {
	if strings.TrimSpace(raw) == "" {
		logger.Error("model returned an empty response")
		return placeholderList("The AI service did not return a response. Please try again later.",
			"AI服务未返回内容，请稍后重试。")
	}

	if marker, found := findErrorMarker(raw); found {
		logger.Error("model response contains an upstream error marker", "marker", marker)
		return placeholderList("The AI service reported an error or was overloaded. Please try again later.",
			"AI服务异常或过载，请稍后重试。")
	}

	payload := arrayPattern.FindString(raw)
	if payload == "" {
		logger.Error("no JSON array found in model response", "response_length", len(raw))
		return placeholderList("The AI did not return news in the expected JSON form. Please try again later.",
			"AI未返回有效的新闻JSON，请稍后重试。")
	}

	payload = repairJSON(payload)

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &elements); err != nil {
		logger.Error("model response JSON did not parse after repair", "error", err)
		return placeholderList("The AI returned invalid JSON. Please try again later.",
			"AI返回了无效的JSON，请稍后重试。")
	}

	// Each element is decoded on its own, so one broken article never
	// discards its siblings.
	records := make([]Record, 0, len(elements))
	for i, element := range elements {
		var rec Record
		if err := json.Unmarshal(element, &rec); err != nil {
			logger.Warn("skipping undecodable article", "index", i, "error", err)
			metrics.Global.IncrementRecordsRejected()
			continue
		}
		records = append(records, rec)
	}

	valid := ValidateRecords(records)
	if len(valid) == 0 {
		logger.Error("model response contained no complete articles", "elements", len(elements))
		return placeholderList("The AI did not return any complete news records. Please try again later.",
			"AI未返回有效新闻，请稍后重试。")
	}

	metrics.Global.AddRecordsParsed(len(valid))
	logger.Info("parsed model response", "valid", len(valid), "rejected", len(elements)-len(valid))
	return valid
}

// ValidateRecords drops records that violate the completeness invariant,
// preserving the relative order of the rest. Running it over an already-valid
// list returns an equal list.
func ValidateRecords(records []Record) []Record {
	valid := make([]Record, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			logger.Warn("dropping incomplete article", "title", r.Title.EN, "reason", err)
			metrics.Global.IncrementRecordsRejected()
			continue
		}
		valid = append(valid, r)
	}
	return valid
}

func findErrorMarker(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, marker := range errorMarkers {
		if strings.Contains(lowered, marker) {
			return marker, true
		}
	}
	return "", false
}

// repairJSON applies the fixed repair sequence for the defects models
// actually produce: trailing commas, unquoted keys and a truncated closing
// bracket. Anything beyond that is rejected rather than repaired.
func repairJSON(payload string) string {
	payload = trailingCommaPattern.ReplaceAllString(payload, "$1")
	payload = bareKeyPattern.ReplaceAllString(payload, `$1"$2":`)
	if !strings.HasSuffix(strings.TrimSpace(payload), "]") {
		payload += "]"
	}
	return payload
}

func placeholderList(reasonEN, reasonZH string) []Record {
	metrics.Global.IncrementPlaceholderRuns()
	return []Record{Placeholder(reasonEN, reasonZH)}
}
