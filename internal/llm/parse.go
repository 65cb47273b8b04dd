package llm

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// Action block parsing tries each recovery strategy in order: a fenced
// "action" block, a fenced "yaml" block, a bare "action: NAME" line, the
// substring "complete". When all fail the action name becomes "unknown"
// and is dispatched anyway so the loop detector sees the pattern.
var (
	actionBlockRegex = regexp.MustCompile("(?s)```action[ \\t]*\\n(.*?)```")
	yamlBlockRegex   = regexp.MustCompile("(?s)```ya?ml[ \\t]*\\n(.*?)```")
	actionLineRegex  = regexp.MustCompile(`(?m)^[ \t]*action:[ \t]*(\S+)[ \t]*$`)
)

// actionPayload mirrors the YAML body of an action block.
type actionPayload struct {
	Action     string         `yaml:"action"`
	Parameters map[string]any `yaml:"parameters"`
	Reasoning  string         `yaml:"reasoning"`
}

// ParseAction recovers a structured action from free-form response text.
// It never returns nil and the returned Parameters map is never nil.
func ParseAction(text string) *domain.Action {
	for _, re := range []*regexp.Regexp{actionBlockRegex, yamlBlockRegex} {
		if m := re.FindStringSubmatch(text); m != nil {
			if action := parsePayload(m[1]); action != nil {
				return action
			}
		}
	}

	if m := actionLineRegex.FindStringSubmatch(text); m != nil {
		name := strings.Trim(m[1], `"'`)
		return &domain.Action{Name: name, Parameters: map[string]any{}}
	}

	if strings.Contains(strings.ToLower(text), constants.ActionComplete) {
		return &domain.Action{Name: constants.ActionComplete, Parameters: map[string]any{}}
	}

	return &domain.Action{Name: constants.ActionUnknown, Parameters: map[string]any{}}
}

// parsePayload decodes one fenced block body. A yaml type error keeps
// whatever fields survived; any other decode failure, or an empty action
// name, rejects the block so the next strategy can try.
func parsePayload(body string) *domain.Action {
	var payload actionPayload
	if err := yaml.Unmarshal([]byte(body), &payload); err != nil {
		var typeErr *yaml.TypeError
		if !errors.As(err, &typeErr) {
			return nil
		}
	}

	name := strings.TrimSpace(payload.Action)
	if name == "" {
		return nil
	}

	params := payload.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return &domain.Action{Name: name, Parameters: params, Reasoning: payload.Reasoning}
}

// stringParams are parameters that must decode as strings when present.
//
//nolint:gochecknoglobals // Read-only lookup table
var stringParams = []string{
	"path", "file_path", "content", "old_text", "new_text",
	"function_name", "new_name", "reason", "description", "approach",
}

// intParams are parameters that must decode as integers when present.
//
//nolint:gochecknoglobals // Read-only lookup table
var intParams = []string{"line", "line_number", "start_line", "end_line"}

// ValidateAction checks a parsed action against the response schema and
// returns human-readable warnings. Validation never blocks dispatch; the
// caller logs the warnings and proceeds with the parsed values.
func ValidateAction(action *domain.Action) []string {
	var warnings []string

	if strings.TrimSpace(action.Name) == "" {
		warnings = append(warnings, "action name is empty")
	}

	for _, key := range stringParams {
		if v, ok := action.Parameters[key]; ok {
			if _, isString := v.(string); !isString {
				warnings = append(warnings, fmt.Sprintf("parameter %q should be a string, got %T", key, v))
			}
		}
	}

	for _, key := range intParams {
		if v, ok := action.Parameters[key]; ok && !isInteger(v) {
			warnings = append(warnings, fmt.Sprintf("parameter %q should be an integer, got %T", key, v))
		}
	}

	return warnings
}

// isInteger accepts the integer representations yaml and json decoding
// produce for whole numbers.
func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int64:
		return true
	case float64:
		return n == math.Trunc(n)
	default:
		return false
	}
}
