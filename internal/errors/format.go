package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for CLI output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	he, ok := As(err)
	if !ok {
		he = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", he.Message))
	if he.Path != "" && !strings.Contains(he.Message, he.Path) {
		sb.WriteString(fmt.Sprintf("  Path: %s\n", he.Path))
	}
	if he.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", he.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", he.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Path       string            `json:"path,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	he, ok := As(err)
	if !ok {
		he = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       he.Code,
		Message:    he.Message,
		Category:   string(he.Category()),
		Severity:   string(he.Severity()),
		Path:       he.Path,
		Details:    he.Details,
		Suggestion: he.Suggestion,
		Retryable:  he.Retryable(),
	}
	if he.Cause != nil {
		je.Cause = he.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog flattens an error into slog-friendly key-value pairs.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	he, ok := As(err)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": he.Code,
		"message":    he.Message,
		"category":   string(he.Category()),
		"severity":   string(he.Severity()),
		"retryable":  he.Retryable(),
	}
	if he.Path != "" {
		result["path"] = he.Path
	}
	if he.Cause != nil {
		result["cause"] = he.Cause.Error()
	}
	if he.Suggestion != "" {
		result["suggestion"] = he.Suggestion
	}
	for k, v := range he.Details {
		result["detail_"+k] = v
	}

	return result
}
