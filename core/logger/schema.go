package logger

import "strings"

var allowedLevels = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

var allowedStatus = map[string]bool{
	"ok":        true,
	"fail":      true,
	"skip":      true,
	"retry":     true,
	"cancelled": true,
}

// allowedOutcome covers turn outcomes and delivery results of the sender.
var allowedOutcome = map[string]bool{
	"completed": true,
	"failed":    true,
	"aborted":   true,
	"cancelled": true,
	"panicked":  true,
	"sent":      true,
	"dropped":   true,
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	return status, allowedStatus[status]
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	return outcome, allowedOutcome[outcome]
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"chat_id",
	"user_id",
	"turn",
	"handler",
	"kind",
	"category",
	"outcome",
	"duration_ms",
	"pending",
	"cb_data",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"err",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
}
