package logger

import (
	"net/http"
	"strings"
)

// Keys whose values must never reach a log line. Gateway webhooks carry
// signatures and card metadata; customer support pastes these logs around.
var sensitiveKeys = []string{
	"secret",
	"token",
	"signature",
	"card",
	"password",
	"authorization",
	"webhook_secret",
}

// MaskWebhookHeaders returns a copy of webhook headers with signature and
// authorization material reduced to their last four characters.
func MaskWebhookHeaders(headers http.Header) map[string]string {
	masked := make(map[string]string, len(headers))
	for key, values := range headers {
		joined := strings.Join(values, ",")
		if isSensitiveKey(key) {
			masked[key] = maskTail(joined)
			continue
		}
		masked[key] = joined
	}
	return masked
}

// MaskPayload deep-copies a decoded webhook payload, masking sensitive
// fields at any depth.
func MaskPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		if isSensitiveKey(key) {
			out[key] = maskAny(value)
			continue
		}
		switch typed := value.(type) {
		case map[string]any:
			out[key] = MaskPayload(typed)
		case []any:
			items := make([]any, 0, len(typed))
			for _, item := range typed {
				if nested, ok := item.(map[string]any); ok {
					items = append(items, MaskPayload(nested))
					continue
				}
				items = append(items, item)
			}
			out[key] = items
		default:
			out[key] = value
		}
	}
	return out
}

// MaskTransactionID keeps enough of a gateway transaction id to correlate
// log lines with the gateway dashboard without exposing the full id.
func MaskTransactionID(txid string) string {
	return maskTail(txid)
}

func maskAny(value any) any {
	switch typed := value.(type) {
	case string:
		return maskTail(typed)
	case []byte:
		return maskTail(string(typed))
	default:
		return "****"
	}
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range sensitiveKeys {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}

func maskTail(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****" + value
	}
	return "****" + value[len(value)-4:]
}
