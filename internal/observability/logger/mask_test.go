package logger

import (
	"net/http"
	"testing"
)

func TestMaskWebhookHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Set("Stripe-Signature", "t=12345,v1=abcdef0123456789")
	headers.Set("Content-Type", "application/json")

	masked := MaskWebhookHeaders(headers)
	if masked["Content-Type"] != "application/json" {
		t.Fatalf("expected content type untouched, got %q", masked["Content-Type"])
	}
	if got := masked["Stripe-Signature"]; got != "****6789" {
		t.Fatalf("expected masked signature, got %q", got)
	}
}

func TestMaskPayloadNested(t *testing.T) {
	payload := map[string]any{
		"transaction_id": "txn_12345",
		"card": map[string]any{
			"number": "4242424242424242",
		},
		"lines": []any{
			map[string]any{"webhook_secret": "whsec_123456"},
		},
	}

	masked := MaskPayload(payload)
	if masked["transaction_id"] != "txn_12345" {
		t.Fatalf("expected transaction id untouched")
	}
	if masked["card"] != "****" {
		t.Fatalf("expected card object masked, got %v", masked["card"])
	}
	nested := masked["lines"].([]any)[0].(map[string]any)
	if nested["webhook_secret"] != "****3456" {
		t.Fatalf("expected nested secret masked, got %v", nested["webhook_secret"])
	}
}

func TestMaskTransactionID(t *testing.T) {
	if got := MaskTransactionID("ch_1ABCDEF"); got != "****CDEF" {
		t.Fatalf("expected ****CDEF, got %q", got)
	}
	if got := MaskTransactionID("abc"); got != "****abc" {
		t.Fatalf("expected short ids fully masked, got %q", got)
	}
}
