package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVs(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "true")
	kv := sanitizeKVs([]interface{}{
		"generation_id", "g-1",
		"callback_secret", "s3cr3t",
		"flow_engine_api_key", "k",
		"owner_id", "7d0c0f6e-0000-4000-8000-000000000001",
		"idempotency_key", "keep-me",
		"payload", map[string]interface{}{"authorization": "Bearer x", "status": "running"},
	})
	got := map[string]interface{}{}
	for i := 0; i+1 < len(kv); i += 2 {
		got[kv[i].(string)] = kv[i+1]
	}
	if got["generation_id"] != "g-1" {
		t.Fatalf("generation_id: want=g-1 got=%v", got["generation_id"])
	}
	if got["callback_secret"] != "[REDACTED]" || got["flow_engine_api_key"] != "[REDACTED]" {
		t.Fatalf("secrets: want redacted got %v / %v", got["callback_secret"], got["flow_engine_api_key"])
	}
	if owner, _ := got["owner_id"].(string); !strings.HasPrefix(owner, "hash:") || len(owner) != len("hash:")+12 {
		t.Fatalf("owner_id: want hash:<12> got %v", got["owner_id"])
	}
	if got["idempotency_key"] != "keep-me" {
		t.Fatalf("idempotency_key: want=keep-me got=%v", got["idempotency_key"])
	}
	payload := got["payload"].(map[string]interface{})
	if payload["authorization"] != "[REDACTED]" || payload["status"] != "running" {
		t.Fatalf("payload: got %v", payload)
	}
}

func TestNopAndNilSync(t *testing.T) {
	log := Nop()
	log.With("component", "test").Info("discarded", "k", "v")
	log.Sync()
	var nilLog *Logger
	nilLog.Sync()
}
