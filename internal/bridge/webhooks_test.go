package bridge

import (
	"context"
	"strings"
	"testing"

	"voicebridge/internal/callmap"
	"voicebridge/internal/plivo"
)

func TestOnAnswerResolvesThroughFallbackChain(t *testing.T) {
	store := callmap.NewStore()
	store.Put(callmap.KindCallUUID, "u1", callmap.Record{SIPURI: "sip:x@y", PhoneNumber: "+1555000"})
	r := NewResponder(store)

	// Carrier reports a fresh uuid we never stored; the to-number
	// fallback still finds the record.
	store.Put(callmap.KindNumber, "+15551112222", callmap.Record{SIPURI: "sip:o@y", PhoneNumber: "+15551112222"})
	doc := r.OnAnswer(context.Background(), "other-uuid", "", "+15551112222", "+15550000000")

	if doc.IsTerminal() {
		t.Fatalf("expected dial document, got terminal: %q", doc.SpokenText())
	}
	if doc.SIPURI() != "sip:o@y" {
		t.Fatalf("expected sip:o@y, got %q", doc.SIPURI())
	}
	if doc.CallerID() != "+15550000000" {
		t.Fatalf("expected caller id +15550000000, got %q", doc.CallerID())
	}
}

func TestOnAnswerPrefersCallID(t *testing.T) {
	store := callmap.NewStore()
	store.Put(callmap.KindCallID, "local-1", callmap.Record{SIPURI: "sip:a@y"})
	store.Put(callmap.KindCallUUID, "u1", callmap.Record{SIPURI: "sip:b@y"})
	r := NewResponder(store)

	doc := r.OnAnswer(context.Background(), "u1", "local-1", "", "+1555000")
	if doc.SIPURI() != "sip:a@y" {
		t.Fatalf("expected the call-id record to win, got %q", doc.SIPURI())
	}
}

func TestOnAnswerMissSpeaksAndHangsUp(t *testing.T) {
	r := NewResponder(callmap.NewStore())

	doc := r.OnAnswer(context.Background(), "missing", "", "", "+1555000")
	if !doc.IsTerminal() {
		t.Fatalf("expected terminal document")
	}
	if doc.SpokenText() != plivo.MsgConnectError {
		t.Fatalf("expected connect-error message, got %q", doc.SpokenText())
	}

	out, err := doc.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<Speak>"+plivo.MsgConnectError+"</Speak>") {
		t.Fatalf("missing speak verb in %q", out)
	}
	if !strings.Contains(out, "<Hangup") {
		t.Fatalf("missing hangup verb in %q", out)
	}
}

func TestOnHangupRemovesOnlyUUIDKey(t *testing.T) {
	store := callmap.NewStore()
	rec := callmap.Record{SIPURI: "sip:x@y", PhoneNumber: "+1555000"}
	store.Put(callmap.KindCallUUID, "u1", rec)
	store.Put(callmap.KindNumber, "+1555000", rec)
	r := NewResponder(store)

	r.OnHangup(context.Background(), "u1", "NORMAL_CLEARING", "42")

	if _, err := store.Get(callmap.KindCallUUID, "u1"); err == nil {
		t.Fatalf("uuid key should be removed")
	}
	if _, err := store.Get(callmap.KindNumber, "+1555000"); err != nil {
		t.Fatalf("number key must survive hangup cleanup, got %v", err)
	}
}

func TestOnHangupWithoutUUIDIsNoOp(t *testing.T) {
	store := callmap.NewStore()
	store.Put(callmap.KindNumber, "+1555000", callmap.Record{SIPURI: "sip:x@y"})
	r := NewResponder(store)

	r.OnHangup(context.Background(), "", "", "")

	if store.Len() != 1 {
		t.Fatalf("store must be untouched, len=%d", store.Len())
	}
}

func TestOnFallbackTerminalDocument(t *testing.T) {
	store := callmap.NewStore()
	store.Put(callmap.KindCallUUID, "u1", callmap.Record{SIPURI: "sip:x@y"})
	r := NewResponder(store)

	doc := r.OnFallback(context.Background(), "u1")
	if !doc.IsTerminal() || doc.SpokenText() != plivo.MsgTryAgainLater {
		t.Fatalf("expected try-again terminal document, got %+v", doc)
	}
	if store.Len() != 1 {
		t.Fatalf("fallback must not touch the store")
	}
}
