package bridge

import (
	"context"

	"voicebridge/internal/callmap"
	"voicebridge/internal/plivo"
	"voicebridge/pkg/logger"
)

// Responder turns carrier webhook events into signaling documents,
// resolving the SIP destination through the identity map. It never
// fails outward: every path yields a valid document or acknowledgment.
type Responder struct {
	store *callmap.Store
}

func NewResponder(store *callmap.Store) *Responder {
	return &Responder{store: store}
}

// OnAnswer handles the carrier's answer webhook. The identifiers it
// carries may not match what was stored at call-creation time, so the
// lookup runs the full fallback chain. A miss produces the terminal
// error document rather than a hung call.
func (r *Responder) OnAnswer(ctx context.Context, callUUID, callID, toNumber, fromNumber string) *plivo.Response {
	log := logger.From(ctx)

	rec, err := r.store.Resolve(callID, callUUID, toNumber)
	if err != nil {
		log.Error("no routing record for answered call",
			"call_uuid", callUUID, "call_id", callID, "to", toNumber)
		return plivo.SpeakHangup(plivo.MsgConnectError)
	}

	log.Info("bridging answered call",
		"call_uuid", callUUID, "sip_uri", rec.SIPURI, "caller_id", fromNumber)
	return plivo.DialSIP(fromNumber, rec.SIPURI, plivo.DefaultDialTimeout)
}

// OnHangup drops the identity-map entry keyed by the call UUID. Keys
// for the same call stored under other identifiers are left behind;
// they are harmless for routing but accumulate until restart.
func (r *Responder) OnHangup(ctx context.Context, callUUID, cause, duration string) {
	logger.From(ctx).Info("call ended",
		"call_uuid", callUUID, "cause", cause, "duration_s", duration)
	if callUUID != "" {
		r.store.Remove(callmap.KindCallUUID, callUUID)
	}
}

// OnFallback answers the carrier's fallback webhook (the answer URL
// could not be reached) with a fixed terminal document. No state is
// touched; hangup cleanup still runs via its own webhook.
func (r *Responder) OnFallback(ctx context.Context, callUUID string) *plivo.Response {
	logger.From(ctx).Warn("fallback triggered", "call_uuid", callUUID)
	return plivo.SpeakHangup(plivo.MsgTryAgainLater)
}
