package plivo

import (
	"net/http"
	"strings"
)

// Webhook form payloads. The carrier posts
// application/x-www-form-urlencoded bodies; only the fields this
// service acts on are captured. Parsing stays in this adapter package,
// call handling decisions do not.

// InboundForm is posted when someone dials one of our numbers, and
// again (as the answer webhook) when an outbound call is picked up.
type InboundForm struct {
	CallUUID   string
	From       string
	To         string
	CallStatus string

	// CallID is our own correlation token, echoed back through the
	// answer URL's query string rather than the form body.
	CallID string
}

// HangupForm is posted when a call ends.
type HangupForm struct {
	CallUUID    string
	HangupCause string
	Duration    string
}

// FallbackForm is posted when the answer URL could not be reached.
type FallbackForm struct {
	CallUUID string
}

func ParseInboundForm(r *http.Request) (InboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return InboundForm{}, err
	}
	return InboundForm{
		CallUUID:   strings.TrimSpace(r.PostFormValue("CallUUID")),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
		CallID:     strings.TrimSpace(r.URL.Query().Get("call_id")),
	}, nil
}

func ParseHangupForm(r *http.Request) (HangupForm, error) {
	if err := r.ParseForm(); err != nil {
		return HangupForm{}, err
	}
	return HangupForm{
		CallUUID:    strings.TrimSpace(r.PostFormValue("CallUUID")),
		HangupCause: strings.TrimSpace(r.PostFormValue("HangupCause")),
		Duration:    strings.TrimSpace(r.PostFormValue("Duration")),
	}, nil
}

func ParseFallbackForm(r *http.Request) (FallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return FallbackForm{}, err
	}
	return FallbackForm{
		CallUUID: strings.TrimSpace(r.PostFormValue("CallUUID")),
	}, nil
}
