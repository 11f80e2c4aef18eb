package plivo

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Signaling documents returned to the carrier from webhook handlers.
// Built with encoding/xml rather than a provider SDK; only the verbs
// this service emits are modelled.
//
// A document is either a Dial bridging the call to a SIP destination,
// or a spoken message followed by Hangup (the terminal/error case).

// Spoken terminal messages, kept stable because callers hear them.
const (
	MsgProcessingError = "Sorry, there was an error processing your call."
	MsgSetupError      = "Sorry, there was an error setting up your call."
	MsgConnectError    = "Sorry, there was an error connecting your call."
	MsgUnavailable     = "Sorry, we're unable to connect your call at this time. Please try again later."
	MsgUnableToConnect = "Sorry, we're unable to connect your call. Please try again later."
	MsgTryAgainLater   = "We're sorry, but we're unable to connect your call at this time. Please try again later."
)

// DefaultDialTimeout is the answer timeout (seconds) on every Dial.
const DefaultDialTimeout = 30

// Response is the root element of a carrier signaling document.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type dialVerb struct {
	XMLName  xml.Name `xml:"Dial"`
	CallerID string   `xml:"callerId,attr,omitempty"`
	Timeout  int      `xml:"timeout,attr,omitempty"`
	User     string   `xml:"User"`
}

type speakVerb struct {
	XMLName xml.Name `xml:"Speak"`
	Text    string   `xml:",chardata"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

// DialSIP builds a document instructing the carrier to bridge the call
// to sipURI, presenting callerID as the caller identity.
func DialSIP(callerID, sipURI string, timeout int) *Response {
	return &Response{Verbs: []any{dialVerb{
		CallerID: callerID,
		Timeout:  timeout,
		User:     sipURI,
	}}}
}

// SpeakHangup builds the terminal document: speak an apology, then end
// the call so the remote side is never left hanging silently.
func SpeakHangup(message string) *Response {
	return &Response{Verbs: []any{speakVerb{Text: message}, hangupVerb{}}}
}

// Render serializes the document with an XML declaration.
func (r *Response) Render() (string, error) {
	if r == nil || len(r.Verbs) == 0 {
		return "", errors.New("plivo: empty signaling document")
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// IsTerminal reports whether the document ends the call instead of
// bridging it.
func (r *Response) IsTerminal() bool {
	for _, v := range r.Verbs {
		if _, ok := v.(hangupVerb); ok {
			return true
		}
	}
	return false
}

// SIPURI returns the Dial destination, or "" for terminal documents.
func (r *Response) SIPURI() string {
	for _, v := range r.Verbs {
		if d, ok := v.(dialVerb); ok {
			return d.User
		}
	}
	return ""
}

// CallerID returns the Dial caller identity, or "" for terminal
// documents.
func (r *Response) CallerID() string {
	for _, v := range r.Verbs {
		if d, ok := v.(dialVerb); ok {
			return d.CallerID
		}
	}
	return ""
}

// SpokenText returns the Speak message, or "" for dial documents.
func (r *Response) SpokenText() string {
	for _, v := range r.Verbs {
		if s, ok := v.(speakVerb); ok {
			return strings.TrimSpace(s.Text)
		}
	}
	return ""
}
