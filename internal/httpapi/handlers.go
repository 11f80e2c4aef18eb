package httpapi

import (
	"errors"
	"net/http"

	"voicebridge/internal/bridge"
	"voicebridge/internal/callmap"
	"voicebridge/internal/plivo"
	"voicebridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection. Keep these
// thin: parse/validate input, call internal services, write the
// response.

// AgentReadiness is the slice of the launcher the ready callback needs.
type AgentReadiness interface {
	MarkReady(roomName string)
}

type Handlers struct {
	Bridge    *bridge.Service
	Responder *bridge.Responder
	Store     *callmap.Store
	Agents    AgentReadiness
}

// Pre-rendered terminal document for the unlikely case that XML
// encoding itself fails; telephony webhooks must never answer with
// anything the carrier cannot play to the caller.
const lastResortXML = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Speak>` + plivo.MsgProcessingError + `</Speak>
  <Hangup></Hangup>
</Response>`

func writeSignalingDoc(c *gin.Context, doc *plivo.Response) {
	out, err := doc.Render()
	if err != nil {
		logger.FromGin(c).Error("signaling document render failed", "err", err)
		out = lastResortXML
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, out)
}

// InboundCall handles the carrier's notification of an incoming call.
func (h Handlers) InboundCall(c *gin.Context) {
	form, err := plivo.ParseInboundForm(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("inbound webhook parse failed", "err", err)
		writeSignalingDoc(c, plivo.SpeakHangup(plivo.MsgProcessingError))
		return
	}

	doc := h.Bridge.HandleInbound(c.Request.Context(), bridge.InboundCall{
		CallUUID: form.CallUUID,
		From:     form.From,
		To:       form.To,
	})
	writeSignalingDoc(c, doc)
}

type outboundCallRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// OutboundCall places a call to the requested number.
func (h Handlers) OutboundCall(c *gin.Context) {
	var req outboundCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Bridge.StartOutbound(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		if errors.Is(err, bridge.ErrPhoneNumberRequired) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone_number is required"})
			return
		}
		logger.FromGin(c).Error("outbound call failed", "to", req.PhoneNumber, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Outbound call initiated to " + res.PhoneNumber,
		"room_url":  res.RoomURL,
		"room_name": res.RoomName,
	})
}

// CallAnswered handles the carrier's answer webhook.
func (h Handlers) CallAnswered(c *gin.Context) {
	form, err := plivo.ParseInboundForm(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("answer webhook parse failed", "err", err)
		writeSignalingDoc(c, plivo.SpeakHangup(plivo.MsgConnectError))
		return
	}

	doc := h.Responder.OnAnswer(c.Request.Context(), form.CallUUID, form.CallID, form.To, form.From)
	writeSignalingDoc(c, doc)
}

// CallHangup handles the carrier's hangup webhook. It acknowledges
// regardless of whether a mapping existed.
func (h Handlers) CallHangup(c *gin.Context) {
	form, err := plivo.ParseHangupForm(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	h.Responder.OnHangup(c.Request.Context(), form.CallUUID, form.HangupCause, form.Duration)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// CallFallback answers the carrier's fallback webhook with the fixed
// terminal document.
func (h Handlers) CallFallback(c *gin.Context) {
	form, err := plivo.ParseFallbackForm(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("fallback webhook parse failed", "err", err)
	}
	writeSignalingDoc(c, h.Responder.OnFallback(c.Request.Context(), form.CallUUID))
}

type storeMappingRequest struct {
	CallID      string `json:"call_id"`
	SIPURI      string `json:"sip_uri"`
	PhoneNumber string `json:"phone_number"`
}

// StoreMapping writes a routing record directly into the identity map.
// Operator/administrative use.
func (h Handlers) StoreMapping(c *gin.Context) {
	var req storeMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.CallID == "" || req.SIPURI == "" || req.PhoneNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id, sip_uri, phone_number required"})
		return
	}

	h.Store.Put(callmap.KindCallID, req.CallID, callmap.Record{
		SIPURI:      req.SIPURI,
		PhoneNumber: req.PhoneNumber,
	})
	c.JSON(http.StatusOK, gin.H{"status": "success", "call_id": req.CallID})
}

type agentReadyRequest struct {
	RoomName string `json:"room_name"`
}

// AgentReady is the worker's local callback reporting it has joined
// its room; it unblocks the orchestrator's readiness wait.
func (h Handlers) AgentReady(c *gin.Context) {
	var req agentReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomName == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "room_name required"})
		return
	}
	h.Agents.MarkReady(req.RoomName)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Healthz reports liveness and the webhook directory.
func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "voice bridge",
		"endpoints": gin.H{
			"inbound_call":  "/inbound-call",
			"outbound_call": "/outbound-call",
			"call_answered": "/call-answered",
			"call_hangup":   "/call-hangup",
			"call_fallback": "/call-fallback",
		},
	})
}
