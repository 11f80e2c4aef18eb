package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"voicebridge/internal/agent"
	"voicebridge/internal/callmap"
	"voicebridge/internal/daily"
	"voicebridge/internal/plivo"
	"voicebridge/pkg/logger"

	"github.com/google/uuid"
)

// RoomProvisioner creates conferencing rooms and resolves their SIP
// dial-in addresses.
type RoomProvisioner interface {
	CreateRoom(ctx context.Context) (daily.Room, error)
	MintToken(ctx context.Context, roomName string) (string, error)
	ResolveSIPURI(ctx context.Context, roomName string) (string, error)
	DeleteRoom(ctx context.Context, roomName string) error
}

// CallControl places outbound calls at the carrier.
type CallControl interface {
	CreateCall(ctx context.Context, req plivo.CreateCallRequest) (plivo.CreateCallResponse, error)
}

// AgentRunner starts voice-agent workers and reports their readiness.
type AgentRunner interface {
	Launch(roomName, roomURL, token, callerNumber, sipURI string) (*agent.Process, error)
	WaitReady(ctx context.Context, roomName string, timeout time.Duration)
}

// ErrPhoneNumberRequired marks an outbound request without a target
// number; the API layer maps it to a client error.
var ErrPhoneNumberRequired = errors.New("bridge: phone_number is required")

// Options carries the orchestration knobs taken from config.
type Options struct {
	// FromNumber is the carrier number outbound calls originate from.
	FromNumber string

	// Carrier callback URLs, rooted at this server's public base URL.
	AnswerURL   string
	HangupURL   string
	FallbackURL string

	// Worker readiness timeouts. The outbound one runs before the
	// call-control request so the worker is in the room when the
	// callee answers; the inbound one only delays the signaling
	// response, since the SIP bridge dials independently.
	ReadyTimeoutInbound  time.Duration
	ReadyTimeoutOutbound time.Duration
}

// Service sequences room provisioning, identity-map writes, worker
// launch, and carrier call control for both call directions. All
// collaborators are injected; the only shared mutable state is the
// identity map.
type Service struct {
	rooms  RoomProvisioner
	calls  CallControl
	agents AgentRunner
	store  *callmap.Store
	opts   Options
}

func NewService(rooms RoomProvisioner, calls CallControl, agents AgentRunner, store *callmap.Store, opts Options) *Service {
	return &Service{rooms: rooms, calls: calls, agents: agents, store: store, opts: opts}
}

// InboundCall is a carrier notification that someone dialed one of our
// numbers.
type InboundCall struct {
	CallUUID string
	From     string
	To       string
}

// HandleInbound runs the inbound pipeline and always produces a
// signaling document; every failure becomes a terminal spoken response
// so the caller is never left on a silently hung call.
func (s *Service) HandleInbound(ctx context.Context, call InboundCall) *plivo.Response {
	log := logger.From(ctx)

	if call.CallUUID == "" {
		log.Warn("inbound call without CallUUID")
		return plivo.SpeakHangup(plivo.MsgProcessingError)
	}
	log.Info("inbound call", "call_uuid", call.CallUUID, "from", call.From, "to", call.To)

	room, err := s.rooms.CreateRoom(ctx)
	if err != nil {
		log.Error("room creation failed", "err", err)
		return plivo.SpeakHangup(plivo.MsgUnavailable)
	}

	token, err := s.rooms.MintToken(ctx, room.Name)
	if err != nil {
		log.Error("token minting failed", "room", room.Name, "err", err)
		s.cleanupRoom(ctx, room.Name)
		return plivo.SpeakHangup(plivo.MsgSetupError)
	}

	sipURI, err := s.rooms.ResolveSIPURI(ctx, room.Name)
	if err != nil {
		log.Error("sip uri resolution failed", "room", room.Name, "err", err)
		s.cleanupRoom(ctx, room.Name)
		return plivo.SpeakHangup(plivo.MsgUnableToConnect)
	}

	// Index the call under its UUID and under the caller's number in
	// both forms, so a later answer webhook finds it even when the
	// carrier reports a different identifier.
	rec := callmap.Record{SIPURI: sipURI, PhoneNumber: call.From}
	s.store.Put(callmap.KindCallUUID, call.CallUUID, rec)
	storeNumberKeys(s.store, call.From, rec)

	callerNumber := call.From
	if callerNumber == "" {
		callerNumber = "unknown"
	}
	if _, err := s.agents.Launch(room.Name, room.URL, token, callerNumber, sipURI); err != nil {
		// The SIP dial still connects the caller to the room; the
		// worker just will not be there. Keep the call alive.
		log.Warn("worker launch failed, bridging without agent", "room", room.Name, "err", err)
	} else {
		s.agents.WaitReady(ctx, room.Name, s.opts.ReadyTimeoutInbound)
	}

	callerID := call.From
	if callerID == "" {
		callerID = call.To
	}
	return plivo.DialSIP(callerID, sipURI, plivo.DefaultDialTimeout)
}

// OutboundResult acknowledges an accepted outbound call request.
type OutboundResult struct {
	PhoneNumber string
	RoomURL     string
	RoomName    string
	CallUUID    string
}

// StartOutbound provisions a room, gets the worker into it, then asks
// the carrier to place the call. Stage failures after room creation
// delete the room; an already-placed call is never rolled back.
func (s *Service) StartOutbound(ctx context.Context, phoneNumber string) (OutboundResult, error) {
	log := logger.From(ctx)

	if phoneNumber == "" {
		return OutboundResult{}, ErrPhoneNumberRequired
	}
	log.Info("outbound call requested", "to", phoneNumber)

	room, err := s.rooms.CreateRoom(ctx)
	if err != nil {
		return OutboundResult{}, fmt.Errorf("creating room: %w", err)
	}

	token, err := s.rooms.MintToken(ctx, room.Name)
	if err != nil {
		s.cleanupRoom(ctx, room.Name)
		return OutboundResult{}, fmt.Errorf("minting token: %w", err)
	}

	sipURI, err := s.rooms.ResolveSIPURI(ctx, room.Name)
	if err != nil {
		s.cleanupRoom(ctx, room.Name)
		return OutboundResult{}, fmt.Errorf("resolving sip uri: %w", err)
	}

	// The worker must already be in the room when the remote party
	// answers, or early audio is lost. Launch and settle first.
	if _, err := s.agents.Launch(room.Name, room.URL, token, phoneNumber, sipURI); err != nil {
		s.cleanupRoom(ctx, room.Name)
		return OutboundResult{}, fmt.Errorf("starting worker: %w", err)
	}
	s.agents.WaitReady(ctx, room.Name, s.opts.ReadyTimeoutOutbound)

	// callID travels out-of-band through the answer URL query string;
	// the answer webhook's own identifiers are not guaranteed to match
	// anything the create-call response returned.
	callID := uuid.NewString()
	resp, err := s.calls.CreateCall(ctx, plivo.CreateCallRequest{
		From:        s.opts.FromNumber,
		To:          phoneNumber,
		AnswerURL:   s.opts.AnswerURL + "?call_id=" + callID,
		AnswerMeth:  http.MethodPost,
		HangupURL:   s.opts.HangupURL,
		HangupMeth:  http.MethodPost,
		FallbackURL: s.opts.FallbackURL,
		FallbackMth: http.MethodPost,
	})
	if err != nil {
		s.cleanupRoom(ctx, room.Name)
		return OutboundResult{}, fmt.Errorf("placing call: %w", err)
	}

	rec := callmap.Record{SIPURI: sipURI, PhoneNumber: phoneNumber}
	storeNumberKeys(s.store, phoneNumber, rec)
	s.store.Put(callmap.KindCallID, callID, rec)
	if resp.CallUUID != "" {
		s.store.Put(callmap.KindCallUUID, resp.CallUUID, rec)
	}
	log.Info("outbound call placed", "to", phoneNumber, "room", room.Name, "call_uuid", resp.CallUUID, "call_id", callID)

	return OutboundResult{
		PhoneNumber: phoneNumber,
		RoomURL:     room.URL,
		RoomName:    room.Name,
		CallUUID:    resp.CallUUID,
	}, nil
}

// cleanupRoom compensates for a pipeline that failed after room
// creation so failed setups do not leave orphaned rooms behind.
func (s *Service) cleanupRoom(ctx context.Context, roomName string) {
	if err := s.rooms.DeleteRoom(ctx, roomName); err != nil {
		logger.From(ctx).Warn("room cleanup failed", "room", roomName, "err", err)
	}
}

// storeNumberKeys indexes rec under number with and without its
// leading +, when a number is known.
func storeNumberKeys(store *callmap.Store, number string, rec callmap.Record) {
	if number == "" {
		return
	}
	store.Put(callmap.KindNumber, number, rec)
	if bare := trimPlus(number); bare != number {
		store.Put(callmap.KindNumber, bare, rec)
	}
}

func trimPlus(number string) string {
	if len(number) > 0 && number[0] == '+' {
		return number[1:]
	}
	return number
}
