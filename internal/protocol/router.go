package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sohyunkim/geurim/backend/internal/board"
	"github.com/sohyunkim/geurim/backend/internal/metrics"
)

// Session is one live client connection as the protocol layer sees it.
type Session interface {
	ID() string
	Nickname() string
	SetNickname(name string)
	Send(data []byte) error
}

// Directory resolves connection ids to live sessions. Implemented by the
// transport's connection registry.
type Directory interface {
	Session(id string) (Session, bool)
}

type handlerFunc func(sess Session, data json.RawMessage) error

// Router validates inbound events and applies them to the room store,
// fanning results out to room members. One dispatch table covers every
// event type; handlers run to completion one at a time on the hub loop.
type Router struct {
	store    *board.Store
	dir      Directory
	log      *slog.Logger
	handlers map[EventType]handlerFunc
}

func NewRouter(store *board.Store, dir Directory, log *slog.Logger) *Router {
	r := &Router{
		store: store,
		dir:   dir,
		log:   log,
	}
	r.handlers = map[EventType]handlerFunc{
		EventJoinRoom:       r.handleJoin,
		EventUpdateElements: r.handleUpdateElements,
		EventPointerUpdate:  r.handlePointerUpdate,
		EventChatMessage:    r.handleChat,
	}
	return r
}

// Dispatch decodes one inbound frame and runs its handler. Malformed or
// unknown events are logged and dropped; they never take the server down.
func (r *Router) Dispatch(sess Session, raw []byte) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		r.log.Warn("dropping malformed frame", "conn", sess.ID(), "err", err)
		return
	}

	h, ok := r.handlers[env.Type]
	if !ok {
		r.log.Warn("unknown event", "conn", sess.ID(), "type", env.Type)
		return
	}

	metrics.EventsTotal.WithLabelValues(string(env.Type)).Inc()

	if err := h(sess, env.Data); err != nil {
		r.log.Warn("event rejected", "conn", sess.ID(), "type", env.Type, "err", err)
	}
}

// Disconnect runs the leave path for every room the connection had joined.
// Called synchronously from the hub when the transport drops the connection.
func (r *Router) Disconnect(sess Session) {
	for _, roomID := range r.store.RoomsOf(sess.ID()) {
		wasLast := r.store.RemoveMember(roomID, sess.ID())
		if wasLast {
			r.log.Info("room reclaimed", "room", roomID)
			continue
		}
		r.broadcast(roomID, EventUserLeft, UserLeft{
			ID:       sess.ID(),
			Nickname: sess.Nickname(),
		}, "")
	}
	metrics.ActiveRooms.Set(float64(r.store.RoomCount()))
}

func (r *Router) handleJoin(sess Session, data json.RawMessage) error {
	var req JoinRoom
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.RoomID == "" {
		return fmt.Errorf("%w: empty roomId", ErrMalformed)
	}
	if req.Nickname != "" {
		sess.SetNickname(req.Nickname)
	}

	r.store.AddMember(req.RoomID, sess.ID())
	metrics.ActiveRooms.Set(float64(r.store.RoomCount()))

	// Ship the current snapshot to the joiner before anything else so a
	// late joiner always starts from the room's latest state.
	scene := r.store.Scene(req.RoomID)
	if scene == nil {
		scene = json.RawMessage("[]")
	}
	frame, err := Encode(EventCanvasState, scene)
	if err != nil {
		return err
	}
	if err := sess.Send(frame); err != nil {
		r.log.Debug("canvasState send failed", "conn", sess.ID(), "err", err)
	}

	r.broadcast(req.RoomID, EventUserJoined, UserJoined{
		ID:       sess.ID(),
		Nickname: sess.Nickname(),
	}, sess.ID())

	r.log.Info("member joined",
		"room", req.RoomID,
		"conn", sess.ID(),
		"nickname", sess.Nickname(),
		"members", r.store.MemberCount(req.RoomID))
	return nil
}

func (r *Router) handleUpdateElements(sess Session, data json.RawMessage) error {
	var req UpdateElements
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !validElements(req.Elements) {
		return fmt.Errorf("%w: elements is not a JSON array", ErrMalformed)
	}

	// Updates for rooms this connection never joined (or rooms already
	// reclaimed) are dropped without error: stale events must not
	// resurrect state.
	if !r.store.IsMember(req.RoomID, sess.ID()) {
		r.log.Debug("update for unknown room ignored", "room", req.RoomID, "conn", sess.ID())
		return nil
	}

	r.store.SetScene(req.RoomID, req.Elements)

	r.broadcast(req.RoomID, EventElementsUpdated, ElementsUpdated{
		Elements: req.Elements,
		UserID:   sess.ID(),
		Nickname: nicknameOr(req.Nickname, sess),
	}, sess.ID())
	return nil
}

func (r *Router) handlePointerUpdate(sess Session, data json.RawMessage) error {
	var req PointerUpdate
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !r.store.IsMember(req.RoomID, sess.ID()) {
		return nil
	}

	// Pure relay: the server keeps no pointer state.
	r.broadcast(req.RoomID, EventPointerUpdated, PointerUpdated{
		UserID:   sess.ID(),
		Pointer:  req.Pointer,
		Nickname: nicknameOr(req.Nickname, sess),
	}, sess.ID())
	return nil
}

func (r *Router) handleChat(sess Session, data json.RawMessage) error {
	var req ChatMessage
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !r.store.IsMember(req.RoomID, sess.ID()) {
		return nil
	}

	// Chat goes to everyone in the room, sender included; clients tell
	// their own messages apart by the sender nickname.
	r.broadcast(req.RoomID, EventChatMessage, ChatBroadcast{Message: req.Message}, "")
	return nil
}

// broadcast fans one event out to every member of a room, skipping the
// excluded connection id (empty string excludes nobody). Send failures on
// individual members are logged and skipped; the transport's own lifecycle
// handles dead connections.
func (r *Router) broadcast(roomID string, t EventType, payload any, exclude string) {
	frame, err := Encode(t, payload)
	if err != nil {
		r.log.Error("broadcast encode failed", "room", roomID, "type", t, "err", err)
		return
	}

	for _, id := range r.store.Members(roomID) {
		if id == exclude {
			continue
		}
		sess, ok := r.dir.Session(id)
		if !ok {
			continue
		}
		if err := sess.Send(frame); err != nil {
			r.log.Debug("send failed", "room", roomID, "conn", id, "err", err)
		}
	}
	metrics.BroadcastsTotal.Inc()
}

func nicknameOr(name string, sess Session) string {
	if name != "" {
		return name
	}
	return sess.Nickname()
}
