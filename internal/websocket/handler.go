package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"coursechat/internal/auth"
	"coursechat/pkg/interfaces"
	"coursechat/pkg/types"
)

// persistTimeout bounds the synchronous persist of one inbound message.
const persistTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the deployment's reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Options carries the per-connection tuning knobs.
type Options struct {
	SendQueueSize int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	HistoryLimit  int
}

// Handler terminates inbound WebSocket connections for the room chat and
// personal notification endpoints.
type Handler struct {
	registry   interfaces.GroupRegistry
	verifier   *auth.Verifier
	authorizer *auth.Authorizer
	directory  interfaces.Directory
	messages   interfaces.MessageStore
	opts       Options
	log        *slog.Logger
}

// NewHandler creates the gateway handler.
func NewHandler(
	registry interfaces.GroupRegistry,
	verifier *auth.Verifier,
	authorizer *auth.Authorizer,
	directory interfaces.Directory,
	messages interfaces.MessageStore,
	opts Options,
	log *slog.Logger,
) *Handler {
	return &Handler{
		registry:   registry,
		verifier:   verifier,
		authorizer: authorizer,
		directory:  directory,
		messages:   messages,
		opts:       opts,
		log:        log,
	}
}

// HandleChat serves GET /ws/chat/{courseID}. Authorization runs before the
// upgrade: a rejected connection never reaches the room group. Unknown
// rooms and denied access are both 403 so callers cannot probe which rooms
// exist.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	user, err := h.verifier.UserFromRequest(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	courseID, err := strconv.ParseInt(r.PathValue("courseID"), 10, 64)
	if err != nil || !types.IsValidCourseID(courseID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// The course snapshot the decision used is the one frames are stamped
	// against; no second lookup that a concurrent deletion could race.
	course, ok := h.authorizer.AuthorizeRoom(r.Context(), user, courseID)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(ws, user, h.opts.SendQueueSize, h.opts.WriteTimeout, h.log)
	roomKey := types.RoomKey(course.ID)
	h.registry.Join(roomKey, conn)

	h.log.Info("chat connection opened",
		"room", course.ID, "user_id", user.ID, "conn", conn.ID())

	go h.sendRoomHistory(conn, course)
	go h.runChatLoop(conn, course)
}

// HandleNotifications serves GET /ws/notifications. Authentication only;
// the group key is the user's own id and inbound payloads are discarded.
func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	user, err := h.verifier.UserFromRequest(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(ws, user, h.opts.SendQueueSize, h.opts.WriteTimeout, h.log)
	userKey := types.UserKey(user.ID)
	h.registry.Join(userKey, conn)

	h.log.Info("notification connection opened", "user_id", user.ID, "conn", conn.ID())

	go h.runDiscardLoop(conn, userKey)
}

// runChatLoop is the per-connection receive loop: decode, trim, persist,
// publish. Leave is attempted on every exit path, even after a mid-flight
// failure.
func (h *Handler) runChatLoop(conn *Connection, course *types.Course) {
	roomKey := types.RoomKey(course.ID)
	defer func() {
		h.registry.Leave(roomKey, conn)
		_ = conn.Close()
		h.log.Info("chat connection closed",
			"room", course.ID, "user_id", conn.User().ID, "conn", conn.ID())
	}()

	h.startHeartbeat(conn)

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("read error", "conn", conn.ID(), "error", err)
			}
			return
		}

		// Malformed or empty frames are dropped; the connection stays open.
		text := types.ExtractMessageText(data)
		if text == "" {
			continue
		}

		// Persist before publish: nothing is broadcast that is not already
		// durable. The persist runs on its own context so a close racing
		// the last message still lets it complete.
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		msg, err := h.messages.AppendMessage(ctx, course.ID, conn.User().ID, text)
		cancel()
		if err != nil {
			h.log.Error("message persist failed, not broadcasting",
				"room", course.ID, "user_id", conn.User().ID, "error", err)
			_ = conn.DeliverJSON(types.SystemFrame{
				Type:    "system",
				Event:   "message_not_saved",
				Message: "Message could not be saved",
			})
			continue
		}

		h.registry.Publish(roomKey, types.NewChatFrame(msg, conn.User(), course.InstructorID))
	}
}

// runDiscardLoop keeps a server-to-client connection alive: it services
// control frames and discards any data the client sends.
func (h *Handler) runDiscardLoop(conn *Connection, key types.GroupKey) {
	defer func() {
		h.registry.Leave(key, conn)
		_ = conn.Close()
		h.log.Info("notification connection closed",
			"user_id", conn.User().ID, "conn", conn.ID())
	}()

	h.startHeartbeat(conn)

	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// startHeartbeat arms the read deadline, extends it on pong, and pings on
// an interval until the connection closes.
func (h *Handler) startHeartbeat(conn *Connection) {
	_ = conn.ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(h.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.opts.WriteTimeout)
				if err := conn.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()
}

// sendRoomHistory replays the most recent persisted room messages to a new
// connection, oldest first. Best-effort: a failure logs and live traffic
// continues.
func (h *Handler) sendRoomHistory(conn *Connection, course *types.Course) {
	if h.opts.HistoryLimit <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	messages, err := h.messages.RecentMessages(ctx, course.ID, h.opts.HistoryLimit)
	if err != nil {
		h.log.Warn("room history unavailable", "room", course.ID, "error", err)
		return
	}

	authors := make(map[int64]*types.User)
	for _, msg := range messages {
		author, ok := authors[msg.UserID]
		if !ok {
			author, err = h.directory.GetUser(ctx, msg.UserID)
			if err != nil {
				author = &types.User{ID: msg.UserID, Username: "unknown"}
			}
			authors[msg.UserID] = author
		}

		if err := conn.DeliverJSON(types.NewChatFrame(msg, author, course.InstructorID)); err != nil {
			return
		}
	}
}
