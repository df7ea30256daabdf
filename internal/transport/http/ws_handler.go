package http

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"liveclass-service/internal/app"
	"liveclass-service/internal/domain"
)

type WSHandler struct {
	service  *app.RoomService
	engine   *app.GameEngine
	secret   []byte
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RoomService, engine *app.GameEngine, secret string) *WSHandler {
	return &WSHandler{
		service: service,
		engine:  engine,
		secret:  []byte(secret),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// inboundMessage is the flat command envelope clients send.
type inboundMessage struct {
	Type              string `json:"type"`
	Content           string `json:"content"`
	ContentKind       string `json:"contentKind"`
	ContentID         string `json:"contentId"`
	RoundRef          int    `json:"roundRef"`
	Value             string `json:"value"`
	TargetParticipant string `json:"targetParticipant"`
	Points            int    `json:"points"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name"`
}

// authenticate resolves the identity behind a handshake token.
func (h *WSHandler) authenticate(raw string) (domain.Identity, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return domain.Identity{}, domain.ErrNotAuthorized
	}
	role := domain.Role(claims.Role)
	if role != domain.RoleProfessor {
		role = domain.RoleStudent
	}
	return domain.Identity{UserID: claims.Subject, DisplayName: claims.Name, Role: role}, nil
}

// ServeWS upgrades the connection, authorizes the join and runs the
// connection's read loop. Rejections close the socket without a
// handshake-level error, so unauthorized clients learn nothing about the
// room's existence; malformed inbound frames are dropped with no reply.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	lessonID := r.URL.Query().Get("lessonId")
	conversationID := r.URL.Query().Get("conversationId")
	rawToken := r.URL.Query().Get("token")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if rawToken == "" || (lessonID == "" && conversationID == "") {
		return
	}
	identity, err := h.authenticate(rawToken)
	if err != nil {
		return
	}

	ctx := r.Context()
	var roomID, connID string
	switch {
	case lessonID != "":
		roomID = app.LessonRoomID(lessonID)
		connID, err = h.service.JoinLesson(ctx, lessonID, identity)
	default:
		roomID = app.ConversationRoomID(conversationID)
		connID, err = h.service.JoinConversation(ctx, conversationID, identity)
	}
	if err != nil {
		return
	}
	defer h.service.Leave(context.Background(), roomID, connID)

	updates, cancel, err := h.service.Subscribe(roomID)
	if err != nil {
		log.Printf("ws subscribe failed: room=%s err=%v", roomID, err)
		return
	}
	defer cancel()

	send := make(chan domain.Event, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for event := range send {
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- update:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, roomID, identity, inbound, send, writerDone)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// dispatch routes one inbound command. Validation failures are silent
// no-ops per the room's fail-safe policy; only a start-game collaborator
// failure is surfaced, and only to the initiating professor.
func (h *WSHandler) dispatch(ctx context.Context, roomID string, identity domain.Identity, inbound inboundMessage, send chan<- domain.Event, writerDone <-chan struct{}) {
	switch inbound.Type {
	case "CHAT":
		if err := h.service.SendChat(ctx, roomID, identity, inbound.Content, inbound.ContentKind); err != nil && !errors.Is(err, domain.ErrEmptyContent) {
			log.Printf("chat dropped: room=%s err=%v", roomID, err)
		}
	case "ANNOUNCE_PRESENCE":
		_ = h.service.AnnouncePresence(ctx, roomID, identity)
	case "START_QUIZ":
		h.startGame(ctx, roomID, identity, domain.ModeQuiz, inbound.ContentID, send, writerDone)
	case "START_CODE_CHALLENGE":
		h.startGame(ctx, roomID, identity, domain.ModeCodeChallenge, inbound.ContentID, send, writerDone)
	case "SUBMIT_ANSWER":
		result, err := h.engine.SubmitAnswer(ctx, roomID, identity, inbound.RoundRef, inbound.Value)
		if err != nil {
			return
		}
		deliver(send, writerDone, domain.NewAnswerResult(result))
	case "STOP_GAME":
		if err := h.engine.StopGame(ctx, roomID, identity); err != nil {
			log.Printf("stop game ignored: room=%s err=%v", roomID, err)
		}
	case "GIVE_XP":
		_ = h.service.AwardXP(ctx, roomID, identity, inbound.TargetParticipant, inbound.Points)
	default:
		// Unknown command: drop with no reply.
	}
}

func (h *WSHandler) startGame(ctx context.Context, roomID string, identity domain.Identity, mode domain.GameMode, contentID string, send chan<- domain.Event, writerDone <-chan struct{}) {
	err := h.engine.StartGame(ctx, roomID, identity, mode, contentID)
	switch {
	case err == nil:
		return
	case errors.Is(err, domain.ErrNotProfessor),
		errors.Is(err, domain.ErrNotAuthorized),
		errors.Is(err, domain.ErrGameInProgress):
		// Out-of-context command: silent no-op.
	default:
		// Collaborator failure loading content: the room stays idle and only
		// the initiating professor hears about it.
		log.Printf("start game failed: room=%s mode=%s err=%v", roomID, mode, err)
		deliver(send, writerDone, domain.Event{Type: "error", Payload: errorPayload{Message: "could not start game"}})
	}
}

// deliver queues a private event for the connection, giving up once the
// writer goroutine has exited so the read loop can never block on a dead
// socket.
func deliver(send chan<- domain.Event, writerDone <-chan struct{}, event domain.Event) {
	select {
	case send <- event:
	case <-writerDone:
	}
}
