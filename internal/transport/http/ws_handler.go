package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"quizhost-service/internal/app"

	"github.com/gorilla/websocket"
)

// WSHandler upgrades player connections to websockets and wires them into
// the participation operations. Each connection belongs to exactly one
// player; the join happens on connect.
type WSHandler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinedPayload struct {
	PlayerID int `json:"playerId"`
}

type positionPayload struct {
	Position int `json:"position"`
}

type answerPayload struct {
	Position  int   `json:"position"`
	AnswerIDs []int `json:"answerIds"`
}

type chatPayload struct {
	Message string `json:"message"`
}

// ServePlay joins the player named in the query string into the session and
// then serves their requests over the socket.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.Atoi(r.URL.Query().Get("sessionId"))
	if err != nil {
		http.Error(w, "missing or invalid sessionId", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	playerID, err := h.service.Join(sessionID, name)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	_ = conn.WriteJSON(outboundMessage[joinedPayload]{Type: "joined", Payload: joinedPayload{PlayerID: playerID}})

	// Requests are handled one at a time, so the read loop is the only
	// writer on this connection.
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		h.handle(conn, playerID, inbound)
	}
}

func (h *WSHandler) handle(conn *websocket.Conn, playerID int, inbound inboundMessage) {
	switch inbound.Type {
	case "status":
		status, err := h.service.GetPlayerStatus(playerID)
		h.reply(conn, "status", status, err)

	case "question":
		var p positionPayload
		if !h.decode(conn, inbound.Payload, &p) {
			return
		}
		question, err := h.service.GetPlayerQuestion(playerID, p.Position)
		h.reply(conn, "question", question, err)

	case "answer":
		var p answerPayload
		if !h.decode(conn, inbound.Payload, &p) {
			return
		}
		err := h.service.SubmitAnswers(playerID, p.Position, p.AnswerIDs)
		h.reply(conn, "answerAck", struct{}{}, err)

	case "questionResult":
		var p positionPayload
		if !h.decode(conn, inbound.Payload, &p) {
			return
		}
		result, err := h.service.GetPlayerQuestionResult(playerID, p.Position)
		h.reply(conn, "questionResult", result, err)

	case "finalResults":
		results, err := h.service.GetFinalResults(playerID)
		h.reply(conn, "finalResults", results, err)

	case "chat":
		var p chatPayload
		if !h.decode(conn, inbound.Payload, &p) {
			return
		}
		err := h.service.Chat(playerID, p.Message)
		h.reply(conn, "chatAck", struct{}{}, err)

	case "readChat":
		messages, err := h.service.ReadChat(playerID)
		h.reply(conn, "messages", messages, err)

	default:
		h.writeError(conn, "unsupported message type")
	}
}

func (h *WSHandler) reply(conn *websocket.Conn, msgType string, payload any, err error) {
	if err != nil {
		h.writeError(conn, err.Error())
		return
	}
	if err := conn.WriteJSON(outboundMessage[any]{Type: msgType, Payload: payload}); err != nil {
		log.Printf("ws write error: %v", err)
	}
}

func (h *WSHandler) decode(conn *websocket.Conn, raw json.RawMessage, into any) bool {
	if err := json.Unmarshal(raw, into); err != nil {
		h.writeError(conn, "invalid payload")
		return false
	}
	return true
}

func (h *WSHandler) writeError(conn *websocket.Conn, message string) {
	if err := conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: message}}); err != nil {
		log.Printf("ws write error: %v", err)
	}
}
