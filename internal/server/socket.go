package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/toronlabs/toron_backend/internal/auth"
	"github.com/toronlabs/toron_backend/internal/logging"
	"github.com/toronlabs/toron_backend/internal/match"
)

// socketRequest is the union of every client event payload. Events read
// only the fields they need.
type socketRequest struct {
	UserID       string `json:"userId"`
	RoomID       string `json:"roomId"`
	SubjectID    int64  `json:"subjectId"`
	Role         string `json:"role"`
	Position     string `json:"position"`
	Message      string `json:"message"`
	Kind         string `json:"kind"`
	TargetUserID string `json:"targetUserId"`
	Points       int    `json:"points"`
	Seconds      int    `json:"seconds"`
	Scores       struct {
		Agree    int `json:"agree"`
		Disagree int `json:"disagree"`
	} `json:"scores"`
}

// guardedOps are the mutating operations the deduper protects against
// duplicate in-flight requests from the same connection
var guardedOps = map[string]bool{
	"create_room":           true,
	"join_room":             true,
	"leave_room":            true,
	"select_role":           true,
	"select_position":       true,
	"player_ready":          true,
	"referee_add_points":    true,
	"referee_deduct_points": true,
	"referee_extend_time":   true,
	"referee_reduce_time":   true,
	"referee_submit_scores": true,
}

// handleSocket upgrades the connection and runs its read loop until the
// client goes away
func (s *Server) handleSocket(c *gin.Context) {
	pinnedUser := ""
	if s.cfg.AuthSecret != "" {
		claims, err := auth.ValidateToken(s.cfg.AuthSecret, socketToken(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		pinnedUser = claims.UserID
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn("Websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := newClient(conn)
	s.hub.Register(client)
	go client.writePump()

	if pinnedUser != "" {
		s.sessions.Bind(client.ID, pinnedUser)
	}
	logging.LogSocketEvent("connected", client.ID, map[string]interface{}{
		"user_id": pinnedUser,
	})

	s.readLoop(client, pinnedUser)

	s.hub.Unregister(client.ID)
	s.deduper.Cleanup(client.ID)
	s.sessions.DropConn(client.ID)
	logging.LogSocketEvent("disconnected", client.ID, nil)
}

// socketToken pulls the gate token from the query string or the
// Authorization header
func socketToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func (s *Server) readLoop(client *Client, pinnedUser string) {
	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.LogSocketEvent("read_failed", client.ID, map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.fail(client, env, "malformed envelope")
			continue
		}
		s.dispatch(client, pinnedUser, env)
	}
}

// dispatch routes one envelope to its handler. Every mutating handler
// sits behind the deduper; duplicates are rejected without touching
// state.
func (s *Server) dispatch(client *Client, pinnedUser string, env Envelope) {
	s.metrics.RecordSocketEvent(env.Event)

	var req socketRequest
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			s.fail(client, env, "malformed data payload")
			return
		}
	}

	// A gated connection speaks only as its token user
	if pinnedUser != "" && req.UserID != "" && req.UserID != pinnedUser {
		s.fail(client, env, "userId does not match token")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID, _ = s.sessions.UserFor(client.ID)
	} else if pinnedUser == "" {
		s.sessions.Bind(client.ID, userID)
	}

	if guardedOps[env.Event] {
		if !s.deduper.Begin(client.ID, env.Event) {
			s.fail(client, env, "request already in flight")
			return
		}
		defer s.deduper.End(client.ID, env.Event)
	}

	switch env.Event {
	case "get_subjects":
		s.ack(client, env, gin.H{"subjects": s.manager.Subjects()})

	case "get_rooms":
		s.ack(client, env, gin.H{"rooms": s.manager.Rooms()})

	case "get_my_room":
		s.ack(client, env, gin.H{"room": s.manager.MyRoom(userID)})

	case "get_user_profile":
		target := req.TargetUserID
		if target == "" {
			target = userID
		}
		profile, err := s.manager.Profile(target)
		if err != nil {
			s.fail(client, env, "failed to load profile")
			return
		}
		s.ack(client, env, gin.H{"profile": profile})

	case "create_room":
		if userID == "" {
			s.fail(client, env, "userId is required")
			return
		}
		view, err := s.manager.CreateRoom(client.ID, userID, req.SubjectID)
		if err != nil {
			s.fail(client, env, err.Error())
			return
		}
		s.ack(client, env, gin.H{"room": view})

	case "join_room":
		if userID == "" {
			s.fail(client, env, "userId is required")
			return
		}
		view, err := s.manager.JoinRoom(client.ID, userID, req.RoomID)
		if err != nil {
			s.fail(client, env, err.Error())
			return
		}
		s.ack(client, env, gin.H{"room": view})

	case "leave_room":
		if err := s.manager.LeaveRoom(client.ID, userID, req.RoomID); err != nil {
			s.fail(client, env, err.Error())
			return
		}
		s.ack(client, env, gin.H{"left": true})

	case "select_role":
		view, err := s.manager.SelectRole(userID, req.RoomID, req.Role)
		if err != nil {
			s.fail(client, env, err.Error())
			return
		}
		s.ack(client, env, gin.H{"room": view})

	case "select_position":
		view, err := s.manager.SelectPosition(userID, req.RoomID, req.Position)
		if err != nil {
			s.fail(client, env, err.Error())
			return
		}
		s.ack(client, env, gin.H{"room": view})

	case "player_ready":
		view, err := s.manager.ToggleReady(userID, req.RoomID)
		if err != nil {
			s.fail(client, env, err.Error())
			return
		}
		s.ack(client, env, gin.H{"room": view})

	case "join_discussion_room":
		if userID == "" {
			s.fail(client, env, "userId is required")
			return
		}
		view, err := s.manager.JoinDiscussionRoom(client.ID, userID, req.RoomID)
		if err != nil {
			s.fail(client, env, err.Error())
			return
		}
		s.ack(client, env, gin.H{"room": view})

	case "discussion_view_ready":
		if err := s.manager.DiscussionViewReady(userID, req.RoomID); err != nil {
			s.fail(client, env, err.Error())
			return
		}
		s.ack(client, env, gin.H{"ready": true})

	case "send_message":
		if err := s.manager.SendMessage(userID, req.RoomID, req.Message); err != nil {
			s.fail(client, env, err.Error())
			return
		}
		s.ack(client, env, gin.H{"sent": true})

	case "time_overflow":
		if err := s.manager.TimeOverflow(userID, req.RoomID, req.Kind); err != nil {
			s.fail(client, env, err.Error())
			return
		}
		s.ack(client, env, gin.H{"reported": true})

	case "get_messages":
		s.ack(client, env, gin.H{"messages": s.manager.Messages(req.RoomID)})

	case "get_room_state":
		snapshot := s.manager.RoomState(userID, req.RoomID)
		if env.AckID != 0 {
			s.ack(client, env, snapshot)
			return
		}
		client.enqueue(outbound{Event: "room_state_updated", Data: snapshot})

	case "referee_add_points":
		s.refereeAck(client, env, s.manager.RefereeAddPoints(userID, req.RoomID, req.TargetUserID, req.Points))

	case "referee_deduct_points":
		s.refereeAck(client, env, s.manager.RefereeDeductPoints(userID, req.RoomID, req.TargetUserID, req.Points))

	case "referee_extend_time":
		s.refereeAck(client, env, s.manager.RefereeExtendTime(userID, req.RoomID, req.TargetUserID, req.Seconds))

	case "referee_reduce_time":
		s.refereeAck(client, env, s.manager.RefereeReduceTime(userID, req.RoomID, req.TargetUserID, req.Seconds))

	case "referee_submit_scores":
		s.refereeAck(client, env, s.manager.RefereeSubmitScores(userID, req.RoomID,
			match.HumanScores{Agree: req.Scores.Agree, Disagree: req.Scores.Disagree}))

	default:
		s.fail(client, env, "unknown event: "+env.Event)
	}
}

// ack answers a request. With an ackId the answer is a callback frame;
// without one the result is pushed under the request's event name.
func (s *Server) ack(client *Client, env Envelope, data interface{}) {
	if env.AckID != 0 {
		client.enqueue(outbound{Event: "ack", AckID: env.AckID, Data: data})
		return
	}
	client.enqueue(outbound{Event: env.Event, Data: data})
}

// fail answers a request with an error payload
func (s *Server) fail(client *Client, env Envelope, message string) {
	if env.AckID != 0 {
		client.enqueue(outbound{Event: "ack", AckID: env.AckID, Data: gin.H{"error": message}})
		return
	}
	client.enqueue(outbound{Event: "error", Data: gin.H{
		"event": env.Event,
		"error": message,
	}})
}

func (s *Server) refereeAck(client *Client, env Envelope, err error) {
	if err != nil {
		s.fail(client, env, err.Error())
		return
	}
	s.ack(client, env, gin.H{"applied": true})
}
