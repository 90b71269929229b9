package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/acetosyn/Emis-student-exam2025/internal/exam"
	"github.com/acetosyn/Emis-student-exam2025/internal/middleware"
	"github.com/acetosyn/Emis-student-exam2025/internal/model"
	"github.com/acetosyn/Emis-student-exam2025/internal/service"
	ws "github.com/acetosyn/Emis-student-exam2025/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams an attempt over WebSocket: countdown ticks, threshold
// warnings and violation notices flow out, answers and signals flow in.
type WSHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	sess, err := h.attempts.Get(attemptID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live attempt"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_id", claims.StudentID).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	// The session can finish between the registry lookup and the upgrade.
	// No writer goroutine exists yet, so a direct write is safe here.
	if sess.Finished() {
		_ = ws.WriteError(conn, "attempt already finished")
		return
	}

	// Hook callbacks fire on session goroutines; the outbound channel
	// funnels them into the single writer below, since gorilla connections
	// allow one concurrent writer only.
	outbound := make(chan interface{}, 32)
	stop := make(chan struct{})
	done := make(chan struct{})

	unhook := h.attachHooks(sess, outbound)
	defer unhook()

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				// Drain whatever is already queued, the finished event
				// in particular, before dropping the connection.
				for {
					select {
					case msg := <-outbound:
						if err := ws.WriteTyped(conn, msg); err != nil {
							return
						}
					default:
						return
					}
				}
			case msg := <-outbound:
				if err := ws.WriteTyped(conn, msg); err != nil {
					wsLog.Debug().Err(err).Msg("Outbound write failed")
					return
				}
			}
		}
	}()

	h.readLoop(conn, sess, outbound, wsLog)

	unhook()
	close(stop)
	<-done
	wsLog.Info().Msg("Student disconnected")
}

// attachHooks forwards session events to the outbound channel and returns
// a cancel func detaching all of them.
func (h *WSHandler) attachHooks(sess *exam.Session, outbound chan<- interface{}) func() {
	send := func(msg interface{}) {
		// Drop events rather than block a session goroutine on a slow
		// client; the periodic state endpoint recovers missed ticks.
		select {
		case outbound <- msg:
		default:
		}
	}

	cancels := []func(){
		sess.Hooks().OnTick(func(remaining int) {
			send(ws.TickResponse{Event: ws.EventTick, RemainingSeconds: remaining})
		}),
		sess.Hooks().OnThresholdWarning(func(label string) {
			send(ws.ThresholdResponse{Event: ws.EventThreshold, Label: label})
		}),
		sess.Hooks().OnViolationWarning(func(reason string) {
			send(ws.ViolationResponse{Event: ws.EventViolation, Reason: reason})
		}),
		sess.Hooks().OnQuestionChanged(func(index int, q model.Question) {
			send(ws.QuestionResponse{Event: ws.EventQuestion, Index: index, Question: q.ForStudent()})
		}),
		sess.Hooks().OnFinished(func(result model.Result) {
			send(ws.FinishedResponse{Event: ws.EventFinished, Result: result})
		}),
	}

	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (h *WSHandler) readLoop(conn *websocket.Conn, sess *exam.Session, outbound chan<- interface{}, wsLog zerolog.Logger) {
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(sess, outbound, &msg)
		case ws.ActionNavigate:
			h.handleNavigate(sess, &msg)
			h.attempts.MirrorState(context.Background(), sess)
		case ws.ActionFlag:
			if msg.QuestionID != "" {
				sess.ToggleFlag(msg.QuestionID)
				h.attempts.MirrorState(context.Background(), sess)
			}
		case ws.ActionSignal:
			sess.Observe(context.Background(), exam.Signal{
				Type:        exam.SignalType(msg.Signal),
				OuterWidth:  msg.OuterWidth,
				InnerWidth:  msg.InnerWidth,
				OuterHeight: msg.OuterHeight,
				InnerHeight: msg.InnerHeight,
			})
		case ws.ActionSubmit:
			sess.Submit(context.Background(), exam.TriggerUser)
			// The finished hook delivers the result; the stream is done.
			return
		case ws.ActionPing:
			h.send(outbound, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			h.send(outbound, ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}
}

func (h *WSHandler) handleAnswer(sess *exam.Session, outbound chan<- interface{}, msg *ws.RequestEnvelope) {
	if msg.OptionIndex == nil {
		h.send(outbound, ws.ErrorResponse{Event: ws.EventError, Error: "option_index is required"})
		return
	}

	qid, isCorrect, err := sess.SelectAnswer(*msg.OptionIndex)
	if err != nil {
		h.send(outbound, ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
		return
	}

	h.send(outbound, ws.AnswerResultResponse{
		Event:      ws.EventAnswerResult,
		QuestionID: qid,
		IsCorrect:  isCorrect,
		Progress:   sess.Progress(),
	})
}

func (h *WSHandler) handleNavigate(sess *exam.Session, msg *ws.RequestEnvelope) {
	switch {
	case msg.Index != nil:
		sess.GoTo(*msg.Index)
	case msg.Direction == "previous":
		sess.Previous()
	default:
		sess.Next()
	}
}

func (h *WSHandler) send(outbound chan<- interface{}, msg interface{}) {
	select {
	case outbound <- msg:
	default:
	}
}
