package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/acetosyn/Emis-student-exam2025/internal/exam"
	"github.com/acetosyn/Emis-student-exam2025/internal/middleware"
	"github.com/acetosyn/Emis-student-exam2025/internal/model"
	"github.com/acetosyn/Emis-student-exam2025/internal/repository"
	"github.com/acetosyn/Emis-student-exam2025/internal/response"
	"github.com/acetosyn/Emis-student-exam2025/internal/service"
	"github.com/acetosyn/Emis-student-exam2025/internal/validator"
)

// ExamHandler handles the attempt lifecycle over REST.
type ExamHandler struct {
	attempts *service.AttemptService
	tokens   *service.TokenService
	results  *repository.ResultRepository
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(attempts *service.AttemptService, tokens *service.TokenService, results *repository.ResultRepository) *ExamHandler {
	return &ExamHandler{
		attempts: attempts,
		tokens:   tokens,
		results:  results,
	}
}

// StartAttempt godoc
// POST /api/v1/attempts
// Loads the question set, starts the countdown and returns an attempt token.
func (h *ExamHandler) StartAttempt(c *gin.Context) {
	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.attempts.Start(c.Request.Context(), req)
	if err != nil {
		var resErr *exam.ResourceError
		var valErr *exam.ValidationError
		switch {
		case errors.Is(err, service.ErrAttemptActive):
			response.Fail(c, http.StatusConflict, response.ErrAttemptActive)
		case errors.As(err, &resErr):
			response.Fail(c, http.StatusBadGateway, response.ErrExamNotAvailable)
		case errors.As(err, &valErr):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	token, err := h.tokens.GenerateAttemptToken(req.StudentID, sess.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	idx, question := sess.CurrentQuestion()
	response.Success(c, http.StatusCreated, gin.H{
		"attempt_id":           sess.ID,
		"token":                token,
		"subject":              sess.Subject(),
		"class_category":       sess.ClassCategory(),
		"question_count":       sess.QuestionCount(),
		"time_allowed_seconds": sess.TimeAllowedSeconds(),
		"current_index":        idx,
		"question":             question,
	})
}

// GetState godoc
// GET /api/v1/attempts/:attempt_id/state
// Returns the resume snapshot plus the current question.
func (h *ExamHandler) GetState(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	idx, question := sess.CurrentQuestion()
	response.Success(c, http.StatusOK, gin.H{
		"state":    sess.State(),
		"index":    idx,
		"question": question,
		"progress": sess.Progress(),
	})
}

// Answer godoc
// POST /api/v1/attempts/:attempt_id/answer
// Locks in an option for the current question and grades it instantly.
func (h *ExamHandler) Answer(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questionID, isCorrect, err := sess.SelectAnswer(*req.OptionIndex)
	if err != nil {
		switch {
		case errors.Is(err, exam.ErrLockedQuestion):
			if sess.Finished() {
				response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
			} else {
				response.Fail(c, http.StatusConflict, response.ErrQuestionLocked)
			}
		case errors.Is(err, exam.ErrInvalidOption):
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidOption)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id": questionID,
		"is_correct":  isCorrect,
		"progress":    sess.Progress(),
	})
}

// Navigate godoc
// POST /api/v1/attempts/:attempt_id/navigate
// Moves the cursor by direction or to an absolute index.
func (h *ExamHandler) Navigate(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	switch {
	case req.Index != nil:
		sess.GoTo(*req.Index)
	case req.Direction == "previous":
		sess.Previous()
	default:
		sess.Next()
	}

	h.attempts.MirrorState(c.Request.Context(), sess)

	idx, question := sess.CurrentQuestion()
	response.Success(c, http.StatusOK, gin.H{
		"index":    idx,
		"question": question,
	})
}

// Flag godoc
// POST /api/v1/attempts/:attempt_id/flag
// Toggles the review flag on a question.
func (h *ExamHandler) Flag(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.FlagRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	flagged := sess.ToggleFlag(req.QuestionID)
	h.attempts.MirrorState(c.Request.Context(), sess)
	response.Success(c, http.StatusOK, gin.H{"flagged": flagged})
}

// Signal godoc
// POST /api/v1/attempts/:attempt_id/signals
// Reports one environment signal from the browser.
func (h *ExamHandler) Signal(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.SignalRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess.Observe(c.Request.Context(), exam.Signal{
		Type:        exam.SignalType(req.Type),
		OuterWidth:  req.OuterWidth,
		InnerWidth:  req.InnerWidth,
		OuterHeight: req.OuterHeight,
		InnerHeight: req.InnerHeight,
	})

	response.Success(c, http.StatusAccepted, gin.H{
		"strikes":  sess.State().StrikeCount,
		"finished": sess.Finished(),
	})
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Finalizes the attempt. Idempotent: repeated calls return the same result.
func (h *ExamHandler) Submit(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	result := sess.Submit(c.Request.Context(), exam.TriggerUser)
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetResult godoc
// GET /api/v1/attempts/:attempt_id/result
// Returns the live result when the session is still in memory, falling
// back to the persisted row.
func (h *ExamHandler) GetResult(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if sess, err := h.attempts.Get(attemptID); err == nil {
		if result := sess.Result(); result != nil {
			response.Success(c, http.StatusOK, gin.H{"result": result})
			return
		}
		response.Fail(c, http.StatusConflict, response.ErrAttemptActive)
		return
	}

	stored, err := h.results.GetByAttemptID(c.Request.Context(), attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrResultNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": stored})
}

// GetActiveAttempt godoc
// GET /api/v1/students/:student_id/active-attempt
// Resolves a student's live attempt for session resume.
func (h *ExamHandler) GetActiveAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	studentID := c.Param("student_id")
	if claims == nil || claims.StudentID != studentID {
		response.Fail(c, http.StatusForbidden, response.ErrTokenInvalid)
		return
	}

	sess, err := h.attempts.ActiveForStudent(studentID)
	if err != nil {
		// Not live in this process: serve the Redis snapshot, written on
		// every mutation, so a restart or another instance still resumes.
		state, reloads, merr := h.attempts.MirroredAttempt(c.Request.Context(), studentID)
		if merr != nil {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		response.Success(c, http.StatusOK, gin.H{
			"attempt_id": state.AttemptID,
			"state":      state,
			"reloads":    reloads,
			"mirrored":   true,
		})
		return
	}

	status := model.AttemptStatusInProgress
	if sess.Finished() {
		status = model.AttemptStatusCompleted
	}
	attempt := model.Attempt{
		ID:            sess.ID,
		StudentID:     sess.StudentID,
		Subject:       sess.Subject(),
		ClassCategory: sess.ClassCategory(),
		StartedAt:     sess.StartedAt(),
		Status:        status,
	}

	idx, question := sess.CurrentQuestion()
	response.Success(c, http.StatusOK, gin.H{
		"attempt":    attempt,
		"attempt_id": sess.ID,
		"state":      sess.State(),
		"index":      idx,
		"question":   question,
	})
}

// ListResults godoc
// GET /api/v1/students/:student_id/results
// Returns a student's persisted results, newest first.
func (h *ExamHandler) ListResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	studentID := c.Param("student_id")
	if claims == nil || claims.StudentID != studentID {
		response.Fail(c, http.StatusForbidden, response.ErrTokenInvalid)
		return
	}

	results, err := h.results.ListByStudent(c.Request.Context(), studentID, 20)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// session resolves the attempt named in the URL to a live session,
// writing the error response itself on failure.
func (h *ExamHandler) session(c *gin.Context) (*exam.Session, bool) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	sess, err := h.attempts.Get(attemptID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return nil, false
	}
	return sess, true
}
