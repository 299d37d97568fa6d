package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/simulado-backend/internal/middleware"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/response"
	"github.com/stemsi/simulado-backend/internal/service"
	"github.com/stemsi/simulado-backend/internal/validator"
	ws "github.com/stemsi/simulado-backend/internal/websocket"
)

const student = "2024001"

// attemptsStub answers every lifecycle call from canned values.
type attemptsStub struct {
	startOut   *service.StartOutcome
	startErr   error
	summary    *service.AttemptSummary
	answerOut  *service.AnswerOutcome
	answerErr  error
	violations int
	submitErr  error
	blocked    []model.BlockedAttempt
	releaseErr error
	subjects   []model.SubjectScore
	subjectErr error

	lastAnswer model.AnswerRequest
	lastCaller string
	lastNote   string
}

func (s *attemptsStub) Lobby(ctx context.Context, studentID string) (*service.Lobby, error) {
	s.lastCaller = studentID
	return &service.Lobby{Simulados: []service.LobbyEntry{}}, nil
}

func (s *attemptsStub) Start(ctx context.Context, studentID string, simuladoID int64) (*service.StartOutcome, error) {
	s.lastCaller = studentID
	return s.startOut, s.startErr
}

func (s *attemptsStub) Summary(ctx context.Context, studentID string, attemptID int64) (*service.AttemptSummary, error) {
	if s.summary == nil {
		return nil, service.ErrAttemptNotFound
	}
	return s.summary, nil
}

func (s *attemptsStub) Question(ctx context.Context, studentID string, attemptID int64, position int) (*service.QuestionView, error) {
	if position < 1 || position > 5 {
		return nil, service.ErrInvalidPosition
	}
	return &service.QuestionView{AttemptID: attemptID, Progress: service.Progress{Current: position, Total: 5}}, nil
}

func (s *attemptsStub) RecordAnswer(ctx context.Context, studentID string, attemptID int64, req model.AnswerRequest) (*service.AnswerOutcome, error) {
	s.lastAnswer = req
	return s.answerOut, s.answerErr
}

func (s *attemptsStub) ReportViolation(ctx context.Context, studentID string, attemptID int64, req model.ViolationRequest) (*service.ViolationOutcome, error) {
	s.violations++
	out := &service.ViolationOutcome{AttemptID: attemptID, Violations: s.violations, MaxViolations: 3}
	if s.violations >= 3 {
		out.Closed = true
		out.Finalized = &model.AttemptResult{AttemptID: attemptID, Finalized: true, Reason: model.FinishViolations, Blocked: true}
	}
	return out, nil
}

func (s *attemptsStub) Submit(ctx context.Context, studentID string, attemptID int64) (*model.AttemptResult, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &model.AttemptResult{AttemptID: attemptID, Finalized: true, Status: model.AttemptSubmitted, Reason: model.FinishSubmit, Grade: 8}, nil
}

func (s *attemptsStub) Results(ctx context.Context, studentID string) ([]model.StudentResult, error) {
	return []model.StudentResult{}, nil
}

func (s *attemptsStub) SubjectBreakdown(ctx context.Context, studentID string, attemptID int64) ([]model.SubjectScore, error) {
	s.lastCaller = studentID
	return s.subjects, s.subjectErr
}

func (s *attemptsStub) ListBlocked(ctx context.Context) ([]model.BlockedAttempt, error) {
	return s.blocked, nil
}

func (s *attemptsStub) Release(ctx context.Context, staffID string, attemptID int64) (*service.ReleaseOutcome, error) {
	if s.releaseErr != nil {
		return nil, s.releaseErr
	}
	return &service.ReleaseOutcome{AttemptID: attemptID, Released: 2, ReleasedBy: staffID}, nil
}

func (s *attemptsStub) Block(ctx context.Context, staffID string, attemptID int64, note string) (*model.AttemptResult, error) {
	s.lastNote = note
	return &model.AttemptResult{AttemptID: attemptID, Finalized: true, Reason: model.FinishStaffBlock, Blocked: true}, nil
}

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// withClaims stands in for the auth middleware.
func withClaims(matricula string, perfil model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{Matricula: matricula, Perfil: perfil})
		c.Next()
	}
}

func portalRouter(stub *attemptsStub) *gin.Engine {
	h := NewStudentPortalHandler(stub, zerolog.Nop())
	r := gin.New()
	g := r.Group("/api/v1/aluno", withClaims(student, model.RoleStudent))
	g.GET("/simulados", h.GetLobby)
	g.POST("/simulados/:id/iniciar", h.StartAttempt)
	g.GET("/tentativas/:id", h.GetAttempt)
	g.GET("/tentativas/:id/questoes/:n", h.GetQuestion)
	g.POST("/tentativas/:id/responder", h.RecordAnswer)
	g.POST("/tentativas/:id/aviso", h.ReportViolation)
	g.POST("/tentativas/:id/enviar", h.Submit)
	g.GET("/tentativas/:id/materias", h.GetSubjectBreakdown)
	return r
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrSimuladoBlocked, http.StatusForbidden, response.ErrSimuladoBlocked},
		{service.ErrAlreadyCompleted, http.StatusConflict, response.ErrAlreadyCompleted},
		{service.ErrOutsideWindow, http.StatusForbidden, response.ErrOutsideWindow},
		{service.ErrNoQuestionsConfigured, http.StatusUnprocessableEntity, response.ErrNoQuestions},
		{service.ErrAttemptFinished, http.StatusConflict, response.ErrAttemptFinished},
		{service.ErrNotBlocked, http.StatusConflict, response.ErrNotBlocked},
		{service.ErrQuestionLimit, http.StatusConflict, response.ErrQuestionLimit},
		{service.ErrQuestionInUse, http.StatusConflict, response.ErrQuestionInUse},
		{service.ErrAttemptInProgress, http.StatusConflict, response.ErrAttemptInProgress},
		{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
		{context.DeadlineExceeded, http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tc := range cases {
		status, code, details := classify(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
		require.Equal(t, tc.code, code, tc.err.Error())
		require.Nil(t, details)
	}

	status, code, details := classify(&service.IncompleteError{Missing: 2, Answered: 3, Total: 5})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, response.ErrIncomplete, code)
	require.Equal(t, response.IncompleteDetails{Missing: 2, Answered: 3, Total: 5}, details)
}

func TestStartAttempt(t *testing.T) {
	stub := &attemptsStub{startOut: &service.StartOutcome{AttemptID: 7, Total: 5}}
	r := portalRouter(stub)

	status, env := do(t, r, http.MethodPost, "/api/v1/aluno/simulados/10/iniciar", "")
	require.Equal(t, http.StatusCreated, status)
	require.Nil(t, env.Error)
	require.Equal(t, student, stub.lastCaller)

	stub.startOut = &service.StartOutcome{AttemptID: 7, Resumed: true}
	status, _ = do(t, r, http.MethodPost, "/api/v1/aluno/simulados/10/iniciar", "")
	require.Equal(t, http.StatusOK, status)

	stub.startOut, stub.startErr = nil, service.ErrSimuladoBlocked
	status, env = do(t, r, http.MethodPost, "/api/v1/aluno/simulados/10/iniciar", "")
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, response.ErrSimuladoBlocked, env.Error.Code)

	status, env = do(t, r, http.MethodPost, "/api/v1/aluno/simulados/abc/iniciar", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, response.ErrInvalidID, env.Error.Code)
}

func TestRecordAnswerValidation(t *testing.T) {
	stub := &attemptsStub{answerOut: &service.AnswerOutcome{AttemptID: 7, Saved: true}}
	r := portalRouter(stub)

	status, env := do(t, r, http.MethodPost, "/api/v1/aluno/tentativas/7/responder", `{"questao_id": 101, "marcada": "B"}`)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, env.Error)
	require.Equal(t, model.Choice("B"), stub.lastAnswer.Choice)

	status, env = do(t, r, http.MethodPost, "/api/v1/aluno/tentativas/7/responder", `{"questao_id": 101, "marcada": "Z"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, response.ErrValidation, env.Error.Code)
	require.Contains(t, env.Error.Fields, "marcada")

	status, env = do(t, r, http.MethodPost, "/api/v1/aluno/tentativas/7/responder", `{"questao_id": 101, "marcada": "B", "correta": "B"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, response.ErrValidation, env.Error.Code)

	stub.answerOut, stub.answerErr = nil, service.ErrAttemptFinished
	status, env = do(t, r, http.MethodPost, "/api/v1/aluno/tentativas/7/responder", `{"questao_id": 101, "marcada": "B"}`)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, response.ErrAttemptFinished, env.Error.Code)
}

func TestFinalizedAnswerIsData(t *testing.T) {
	stub := &attemptsStub{answerOut: &service.AnswerOutcome{
		AttemptID: 7,
		Finalized: &model.AttemptResult{AttemptID: 7, Finalized: true, Reason: model.FinishTimeout, Blocked: true},
	}}
	r := portalRouter(stub)

	status, env := do(t, r, http.MethodPost, "/api/v1/aluno/tentativas/7/responder", `{"questao_id": 101, "marcada": "A"}`)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, env.Error)

	var out service.AnswerOutcome
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotNil(t, out.Finalized)
	require.Equal(t, model.FinishTimeout, out.Finalized.Reason)
}

func TestSubmitIncomplete(t *testing.T) {
	stub := &attemptsStub{submitErr: &service.IncompleteError{Missing: 1, Answered: 4, Total: 5}}
	r := portalRouter(stub)

	status, env := do(t, r, http.MethodPost, "/api/v1/aluno/tentativas/7/enviar", "")
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, response.ErrIncomplete, env.Error.Code)

	var details response.IncompleteDetails
	raw, err := json.Marshal(env.Error.Details)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &details))
	require.Equal(t, response.IncompleteDetails{Missing: 1, Answered: 4, Total: 5}, details)
}

func TestSubjectBreakdown(t *testing.T) {
	stub := &attemptsStub{subjects: []model.SubjectScore{{Materia: "Física", Total: 2, Answered: 2, Correct: 1}}}
	r := portalRouter(stub)

	status, env := do(t, r, http.MethodGet, "/api/v1/aluno/tentativas/7/materias", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, student, stub.lastCaller)
	var out struct {
		Materias []model.SubjectScore `json:"materias"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, stub.subjects, out.Materias)

	stub.subjects, stub.subjectErr = nil, service.ErrAttemptInProgress
	status, env = do(t, r, http.MethodGet, "/api/v1/aluno/tentativas/7/materias", "")
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, response.ErrAttemptInProgress, env.Error.Code)
}

func TestGetQuestionPosition(t *testing.T) {
	r := portalRouter(&attemptsStub{})

	status, _ := do(t, r, http.MethodGet, "/api/v1/aluno/tentativas/7/questoes/3", "")
	require.Equal(t, http.StatusOK, status)

	status, env := do(t, r, http.MethodGet, "/api/v1/aluno/tentativas/7/questoes/9", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, response.ErrInvalidPosition, env.Error.Code)

	status, env = do(t, r, http.MethodGet, "/api/v1/aluno/tentativas/7/questoes/x", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, response.ErrInvalidPosition, env.Error.Code)
}

func TestReleaseHandler(t *testing.T) {
	stub := &attemptsStub{blocked: []model.BlockedAttempt{{AttemptID: 9, StudentID: student, Reason: "avisos"}}}
	h := NewReleaseHandler(stub, zerolog.Nop())
	r := gin.New()
	g := r.Group("/api/v1/admin", withClaims("prof01", model.RoleProfessor))
	g.GET("/liberacoes", h.ListBlocked)
	g.POST("/liberacoes/:id/liberar", h.Release)
	g.POST("/tentativas/:id/bloquear", h.Block)

	status, env := do(t, r, http.MethodGet, "/api/v1/admin/liberacoes", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(env.Data), `"tentativa_id":9`)

	status, env = do(t, r, http.MethodPost, "/api/v1/admin/liberacoes/9/liberar", "")
	require.Equal(t, http.StatusOK, status)
	var out service.ReleaseOutcome
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, "prof01", out.ReleasedBy)

	stub.releaseErr = service.ErrNotBlocked
	status, env = do(t, r, http.MethodPost, "/api/v1/admin/liberacoes/9/liberar", "")
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, response.ErrNotBlocked, env.Error.Code)

	status, env = do(t, r, http.MethodPost, "/api/v1/admin/tentativas/9/bloquear", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(env.Data), `"motivo":"bloqueio"`)
	require.Empty(t, stub.lastNote)

	status, _ = do(t, r, http.MethodPost, "/api/v1/admin/tentativas/9/bloquear", `{"observacao": "celular na prova"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "celular na prova", stub.lastNote)

	status, env = do(t, r, http.MethodPost, "/api/v1/admin/tentativas/9/bloquear", `{"motivo": "x"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, response.ErrValidation, env.Error.Code)
}

// ─── WebSocket ──────────────────────────────────────────────────────

func dialStream(t *testing.T, stub *attemptsStub) *websocket.Conn {
	t.Helper()
	h := NewWSHandler(stub, zerolog.Nop(), nil, time.Minute)
	r := gin.New()
	r.GET("/ws/v1/aluno/tentativas/:id/stream", withClaims(student, model.RoleStudent), h.AttemptStream)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/aluno/tentativas/7/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Event ws.Event        `json:"event"`
	Data  json.RawMessage `json:"data"`
	Code  string          `json:"code"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestAttemptStream(t *testing.T) {
	stub := &attemptsStub{
		summary:   &service.AttemptSummary{AttemptID: 7, Status: model.AttemptInProgress, Total: 5},
		answerOut: &service.AnswerOutcome{AttemptID: 7, QuestionID: 101, Saved: true},
	}
	conn := dialStream(t, stub)

	require.Equal(t, ws.EventState, readFrame(t, conn).Event)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "ping"}))
	require.Equal(t, ws.EventPong, readFrame(t, conn).Event)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "answer", "questao_id": 101, "marcada": "C"}))
	require.Equal(t, ws.EventSaved, readFrame(t, conn).Event)
	require.Equal(t, model.Choice("C"), stub.lastAnswer.Choice)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "answer", "questao_id": 101, "marcada": "Q"}))
	f := readFrame(t, conn)
	require.Equal(t, ws.EventError, f.Event)
	require.Equal(t, string(response.ErrValidation), f.Code)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "dance"}))
	require.Equal(t, string(response.ErrInvalidPayload), readFrame(t, conn).Code)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "submit"}))
	f = readFrame(t, conn)
	require.Equal(t, ws.EventFinalized, f.Event)
	require.Contains(t, string(f.Data), `"motivo":"envio"`)
}

func TestAttemptStreamViolationsClose(t *testing.T) {
	stub := &attemptsStub{summary: &service.AttemptSummary{AttemptID: 7, Status: model.AttemptInProgress, Total: 5}}
	conn := dialStream(t, stub)
	require.Equal(t, ws.EventState, readFrame(t, conn).Event)

	for i := 1; i <= 2; i++ {
		require.NoError(t, conn.WriteJSON(map[string]any{"action": "violation", "tipo": "blur"}))
		require.Equal(t, ws.EventViolation, readFrame(t, conn).Event)
	}

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "violation", "tipo": "tab_switch"}))
	require.Equal(t, ws.EventViolation, readFrame(t, conn).Event)
	f := readFrame(t, conn)
	require.Equal(t, ws.EventFinalized, f.Event)
	require.Contains(t, string(f.Data), `"motivo":"avisos"`)
}

func TestAttemptStreamUnknownAttempt(t *testing.T) {
	h := NewWSHandler(&attemptsStub{}, zerolog.Nop(), nil, time.Minute)
	r := gin.New()
	r.GET("/ws/:id", withClaims(student, model.RoleStudent), h.AttemptStream)

	status, env := do(t, r, http.MethodGet, "/ws/7", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, response.ErrAttemptNotFound, env.Error.Code)
}
