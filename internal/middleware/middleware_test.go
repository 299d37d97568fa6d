package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/response"
	"github.com/stemsi/simulado-backend/internal/service"
)

type validatorStub struct {
	claims     map[string]*service.Claims
	expired    string
	sessionErr error
}

func (v *validatorStub) ValidateToken(tokenStr string) (*service.Claims, error) {
	if tokenStr == v.expired {
		return nil, fmt.Errorf("parse token: %w", jwt.ErrTokenExpired)
	}
	if c, ok := v.claims[tokenStr]; ok {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

func (v *validatorStub) ValidateSession(ctx context.Context, matricula, jti string) error {
	return v.sessionErr
}

func newStub() *validatorStub {
	student := &service.Claims{Matricula: "2024001", Perfil: model.RoleStudent}
	student.ID = "jti-aluno"
	staff := &service.Claims{Matricula: "prof01", Perfil: model.RoleProfessor}
	staff.ID = "jti-prof"
	return &validatorStub{
		claims:  map[string]*service.Claims{"aluno": student, "prof": staff},
		expired: "velho",
	}
}

func init() {
	gin.SetMode(gin.TestMode)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func protectedRouter(auth TokenValidator) *gin.Engine {
	r := gin.New()
	authed := r.Group("/", RequireAuth(auth), CheckSession(auth, zerolog.Nop()))
	authed.GET("/aluno", RequireStudent(), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).Matricula)
	})
	authed.GET("/admin", RequireStaff(), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).Matricula)
	})
	authed.GET("/somente-admin", RequireRole(model.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	stub := newStub()
	r := protectedRouter(stub)

	cases := []struct {
		name   string
		path   string
		header string
		status int
		code   response.ErrCode
	}{
		{name: "missing token", path: "/aluno", status: http.StatusUnauthorized, code: response.ErrTokenRequired},
		{name: "invalid token", path: "/aluno", header: "Bearer lixo", status: http.StatusUnauthorized, code: response.ErrTokenInvalid},
		{name: "expired token", path: "/aluno", header: "Bearer velho", status: http.StatusUnauthorized, code: response.ErrTokenExpired},
		{name: "student on student route", path: "/aluno", header: "Bearer aluno", status: http.StatusOK},
		{name: "student on staff route", path: "/admin", header: "Bearer aluno", status: http.StatusForbidden, code: response.ErrStaffAccessOnly},
		{name: "staff on student route", path: "/aluno", header: "Bearer prof", status: http.StatusForbidden, code: response.ErrStudentAccessOnly},
		{name: "professor on admin-only route", path: "/somente-admin", header: "bearer prof", status: http.StatusForbidden, code: response.ErrForbidden},
		{name: "query token", path: "/admin?token=prof", status: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)

			require.Equal(t, tc.status, w.Code)
			if tc.code != "" {
				require.Equal(t, tc.code, errorCode(t, w))
			}
		})
	}
}

func TestCheckSessionReplaced(t *testing.T) {
	stub := newStub()
	stub.sessionErr = service.ErrSessionReplaced
	r := protectedRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/aluno", nil)
	req.Header.Set("Authorization", "Bearer aluno")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, response.ErrSessionReplaced, errorCode(t, w))
}

func TestLoginRateLimiter(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer rdb.Close()

	limiter := NewLoginRateLimiter(rdb, 3, 10*time.Minute, zerolog.Nop())
	r := gin.New()
	r.POST("/login", limiter.Middleware(), func(c *gin.Context) {
		if c.Query("ok") == "1" {
			c.Status(http.StatusOK)
			return
		}
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
	})

	login := func(query string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login"+query, nil)
		req.RemoteAddr = "10.0.0.7:5123"
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, login("?ok=1"))

	// A success in between resets the window.
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusUnauthorized, login(""))
	}
	require.Equal(t, http.StatusOK, login("?ok=1"))
	require.False(t, server.Exists("ratelimit:login:10.0.0.7"))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusUnauthorized, login(""))
	}
	require.Equal(t, http.StatusTooManyRequests, login("?ok=1"))

	ttl := server.TTL("ratelimit:login:10.0.0.7")
	require.Greater(t, ttl, time.Duration(0))

	server.FastForward(11 * time.Minute)
	require.Equal(t, http.StatusOK, login("?ok=1"))
}

func TestLoginRateLimiterHoldsUnderBurst(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer rdb.Close()

	const limit = 8
	limiter := NewLoginRateLimiter(rdb, limit, 10*time.Minute, zerolog.Nop())

	var checked atomic.Int32
	r := gin.New()
	r.POST("/login", limiter.Middleware(), func(c *gin.Context) {
		checked.Add(1)
		time.Sleep(20 * time.Millisecond)
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
	})

	var (
		wg       sync.WaitGroup
		limited  atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/login", nil)
			req.RemoteAddr = "10.0.0.1:4000"
			r.ServeHTTP(w, req)
			switch w.Code {
			case http.StatusTooManyRequests:
				limited.Add(1)
			case http.StatusUnauthorized:
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, limit, checked.Load())
	require.EqualValues(t, limit, rejected.Load())
	require.EqualValues(t, 60-limit, limited.Load())
	require.Greater(t, server.TTL("ratelimit:login:10.0.0.1"), time.Duration(0))
}

func TestLoginRateLimiterRepairsMissingTTL(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer rdb.Close()

	// A counter left behind without an expiry.
	require.NoError(t, server.Set("ratelimit:login:10.0.0.9", "5"))

	limiter := NewLoginRateLimiter(rdb, 3, 10*time.Minute, zerolog.Nop())
	r := gin.New()
	r.POST("/login", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.9:4000"
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "600", w.Header().Get("Retry-After"))
	require.Equal(t, 10*time.Minute, server.TTL("ratelimit:login:10.0.0.9"))

	var body struct {
		Error struct {
			Details response.RetryDetails `json:"detalhes"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 600, body.Error.Details.RetryAfter)

	server.FastForward(11 * time.Minute)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRateLimiterReturnsSlotOnBadRequest(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer rdb.Close()

	limiter := NewLoginRateLimiter(rdb, 2, 10*time.Minute, zerolog.Nop())
	r := gin.New()
	r.POST("/login", limiter.Middleware(), func(c *gin.Context) {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation)
	})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.3:4000"
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
	got, err := server.Get("ratelimit:login:10.0.0.3")
	require.NoError(t, err)
	require.Equal(t, "0", got)
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/x", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestBrotli(t *testing.T) {
	big := strings.Repeat("questao ", 512)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, big) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	t.Run("compresses large bodies", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/big", nil)
		req.Header.Set("Accept-Encoding", "gzip, br")
		r.ServeHTTP(w, req)

		require.Equal(t, "br", w.Header().Get("Content-Encoding"))
		plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
		require.NoError(t, err)
		require.Equal(t, big, string(plain))
	})

	t.Run("small bodies pass through", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/small", nil)
		req.Header.Set("Accept-Encoding", "br")
		r.ServeHTTP(w, req)

		require.Empty(t, w.Header().Get("Content-Encoding"))
		require.Equal(t, "ok", w.Body.String())
	})

	t.Run("event streams are skipped", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/big", nil)
		req.Header.Set("Accept-Encoding", "br")
		req.Header.Set("Accept", "text/event-stream")
		r.ServeHTTP(w, req)

		require.Empty(t, w.Header().Get("Content-Encoding"))
		require.Equal(t, big, w.Body.String())
	})
}

type auditStub struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	err     error
}

func (a *auditStub) Record(ctx context.Context, e model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, e)
	return nil
}

func TestAuditorTracksSuccessfulMutations(t *testing.T) {
	rec := &auditStub{}
	auditor := NewAuditor(rec, zerolog.Nop())
	staff := &service.Claims{Matricula: "prof01", Perfil: model.RoleProfessor}

	r := gin.New()
	r.Use(response.RequestIDMiddleware(), func(c *gin.Context) {
		c.Set(ContextKeyClaims, staff)
		c.Next()
	})
	r.DELETE("/simulados/:id/questoes/:question_id", auditor.Track(model.AuditSimuladoUnlink), func(c *gin.Context) {
		if c.Param("question_id") == "404" {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Success(c, http.StatusOK, nil)
	})

	req := httptest.NewRequest(http.MethodDelete, "/simulados/12/questoes/301", nil)
	req.Header.Set(response.HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/simulados/12/questoes/404", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	require.Equal(t, model.AuditSimuladoUnlink, e.Action)
	require.Equal(t, "prof01", e.Actor)
	require.Equal(t, model.RoleProfessor, e.Perfil)
	require.NotNil(t, e.EntityID)
	require.EqualValues(t, 12, *e.EntityID)
	require.Equal(t, map[string]string{"question_id": "301"}, e.Meta)
	require.Equal(t, http.StatusOK, e.Status)
	require.Equal(t, "req-1", e.RequestID)
}

func TestAuditorFailureKeepsResponse(t *testing.T) {
	rec := &auditStub{err: errors.New("db down")}
	auditor := NewAuditor(rec, zerolog.Nop())

	r := gin.New()
	r.POST("/simulados", func(c *gin.Context) {
		c.Set(ContextKeyClaims, &service.Claims{Matricula: "admin", Perfil: model.RoleAdmin})
		c.Next()
	}, auditor.Track(model.AuditSimuladoCreate), func(c *gin.Context) {
		response.Success(c, http.StatusCreated, gin.H{"id": 1})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/simulados", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	require.Empty(t, errorCode(t, w))
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, response.RequestID(c))
	})

	cases := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"token kept", "abc-123_x.y", true},
		{"missing replaced", "", false},
		{"spaces replaced", "abc 123", false},
		{"newline replaced", "abc\r\nX-Evil: 1", false},
		{"too long replaced", strings.Repeat("a", 65), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.inbound != "" {
				req.Header.Set(response.HeaderRequestID, tc.inbound)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(response.HeaderRequestID)
			require.Equal(t, got, w.Body.String())
			if tc.keep {
				require.Equal(t, tc.inbound, got)
				return
			}
			require.NotEqual(t, tc.inbound, got)
			require.Len(t, got, 36)
		})
	}
}
