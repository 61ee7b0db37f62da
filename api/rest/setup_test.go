package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ucsmail/api/rest"
	"github.com/kasuganosora/ucsmail/audit"
	"github.com/kasuganosora/ucsmail/cache"
	"github.com/kasuganosora/ucsmail/config"
	"github.com/kasuganosora/ucsmail/friends"
	"github.com/kasuganosora/ucsmail/mail"
	"github.com/kasuganosora/ucsmail/mailkey"
	mw "github.com/kasuganosora/ucsmail/middleware"
	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/scheduler"
	"github.com/kasuganosora/ucsmail/session"
	"github.com/kasuganosora/ucsmail/store"
	"github.com/kasuganosora/ucsmail/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const adminKey = "test-key"

func init() { gin.SetMode(gin.TestMode) }

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

type env struct {
	r     *gin.Engine
	db    *gorm.DB
	cache cache.Cache
	svc   *mail.Service
	sm    *session.Manager
	sched *scheduler.Scheduler
	bob   *model.Character
	alt   *model.Character
	alice *model.Character
}

// newEnv wires the REST surface the way main does. httptest requests come
// from 192.0.2.1, so stored keys carry C0000201.
func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c := testutil.SetupTestCache(t)
	st := store.New(db)
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}
	mcfg := &config.MailConfig{Prefix: "SOE.EQ.Server.", KeyIPVerification: true, ExpireTrash: 0, ExpireRead: -1, ExpireUnread: -1}

	sm := session.NewManager(nopLogger())
	trail := audit.New(db, zap.NewNop(), audit.Options{FlushInterval: 20 * time.Millisecond})
	t.Cleanup(func() { trail.Stop(context.Background()) })
	svc := mail.NewService(st, sm, trail, mail.NewMetrics(nil), mcfg, nopLogger())
	verifier := mailkey.NewVerifier(st, mcfg, nopLogger())
	sched := scheduler.New(nopLogger())
	t.Cleanup(sched.Stop)

	authH := rest.NewAuthHandler(verifier, svc, c, sec, nopLogger())
	mailH := rest.NewMailHandler(svc, st)
	friendH := rest.NewFriendHandler(friends.NewRegistry(st, nopLogger()), st, sm)
	adminH := rest.NewAdminHandler(sm, svc, sched, trail, nopLogger())

	r := gin.New()
	r.Use(mw.TraceID())
	r.POST("/api/auth/token", authH.Token)
	api := r.Group("/api", mw.Auth(sec, c))
	api.POST("/auth/logout", authH.Logout)
	api.POST("/auth/refresh", authH.Refresh)
	api.GET("/characters/:id/mail", mailH.List)
	api.POST("/characters/:id/mail", mailH.Send)
	api.GET("/characters/:id/mail/:mail_id", mailH.Body)
	api.PUT("/characters/:id/mail/:mail_id/status", mailH.SetStatus)
	api.GET("/characters/:id/friends", friendH.List)
	api.POST("/characters/:id/friends", friendH.Add)
	api.DELETE("/characters/:id/friends", friendH.Remove)

	admin := r.Group("/api/admin", rest.AdminAuth(adminKey))
	admin.GET("/metrics", adminH.Metrics)
	admin.GET("/sessions", adminH.ListSessions)
	admin.POST("/kick/:id", adminH.Kick)
	admin.POST("/mail/expire", adminH.Expire)
	admin.GET("/scheduler", adminH.ListSchedulerTasks)
	admin.GET("/audit", adminH.Audit)

	return &env{
		r: r, db: db, cache: c, svc: svc, sm: sm, sched: sched,
		bob:   testutil.SeedCharacter(t, db, 1, "Bob", "C0000201ABCD1234"),
		alt:   testutil.SeedCharacter(t, db, 1, "Alt", ""),
		alice: testutil.SeedCharacter(t, db, 2, "Alice", "C0000201FFFF0000"),
	}
}

func (e *env) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) admin(method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// token logs in with a mailbox key and returns the JWT.
func (e *env) token(t *testing.T, mailbox, key string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/token", "", map[string]string{"mailbox": mailbox, "key": key})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
