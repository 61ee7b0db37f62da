package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/ucsmail/api/rest"
	apiws "github.com/kasuganosora/ucsmail/api/ws"
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
	"github.com/kasuganosora/ucsmail/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Prefix is the mailbox address prefix the test server is configured with.
const Prefix = "SOE.EQ.Server."

// TestServer wraps a real HTTP server with the mail subsystems wired
// together the way main.go does.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	SM     *session.Manager
	Mail   *mail.Service
	Sched  *scheduler.Scheduler
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>/mail
	Cfg    *config.MailConfig
}

// NewTestServer creates a fully wired mail server listening on loopback.
// Stored keys must therefore start with 7F000001.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	st := store.New(db)

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
	mcfg := &config.MailConfig{
		Prefix:            Prefix,
		ExpireTrash:       0,
		ExpireRead:        -1,
		ExpireUnread:      -1,
		ExpireInterval:    time.Hour,
		KeyIPVerification: true,
	}

	sm := session.NewManager(logger)
	svc := mail.NewService(st, sm, nil, mail.NewMetrics(nil), mcfg, logger)
	verifier := mailkey.NewVerifier(st, mcfg, logger)
	reg := friends.NewRegistry(st, logger)
	sched := scheduler.New(logger)

	wsRouter := apiws.NewRouter(logger)
	apiws.NewMailHandlers(svc, verifier, sm, mcfg, logger).RegisterHandlers(wsRouter)
	apiws.NewFriendHandlers(reg, logger).RegisterHandlers(wsRouter)

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(mw.NewKeyedLimiter(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst)))

	authH := apirest.NewAuthHandler(verifier, svc, c, sec, logger)
	mailH := apirest.NewMailHandler(svc, st)
	friendH := apirest.NewFriendHandler(reg, st, sm)

	api := r.Group("/api")
	{
		api.POST("/auth/token", authH.Token)
		charsG := api.Group("/characters")
		charsG.Use(mw.Auth(sec, c))
		charsG.GET("/:id/mail", mailH.List)
		charsG.POST("/:id/mail", mailH.Send)
		charsG.GET("/:id/mail/:mail_id", mailH.Body)
		charsG.PUT("/:id/mail/:mail_id/status", mailH.SetStatus)
		charsG.GET("/:id/friends", friendH.List)
	}
	r.GET("/mail", apiws.NewHandler(sec, sm, wsRouter, logger).ServeWS)

	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:     db,
		Cache:  c,
		SM:     sm,
		Mail:   svc,
		Sched:  sched,
		Server: server,
		URL:    server.URL,
		WSURL:  "ws" + server.URL[len("http"):] + "/mail",
		Cfg:    mcfg,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	ts.SM.CloseAll(time.Second)
	ts.Sched.Stop()
	ts.Server.Close()
}

// Seed inserts a character whose mailbox key is valid for a loopback
// client presenting token. An empty token stores no key.
func (ts *TestServer) Seed(t *testing.T, accountID uint32, name, token string) *model.Character {
	t.Helper()
	key := ""
	if token != "" {
		key = mailkey.Expected(0x7F000001, token, true)
	}
	return testutil.SeedCharacter(t, ts.DB, accountID, name, key)
}

// --- HTTP helpers ---

// Do sends a JSON request with an optional Bearer token.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// Token exchanges a mailbox key for a REST token.
func (ts *TestServer) Token(t *testing.T, name, key string) string {
	t.Helper()
	resp := ts.Do(t, http.MethodPost, "/api/auth/token", map[string]string{"mailbox": Prefix + name, "key": key}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return result["token"].(string)
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection. A background readLoop
// feeds decoded packets into a channel so a timed-out read does not
// poison the connection.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	pkt wire.Packet
	err error
}

// ConnectWS dials the mail endpoint. The client is not logged in yet.
func (ts *TestServer) ConnectWS(t *testing.T) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(wc.Close)
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		if err != nil {
			wc.readCh <- readResult{err: err}
			return
		}
		pkt, err := wire.Unmarshal(data)
		wc.readCh <- readResult{pkt: pkt, err: err}
	}
}

// Send writes one JSON request.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	data, err := json.Marshal(apiws.Request{Seq: seq, Type: msgType, Payload: payloadJSON})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// Recv reads one packet within timeout.
func (wc *WSClient) Recv(timeout time.Duration) wire.Packet {
	wc.t.Helper()
	select {
	case res := <-wc.readCh:
		require.NoError(wc.t, res.err, "WS recv failed")
		return res.pkt
	case <-time.After(timeout):
		wc.t.Fatal("WS recv timed out")
		return wire.Packet{}
	}
}

// RecvOp reads packets until one with op arrives and returns its payload
// split into n fields.
func (wc *WSClient) RecvOp(op wire.Opcode, n int, timeout time.Duration) []string {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pkt := wc.Recv(time.Until(deadline))
		if pkt.Opcode != op {
			continue
		}
		fields, err := wire.Decode(pkt.Payload, n)
		require.NoError(wc.t, err, "decode %s", op)
		return fields
	}
	wc.t.Fatalf("timed out waiting for %s", op)
	return nil
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// LoginWS connects and logs in as name, returning the client once the
// login reply reports success.
func (ts *TestServer) LoginWS(t *testing.T, name, key string) *WSClient {
	t.Helper()
	wc := ts.ConnectWS(t)
	wc.Send("mail_login", map[string]string{"mailbox": Prefix + name, "key": key})
	pkt := wc.Recv(5 * time.Second)
	require.Equal(t, wire.OpMailLogin, pkt.Opcode)
	require.Equal(t, byte('1'), pkt.Payload[0], "login rejected")
	return wc
}
