package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/agendaweb/agenda/internal/auth"
	"github.com/agendaweb/agenda/internal/config"
	"github.com/agendaweb/agenda/internal/database"
	"github.com/agendaweb/agenda/internal/store"
)

const (
	testEmail    = "ana@example.com"
	testPassword = "correct-horse"
)

type outbox struct {
	mu    sync.Mutex
	links map[string][]string
}

func (o *outbox) SendPasswordReset(_ context.Context, to, resetURL string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links[to] = append(o.links[to], resetURL)
	return nil
}

func (o *outbox) sent(to string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.links[to]...)
}

type ApiTestSuite struct {
	suite.Suite
	db     *database.DB
	store  *store.Store
	mailer *outbox
	api    *Api
}

func testConfig() *config.Config {
	return &config.Config{
		APIPort:     3000,
		BaseURL:     "http://frontend.test",
		FrontendURL: "http://frontend.test",
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			ResetTokenTTL: time.Hour,
		},
	}
}

func (s *ApiTestSuite) SetupTest() {
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(s.T().TempDir(), "api_test.db"),
	}, nil)
	s.Require().NoError(err)
	s.Require().NoError(database.RunMigrations(ctx, db, nil))
	s.db = db
	s.store = store.New(db, time.Second)

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash(testPassword)
	s.Require().NoError(err)
	_, err = s.store.CreateUser(ctx, testEmail, hash)
	s.Require().NoError(err)

	cfg := testConfig()
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, auth.SessionTokenTTL)
	s.Require().NoError(err)
	authService, err := auth.NewService(s.store, hasher, tokens, nil)
	s.Require().NoError(err)

	s.mailer = &outbox{links: make(map[string][]string)}
	resets, err := auth.NewPasswordResetService(s.store, hasher, s.mailer, auth.ResetConfig{
		BaseURL:  cfg.BaseURL,
		TokenTTL: cfg.Auth.ResetTokenTTL,
	}, nil)
	s.Require().NoError(err)

	s.api, err = NewApi(cfg, Deps{
		Auth:     authService,
		Resets:   resets,
		Tokens:   tokens,
		Contacts: s.store,
	})
	s.Require().NoError(err)
}

func (s *ApiTestSuite) TearDownTest() {
	s.db.Close()
}

func TestApiTestSuite(t *testing.T) {
	suite.Run(t, new(ApiTestSuite))
}

func (s *ApiTestSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.api.ServeHTTP(rr, req)
	return rr
}

func (s *ApiTestSuite) decode(rr *httptest.ResponseRecorder, dst any) {
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func (s *ApiTestSuite) message(rr *httptest.ResponseRecorder) string {
	var body map[string]string
	s.decode(rr, &body)
	return body["message"]
}

func (s *ApiTestSuite) login(email, password string) string {
	rr := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	var body map[string]string
	s.decode(rr, &body)
	s.Require().NotEmpty(body["token"])
	return body["token"]
}

func (s *ApiTestSuite) TestLogin() {
	token := s.login(testEmail, testPassword)

	rr := s.do(http.MethodGet, "/contacts", token, nil)
	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`[]`, rr.Body.String())
}

func (s *ApiTestSuite) TestLoginFailuresLookTheSame() {
	wrong := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": testEmail, "password": "wrong-password"})
	unknown := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "nobody@example.com", "password": testPassword})

	s.Equal(http.StatusUnauthorized, wrong.Code)
	s.Equal(http.StatusUnauthorized, unknown.Code)
	s.Equal(wrong.Body.String(), unknown.Body.String())
	s.Equal("invalid email or password", s.message(wrong))
}

func (s *ApiTestSuite) TestLoginValidation() {
	rr := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": testEmail})
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal("password: is required", s.message(rr))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{not json"))
	bad := httptest.NewRecorder()
	s.api.ServeHTTP(bad, req)
	s.Equal(http.StatusBadRequest, bad.Code)
	s.Equal("invalid request body", s.message(bad))
}

func (s *ApiTestSuite) TestSessionGate() {
	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage", "Bearer not-a-jwt"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			s.api.ServeHTTP(rr, req)
			s.Equal(http.StatusUnauthorized, rr.Code)
			s.JSONEq(`{"message":"unauthenticated"}`, rr.Body.String())
		})
	}
}

func (s *ApiTestSuite) TestUnknownRoutes() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/nope", "", nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/auth/nope", "", nil).Code)

	token := s.login(testEmail, testPassword)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/nope", token, nil).Code)
}

func (s *ApiTestSuite) TestHeartbeatIsPublic() {
	rr := s.do(http.MethodGet, "/heartbeat", "", nil)
	s.Equal(http.StatusOK, rr.Code)
}

func (s *ApiTestSuite) TestForgotUnknownEmail() {
	rr := s.do(http.MethodPost, "/auth/forgot", "", map[string]string{"email": "nobody@example.com"})
	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"sent":true}`, rr.Body.String())
	s.Empty(s.mailer.sent("nobody@example.com"))
}

func (s *ApiTestSuite) TestPasswordRecovery() {
	rr := s.do(http.MethodPost, "/auth/forgot", "", map[string]string{"email": testEmail})
	s.Require().Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"sent":true}`, rr.Body.String())

	links := s.mailer.sent(testEmail)
	s.Require().Len(links, 1)
	link, err := url.Parse(links[0])
	s.Require().NoError(err)
	s.Equal("frontend.test", link.Host)
	s.Equal("/reset-password", link.Path)
	token := link.Query().Get("token")
	s.Require().Len(token, 64)

	short := s.do(http.MethodPost, "/auth/reset-password", "", map[string]string{"token": token, "newPassword": "short"})
	s.Equal(http.StatusBadRequest, short.Code)

	ok := s.do(http.MethodPost, "/auth/reset-password", "", map[string]string{"token": token, "newPassword": "battery-staple"})
	s.Require().Equal(http.StatusOK, ok.Code, ok.Body.String())
	s.JSONEq(`{"reset":true}`, ok.Body.String())

	again := s.do(http.MethodPost, "/auth/reset-password", "", map[string]string{"token": token, "newPassword": "battery-staple-2"})
	s.Equal(http.StatusBadRequest, again.Code)
	s.Equal("invalid or expired token", s.message(again))

	old := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": testEmail, "password": testPassword})
	s.Equal(http.StatusUnauthorized, old.Code)
	s.login(testEmail, "battery-staple")
}

func (s *ApiTestSuite) TestResetWithSupersededToken() {
	for range 2 {
		rr := s.do(http.MethodPost, "/auth/forgot", "", map[string]string{"email": testEmail})
		s.Require().Equal(http.StatusOK, rr.Code)
	}
	links := s.mailer.sent(testEmail)
	s.Require().Len(links, 2)

	first, err := url.Parse(links[0])
	s.Require().NoError(err)
	rr := s.do(http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":       first.Query().Get("token"),
		"newPassword": "battery-staple",
	})
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal("invalid or expired token", s.message(rr))
}

func (s *ApiTestSuite) TestResetMissingFields() {
	rr := s.do(http.MethodPost, "/auth/reset-password", "", map[string]string{"newPassword": "battery-staple"})
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal("token: is required", s.message(rr))
}

func (s *ApiTestSuite) TestContactLifecycle() {
	token := s.login(testEmail, testPassword)

	rr := s.do(http.MethodPost, "/tags", token, map[string]string{"name": "familia"})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	var tag struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	s.decode(rr, &tag)
	s.Equal("familia", tag.Name)

	dup := s.do(http.MethodPost, "/tags", token, map[string]string{"name": "familia"})
	s.Equal(http.StatusConflict, dup.Code)

	rr = s.do(http.MethodPost, "/contacts", token, map[string]any{
		"name":         "  Marta  ",
		"phone_mobile": "600 000 000",
		"tags":         []int64{tag.ID},
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	var created map[string]int64
	s.decode(rr, &created)
	id := created["id"]
	s.NotZero(id)
	path := "/contacts/" + jsonNumber(id)

	rr = s.do(http.MethodGet, path, token, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	var contact map[string]any
	s.decode(rr, &contact)
	s.Equal("Marta", contact["name"])
	s.Len(contact["tags"], 1)

	rr = s.do(http.MethodGet, "/contacts?tag=:familia", token, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	var listed []map[string]any
	s.decode(rr, &listed)
	s.Len(listed, 1)

	rr = s.do(http.MethodGet, "/contacts?tag=trabajo", token, nil)
	s.JSONEq(`[]`, rr.Body.String())

	rr = s.do(http.MethodPut, path, token, map[string]any{"name": "Marta G."})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.JSONEq(`{"updated":true}`, rr.Body.String())

	rr = s.do(http.MethodDelete, path, token, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"deleted":true}`, rr.Body.String())

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, path, token, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, path, token, nil).Code)
}

func (s *ApiTestSuite) TestContactErrors() {
	token := s.login(testEmail, testPassword)

	rr := s.do(http.MethodPost, "/contacts", token, map[string]any{"name": "   "})
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal("name: is required", s.message(rr))

	rr = s.do(http.MethodPost, "/contacts", token, map[string]any{"name": "Luis", "tags": []int64{999}})
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Equal("unknown tag", s.message(rr))

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/contacts/abc", token, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodPut, "/contacts/42", token, map[string]any{"name": "X"}).Code)

	rr = s.do(http.MethodGet, "/tags", token, nil)
	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`[]`, rr.Body.String())
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestNewApiRequiresDeps(t *testing.T) {
	_, err := NewApi(nil, Deps{})
	require.Error(t, err)

	_, err = NewApi(testConfig(), Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth service is required")
}

func TestMetricsServerProbes(t *testing.T) {
	ready := NewMetricsServer("", func(context.Context) error { return nil })
	notReady := NewMetricsServer("", func(context.Context) error { return assert.AnError })

	cases := []struct {
		name   string
		server *MetricsServer
		path   string
		status int
	}{
		{"liveness", notReady, "/healthz/liveness", http.StatusOK},
		{"ready", ready, "/healthz/readiness", http.StatusOK},
		{"not ready", notReady, "/healthz/readiness", http.StatusServiceUnavailable},
		{"metrics", ready, "/metrics", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tc.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestMetricsServerStartStop(t *testing.T) {
	srv := NewMetricsServer("127.0.0.1:0", nil)
	errCh, err := srv.Start(discardLogger())
	require.NoError(t, err)
	require.NotEmpty(t, srv.Addr())

	_, err = srv.Start(discardLogger())
	require.Error(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	_, open := <-errCh
	assert.False(t, open)
	require.NoError(t, srv.Stop(context.Background()))
}
