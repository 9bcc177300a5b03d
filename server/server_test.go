package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Shivansh-Atwal/trackstack/config"
	"github.com/Shivansh-Atwal/trackstack/core/auth"
	"github.com/Shivansh-Atwal/trackstack/core/feed"
	"github.com/Shivansh-Atwal/trackstack/core/song"
	"github.com/Shivansh-Atwal/trackstack/model"
	"github.com/Shivansh-Atwal/trackstack/repository"
	"github.com/Shivansh-Atwal/trackstack/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type memUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func (m *memUsers) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Email]; ok {
		return repository.ErrDuplicateUser
	}
	cp := *user
	m.users[user.Email] = &cp
	return nil
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

type mockSongs struct {
	mock.Mock
}

func (m *mockSongs) List(ctx context.Context, caller auth.Identity) ([]*model.Song, error) {
	args := m.Called(ctx, caller)
	songs, _ := args.Get(0).([]*model.Song)
	return songs, args.Error(1)
}

func (m *mockSongs) ListPublic(ctx context.Context) ([]*model.PublicSong, error) {
	args := m.Called(ctx)
	songs, _ := args.Get(0).([]*model.PublicSong)
	return songs, args.Error(1)
}

func (m *mockSongs) Create(ctx context.Context, caller auth.Identity, draft song.Draft) (*model.Song, error) {
	args := m.Called(ctx, caller, draft)
	created, _ := args.Get(0).(*model.Song)
	return created, args.Error(1)
}

func (m *mockSongs) Get(ctx context.Context, caller auth.Identity, id string) (*model.Song, error) {
	args := m.Called(ctx, caller, id)
	found, _ := args.Get(0).(*model.Song)
	return found, args.Error(1)
}

func (m *mockSongs) Update(ctx context.Context, caller auth.Identity, id string, patch song.Patch) (*model.Song, song.CleanupReport, error) {
	args := m.Called(ctx, caller, id, patch)
	updated, _ := args.Get(0).(*model.Song)
	return updated, args.Get(1).(song.CleanupReport), args.Error(2)
}

func (m *mockSongs) Remove(ctx context.Context, caller auth.Identity, id string) (song.CleanupReport, error) {
	args := m.Called(ctx, caller, id)
	return args.Get(0).(song.CleanupReport), args.Error(1)
}

type mockMedia struct {
	mock.Mock
	maxBytes int64
}

func (m *mockMedia) Store(ctx context.Context, data []byte, folder, filename, contentType string) (storage.Asset, error) {
	args := m.Called(ctx, data, folder, filename, contentType)
	return args.Get(0).(storage.Asset), args.Error(1)
}

func (m *mockMedia) Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectMeta, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Get(1).(storage.ObjectMeta), args.Error(2)
}

func (m *mockMedia) MaxBytes() int64 {
	return m.maxBytes
}

type testEnv struct {
	handler http.Handler
	songs   *mockSongs
	media   *mockMedia
	hub     *feed.Hub
	token   string
	cfg     *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Env:          config.EnvDevelopment,
		CORSOrigin:   "http://localhost:5173",
		JWTSecret:    testSecret,
		TokenTTL:     time.Hour,
		MaxBodyBytes: 1 << 10,
	}

	tokens := auth.NewTokenManager(testSecret, time.Hour)
	authenticator := auth.NewAuthenticator(&memUsers{users: map[string]*model.User{}}, tokens)
	authenticator.SetHashCost(bcrypt.MinCost)

	token, _, err := tokens.Issue("u1")
	require.NoError(t, err)

	env := &testEnv{
		songs: &mockSongs{},
		media: &mockMedia{maxBytes: 1 << 10},
		hub:   feed.NewHub(),
		token: token,
		cfg:   cfg,
	}
	env.handler = NewRouter(NewAPIHandler(authenticator, env.songs, env.media, env.hub, cfg))
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token, "Content-Type": "application/json"}
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestAuthRoutes(t *testing.T) {
	env := newTestEnv(t)
	signup := `{"name":"Ada","email":"ada@example.com","password":"pw"}`

	rec := env.do(t, http.MethodPost, "/api/auth/signup", strings.NewReader(signup), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var session auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "ada@example.com", session.User.Email)
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "duplicate email", path: "/api/auth/signup", body: signup, wantCode: http.StatusConflict, wantErr: "Email already in use"},
		{name: "missing fields", path: "/api/auth/signup", body: `{"email":"b@example.com"}`, wantCode: http.StatusBadRequest, wantErr: "Missing fields"},
		{name: "malformed body", path: "/api/auth/signup", body: `{"name":`, wantCode: http.StatusBadRequest, wantErr: "Invalid request body"},
		{name: "wrong password", path: "/api/auth/login", body: `{"email":"ada@example.com","password":"nope"}`, wantCode: http.StatusUnauthorized, wantErr: "Invalid credentials"},
		{name: "unknown email", path: "/api/auth/login", body: `{"email":"x@example.com","password":"pw"}`, wantCode: http.StatusUnauthorized, wantErr: "Invalid credentials"},
		{name: "oversized body", path: "/api/auth/login", body: `{"email":"` + strings.Repeat("a", 2048) + `"}`, wantCode: http.StatusRequestEntityTooLarge, wantErr: "File too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, strings.NewReader(tt.body), nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, errorBody(t, rec))
		})
	}

	rec = env.do(t, http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"pw"}`), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListSongs_IdentityPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.songs.On("List", mock.Anything, auth.Authenticated("u1")).Return([]*model.Song{{ID: "s1"}}, nil).Once()
	env.songs.On("List", mock.Anything, auth.Anonymous()).Return([]*model.Song{}, nil).Twice()

	rec := env.do(t, http.MethodGet, "/api/songs", nil, bearer(env.token))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"s1"`)

	rec = env.do(t, http.MethodGet, "/api/songs", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	// An invalid token on a read route degrades to anonymous.
	rec = env.do(t, http.MethodGet, "/api/songs", nil, bearer("garbage"))
	assert.Equal(t, http.StatusOK, rec.Code)

	env.songs.AssertExpectations(t)
}

func TestWriteRoutes_RejectInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/songs", `{}`},
		{http.MethodPut, "/api/songs/s1", `{"title":"x"}`},
		{http.MethodDelete, "/api/songs/s1", ``},
		{http.MethodPost, "/api/upload/beat", ``},
		{http.MethodPost, "/api/upload/recording", ``},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, strings.NewReader(tt.body), bearer("expired.or.forged"))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Invalid token", errorBody(t, rec))
		})
	}
	env.songs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	env.songs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	env.songs.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything, mock.Anything)
	env.media.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateSong(t *testing.T) {
	env := newTestEnv(t)
	env.songs.On("Create", mock.Anything, auth.Anonymous(), song.Draft{}).
		Return(&model.Song{ID: "s1", Title: model.DefaultSongTitle, Status: model.VisibilityPrivate}, nil).Once()
	env.songs.On("Create", mock.Anything, auth.Authenticated("u1"), mock.MatchedBy(func(d song.Draft) bool {
		return d.Title != nil && *d.Title == "Hook"
	})).Return(&model.Song{ID: "s2", Title: "Hook"}, nil).Once()

	rec := env.do(t, http.MethodPost, "/api/songs", nil, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Untitled"`)

	rec = env.do(t, http.MethodPost, "/api/songs", strings.NewReader(`{"title":"Hook"}`), bearer(env.token))
	assert.Equal(t, http.StatusCreated, rec.Code)
	env.songs.AssertExpectations(t)
}

func TestSongErrors(t *testing.T) {
	env := newTestEnv(t)
	env.songs.On("Get", mock.Anything, auth.Anonymous(), "missing").Return(nil, song.ErrNotFound)
	env.songs.On("Update", mock.Anything, auth.Authenticated("u1"), "theirs", mock.Anything).
		Return(nil, song.CleanupReport{}, song.ErrForbidden)
	env.songs.On("Update", mock.Anything, auth.Authenticated("u1"), "bad", mock.Anything).
		Return(nil, song.CleanupReport{}, song.ErrInvalidInput)
	env.songs.On("Remove", mock.Anything, auth.Anonymous(), "missing").Return(song.CleanupReport{}, song.ErrNotFound)

	rec := env.do(t, http.MethodGet, "/api/songs/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", errorBody(t, rec))

	rec = env.do(t, http.MethodPut, "/api/songs/theirs", strings.NewReader(`{"title":"x"}`), bearer(env.token))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/songs/bad", strings.NewReader(`{"beatUrl":"/media/x"}`), bearer(env.token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/songs/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSong_PassesTriStatePatch(t *testing.T) {
	env := newTestEnv(t)
	env.songs.On("Update", mock.Anything, auth.Authenticated("u1"), "s1", mock.MatchedBy(func(p song.Patch) bool {
		return p.BeatURL.Present && p.BeatURL.Null && !p.Title.Present && p.Status.Value == model.VisibilityPublic
	})).Return(&model.Song{ID: "s1", Status: model.VisibilityPublic}, song.CleanupReport{
		Outcomes: []song.CleanupOutcome{{Handle: "b1", Err: assert.AnError}},
	}, nil).Once()

	rec := env.do(t, http.MethodPut, "/api/songs/s1", strings.NewReader(`{"beatUrl":null,"status":"public"}`), bearer(env.token))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"public"`)
	env.songs.AssertExpectations(t)
}

func TestDeleteSong(t *testing.T) {
	env := newTestEnv(t)
	env.songs.On("Remove", mock.Anything, auth.Authenticated("u1"), "s1").Return(song.CleanupReport{}, nil).Once()

	rec := env.do(t, http.MethodDelete, "/api/songs/s1", nil, bearer(env.token))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestPublicFeedRoute(t *testing.T) {
	env := newTestEnv(t)
	env.songs.On("ListPublic", mock.Anything).Return([]*model.PublicSong{{
		Song:  model.Song{ID: "p1", Status: model.VisibilityPublic},
		Owner: &model.SongOwner{ID: "u1", Name: "Ada"},
	}}, nil).Once()

	rec := env.do(t, http.MethodGet, "/api/songs/public", nil, bearer("garbage"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"owner":{"id":"u1","name":"Ada"}`)
	env.songs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodOptions, "/api/songs/s1", nil, map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": "DELETE",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
		h["Content-Type"] = []string{contentType}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, w.WriteField("note", "no file here"))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	env.media.On("Store", mock.Anything, []byte("beat-bytes"), storage.FolderBeats, "beat.mp3", "audio/mpeg").
		Return(storage.Asset{URL: "/media/trackstack/beats/x.mp3", PublicID: "trackstack/beats/x.mp3"}, nil).Once()
	env.media.On("Store", mock.Anything, []byte("take"), storage.FolderRecordings, "take.webm", "audio/webm").
		Return(storage.Asset{}, storage.ErrUploadFailed).Once()

	body, ct := multipartBody(t, "file", "beat.mp3", "audio/mpeg", []byte("beat-bytes"))
	rec := env.do(t, http.MethodPost, "/api/upload/beat", body, map[string]string{"Content-Type": ct, "Authorization": "Bearer " + env.token})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"url":"/media/trackstack/beats/x.mp3","publicId":"trackstack/beats/x.mp3"}`, rec.Body.String())

	body, ct = multipartBody(t, "file", "take.webm", "audio/webm", []byte("take"))
	rec = env.do(t, http.MethodPost, "/api/upload/recording", body, map[string]string{"Content-Type": ct})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Upload failed", errorBody(t, rec))

	body, ct = multipartBody(t, "", "", "", nil)
	rec = env.do(t, http.MethodPost, "/api/upload/beat", body, map[string]string{"Content-Type": ct})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file", errorBody(t, rec))

	env.media.AssertExpectations(t)
}

func TestUpload_OversizedNeverReachesStore(t *testing.T) {
	env := newTestEnv(t)
	payload := bytes.Repeat([]byte("x"), int(env.media.maxBytes)+multipartOverhead+1)

	tests := []struct {
		name          string
		contentLength func(body *bytes.Buffer) int64
	}{
		{name: "declared length", contentLength: func(body *bytes.Buffer) int64 { return int64(body.Len()) }},
		{name: "chunked body", contentLength: func(*bytes.Buffer) int64 { return -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, "file", "big.wav", "audio/wav", payload)
			req := httptest.NewRequest(http.MethodPost, "/api/upload/beat", io.NopCloser(body))
			req.ContentLength = tt.contentLength(body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
			assert.Equal(t, "File too large", errorBody(t, rec))
		})
	}
	env.media.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMediaProxy(t *testing.T) {
	env := newTestEnv(t)
	env.media.On("Open", mock.Anything, "trackstack/beats/x.mp3").
		Return(io.NopCloser(strings.NewReader("ID3")), storage.ObjectMeta{Size: 3, ContentType: "audio/mpeg", ETag: "abc"}, nil).Once()
	env.media.On("Open", mock.Anything, "trackstack/beats/gone.mp3").
		Return(nil, storage.ObjectMeta{}, storage.ErrObjectNotFound).Once()

	rec := env.do(t, http.MethodGet, "/media/trackstack/beats/x.mp3", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3", rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, `"abc"`, rec.Header().Get("ETag"))

	rec = env.do(t, http.MethodGet, "/media/trackstack/beats/gone.mp3", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", errorBody(t, rec))
}

func TestFeedStream(t *testing.T) {
	env := newTestEnv(t)
	go env.hub.Run()
	defer env.hub.Stop()

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/songs/public/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	env.hub.Publish(feed.Event{Type: feed.EventPublished, SongID: "s1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev feed.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, feed.EventPublished, ev.Type)
	assert.Equal(t, "s1", ev.SongID)

	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}
