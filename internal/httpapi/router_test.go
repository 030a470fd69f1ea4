package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimitomo/internal/blob"
	"mimitomo/internal/domain"
	"mimitomo/internal/observe"
	"mimitomo/internal/ports"
	"mimitomo/internal/store/sqlite"
	"mimitomo/internal/usecase"
)

const testUser = "user-1"

type fakeAI struct {
	mu       sync.Mutex
	draft    domain.ReminderDraft
	replyErr error
}

func (f *fakeAI) Reply(context.Context, string, []ports.ChatTurn, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return "", f.replyErr
	}
	return "こんにちは、今日もいい天気ですね。", nil
}

func (f *fakeAI) ExtractReminder(context.Context, string) (domain.ReminderDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft, nil
}

type silentOutput struct{}

func (silentOutput) Speak(context.Context, ports.Utterance) error { return nil }
func (silentOutput) CancelAll()                                   {}

type noEngines struct{}

func (noEngines) NewEngine() (ports.RecognitionEngine, error) {
	return nil, errors.New("no microphone")
}

type recordingSink struct {
	mu      sync.Mutex
	changed []string
}

func (s *recordingSink) SessionStateChanged(string, domain.SessionState, domain.SessionStateReason) {}
func (s *recordingSink) TranscriptChanged(string, domain.Transcript)                                {}
func (s *recordingSink) TranscriptFinalized(string, string, string)                                 {}
func (s *recordingSink) SessionError(string, domain.ErrorKind, string)                              {}
func (s *recordingSink) ScreenBusy(string, bool)                                                    {}

func (s *recordingSink) RecordsChanged(userID string, resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = append(s.changed, userID+"/"+resource)
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.changed...)
}

type testEnv struct {
	server *httptest.Server
	ai     *fakeAI
	sink   *recordingSink
	voice  *usecase.Voice
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mediaDir := t.TempDir()
	objects, err := blob.NewLocal(mediaDir, "/media")
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	provider, err := observe.InitProvider(registry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(provider)
	require.NoError(t, err)

	ai := &fakeAI{draft: domain.ReminderDraft{Title: "薬を飲む", Time: "08:00"}}
	sink := &recordingSink{}
	voice := usecase.NewVoice(silentOutput{}, "ja-JP", 0.9, log)
	t.Cleanup(voice.Close)

	profiles := usecase.NewProfiles(store, metrics)
	_, err = profiles.Ensure(ctx, domain.PlaceholderUser(testUser))
	require.NoError(t, err)
	reminders := usecase.NewReminders(store, ai, metrics)
	conversation := usecase.NewConversation(store, ai, profiles, voice, metrics, log)

	shell := usecase.NewShell(noEngines{}, nil, sink, nil, testUser, log, []usecase.ScreenConfig{
		usecase.HearingAidScreen(0, 0),
		usecase.ChatScreen(0, conversation, voice, testUser),
		usecase.ReminderScreen(0, reminders, testUser),
	})
	t.Cleanup(shell.Close)

	hub := NewHub(metrics, log)
	t.Cleanup(hub.Close)

	router := NewRouter(Services{
		Profiles:     profiles,
		Reminders:    reminders,
		Memories:     usecase.NewMemories(store, objects, nil, metrics, log),
		Conversation: conversation,
		Shell:        shell,
		Voice:        voice,
		Hub:          hub,
		Events:       sink,
		Metrics:      metrics,
		Gatherer:     registry,
		MediaDir:     mediaDir,
		MediaPrefix:  "/media",
		Log:          log,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{server: server, ai: ai, sink: sink, voice: voice}
}

func (e *testEnv) do(t *testing.T, method string, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, resp)["status"])
}

func TestUserProfileRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/users/"+testUser, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[userResponse](t, resp)
	assert.Equal(t, "田中 克己", got.User.DisplayName)
	require.Len(t, got.Groups, 4)
	assert.Equal(t, "家族", got.Groups[0].Label)

	resp = env.do(t, http.MethodPut, "/api/users/"+testUser, map[string]string{
		"display_name": "山田 花子",
		"gender":       "女性",
		"dob":          "1940-04-01",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/users/"+testUser, map[string]string{"display_name": " "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "入力内容を確認してください。", decodeBody[ErrorResponse](t, resp).Message)

	resp = env.do(t, http.MethodPost, "/api/users/"+testUser+"/profile-items", profileItemRequest{
		Category: "家族", Name: "さくら", Details: "一人娘",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	item := decodeBody[domain.ProfileItem](t, resp)
	assert.Equal(t, domain.ProfileCategoryFamily, item.Category)

	resp = env.do(t, http.MethodPut, "/api/users/"+testUser+"/profile-items/"+item.ID, profileItemRequest{
		Category: "family", Name: "さくら", Details: "孫が二人",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "孫が二人", decodeBody[domain.ProfileItem](t, resp).Details)

	resp = env.do(t, http.MethodGet, "/api/users/"+testUser, nil)
	got = decodeBody[userResponse](t, resp)
	require.Len(t, got.Groups[0].Items, 1)
	assert.Equal(t, "山田 花子", got.User.DisplayName)

	resp = env.do(t, http.MethodDelete, "/api/users/"+testUser+"/profile-items/"+item.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/users/"+testUser+"/profile-items/"+item.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Contains(t, env.sink.snapshot(), testUser+"/profile_items")
	assert.Contains(t, env.sink.snapshot(), testUser+"/users")
}

func TestUnknownUserIsNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/users/nobody", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReminderRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	base := "/api/users/" + testUser + "/reminders"

	resp := env.do(t, http.MethodPost, base, map[string]string{"title": "散歩", "time": "15:30"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	walk := decodeBody[domain.Reminder](t, resp)
	assert.Equal(t, "15:30", walk.Time)

	resp = env.do(t, http.MethodPost, base, map[string]string{"text": "朝八時に薬を飲む"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pill := decodeBody[domain.Reminder](t, resp)
	assert.Equal(t, "薬を飲む", pill.Title)

	resp = env.do(t, http.MethodPost, base, map[string]string{"title": "", "time": "10:00"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[struct {
		Reminders []domain.Reminder `json:"reminders"`
		Count     int               `json:"count"`
	}](t, resp)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, pill.ID, list.Reminders[0].ID)

	resp = env.do(t, http.MethodPatch, base+"/"+walk.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[domain.Reminder](t, resp).IsCompleted)

	resp = env.do(t, http.MethodDelete, base+"/"+walk.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, "/api/users/someone-else/reminders/"+pill.ID+"/toggle", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMemoryUploadAndMedia(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	base := "/api/users/" + testUser + "/memories"

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="image"; filename="garden.png"`)
	header.Set("Content-Type", "image/png")
	part, err := form.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, form.WriteField("caption", "庭の桜"))
	require.NoError(t, form.Close())

	resp, err := http.Post(env.server.URL+base, form.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	memory := decodeBody[domain.Memory](t, resp)
	assert.Equal(t, "庭の桜", memory.Caption)
	require.True(t, strings.HasPrefix(memory.ImageURL, "/media/"+testUser+"/"))

	media := env.do(t, http.MethodGet, memory.ImageURL, nil)
	require.Equal(t, http.StatusOK, media.StatusCode)
	raw, err := io.ReadAll(media.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(raw))

	resp2 := env.do(t, http.MethodPatch, base+"/"+memory.ID, map[string]string{"caption": "満開の桜"})
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, "満開の桜", decodeBody[domain.Memory](t, resp2).Caption)

	resp2 = env.do(t, http.MethodDelete, base+"/"+memory.ID, nil)
	require.Equal(t, http.StatusNoContent, resp2.StatusCode)

	media = env.do(t, http.MethodGet, memory.ImageURL, nil)
	assert.Equal(t, http.StatusNotFound, media.StatusCode)
}

func TestMemoryUploadRejectsNonImage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("image", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	resp, err := http.Post(env.server.URL+"/api/users/"+testUser+"/memories", form.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendMessage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	base := "/api/users/" + testUser + "/messages"

	resp := env.do(t, http.MethodPost, base, map[string]string{"text": "おはよう"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	exchange := decodeBody[usecase.Exchange](t, resp)
	assert.Equal(t, domain.RoleModel, exchange.Reply.Role)

	resp = env.do(t, http.MethodPost, base, map[string]string{"text": "  "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, base, nil)
	list := decodeBody[struct {
		Messages []domain.ChatMessage `json:"messages"`
	}](t, resp)
	require.Len(t, list.Messages, 2)
	assert.Equal(t, "おはよう", list.Messages[0].Text)
}

func TestSendMessageReplyFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.ai.replyErr = errors.New("quota exceeded")

	resp := env.do(t, http.MethodPost, "/api/users/"+testUser+"/messages", map[string]string{"text": "おはよう"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body struct {
		Message string           `json:"message"`
		Data    usecase.Exchange `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "おはよう", body.Data.User.Text)
	assert.Equal(t, usecase.ReplyErrorText, body.Data.Reply.Text)
}

func TestScreenRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/screens/chat/start", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/screens/chat/enter", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[domain.Status](t, resp)
	assert.Equal(t, domain.SessionModeCommand, status.Mode)
	assert.False(t, status.Available)

	resp = env.do(t, http.MethodPost, "/api/screens/chat/start", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "音声認識を利用できません。", decodeBody[ErrorResponse](t, resp).Message)

	resp = env.do(t, http.MethodPost, "/api/screens/chat/leave", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.SessionStateIdle, decodeBody[domain.Status](t, resp).State)

	resp = env.do(t, http.MethodGet, "/api/screens/settings", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/screens/chat/dance", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSpeakerToggle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/speaker", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, env.voice.Enabled())

	resp = env.do(t, http.MethodPut, "/api/speaker", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpointExposesRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/health", nil)
	resp := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `route="/api/health"`)
}

func TestRecovererTurnsPanicIntoServerError(t *testing.T) {
	t.Parallel()

	handler := recoverer(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalid, http.StatusBadRequest},
		{domain.Remote("users.get", ports.ErrNotFound), http.StatusNotFound},
		{usecase.ErrUnknownScreen, http.StatusNotFound},
		{usecase.ErrScreenBusy, http.StatusConflict},
		{usecase.ErrScreenNotActive, http.StatusConflict},
		{usecase.ErrEngineUnavailable, http.StatusServiceUnavailable},
		{domain.Remote("genai.reply", errors.New("timeout")), http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := classify(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}
