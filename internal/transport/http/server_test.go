package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ragdesk/internal/app"
	"ragdesk/internal/bootstrap"
	"ragdesk/internal/config"
	"ragdesk/internal/model"
	"ragdesk/internal/pkg/jwtutil"
	"ragdesk/internal/rag/answer"
	"ragdesk/internal/rag/chunk"
	"ragdesk/internal/rag/embed"
	"ragdesk/internal/rag/embed/embedtest"
	"ragdesk/internal/rag/extract"
	"ragdesk/internal/rag/index"
	"ragdesk/internal/repository"
	"ragdesk/internal/storage"
	httptransport "ragdesk/internal/transport/http"
	"ragdesk/internal/transport/http/response"
)

const testSecret = "router-test-secret"

type fixedGenerator struct{ reply string }

func (g fixedGenerator) Generate(context.Context, string) (string, error) { return g.reply, nil }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T, maxUpload int64) (http.Handler, *bootstrap.App) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:router_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Admin{}, &model.Document{}, &model.Chunk{}, &model.Message{}))

	blobs, err := storage.NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	log := zap.NewNop()
	embedder := embed.New(embedtest.New(64), embed.Config{}, log)
	idx := index.NewMemory()

	userRepo := repository.NewUserRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	docs := app.NewDocumentService(docRepo, chunkRepo, blobs, extract.New(nil), chunk.New(), embedder, idx, maxUpload, log)
	search := app.NewSearchService(embedder, idx, nil, chunkRepo, docRepo, app.SearchConfig{}, log)
	chat := app.NewChatService(
		messageRepo, nil, nil, search, nil,
		fixedGenerator{reply: "The deadline is June 1st."},
		answer.NewAssembler(answer.AssemblerConfig{}),
		answer.NewSanitizer(nil, log),
		nil,
		app.ChatConfig{},
		log,
	)

	cfg := &config.Config{}
	cfg.App.Name = "ragdesk"
	cfg.App.Env = "test"
	cfg.App.GinMode = "test"
	cfg.Auth.JWTSecret = testSecret
	cfg.Database.Driver = "sqlite"
	cfg.Upload.MaxBytes = maxUpload

	a := &bootstrap.App{
		Config:    cfg,
		Log:       log,
		DB:        db,
		StartedAt: time.Now(),
		Services: bootstrap.Services{
			Auth:     app.NewAuthService(userRepo, adminRepo, testSecret, time.Hour),
			Document: docs,
			Search:   search,
			Chat:     chat,
			Admin:    app.NewAdminService(userRepo, docRepo, chunkRepo, messageRepo),
		},
	}
	return httptransport.NewRouter(a), a
}

func userToken(t *testing.T, externalID string) string {
	t.Helper()
	token, err := jwtutil.GenerateToken(testSecret, time.Hour, externalID, "Alice", externalID+"@example.com", jwtutil.RoleUser)
	require.NoError(t, err)
	return token
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return serve(t, h, req)
}

func upload(t *testing.T, h http.Handler, token, filename string, content []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return serve(t, h, req)
}

func serve(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t, 0)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		App          string `json:"app"`
		Dependencies map[string]struct {
			OK bool `json:"ok"`
		} `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ragdesk", body.App)
	assert.True(t, body.Dependencies["sqlite"].OK)
	assert.NotContains(t, body.Dependencies, "redis")
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, 0)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	h, _ := newTestRouter(t, 0)

	rec, env := do(t, h, http.MethodGet, "/api/v1/documents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.CodeUnauthorized, env.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/documents", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeCreatesUserOnFirstSight(t *testing.T) {
	h, a := newTestRouter(t, 0)
	rec, env := do(t, h, http.MethodGet, "/api/v1/auth/me", userToken(t, "ext-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me struct {
		ID         uint   `json:"id"`
		ExternalID string `json:"external_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "ext-1", me.ExternalID)

	stats, err := a.Services.Admin.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Users)
}

func TestDocumentLifecycle(t *testing.T) {
	h, _ := newTestRouter(t, 0)
	alice := userToken(t, "alice")
	bob := userToken(t, "bob")

	rec, env := upload(t, h, alice, "notes.txt", []byte("Project X deadline: June 1st. Contact support@acme.com for help."))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result app.UploadResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, model.StatusProcessed, result.Status)
	assert.Equal(t, 1, result.ChunkCount)

	_, env = do(t, h, http.MethodGet, "/api/v1/documents", alice, nil)
	var listed struct {
		Documents []model.Document `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed.Documents, 1)

	rec, env = do(t, h, http.MethodPost, "/api/v1/search", alice, payload{"query": "deadline"})
	require.Equal(t, http.StatusOK, rec.Code)
	var found struct {
		Results []app.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &found))
	require.NotEmpty(t, found.Results)
	assert.Contains(t, found.Results[0].Content, "June 1st")
	assert.Nil(t, found.Results[0].RerankScore)

	// another owner neither sees nor finds it
	path := fmt.Sprintf("/api/v1/documents/%d", result.DocumentID)
	rec, env = do(t, h, http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodeDocumentNotFound, env.Code)

	_, env = do(t, h, http.MethodPost, "/api/v1/search", bob, payload{"query": "deadline"})
	require.NoError(t, json.Unmarshal(env.Data, &found))
	assert.Empty(t, found.Results)

	rec, _ = do(t, h, http.MethodPost, path+"/reprocess", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, path, alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/documents/abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejections(t *testing.T) {
	h, _ := newTestRouter(t, 64)
	alice := userToken(t, "alice")

	rec, env := upload(t, h, alice, "photo.png", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, response.CodeUnsupportedType, env.Code)

	rec, env = upload(t, h, alice, "big.txt", bytes.Repeat([]byte("a"), 65))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, response.CodePayloadTooLarge, env.Code)

	rec, _ = upload(t, h, alice, "empty.txt", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRoundTrip(t *testing.T) {
	h, _ := newTestRouter(t, 0)
	alice := userToken(t, "alice")

	_, _ = upload(t, h, alice, "notes.txt", []byte("Project X deadline: June 1st."))

	rec, env := do(t, h, http.MethodPost, "/api/v1/chat/messages", alice, payload{"content": "When is the deadline?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sent app.SendMessageResult
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	assert.Equal(t, "The deadline is June 1st.", sent.Reply)

	_, env = do(t, h, http.MethodGet, "/api/v1/chat/history?limit=10", alice, nil)
	var history struct {
		Messages []model.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history.Messages, 2)
	assert.Equal(t, model.RoleUser, history.Messages[0].Role)

	rec, env = do(t, h, http.MethodPost, "/api/v1/chat/messages", alice, payload{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeMessageEmpty, env.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/chat/history?limit=zero", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/chat/history", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, env = do(t, h, http.MethodGet, "/api/v1/chat/history", alice, nil)
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Empty(t, history.Messages)
}

func TestExpandWithoutExpanderReturnsQuery(t *testing.T) {
	h, _ := newTestRouter(t, 0)
	rec, env := do(t, h, http.MethodPost, "/api/v1/search/expand", userToken(t, "alice"), payload{"query": "cost"})
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Queries []string `json:"queries"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, []string{"cost"}, out.Queries)
}

func TestAdminRoutes(t *testing.T) {
	h, a := newTestRouter(t, 0)
	_, err := a.Services.Auth.CreateAdmin(app.CreateAdminInput{Username: "root", Email: "root@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/login", "", payload{"username": "root", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.CodeInvalidCredentials, env.Code)

	rec, env = do(t, h, http.MethodPost, "/api/v1/admin/login", "", payload{"username": "root", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)

	alice := userToken(t, "alice")
	_, _ = upload(t, h, alice, "notes.txt", []byte("Project X deadline: June 1st."))

	rec, env = do(t, h, http.MethodGet, "/api/v1/admin/stats", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, response.CodeForbidden, env.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/documents", login.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = do(t, h, http.MethodGet, "/api/v1/admin/stats", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats app.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.Documents[model.StatusProcessed])

	rec, env = do(t, h, http.MethodGet, "/api/v1/admin/documents?page=1&size=10", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page app.DocumentPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.Total)

	rec, env = do(t, h, http.MethodPost, "/api/v1/admin/reindex", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reindex app.ReindexResult
	require.NoError(t, json.Unmarshal(env.Data, &reindex))
	assert.Equal(t, 1, reindex.Chunks)
}

type payload map[string]any
