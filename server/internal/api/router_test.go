package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ugcleaks/server/internal/config"
	"ugcleaks/server/internal/db"
	"ugcleaks/server/internal/db/models"
	"ugcleaks/server/internal/service"
	"ugcleaks/server/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

/* stubCatalog 固定返回剩余 3 / 总量 10 */
type stubCatalog struct {
	calls atomic.Int32
}

func (s *stubCatalog) FetchAssetDetails(ctx context.Context, id string) (*service.AssetDetails, error) {
	s.calls.Add(1)
	return &service.AssetDetails{Kind: service.AssetLimited, Available: 3, Total: 10}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testEnv struct {
	router  *gin.Engine
	app     *types.App
	catalog *stubCatalog
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gormDB.AutoMigrate(&models.User{}, &models.Item{}))

	cfg := config.DefaultConfig()
	cfg.Database.Type = "sqlite"

	catalog := &stubCatalog{}
	stockCfg := service.NewStockCacheConfig(cfg.Stock)
	stockCfg.BatchDelay = 0
	stockCfg.MinRequestInterval = 0
	stock := service.NewStockCache(catalog, stockCfg)

	limiter := service.NewLoginLimiter()
	t.Cleanup(limiter.Stop)

	auth := service.NewAuthService(service.StaticSecret("router-test-secret-value"), time.Hour, service.NewTokenStore(nil))
	app := types.NewApp(cfg, &db.Manager{GormDB: gormDB}, auth, stock, limiter)

	return &testEnv{router: SetupRouter(app), app: app, catalog: catalog}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (e *testEnv) signup(t *testing.T, username, email string) string {
	t.Helper()
	w, env := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{
		"username": username, "email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tr struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tr))
	require.NotEmpty(t, tr.Token)
	return tr.Token
}

func TestSignupSigninFlow(t *testing.T) {
	e := setupTestEnv(t)

	ownerToken := e.signup(t, "founder", "founder@example.com")

	w, env := e.do(t, http.MethodGet, "/api/v1/users/me", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me models.User
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, models.RoleOwner, me.Role)
	assert.NotContains(t, w.Body.String(), "secret123")

	w, env = e.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{
		"email": "founder@example.com", "password": "wrong-pass1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid email or password", env.Message)

	w, _ = e.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{
		"email": "founder@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

/*
TestSigninRateLimit 第 6 次登录尝试返回 429 和 Retry-After
*/
func TestSigninRateLimit(t *testing.T) {
	e := setupTestEnv(t)

	for i := 1; i <= 5; i++ {
		w, _ := e.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{
			"email": "ghost@example.com", "password": "whatever1",
		})
		require.Equal(t, http.StatusUnauthorized, w.Code, "第 %d 次应到达 handler", i)
	}

	w, env := e.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{
		"email": "ghost@example.com", "password": "whatever1",
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))
	assert.False(t, env.Success)
}

/*
TestSuccessfulSigninClearsLimiter 登录成功后重新计数
*/
func TestSuccessfulSigninClearsLimiter(t *testing.T) {
	e := setupTestEnv(t)
	e.signup(t, "alice", "alice@example.com")

	for i := 0; i < 4; i++ {
		e.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{"email": "alice@example.com", "password": "bad-pass1"})
	}
	w, _ := e.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{"email": "alice@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < 5; i++ {
		w, _ = e.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{"email": "alice@example.com", "password": "bad-pass1"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

/*
TestItemRoleEnforcement 写接口：无令牌 401，user 403，owner 通过
*/
func TestItemRoleEnforcement(t *testing.T) {
	e := setupTestEnv(t)
	ownerToken := e.signup(t, "owner", "owner@example.com")
	userToken := e.signup(t, "member", "member@example.com")

	body := gin.H{"title": "Neon Halo", "item_link": "https://www.roblox.com/catalog/555/Neon-Halo"}

	w, env := e.do(t, http.MethodPost, "/api/v1/items/create", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "authentication required", env.Message)

	w, env = e.do(t, http.MethodPost, "/api/v1/items/create", userToken, body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "access denied, required role: editor", env.Message)

	w, env = e.do(t, http.MethodPost, "/api/v1/items/create", ownerToken, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Item
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "555", created.AssetID)

	w, _ = e.do(t, http.MethodPost, "/api/v1/items/create", ownerToken, gin.H{"title": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = e.do(t, http.MethodGet, "/api/v1/items?with_stock=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []service.ItemWithStock `json:"items"`
		Total int64                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].Stock)
	assert.Equal(t, 3, page.Items[0].Stock.CurrentStock)

	w, _ = e.do(t, http.MethodPost, "/api/v1/items/"+created.ID+"/schedule", ownerToken, gin.H{"release_at": "2030-01-01T18:00:00Z"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/v1/items/missing/delete", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

/*
TestOwnerOnlyUserManagement 用户管理仅 owner 可用，未知角色返回 400
*/
func TestOwnerOnlyUserManagement(t *testing.T) {
	e := setupTestEnv(t)
	ownerToken := e.signup(t, "owner", "owner@example.com")
	userToken := e.signup(t, "member", "member@example.com")

	w, _ := e.do(t, http.MethodGet, "/api/v1/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := e.do(t, http.MethodGet, "/api/v1/users", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []models.User `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 2)

	var memberID string
	for _, u := range page.Items {
		if u.Username == "member" {
			memberID = u.ID
		}
	}
	require.NotEmpty(t, memberID)

	w, _ = e.do(t, http.MethodPost, "/api/v1/users/"+memberID+"/role/update", ownerToken, gin.H{"role": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/v1/users/"+memberID+"/role/update", ownerToken, gin.H{"role": "editor"})
	assert.Equal(t, http.StatusOK, w.Code)

	/* 旧令牌中的角色不变，需重新登录 */
	w, _ = e.do(t, http.MethodPost, "/api/v1/items/create", userToken, gin.H{"title": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	e := setupTestEnv(t)
	token := e.signup(t, "alice", "alice@example.com")

	w, _ := e.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

/*
TestStockEndpoint ids 与 urls 两种参数，空输入、非法 ID 和无法解析的链接返回 400
*/
func TestStockEndpoint(t *testing.T) {
	e := setupTestEnv(t)

	w, env := e.do(t, http.MethodGet, "/api/v1/roblox-stock", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no ids provided", env.Message)

	w, _ = e.do(t, http.MethodGet, "/api/v1/roblox-stock?ids=11,22", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result map[string]service.StockInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result, 2)
	assert.Equal(t, service.StockOK, result["11"].Status)

	w, _ = e.do(t, http.MethodGet, "/api/v1/roblox-stock?urls=https://www.roblox.com/bundles/33/Bundle,https://www.roblox.com/catalog/44/Hat", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	result = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Contains(t, result, "33")
	assert.Contains(t, result, "44")
	assert.Len(t, result, 2)

	/* 无法解析的链接整体拒绝 */
	callsBefore := e.catalog.calls.Load()
	w, env = e.do(t, http.MethodGet, "/api/v1/roblox-stock?urls=https://www.roblox.com/bundles/55/Bundle,https://example.com/x", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid catalog url: https://example.com/x", env.Message)

	/* 非纯数字 ID 不出站 */
	w, env = e.do(t, http.MethodGet, "/api/v1/roblox-stock?ids=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "invalid id")
	w, _ = e.do(t, http.MethodGet, "/api/v1/roblox-stock?ids=11,..%2F..%2Fx", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, callsBefore, e.catalog.calls.Load())

	/* 11 已缓存 */
	callsBefore = e.catalog.calls.Load()
	e.do(t, http.MethodGet, "/api/v1/roblox-stock?ids=11", "", nil)
	assert.Equal(t, callsBefore, e.catalog.calls.Load())
}

func TestHealthAndMetricsGuard(t *testing.T) {
	e := setupTestEnv(t)

	w, _ := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	/* httptest 默认来源 192.0.2.1 */
	w, _ = e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
