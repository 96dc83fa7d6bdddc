package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ugcleaks/server/internal/db/models"

	"github.com/golang-jwt/jwt/v5"
)

/* memoryKV 测试用键值存储 */
type memoryKV struct {
	mu     sync.Mutex
	values map[string]string
	failOn error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: make(map[string]string)}
}

func (m *memoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return "", m.failOn
	}
	v, ok := m.values[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (m *memoryKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return m.failOn
	}
	m.values[key] = value.(string)
	return nil
}

func (m *memoryKV) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return false, m.failOn
	}
	_, ok := m.values[key]
	return ok, nil
}

const testSecret = "unit-test-secret-0123456789abcdef"

func newTestAuth(revoker TokenRevoker) (*AuthService, *fakeClock) {
	clock := newFakeClock()
	s := NewAuthService(StaticSecret(testSecret), time.Hour, revoker)
	s.now = clock.Now
	return s, clock
}

func requestWithAuth(header string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}

func testUser(role models.UserRole) *models.User {
	u := &models.User{Username: "tester", Email: "tester@example.com", Role: role}
	u.ID = "user-001"
	return u
}

/*
TestHasRequiredRole 角色等级真值表
*/
func TestHasRequiredRole(t *testing.T) {
	cases := []struct {
		user, required string
		want           bool
	}{
		{"editor", "owner", false},
		{"owner", "editor", true},
		{"owner", "owner", true},
		{"bogus", "user", false},
		{"user", "user", true},
		{"user", "editor", false},
		{"editor", "editor", true},
		{"owner", "user", true},
		{"owner", "bogus", false},
		{"", "user", false},
	}
	for _, c := range cases {
		if got := HasRequiredRole(c.user, c.required); got != c.want {
			t.Errorf("HasRequiredRole(%q, %q) = %v, 期望 %v", c.user, c.required, got, c.want)
		}
	}
}

/*
TestAuthService_IssueAndVerify 签发后可校验出相同载荷
*/
func TestAuthService_IssueAndVerify(t *testing.T) {
	s, clock := newTestAuth(nil)

	token, issued, err := s.IssueToken(testUser(models.RoleEditor))
	if err != nil {
		t.Fatalf("签发失败: %v", err)
	}

	payload := s.VerifyToken(requestWithAuth("Bearer " + token))
	if payload == nil {
		t.Fatal("有效令牌应通过校验")
	}
	if payload.UserID != "user-001" || payload.Email != "tester@example.com" || payload.Role != "editor" {
		t.Errorf("载荷不匹配: %+v", payload)
	}
	if !payload.ExpiresAt.Equal(issued.ExpiresAt) || !payload.IssuedAt.Equal(clock.Now()) {
		t.Errorf("时间字段不匹配: %+v vs %+v", payload, issued)
	}

	/* 过期 */
	clock.Advance(time.Hour + time.Second)
	if s.VerifyToken(requestWithAuth("Bearer "+token)) != nil {
		t.Error("过期令牌应返回 nil")
	}
}

/*
TestAuthService_VerifyRejects 各类无效请求均返回 nil
*/
func TestAuthService_VerifyRejects(t *testing.T) {
	s, clock := newTestAuth(nil)
	token, _, _ := s.IssueToken(testUser(models.RoleUser))

	other := NewAuthService(StaticSecret("another-secret-entirely-different"), time.Hour, nil)
	other.now = clock.Now
	foreign, _, _ := other.IssueToken(testUser(models.RoleOwner))

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"userId": "user-001", "role": "owner",
		"exp": clock.Now().Add(time.Hour).Unix(),
	})
	hs512Token, _ := hs512.SignedString([]byte(testSecret))

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "user-001", "role": 2,
		"exp": clock.Now().Add(time.Hour).Unix(),
	})
	badRoleToken, _ := badRole.SignedString([]byte(testSecret))

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "user-001", "role": "owner",
	})
	noExpToken, _ := noExp.SignedString([]byte(testSecret))

	cases := []struct {
		name   string
		header string
	}{
		{"缺少头", ""},
		{"错误方案", "Basic " + token},
		{"缺少令牌", "Bearer "},
		{"无前缀", token},
		{"错误签名", "Bearer " + foreign},
		{"非预期算法", "Bearer " + hs512Token},
		{"角色类型错误", "Bearer " + badRoleToken},
		{"缺少过期时间", "Bearer " + noExpToken},
		{"乱码", "Bearer not.a.token"},
	}
	for _, c := range cases {
		if p := s.VerifyToken(requestWithAuth(c.header)); p != nil {
			t.Errorf("%s: 应返回 nil, 实际 %+v", c.name, p)
		}
	}

	/* 方案名大小写不敏感 */
	if s.VerifyToken(requestWithAuth("bearer "+token)) == nil {
		t.Error("小写 bearer 应被接受")
	}
}

/*
TestAuthService_RequireRole 401 与 403 的区分
*/
func TestAuthService_RequireRole(t *testing.T) {
	s, _ := newTestAuth(nil)
	userToken, _, _ := s.IssueToken(testUser(models.RoleUser))
	editorToken, _, _ := s.IssueToken(testUser(models.RoleEditor))

	_, authErr := s.RequireAuth(requestWithAuth(""))
	if authErr == nil || authErr.Status != http.StatusUnauthorized || authErr.Message != "authentication required" {
		t.Errorf("缺少令牌应返回 401: %+v", authErr)
	}

	_, authErr = s.RequireEditor(requestWithAuth("Bearer " + userToken))
	if authErr == nil || authErr.Status != http.StatusForbidden {
		t.Fatalf("user 访问 editor 接口应返回 403: %+v", authErr)
	}
	if authErr.Message != "access denied, required role: editor" {
		t.Errorf("403 信息不匹配: %q", authErr.Message)
	}

	payload, authErr := s.RequireEditor(requestWithAuth("Bearer " + editorToken))
	if authErr != nil || payload.Role != "editor" {
		t.Errorf("editor 应通过: %+v %+v", payload, authErr)
	}

	_, authErr = s.RequireRole(requestWithAuth("Bearer "+editorToken), "owner")
	if authErr == nil || authErr.Message != "access denied, required role: owner" {
		t.Errorf("editor 访问 owner 接口应返回 403: %+v", authErr)
	}
}

/*
TestAuthService_RevokedToken 注销后的令牌不再有效
*/
func TestAuthService_RevokedToken(t *testing.T) {
	store := NewTokenStore(newMemoryKV())
	s, clock := newTestAuth(store)
	store.now = clock.Now

	token, _, _ := s.IssueToken(testUser(models.RoleOwner))
	payload := s.VerifyToken(requestWithAuth("Bearer " + token))
	if payload == nil {
		t.Fatal("注销前应有效")
	}

	if err := s.RevokeToken(context.Background(), payload); err != nil {
		t.Fatalf("吊销失败: %v", err)
	}
	if s.VerifyToken(requestWithAuth("Bearer "+token)) != nil {
		t.Error("吊销后应返回 nil")
	}

	other, _, _ := s.IssueToken(testUser(models.RoleOwner))
	if s.VerifyToken(requestWithAuth("Bearer "+other)) == nil {
		t.Error("同一用户的其他令牌不受影响")
	}
}
