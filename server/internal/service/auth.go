package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ugcleaks/server/internal/db/models"
	"ugcleaks/server/internal/pkg/metrics"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

/*
TokenPayload 令牌中携带的用户信息
签发后不可变；角色变更需要重新登录获取新令牌
*/
type TokenPayload struct {
	TokenID   string    `json:"-"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type tokenClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

/* SecretSource 签名密钥来源，JWTManager 实现 */
type SecretSource interface {
	GetSecret() string
}

/* StaticSecret 固定密钥 */
type StaticSecret string

func (s StaticSecret) GetSecret() string {
	return string(s)
}

/* TokenRevoker 令牌吊销记录，TokenStore 实现 */
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) bool
}

/*
AuthService 认证与授权
功能：签发/校验 HS256 令牌，按 user < editor < owner 的角色等级做权限判断
*/
type AuthService struct {
	secrets  SecretSource
	tokenTTL time.Duration
	revoker  TokenRevoker /* 可为 nil */
	now      func() time.Time
	logger   *zap.Logger
}

func NewAuthService(secrets SecretSource, tokenTTL time.Duration, revoker TokenRevoker) *AuthService {
	return &AuthService{
		secrets:  secrets,
		tokenTTL: tokenTTL,
		revoker:  revoker,
		now:      time.Now,
		logger:   zap.L().Named("auth-service"),
	}
}

/*
IssueToken 为用户签发令牌
*/
func (s *AuthService) IssueToken(user *models.User) (string, *TokenPayload, error) {
	now := s.now().Truncate(time.Second)
	payload := &TokenPayload{
		TokenID:   uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokenTTL),
	}

	claims := tokenClaims{
		UserID: payload.UserID,
		Email:  payload.Email,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        payload.TokenID,
			Subject:   payload.UserID,
			IssuedAt:  jwt.NewNumericDate(payload.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(payload.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secrets.GetSecret()))
	if err != nil {
		return "", nil, fmt.Errorf("签名 JWT 令牌失败: %w", err)
	}
	return signed, payload, nil
}

/*
ParseToken 校验签名、算法和过期时间
*/
func (s *AuthService) ParseToken(tokenString string) (*TokenPayload, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return []byte(s.secrets.GetSecret()), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token claims")
	}

	payload := &TokenPayload{
		TokenID: claims.ID,
		UserID:  claims.UserID,
		Email:   claims.Email,
		Role:    claims.Role,
	}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Time
	}
	payload.ExpiresAt = claims.ExpiresAt.Time
	return payload, nil
}

/*
VerifyToken 从 Authorization: Bearer <token> 解析令牌
缺失、格式错误、签名/过期校验失败或已吊销时返回 nil
*/
func (s *AuthService) VerifyToken(r *http.Request) *TokenPayload {
	tokenString, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil
	}

	payload, err := s.ParseToken(tokenString)
	if err != nil {
		s.logger.Debug("令牌校验失败", zap.Error(err))
		return nil
	}

	if s.revoker != nil && s.revoker.IsRevoked(r.Context(), payload.TokenID) {
		s.logger.Debug("令牌已吊销", zap.String("user_id", payload.UserID))
		return nil
	}
	return payload
}

/* RequireAuth 未通过校验时返回 401 */
func (s *AuthService) RequireAuth(r *http.Request) (*TokenPayload, *AuthError) {
	payload := s.VerifyToken(r)
	if payload == nil {
		metrics.AuthFailures.WithLabelValues("unauthenticated").Inc()
		return nil, newUnauthenticated()
	}
	return payload, nil
}

/* RequireRole 已认证但角色不足时返回 403 */
func (s *AuthService) RequireRole(r *http.Request, requiredRole string) (*TokenPayload, *AuthError) {
	payload, authErr := s.RequireAuth(r)
	if authErr != nil {
		return nil, authErr
	}
	if !HasRequiredRole(payload.Role, requiredRole) {
		metrics.AuthFailures.WithLabelValues("forbidden").Inc()
		return nil, newForbidden(requiredRole)
	}
	return payload, nil
}

/* RequireEditor 写操作的默认要求 */
func (s *AuthService) RequireEditor(r *http.Request) (*TokenPayload, *AuthError) {
	return s.RequireRole(r, string(models.RoleEditor))
}

/*
RevokeToken 注销时吊销令牌
未配置吊销存储时为空操作
*/
func (s *AuthService) RevokeToken(ctx context.Context, payload *TokenPayload) error {
	if s.revoker == nil || payload == nil {
		return nil
	}
	return s.revoker.Revoke(ctx, payload.TokenID, payload.ExpiresAt)
}

/* TokenTTL 令牌有效期 */
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

/*
HasRequiredRole 角色等级比较
未知角色（无论是用户角色还是要求的角色）一律不满足
*/
func HasRequiredRole(userRole, requiredRole string) bool {
	userRank := models.RoleRank(userRole)
	requiredRank := models.RoleRank(requiredRole)
	if userRank < 0 || requiredRank < 0 {
		return false
	}
	return userRank >= requiredRank
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
