package service

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/pkg/logger"
	"markket_cms_v1/pkg/metrics"
	"markket_cms_v1/pkg/strapi"
)

// AuthService 调用方身份校验
// 每个请求都用调用方自己的 token 请求一次 api/users/me，不缓存、不重试
type AuthService struct {
	upstream   Upstream
	configured bool
	metrics    *metrics.Metrics

	now    func() time.Time
	parser *jwt.Parser
}

// NewAuthService 工厂方法
// configured: 上游地址和管理员凭证是否齐全，缺失时所有 token 一律视为无效
func NewAuthService(upstream Upstream, configured bool, m *metrics.Metrics) *AuthService {
	return &AuthService{
		upstream:   upstream,
		configured: configured,
		metrics:    m,
		now:        time.Now,
		parser:     jwt.NewParser(),
	}
}

// VerifyToken 换取身份；任何失败都返回 nil (fail closed)
// 被封禁的用户同样返回，由调用方判定
func (s *AuthService) VerifyToken(ctx context.Context, token string) *strapi.User {
	if !s.configured || token == "" {
		return nil
	}

	// 1. 本地预检：能解析出 exp 且已过期的 JWT 不必再请求上游 (签名仍由上游校验)
	if s.isExpired(token) {
		s.metrics.RecordAuthFailure("expired")
		return nil
	}

	// 2. 上游校验，只请求一次
	user, err := s.upstream.Me(ctx, token)
	if err != nil {
		logger.L().Debugf("[Auth] token rejected: %v", err)
		s.metrics.RecordAuthFailure("rejected")
		return nil
	}
	return user
}

// Authenticate 从 Authorization 头解析并校验调用方
// 缺失 -> noToken；格式错误 / 校验失败 / 已封禁 -> invalidToken
func (s *AuthService) Authenticate(ctx context.Context, authHeader string) (*strapi.User, error) {
	token, present, wellFormed := ParseBearer(authHeader)
	if !present {
		s.metrics.RecordAuthFailure("no_token")
		return nil, apierr.NoToken()
	}
	if !wellFormed {
		s.metrics.RecordAuthFailure("malformed")
		return nil, apierr.InvalidToken()
	}

	user := s.VerifyToken(ctx, token)
	if user == nil {
		return nil, apierr.InvalidToken()
	}
	if user.Blocked {
		s.metrics.RecordAuthFailure("blocked")
		logger.L().Warnf("[Auth] blocked user %d rejected", user.ID)
		return nil, apierr.InvalidToken()
	}
	return user, nil
}

// ParseBearer 解析 "Bearer <token>"
// present: 头是否存在；wellFormed: 是否为合法的 Bearer 格式
func ParseBearer(header string) (token string, present, wellFormed bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false, false
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", true, false
	}
	return token, true, true
}

// isExpired 仅在 token 是可解析的 JWT 且带 exp 时生效
func (s *AuthService) isExpired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := s.parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Before(s.now())
}
