package service

import (
	"context"
	"errors"
	"net/url"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/pkg/strapi"
)

// Upstream 服务层依赖的 CMS 能力 (*strapi.Client 实现)
type Upstream interface {
	Me(ctx context.Context, token string) (*strapi.User, error)
	FindStoresByUser(ctx context.Context, userID int64) ([]strapi.Store, error)
	FindOne(ctx context.Context, collection, id string, populate ...string) (map[string]any, error)
	Get(ctx context.Context, path string, query url.Values) (int, []byte, error)
	Count(ctx context.Context, collection string, filters url.Values) (int, error)
	Create(ctx context.Context, collection string, data any) (map[string]any, error)
	Update(ctx context.Context, collection, id string, data any) (map[string]any, error)
	Delete(ctx context.Context, collection, id string) error
}

var _ Upstream = (*strapi.Client)(nil)

// upstreamWriteError 上游写失败统一转换
// 上游返回了错误体时透传 message / details；网络错误不暴露底层细节
func upstreamWriteError(action, kind string, err error) *apierr.Error {
	var se *strapi.StatusError
	if errors.As(err, &se) {
		var details any
		if len(se.Details) > 0 {
			details = se.Details
		}
		msg := se.Message
		if msg == "" {
			msg = "Upstream request failed"
		}
		return apierr.UpstreamWriteFailed(action, kind, se.Status, msg, details)
	}
	return apierr.UpstreamWriteFailed(action, kind, 0, "Upstream unavailable", nil)
}

// isNotFound 上游 404
func isNotFound(err error) bool {
	var se *strapi.StatusError
	return errors.As(err, &se) && se.IsNotFound()
}
