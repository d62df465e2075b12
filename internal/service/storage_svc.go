package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"markket_cms_v1/internal/content"
	"markket_cms_v1/pkg/logger"
)

// ==================== 接口定义 ====================

// ArchiveProvider 归档存储
type ArchiveProvider interface {
	// Put 写入对象，返回可定位的 URL
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
}

// ==================== 配置 ====================

type ArchiveConfig struct {
	Provider  string // "s3" | "local" | "none"
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // S3 兼容端点 (MinIO 等)，为空走 AWS
	BasePath  string // 对象前缀；local 时为目录
}

// ==================== 工厂方法 ====================

func NewArchiveProvider(cfg ArchiveConfig) (ArchiveProvider, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3Archive(cfg)
	case "local":
		return NewLocalArchive(cfg)
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported archive provider: %s", cfg.Provider)
	}
}

// ==================== ArchiveService ====================

// ArchiveService 删除前把记录快照写入归档存储
// provider 为 nil 时不归档
type ArchiveService struct {
	provider ArchiveProvider
	now      func() time.Time
}

func NewArchiveService(provider ArchiveProvider) *ArchiveService {
	return &ArchiveService{provider: provider, now: time.Now}
}

// Enabled 是否配置了归档
func (s *ArchiveService) Enabled() bool {
	return s != nil && s.provider != nil
}

// ArchiveItem 写入一条记录快照
func (s *ArchiveService) ArchiveItem(ctx context.Context, kind, storeID string, item map[string]any) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	data, err := json.Marshal(map[string]any{
		"contentType": kind,
		"storeId":     storeID,
		"archivedAt":  s.now().UTC().Format(time.RFC3339),
		"data":        item,
	})
	if err != nil {
		return "", fmt.Errorf("marshal archive: %w", err)
	}
	return s.provider.Put(ctx, s.generateKey(kind, storeID), data, "application/json")
}

// ArchiveFromUpstream 拉取记录并归档；失败只打日志，不阻断删除
func (s *ArchiveService) ArchiveFromUpstream(ctx context.Context, upstream Upstream, desc *content.Descriptor, storeID, itemID string) string {
	if !s.Enabled() {
		return ""
	}
	item, err := upstream.FindOne(ctx, desc.Collection, itemID)
	if err != nil {
		logger.L().Warnf("[Archive] fetch %s %s failed: %v", desc.Kind, itemID, err)
		return ""
	}
	return s.archiveOrLog(ctx, string(desc.Kind), storeID, item)
}

func (s *ArchiveService) archiveOrLog(ctx context.Context, kind, storeID string, item map[string]any) string {
	if !s.Enabled() {
		return ""
	}
	url, err := s.ArchiveItem(ctx, kind, storeID, item)
	if err != nil {
		logger.L().Warnf("[Archive] archive %s failed: %v", kind, err)
		return ""
	}
	return url
}

// generateKey <kind>/<store>/<yyyy/mm/dd>/<uuid>.json
func (s *ArchiveService) generateKey(kind, storeID string) string {
	if storeID == "" {
		storeID = "_"
	}
	datePath := s.now().UTC().Format("2006/01/02")
	return fmt.Sprintf("%s/%s/%s/%s.json", kind, sanitizeSegment(storeID), datePath, uuid.New().String())
}

func sanitizeSegment(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}

// ==================== S3 实现 ====================

type S3Archive struct {
	client   *s3.Client
	bucket   string
	region   string
	endpoint string
	basePath string
}

func NewS3Archive(cfg ArchiveConfig) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	// S3 兼容存储走自定义端点 + path style
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{
		client:   client,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		basePath: strings.Trim(cfg.BasePath, "/"),
	}, nil
}

func (s *S3Archive) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.basePath != "" {
		key = s.basePath + "/" + key
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3 object: %w", err)
	}
	return s.objectURL(key), nil
}

func (s *S3Archive) objectURL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// ==================== 本地存储 (开发测试用) ====================

type LocalArchive struct {
	basePath string
}

func NewLocalArchive(cfg ArchiveConfig) (*LocalArchive, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "./archive"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

func (s *LocalArchive) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(path), nil
}
