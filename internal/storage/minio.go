package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/twofold/corner/internal/apperr"
	"github.com/twofold/corner/internal/config"
)

// objectClient is the subset of *minio.Client the gateway needs.
type objectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PresignHeader(ctx context.Context, method, bucketName, objectName string, expires time.Duration, reqParams url.Values, extraHeaders http.Header) (*url.URL, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

var newMinioClient = func(endpoint string, opts *minio.Options) (objectClient, error) {
	return minio.New(endpoint, opts)
}

// MinioGateway implements Gateway against any S3-compatible endpoint. Against
// Google Cloud Storage (HMAC interoperability keys) it issues resumable
// session credentials; against MinIO or S3 it issues single PUT credentials.
type MinioGateway struct {
	client     objectClient
	bucket     string
	publicBase string
	protocol   string
	urls       *urlCache
	obs        Observer
	log        *zap.Logger
}

// NewMinioGateway creates the storage client and verifies the bucket is
// reachable. Missing credentials or bucket are configuration errors.
func NewMinioGateway(ctx context.Context, cfg config.Storage, obs Observer, log *zap.Logger) (*MinioGateway, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, apperr.Configuration("storage bucket and credentials must be configured")
	}
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	protocol := cfg.Protocol
	if protocol == "" {
		protocol = ProtocolResumable
	}
	if protocol != ProtocolResumable && protocol != ProtocolSingle {
		return nil, apperr.Configuration("unknown storage protocol %q", protocol)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		endpoint = parsed.Host
	}

	client, err := newMinioClient(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("verify bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, apperr.Configuration("storage bucket %q does not exist or is not accessible", cfg.Bucket)
	}

	log.Info("storage gateway ready",
		zap.String("endpoint", endpoint),
		zap.String("bucket", cfg.Bucket),
		zap.String("protocol", protocol),
	)

	return &MinioGateway{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
		protocol:   protocol,
		urls:       newURLCache(defaultURLCacheSize),
		obs:        obs,
		log:        log,
	}, nil
}

// IssueUploadCredential signs the first request of an upload to key. The
// content type is part of the signature so the client cannot change it.
func (g *MinioGateway) IssueUploadCredential(ctx context.Context, key, contentType string, ttl time.Duration) (cred *UploadCredential, err error) {
	if g == nil || g.client == nil || g.bucket == "" {
		return nil, apperr.Configuration("storage gateway is not configured")
	}
	start := time.Now()
	defer func() { g.obs.RecordOperation("issue_upload", time.Since(start), err) }()

	method := http.MethodPut
	headers := http.Header{}
	headers.Set("Content-Type", contentType)
	if g.protocol == ProtocolResumable {
		method = http.MethodPost
		headers.Set(ResumableHeader, "start")
	}

	u, err := g.client.PresignHeader(ctx, method, g.bucket, key, ttl, nil, headers)
	if err != nil {
		return nil, fmt.Errorf("presign upload %q: %w", key, err)
	}

	flat := make(map[string]string, len(headers))
	for name := range headers {
		flat[name] = headers.Get(name)
	}

	now := time.Now().UTC()
	return &UploadCredential{
		UploadURL:   u.String(),
		Method:      method,
		Headers:     flat,
		Protocol:    g.protocol,
		StorageKey:  key,
		ContentType: contentType,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

// IssueDownloadCredential returns a signed GET URL for key. Signed URLs are
// reused from the cache while at least half of their lifetime remains.
func (g *MinioGateway) IssueDownloadCredential(ctx context.Context, key string, ttl time.Duration) (signed string, err error) {
	if g == nil || g.client == nil || g.bucket == "" {
		return "", apperr.Configuration("storage gateway is not configured")
	}
	if cached, ok := g.urls.get(key, ttl/2); ok {
		return cached, nil
	}

	start := time.Now()
	defer func() { g.obs.RecordOperation("issue_download", time.Since(start), err) }()

	if _, err := g.client.StatObject(ctx, g.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return "", &apperr.Error{Kind: apperr.KindNotFound, Message: "media object not found", Err: ErrObjectNotFound}
		}
		return "", fmt.Errorf("stat object %q: %w", key, err)
	}

	u, err := g.client.PresignedGetObject(ctx, g.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign download %q: %w", key, err)
	}

	signed = u.String()
	g.urls.put(key, signed, time.Now().Add(ttl))
	return signed, nil
}

// DeleteObject removes key from the bucket. An already absent object counts as
// deleted.
func (g *MinioGateway) DeleteObject(ctx context.Context, key string) (err error) {
	if g == nil || g.client == nil || g.bucket == "" {
		return apperr.Configuration("storage gateway is not configured")
	}
	start := time.Now()
	defer func() { g.obs.RecordOperation("delete", time.Since(start), err) }()

	g.urls.remove(key)
	if err := g.client.RemoveObject(ctx, g.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// PublicURL returns the browser-facing URL for key.
func (g *MinioGateway) PublicURL(key string) string {
	return g.publicBase + "/" + key
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}
