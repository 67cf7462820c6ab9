// Package media hands out presigned S3 URLs for user-owned objects such as
// avatars. Objects live under users/<account id>/ so ownership can be checked
// from the key alone.
package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/artelie/backend/internal/common"
	appconfig "github.com/artelie/backend/internal/server/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Seams for tests.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Upload is a presigned PUT for a freshly allocated key.
type Upload struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Presigner signs object URLs for one bucket.
type Presigner struct {
	client *s3.PresignClient
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// NewPresigner builds an S3 presign client with static credentials. Path-style
// addressing keeps it usable against MinIO.
func NewPresigner(ctx context.Context, cfg *appconfig.Config) (*Presigner, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(strings.TrimRight(cfg.S3BaseEndpoint, "/"))
		}
		o.UsePathStyle = true
	})

	return &Presigner{
		client: s3.NewPresignClient(client),
		bucket: cfg.S3Bucket,
		ttl:    cfg.S3PresignTTL,
		now:    time.Now,
	}, nil
}

// ownerPrefix is the key prefix of every object owned by accountID.
func ownerPrefix(accountID string) string {
	return "users/" + accountID + "/"
}

func (p *Presigner) newKey(accountID string) string {
	d := p.now().UTC()
	return fmt.Sprintf("%s%d/%02d/%02d/%s", ownerPrefix(accountID), d.Year(), d.Month(), d.Day(), uuid.New())
}

// PresignUpload allocates a key under accountID and signs a PUT for it.
func (p *Presigner) PresignUpload(ctx context.Context, accountID string) (*Upload, error) {
	key := p.newKey(accountID)

	req, err := presignPutObject(p.client, ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}
	return &Upload{Key: key, URL: req.URL}, nil
}

// PresignDownload signs a GET for key. Only the owner or staff may read it.
func (p *Presigner) PresignDownload(ctx context.Context, accountID string, isStaff bool, key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", common.ErrorNotFound
	}
	if !isStaff && !strings.HasPrefix(key, ownerPrefix(accountID)) {
		return "", common.ErrForbidden
	}

	req, err := presignGetObject(p.client, ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}
