// Package storage issues presigned S3 URLs for user media. Clients upload
// straight to the bucket; the API never handles file bytes.
package storage

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appErrors "qalam-backend/pkg/errors"
)

const (
	UploadPrefix = "uploads/"
	SignupPrefix = "signup/"

	maxFileNameLength = 128
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Presigner is the subset of *s3.PresignClient used here.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var _ Presigner = (*s3.PresignClient)(nil)

// Upload is a presigned upload target and where the object can be read
// once it exists.
type Upload struct {
	Key       string
	UploadURL string
	PublicURL string
	SignedURL string
}

// Service signs URLs for one bucket.
type Service struct {
	presigner Presigner
	bucket    string
	urlTTL    time.Duration
	avatarTTL time.Duration
	clock     func() time.Time
}

// Config holds the bucket and URL lifetimes.
type Config struct {
	Bucket       string
	UploadURLTTL time.Duration
	AvatarURLTTL time.Duration
}

// NewService returns a Service signing with presigner.
func NewService(presigner Presigner, cfg Config) *Service {
	return &Service{
		presigner: presigner,
		bucket:    cfg.Bucket,
		urlTTL:    cfg.UploadURLTTL,
		avatarTTL: cfg.AvatarURLTTL,
		clock:     time.Now,
	}
}

// Bucket returns the bucket name.
func (s *Service) Bucket() string { return s.bucket }

// UploadURL signs an upload under the user's prefix.
func (s *Service) UploadURL(ctx context.Context, userID, fileName, contentType string) (*Upload, error) {
	if userID == "" {
		return nil, appErrors.NewValidation("user id is required")
	}
	return s.presignUpload(ctx, UploadPrefix+userID+"/", fileName, contentType)
}

// SignupUploadURL signs an avatar upload for an account that does not
// exist yet.
func (s *Service) SignupUploadURL(ctx context.Context, username, fileName, contentType string) (*Upload, error) {
	if username == "" || strings.ContainsAny(username, "/\\") {
		return nil, appErrors.NewValidation("a valid username is required")
	}
	return s.presignUpload(ctx, SignupPrefix+username+"/", fileName, contentType)
}

func (s *Service) presignUpload(ctx context.Context, prefix, fileName, contentType string) (*Upload, error) {
	name := SanitizeFileName(fileName)
	if name == "" {
		return nil, appErrors.NewValidation("fileName is required")
	}
	if contentType == "" {
		return nil, appErrors.NewValidation("contentType is required")
	}
	key := fmt.Sprintf("%s%d-%s", prefix, s.clock().UnixMilli(), name)

	put, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return nil, appErrors.NewInternal("failed to sign upload", err)
	}

	signed, err := s.SignedGetURL(ctx, key, s.urlTTL)
	if err != nil {
		return nil, err
	}

	return &Upload{
		Key:       key,
		UploadURL: put.URL,
		PublicURL: s.PublicURL(key),
		SignedURL: signed,
	}, nil
}

// RefreshURL signs a fresh short-lived GET for a stored object.
func (s *Service) RefreshURL(ctx context.Context, key string) (string, error) {
	return s.SignedGetURL(ctx, key, s.urlTTL)
}

// AvatarURL returns a displayable URL for a stored avatar. Absolute URLs
// (OAuth avatars) pass through; keys are signed for the avatar lifetime.
func (s *Service) AvatarURL(ctx context.Context, avatar string) (string, error) {
	if avatar == "" {
		return "", nil
	}
	if IsAbsoluteURL(avatar) {
		return avatar, nil
	}
	return s.SignedGetURL(ctx, avatar, s.avatarTTL)
}

// SignedGetURL signs a GET for key valid for ttl.
func (s *Service) SignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", appErrors.NewInternal("failed to sign download", err)
	}
	return req.URL, nil
}

// PublicURL is the unsigned virtual-hosted URL of key. Only objects under
// the public uploads prefix are readable through it.
func (s *Service) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

// ValidateKey accepts keys under the media prefixes only.
func ValidateKey(key string) error {
	if key == "" {
		return appErrors.NewValidation("S3 key is required")
	}
	if strings.Contains(key, "..") || (!strings.HasPrefix(key, UploadPrefix) && !strings.HasPrefix(key, SignupPrefix)) {
		return appErrors.NewValidation("S3 key is outside the media prefixes")
	}
	return nil
}

// SanitizeFileName drops any directory part and replaces characters that
// are awkward in object keys.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), "_")
	if len(name) > maxFileNameLength {
		name = name[len(name)-maxFileNameLength:]
	}
	return name
}

// IsAbsoluteURL reports whether s is an http(s) URL rather than a key.
func IsAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
