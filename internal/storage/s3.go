// Package storage provides the S3-backed object store for user uploads.
//
// Every object lives under user-uploads/{user_id}/{section}/ and every
// operation verifies that the key being touched belongs to the calling
// user before going to S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/ezcommon/apply-portal/internal/model"
)

const keyPrefix = "user-uploads"

// Common errors for storage operations.
var (
	// ErrForbiddenKey means the key does not belong to the calling user.
	ErrForbiddenKey = errors.New("key does not belong to user")
	// ErrObjectNotFound means the object does not exist in the bucket.
	ErrObjectNotFound = errors.New("object not found")
)

// Options configures a Store.
type Options struct {
	Bucket     string
	Region     string
	Endpoint   string // Non-empty for LocalStack/MinIO
	PresignTTL time.Duration
}

// Store wraps the S3 client for upload bucket operations.
type Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	presignTTL time.Duration
}

// New creates a Store. When opts.Endpoint is set, the client targets a
// local S3-compatible endpoint with static test credentials and
// path-style addressing.
func New(ctx context.Context, opts Options) (*Store, error) {
	var (
		cfg aws.Config
		err error
	)

	if opts.Endpoint != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(opts.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     opts.Bucket,
		presignTTL: ttl,
	}, nil
}

// BuildKey generates the object key for a new upload. The original
// filename only contributes its extension; the basename is a fresh UUID
// so concurrent uploads of the same file never collide.
func BuildKey(userID, section, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%s/%s/%s%s", keyPrefix, userID, section, uuid.NewString(), ext)
}

// UserPrefix returns the key prefix owned by a user.
func UserPrefix(userID string) string {
	return fmt.Sprintf("%s/%s/", keyPrefix, userID)
}

// checkOwnership rejects keys outside the user's prefix.
func checkOwnership(userID, key string) error {
	if !strings.HasPrefix(key, UserPrefix(userID)) {
		return ErrForbiddenKey
	}
	return nil
}

// SectionFromKey extracts the section component of an upload key.
// Returns "" when the key does not have the expected shape.
func SectionFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 4 || parts[0] != keyPrefix {
		return ""
	}
	return parts[2]
}

// Upload stores a file and stamps it with the ownership metadata the
// rest of the pipeline relies on.
func (s *Store) Upload(ctx context.Context, userID, section, filename, contentType string, body io.Reader) (*model.UploadedFile, error) {
	key := BuildKey(userID, section, filename)
	now := time.Now().UTC()

	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"original_filename": filename,
			"user_id":           userID,
			"section":           section,
			"upload_timestamp":  now.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put object: %w", err)
	}

	return &model.UploadedFile{
		Key:              key,
		OriginalFilename: filename,
		Section:          section,
		ContentType:      contentType,
		UploadedAt:       now,
	}, nil
}

// ListBySection lists a user's files within one section, each with a
// short-lived presigned GET URL.
func (s *Store) ListBySection(ctx context.Context, userID, section string) ([]*model.UploadedFile, error) {
	prefix := fmt.Sprintf("%s/%s/%s/", keyPrefix, userID, section)
	return s.listPrefix(ctx, prefix)
}

// ListAll lists every file the user has uploaded, across all sections.
func (s *Store) ListAll(ctx context.Context, userID string) ([]*model.UploadedFile, error) {
	return s.listPrefix(ctx, UserPrefix(userID))
}

// ListSections returns the set of sections the user has uploaded into,
// known sections first.
func (s *Store) ListSections(ctx context.Context, userID string) ([]string, error) {
	files, err := s.ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, f := range files {
		if f.Section != "" {
			seen[f.Section] = true
		}
	}

	sections := make([]string, 0, len(seen))
	for _, known := range model.KnownSections {
		if seen[known] {
			sections = append(sections, known)
			delete(seen, known)
		}
	}

	rest := make([]string, 0, len(seen))
	for section := range seen {
		rest = append(rest, section)
	}
	sort.Strings(rest)

	return append(sections, rest...), nil
}

func (s *Store) listPrefix(ctx context.Context, prefix string) ([]*model.UploadedFile, error) {
	var files []*model.UploadedFile

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)

			meta, err := s.headObject(ctx, key)
			if err != nil {
				if errors.Is(err, ErrObjectNotFound) {
					continue // deleted between list and head
				}
				return nil, err
			}

			url, err := s.presignGet(ctx, key)
			if err != nil {
				return nil, err
			}

			file := &model.UploadedFile{
				Key:              key,
				OriginalFilename: meta.OriginalFilename,
				Section:          SectionFromKey(key),
				Size:             aws.ToInt64(obj.Size),
				ContentType:      meta.ContentType,
				URL:              url,
			}
			if obj.LastModified != nil {
				file.UploadedAt = *obj.LastModified
			}
			if ts, err := time.Parse(time.RFC3339, meta.UploadTimestamp); err == nil {
				file.UploadedAt = ts
			}
			files = append(files, file)
		}
	}

	return files, nil
}

// PresignGet returns a presigned download URL for the user's own object.
func (s *Store) PresignGet(ctx context.Context, userID, key string) (string, error) {
	if err := checkOwnership(userID, key); err != nil {
		return "", err
	}
	return s.presignGet(ctx, key)
}

func (s *Store) presignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign get object: %w", err)
	}
	return req.URL, nil
}

// Download streams the user's own object. Callers must close the reader.
func (s *Store) Download(ctx context.Context, userID, key string) (io.ReadCloser, error) {
	if err := checkOwnership(userID, key); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return out.Body, nil
}

// Delete removes the user's own object.
func (s *Store) Delete(ctx context.Context, userID, key string) error {
	if err := checkOwnership(userID, key); err != nil {
		return err
	}

	// HeadObject first so deleting a missing key reports not found;
	// S3 DeleteObject succeeds silently on absent keys.
	if _, err := s.headObject(ctx, key); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// GetMetadata returns the full metadata view for the user's own object.
func (s *Store) GetMetadata(ctx context.Context, userID, key string) (*model.FileMetadata, error) {
	if err := checkOwnership(userID, key); err != nil {
		return nil, err
	}
	return s.headObject(ctx, key)
}

func (s *Store) headObject(ctx context.Context, key string) (*model.FileMetadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to head object: %w", err)
	}

	meta := &model.FileMetadata{
		Key:         key,
		Section:     SectionFromKey(key),
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}

	custom := make(map[string]string)
	for k, v := range out.Metadata {
		switch strings.ToLower(k) {
		case "original_filename":
			meta.OriginalFilename = v
		case "user_id":
			meta.UserID = v
		case "section":
			meta.Section = v
		case "upload_timestamp":
			meta.UploadTimestamp = v
		default:
			custom[k] = v
		}
	}
	if len(custom) > 0 {
		meta.Custom = custom
	}

	return meta, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
