// Package storage keeps graph exports in S3 compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/config"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ExportStore uploads graph exports and hands out download links.
type ExportStore struct {
	api        s3API
	presigner  presignAPI
	bucket     string
	pathPrefix string
	linkExpiry time.Duration
}

// NewS3Client creates a path style S3 client for cfg.
func NewS3Client(ctx context.Context, cfg config.S3) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithBaseEndpoint(cfg.Endpoint),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// NewExportStore wraps client. Download links are signed for the public
// endpoint when one is configured, so the signature matches the host the
// browser talks to.
func NewExportStore(client *s3.Client, cfg config.S3) (*ExportStore, error) {
	presignClient := client
	prefix := ""
	if cfg.PublicEndpoint != "" {
		publicURL, err := url.Parse(cfg.PublicEndpoint)
		if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
			return nil, fmt.Errorf("invalid AWS_PUBLIC_ENDPOINT: %s", cfg.PublicEndpoint)
		}
		prefix = strings.TrimSuffix(publicURL.Path, "/")
		presignClient = s3.NewFromConfig(
			aws.Config{
				Region:      client.Options().Region,
				Credentials: client.Options().Credentials,
				HTTPClient:  client.Options().HTTPClient,
			},
			func(o *s3.Options) {
				o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host))
				o.UsePathStyle = true
			},
		)
	}

	expiry := cfg.LinkExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &ExportStore{
		api:        client,
		presigner:  s3.NewPresignClient(presignClient),
		bucket:     cfg.Bucket,
		pathPrefix: prefix,
		linkExpiry: expiry,
	}, nil
}

// ExportKey is the object key of an export. Keys are content addressed by
// the graph fingerprint.
func ExportKey(projectID, fingerprint, format string) string {
	return fmt.Sprintf("%s/%s.%s", projectPrefix(projectID), fingerprint, graph.FormatExtension(format))
}

func projectPrefix(projectID string) string {
	return "graphs/" + projectID
}

// PutExport uploads doc unless an export with the same fingerprint already
// exists. It returns the object key.
func (s *ExportStore) PutExport(ctx context.Context, projectID, fingerprint, format, doc string) (string, error) {
	key := ExportKey(projectID, fingerprint, format)

	existing, err := s.ListExports(ctx, projectID)
	if err != nil {
		return "", err
	}
	for _, k := range existing {
		if k == key {
			logger.Debug("[Storage] Export already uploaded", "key", key)
			return key, nil
		}
	}

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(doc),
		ContentType: aws.String(graph.FormatContentType(format)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export to S3: %w", err)
	}
	logger.Info("[Storage] Uploaded export", "key", key, "bytes", len(doc))
	return key, nil
}

// GetExport downloads a previously uploaded export.
func (s *ExportStore) GetExport(ctx context.Context, key string) ([]byte, error) {
	result, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get export from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateDownloadLink presigns a GET for key.
func (s *ExportStore) GenerateDownloadLink(ctx context.Context, key string) (string, error) {
	out, err := s.presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(s.linkExpiry),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	// a path prefix on the public endpoint is not part of the signature
	if s.pathPrefix != "" {
		signedURL, err := url.Parse(out.URL)
		if err != nil {
			return "", fmt.Errorf("failed to parse presigned url: %w", err)
		}
		signedURL.Path = s.pathPrefix + signedURL.Path
		return signedURL.String(), nil
	}
	return out.URL, nil
}

// ListExports returns the keys of all exports of a project.
func (s *ExportStore) ListExports(ctx context.Context, projectID string) ([]string, error) {
	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(projectPrefix(projectID) + "/"),
	}

	for {
		listOutput, err := s.api.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list exports of project %s: %w", projectID, err)
		}
		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}
	return keys, nil
}

// DeleteProjectExports removes all exports of a project.
func (s *ExportStore) DeleteProjectExports(ctx context.Context, projectID string) error {
	keys, err := s.ListExports(ctx, projectID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	// DeleteObjects accepts at most 1000 keys per call
	for start := 0; start < len(keys); start += 1000 {
		end := min(start+1000, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}
		_, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete exports of project %s: %w", projectID, err)
		}
	}
	logger.Info("[Storage] Deleted project exports", "project_id", projectID, "count", len(keys))
	return nil
}
