package citations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FileMapping is one entry of the file-mapping document produced by the
// document sync: canonical source path -> file name + stable external URL.
type FileMapping struct {
	FileName      string `json:"fileName"`
	SourcePath    string `json:"sourcePath"`
	SharePointURL string `json:"sharePointUrl"`
}

// Fetcher retrieves the full mapping document as one snapshot.
type Fetcher interface {
	FetchMapping(ctx context.Context) (map[string]FileMapping, error)
}

// S3Fetcher reads the mapping JSON document from an S3 bucket.
type S3Fetcher struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Fetcher builds a fetcher using the default AWS credential chain.
func NewS3Fetcher(ctx context.Context, bucket, key string) (*S3Fetcher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("mapping bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Fetcher{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		key:    key,
	}, nil
}

func (f *S3Fetcher) FetchMapping(ctx context.Context) (map[string]FileMapping, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &f.bucket,
		Key:    &f.key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", f.bucket, f.key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping body: %w", err)
	}

	return parseMapping(body)
}

// FileFetcher reads the mapping document from a local path. Used when the
// sync wrote file-mapping.json locally instead of to a bucket.
type FileFetcher struct {
	Path string
}

func (f *FileFetcher) FetchMapping(ctx context.Context) (map[string]FileMapping, error) {
	body, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file %s: %w", f.Path, err)
	}
	return parseMapping(body)
}

func parseMapping(body []byte) (map[string]FileMapping, error) {
	var mapping map[string]FileMapping
	if err := json.Unmarshal(body, &mapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mapping document: %w", err)
	}
	return mapping, nil
}
