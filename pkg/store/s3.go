package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store maps (run_id, key) to {prefix}runs/{run_id}/{key}.json
// objects in a bucket.
type S3Store struct {
	base
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds S3Store configuration.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for MinIO/LocalStack
	Prefix   string // optional object key prefix
}

// NewS3Store creates an S3-backed store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO/LocalStack
		}
	})
	s := &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
	s.base.b = s
	return s, nil
}

func (s *S3Store) objectKey(runID, key string) string {
	return s.prefix + "runs/" + runID + "/" + key + ".json"
}

func (s *S3Store) put(ctx context.Context, runID, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(runID, key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) get(ctx context.Context, runID, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(runID, key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrArtifactNotFound, runID, key)
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer func() { _ = result.Body.Close() }()
	return io.ReadAll(result.Body)
}

func (s *S3Store) exists(ctx context.Context, runID, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(runID, key)),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *S3Store) del(ctx context.Context, runID, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(runID, key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) list(ctx context.Context, runID string) ([]string, error) {
	runPrefix := s.prefix + "runs/" + runID + "/"
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(runPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", runID, err)
		}
		for _, obj := range out.Contents {
			k := aws.ToString(obj.Key)
			k = strings.TrimPrefix(k, runPrefix)
			k = strings.TrimSuffix(k, ".json")
			if k != "" {
				keys = append(keys, k)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

func (s *S3Store) saveRun(ctx context.Context, md RunMetadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal run metadata: %w", err)
	}
	return s.put(ctx, md.RunID, MetadataKey, data)
}

func (s *S3Store) listRuns(ctx context.Context) ([]RunMetadata, error) {
	runsPrefix := s.prefix + "runs/"
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(runsPrefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 list runs: %w", err)
	}
	var mds []RunMetadata
	for _, cp := range out.CommonPrefixes {
		dir := aws.ToString(cp.Prefix)
		runID := strings.TrimSuffix(strings.TrimPrefix(dir, runsPrefix), "/")
		if runID == "" {
			continue
		}
		data, err := s.get(ctx, runID, MetadataKey)
		if err != nil {
			continue
		}
		var md RunMetadata
		if err := json.Unmarshal(data, &md); err != nil {
			continue
		}
		mds = append(mds, md)
	}
	return mds, nil
}

// isS3NotFound matches NoSuchKey / NotFound API errors without
// importing the full error types package.
func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NotFound") || strings.Contains(msg, "StatusCode: 404")
}
