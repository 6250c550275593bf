package capability

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3ObjectStore is the concrete ObjectStore binding used for data movement
// (§4.A): container images, task resource/output files, and federation-proxy
// log mirrors all move through one bucket, objects keyed by their path.
type S3ObjectStore struct {
	client *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3ObjectStore loads the default AWS config chain and binds to bucket.
func NewS3ObjectStore(ctx context.Context, bucket string) (*S3ObjectStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, NewError(KindPermanentOther, "NewS3ObjectStore", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3ObjectStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}, nil
}

func (o *S3ObjectStore) Put(ctx context.Context, deadline time.Time, objPath string, data []byte) error {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	_, err := o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(objPath),
		Body:   strings.NewReader(string(data)),
	})
	if err != nil {
		return classifyS3Error("Put", err)
	}
	return nil
}

func (o *S3ObjectStore) Get(ctx context.Context, deadline time.Time, objPath string) ([]byte, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(objPath),
	})
	if err != nil {
		return nil, classifyS3Error("Get", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, NewError(KindTransient, "Get", err)
	}
	return data, nil
}

// List returns every object key under prefix matching at least one of
// includeGlobs (all keys if empty) and none of excludeGlobs, the same
// include/exclude filtering semantics data movement applies to local file
// selection (§4.A).
func (o *S3ObjectStore) List(ctx context.Context, deadline time.Time, prefix string, includeGlobs, excludeGlobs []string) ([]string, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var out []string
	paginator := s3.NewListObjectsV2Paginator(o.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(o.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("List", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if matchesGlobFilters(key, includeGlobs, excludeGlobs) {
				out = append(out, key)
			}
		}
	}
	return out, nil
}

func matchesGlobFilters(key string, includeGlobs, excludeGlobs []string) bool {
	base := path.Base(key)
	for _, g := range excludeGlobs {
		if ok, _ := path.Match(g, base); ok {
			return false
		}
	}
	if len(includeGlobs) == 0 {
		return true
	}
	for _, g := range includeGlobs {
		if ok, _ := path.Match(g, base); ok {
			return true
		}
	}
	return false
}

// SASFor returns a presigned URL for path, named after the Azure SAS
// terminology the interface carries over from the worked example's wire
// contract (§4.A) even though the concrete binding here is S3.
func (o *S3ObjectStore) SASFor(ctx context.Context, deadline time.Time, objPath string, perms string, ttl time.Duration) (string, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if strings.Contains(perms, "w") {
		req, err := o.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(objPath),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", classifyS3Error("SASFor", err)
		}
		return req.URL, nil
	}

	req, err := o.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(objPath),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", classifyS3Error("SASFor", err)
	}
	return req.URL, nil
}

func classifyS3Error(op string, err error) error {
	var notFound *s3types.NoSuchKey
	var noBucket *s3types.NoSuchBucket
	switch {
	case errors.As(err, &notFound), errors.As(err, &noBucket):
		return NewError(KindNotFound, op, err)
	default:
		return NewError(KindTransient, op, err)
	}
}
