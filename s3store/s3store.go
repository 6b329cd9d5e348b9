// Package s3store implements ogimage.ObjectStore against an S3-compatible
// bucket, including Backblaze B2's S3 endpoint.
package s3store

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	pkgerrors "github.com/pkg/errors"
	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/cachekey"
)

// API is the subset of *s3.Client used by Store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds the connection settings for a bucket.
type Config struct {
	Region   string
	Bucket   string
	Endpoint string

	// Static credentials. When empty the default AWS credential chain is used.
	Credentials ogimage.Credentials

	ForcePathStyle bool
}

// Ensure store implements interface.
var _ ogimage.ObjectStore = (*Store)(nil)

// Store keeps images in a single bucket.
type Store struct {
	api    API
	bucket string
}

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if !cfg.Credentials.IsZero() {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Credentials.KeyID,
			cfg.Credentials.Key,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load AWS config for image storage")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewWithAPI(client, cfg.Bucket), nil
}

// NewWithAPI returns a Store over an existing client.
func NewWithAPI(api API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

// Authorize implements ogimage.ObjectStore. Requests are signed individually
// so there is no session to establish.
func (s *Store) Authorize(ctx context.Context) (ogimage.ObjectSession, error) {
	if s.api == nil || s.bucket == "" {
		return nil, ogimage.Errorf(ogimage.EAUTH, "s3 storage is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, ogimage.WrapError(err, ogimage.EAUTH, "s3 authorize")
	}
	return s, nil
}

// Download implements ogimage.ObjectSession.
func (s *Store) Download(ctx context.Context, name string) ([]byte, bool, error) {
	name = cachekey.ObjectName(name)
	result, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		err = pkgerrors.Wrap(err, "failed to get image from S3")
		return nil, false, ogimage.WrapError(err, ogimage.EREMOTE, "download %s failed", name)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		err = pkgerrors.Wrap(err, "failed to read image body from S3")
		return nil, false, ogimage.WrapError(err, ogimage.ETRANSPORT, "download %s failed", name)
	}
	return data, true, nil
}

// Upload implements ogimage.ObjectSession. The SDK retries transient
// failures itself.
func (s *Store) Upload(ctx context.Context, name string, data []byte) error {
	name = cachekey.ObjectName(name)
	sum := md5.Sum(data)

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(ogimage.ContentType),
		ContentLength: aws.Int64(int64(len(data))),
		ContentMD5:    aws.String(base64.StdEncoding.EncodeToString(sum[:])),
	})
	if err != nil {
		err = pkgerrors.Wrap(err, "failed to put image to S3")
		return ogimage.WrapError(err, ogimage.EUPLOAD, "upload %s failed", name)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if pkgerrors.As(err, &nsk) {
		return true
	}
	// Some S3-compatible stores answer with a bare 404.
	var notFound *types.NotFound
	return pkgerrors.As(err, &notFound)
}
