package qtcross

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BucketClient wraps the S3 client for an artifact bucket (AWS S3 or Cloudflare R2).
type BucketClient struct {
	Client     *s3.Client
	BucketName string
}

// NewBucketClient initializes a bucket client from QTCROSS_BUCKET_* values.
// An R2 account id is turned into the account's R2 endpoint.
func NewBucketClient(ctx context.Context, cfg *Config) (*BucketClient, error) {
	endpoint := cfg.Values["QTCROSS_BUCKET_ENDPOINT"]
	accountID := cfg.Values["QTCROSS_BUCKET_ACCOUNT_ID"]
	accessKey := cfg.Values["QTCROSS_BUCKET_ACCESS_KEY"]
	secretKey := cfg.Values["QTCROSS_BUCKET_SECRET_KEY"]
	bucketName := cfg.Values["QTCROSS_BUCKET_NAME"]
	region := cfg.Values["QTCROSS_BUCKET_REGION"]

	if endpoint == "" && accountID != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}
	if region == "" {
		region = "auto"
	}
	if accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("bucket credentials missing in configuration (QTCROSS_BUCKET_ACCESS_KEY, QTCROSS_BUCKET_SECRET_KEY, QTCROSS_BUCKET_NAME)")
	}

	options := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion(region),
	}
	if Debug {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load bucket config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &BucketClient{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

// contentTypeFor picks the object content type from the key's extension.
func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".zip"):
		return "application/zip"
	case strings.HasSuffix(key, ".tar.gz"):
		return "application/gzip"
	case strings.HasSuffix(key, ".tar.zst"):
		return "application/zstd"
	case strings.HasSuffix(key, ChecksumSuffix):
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// UploadLocalFile uploads a file from disk.
func (b *BucketClient) UploadLocalFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentTypeFor(key)),
	})
	return err
}

// ObjectExists reports whether key is already present in the bucket.
func (b *BucketClient) ObjectExists(ctx context.Context, key string) (bool, error) {
	out, err := b.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.BucketName),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) == key {
			return true, nil
		}
	}
	return false, nil
}
