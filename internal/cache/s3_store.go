package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

const s3MarkerObject = ".store"

// S3Options 描述 S3 兼容对象存储的连接参数。
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// NewS3Client 使用静态凭证构建 path-style 客户端，兼容 MinIO/R2 等实现。
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// NewS3Storage 以 bucket 中的前缀目录模拟 Store：
//
//	<prefix><escaped name>/.store          # 存在标记
//	<prefix><escaped name>/<sha1(key)>     # gob 编码条目
//
// Keys 只承认带 .store 标记的前缀，bucket 中的其他数据不会被当作 Store 删除。
func NewS3Storage(client *s3.Client, bucket, prefix string) (Storage, error) {
	if client == nil {
		return nil, errors.New("s3 client required")
	}
	if bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &s3Storage{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
		marks:    newStoreMarks(markerTTL),
	}, nil
}

type s3Storage struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
	marks    *storeMarks
}

type s3Store struct {
	storage *s3Storage
	name    string
}

func (s *s3Storage) storePrefix(name string) string {
	return s.prefix + url.PathEscape(name) + "/"
}

func (s *s3Storage) Open(ctx context.Context, name string) (Store, error) {
	if name == "" {
		return nil, errors.New("cache name required")
	}
	if err := s.ensureMarker(ctx, name); err != nil {
		return nil, err
	}
	return &s3Store{storage: s, name: name}, nil
}

func (s *s3Storage) markerKey(name string) string {
	return s.storePrefix(name) + s3MarkerObject
}

// ensureMarker 写入存在标记；近期写过的 Store 直接跳过，缓存命中不产生 PutObject。
func (s *s3Storage) ensureMarker(ctx context.Context, name string) error {
	if s.marks.fresh(name) {
		return nil
	}
	if err := s.put(ctx, s.markerKey(name), nil); err != nil {
		return err
	}
	s.marks.mark(name)
	return nil
}

func (s *s3Storage) hasMarker(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.markerKey(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *s3Storage) Keys(ctx context.Context) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, cp := range page.CommonPrefixes {
			raw := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			name, err := url.PathUnescape(raw)
			if err != nil || name == "" {
				continue
			}
			ok, err := s.hasMarker(ctx, name)
			if err != nil {
				return nil, err
			}
			if ok {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *s3Storage) Delete(ctx context.Context, name string) (bool, error) {
	defer s.marks.forget(name)
	ok, err := s.hasMarker(ctx, name)
	if err != nil || !ok {
		return false, err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.storePrefix(name)),
	})

	found := false
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return found, err
		}
		if len(page.Contents) == 0 {
			continue
		}
		found = true
		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		if _, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids},
		}); err != nil {
			return found, err
		}
	}
	return found, nil
}

func (s *s3Storage) Close() error { return nil }

func (s *s3Storage) put(ctx context.Context, key string, body []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/octet-stream"),
	})
	return err
}

func (o *s3Store) Name() string { return o.name }

func (o *s3Store) Match(ctx context.Context, key string) (*fetch.Response, error) {
	out, err := o.storage.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.storage.bucket),
		Key:    aws.String(o.storage.storePrefix(o.name) + hashKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return decodeRecord(raw)
}

func (o *s3Store) Put(ctx context.Context, key string, resp *fetch.Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	payload, err := encodeRecord(key, resp)
	if err != nil {
		return err
	}
	if err := o.storage.ensureMarker(ctx, o.name); err != nil {
		return err
	}
	return o.storage.put(ctx, o.storage.storePrefix(o.name)+hashKey(key), payload)
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
