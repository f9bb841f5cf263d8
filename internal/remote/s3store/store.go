// Package s3store is the RemoteStorage variant for S3 compatible object
// storage (AWS S3, MinIO).
//
// The account tree lives under a key prefix. A folder is a zero length marker
// object whose key ends with "/", and its id is that key; a file id is its
// object key. Versions are LastModified stamps in nanoseconds and Changes
// answers with a full listing.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
)

const DefaultPrefix = "storagecrypt/"

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// API is the part of *s3.Client the store uses.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
	// Quota is reported as the account total; zero means unknown.
	Quota int64
}

type Store struct {
	api    API
	bucket string
	prefix string
	quota  int64
}

// New builds a client from opts. Static credentials are used when an access
// key is given, otherwise the default AWS credential chain applies.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", common.ErrInvalidConfiguration)
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", common.ErrInvalidConfiguration, err)
	}

	api := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(api, opts.Bucket, opts.Prefix, opts.Quota), nil
}

func NewWithAPI(api API, bucket, prefix string, quota int64) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{api: api, bucket: bucket, prefix: prefix, quota: quota}
}

func remoteErr(op, id string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", common.ErrRemote, op, id, err)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nk)
}

func isFolderKey(key string) bool {
	return strings.HasSuffix(key, "/")
}

// parentOf returns the folder key that contains key.
func parentOf(key string) string {
	k := strings.TrimSuffix(key, "/")
	i := strings.LastIndex(k, "/")
	if i < 0 {
		return ""
	}
	return k[:i+1]
}

func nameOf(key string) string {
	k := strings.TrimSuffix(key, "/")
	return k[strings.LastIndex(k, "/")+1:]
}

func (s *Store) document(account, key string, size int64, modified *int64) *remote.Document {
	d := &remote.Document{
		ID:          key,
		Name:        nameOf(key),
		ParentID:    parentOf(key),
		Folder:      isFolderKey(key),
		AccountName: account,
	}
	if key == s.prefix {
		d.ParentID = ""
	}
	if !d.Folder {
		d.Size = size
	}
	if modified != nil {
		d.Version = *modified
	}
	return d
}

func (s *Store) head(ctx context.Context, account, key string) (*remote.Document, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, remoteErr("head", key, err)
	}
	var version *int64
	if out.LastModified != nil {
		v := out.LastModified.UnixNano()
		version = &v
	}
	return s.document(account, key, aws.ToInt64(out.ContentLength), version), nil
}

func (s *Store) put(ctx context.Context, account, key string, r io.Reader, size int64) (*remote.Document, error) {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return nil, remoteErr("put", key, err)
	}
	d, err := s.head(ctx, account, key)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, remoteErr("put", key, errors.New("object missing after upload"))
	}
	return d, nil
}

// Root checks that the bucket is reachable and creates the prefix marker.
func (s *Store) Root(ctx context.Context, account string) (*remote.Document, error) {
	if _, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return nil, remoteErr("head bucket", s.bucket, err)
	}
	d, err := s.head(ctx, account, s.prefix)
	if err != nil || d != nil {
		return d, err
	}
	return s.put(ctx, account, s.prefix, strings.NewReader(""), 0)
}

func (s *Store) list(ctx context.Context, prefix string, fn func(types.Object) error) error {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if err := fn(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) Changes(ctx context.Context, account, since string, progress remote.ProgressAdapter) (*remote.Changes, error) {
	if progress == nil {
		progress = remote.NopProgress()
	}

	changes := remote.NewChanges()
	var newest, seen int64

	err := s.list(ctx, s.prefix, func(obj types.Object) error {
		if progress.IsCanceled() {
			return common.ErrCanceled
		}
		key := aws.ToString(obj.Key)
		if key == s.prefix {
			return nil
		}

		var version *int64
		if obj.LastModified != nil {
			v := obj.LastModified.UnixNano()
			version = &v
			newest = max(newest, v)
		}
		d := s.document(account, key, aws.ToInt64(obj.Size), version)
		if d.Folder {
			changes.AddFolder(remote.NewChange(d))
		} else {
			changes.Add(remote.NewChange(d))
		}
		seen++
		progress.SetProgress(seen)
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrCanceled) {
			return nil, err
		}
		return nil, remoteErr("list", s.prefix, err)
	}

	progress.SetMax(seen)
	changes.LastChangeID = strconv.FormatInt(newest, 10)
	return changes, nil
}

func (s *Store) Folder(ctx context.Context, account, folderID string) (*remote.Document, error) {
	if !isFolderKey(folderID) {
		return nil, nil
	}
	return s.head(ctx, account, folderID)
}

func (s *Store) CreateFolder(ctx context.Context, account, parentID, name string) (*remote.Document, error) {
	return s.put(ctx, account, parentID+name+"/", strings.NewReader(""), 0)
}

func (s *Store) Upload(ctx context.Context, account, parentID, name string, r io.Reader, size int64) (*remote.Document, error) {
	if !isFolderKey(parentID) {
		return nil, remoteErr("upload", parentID, common.ErrTypeConflict)
	}
	return s.put(ctx, account, parentID+name, r, size)
}

func (s *Store) Update(ctx context.Context, account, entryID string, r io.Reader, size int64) (*remote.Document, error) {
	if isFolderKey(entryID) {
		return nil, remoteErr("update", entryID, common.ErrTypeConflict)
	}
	return s.put(ctx, account, entryID, r, size)
}

func (s *Store) Download(ctx context.Context, account, entryID string, w io.Writer) (*remote.Document, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(entryID)})
	if err != nil {
		return nil, remoteErr("get", entryID, err)
	}
	defer out.Body.Close()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return nil, remoteErr("get", entryID, err)
	}

	var version *int64
	if out.LastModified != nil {
		v := out.LastModified.UnixNano()
		version = &v
	}
	return s.document(account, entryID, n, version), nil
}

func (s *Store) Delete(ctx context.Context, account, entryID string) error {
	if entryID == "" || entryID == s.prefix {
		return remoteErr("delete", entryID, common.ErrInvalidConfiguration)
	}

	keys := []string{entryID}
	if isFolderKey(entryID) {
		keys = keys[:0]
		err := s.list(ctx, entryID, func(obj types.Object) error {
			keys = append(keys, aws.ToString(obj.Key))
			return nil
		})
		if err != nil {
			return remoteErr("list", entryID, err)
		}
	}

	for _, key := range keys {
		_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
		if err != nil && !isNotFound(err) {
			return remoteErr("delete", key, err)
		}
	}
	return nil
}

func (s *Store) Quota(ctx context.Context, account string) (models.Quota, error) {
	var used int64
	err := s.list(ctx, s.prefix, func(obj types.Object) error {
		used += aws.ToInt64(obj.Size)
		return nil
	})
	if err != nil {
		return models.Quota{}, remoteErr("quota", s.prefix, err)
	}
	return models.Quota{Total: s.quota, Used: used}, nil
}
