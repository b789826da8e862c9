package fileops

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tieredcache/worker/pkg/blockstore"
	awsutil "github.com/tieredcache/worker/pkg/cloud/aws"
)

// S3 is a FileOps backed by an S3-compatible object store, used for a
// cold/archival bottom tier. Object stores have no native rename, so
// Rename is approximated with a server-side copy followed by a
// delete of the source key; this is a known, documented deviation
// from the atomic rename the local filesystem can provide.
type S3 struct {
	client awsutil.S3Client
	bucket string
}

// NewS3 constructs an S3-backed FileOps against bucket, using client
// for all object operations.
func NewS3(client awsutil.S3Client, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func key(path string) string {
	return strings.TrimPrefix(path, "/")
}

func (b *S3) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: awssdk.String(b.bucket),
		Key:    awssdk.String(key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mapS3Err(err, path)
	}
	return true, nil
}

func (b *S3) Delete(ctx context.Context, path string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: awssdk.String(b.bucket),
		Key:    awssdk.String(key(path)),
	})
	if err != nil {
		return mapS3Err(err, path)
	}
	return nil
}

func (b *S3) Rename(ctx context.Context, oldPath, newPath string) error {
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     awssdk.String(b.bucket),
		Key:        awssdk.String(key(newPath)),
		CopySource: awssdk.String(b.bucket + "/" + key(oldPath)),
	})
	if err != nil {
		return mapS3Err(err, oldPath)
	}
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: awssdk.String(b.bucket),
		Key:    awssdk.String(key(oldPath)),
	}); err != nil {
		return mapS3Err(err, oldPath)
	}
	return nil
}

func (b *S3) Size(ctx context.Context, path string) (uint64, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: awssdk.String(b.bucket),
		Key:    awssdk.String(key(path)),
	})
	if err != nil {
		return 0, mapS3Err(err, path)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return uint64(*out.ContentLength), nil
}

// bufferedWriter accumulates bytes in memory and performs a single
// PutObject on Close, since S3 objects cannot be appended to
// incrementally the way local files can.
type bufferedWriter struct {
	client awsutil.S3Client
	bucket string
	key    string
	ctx    context.Context
	buf    bytes.Buffer
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *bufferedWriter) Close() error {
	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: awssdk.String(w.bucket),
		Key:    awssdk.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return mapS3Err(err, w.key)
	}
	return nil
}

func (b *S3) CreateWriter(ctx context.Context, path string) (io.WriteCloser, error) {
	return &bufferedWriter{client: b.client, bucket: b.bucket, key: key(path), ctx: ctx}, nil
}

func (b *S3) ListDir(ctx context.Context, path string) ([]string, error) {
	prefix := key(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    awssdk.String(b.bucket),
		Prefix:    awssdk.String(prefix),
		Delimiter: awssdk.String("/"),
	})
	if err != nil {
		return nil, mapS3Err(err, path)
	}
	names := make([]string, 0, len(out.Contents)+len(out.CommonPrefixes))
	for _, obj := range out.Contents {
		names = append(names, strings.TrimPrefix(awssdk.ToString(obj.Key), prefix))
	}
	for _, cp := range out.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(awssdk.ToString(cp.Prefix), prefix), "/")
		names = append(names, name)
	}
	return names, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey"
	}
	return false
}

func mapS3Err(err error, path string) error {
	if isNotFound(err) {
		return status.Errorf(codes.NotFound, "%s: %s", path, err)
	}
	return status.Errorf(codes.Internal, "%s: %s", path, err)
}

var _ blockstore.FileOps = (*S3)(nil)
