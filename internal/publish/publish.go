package publish

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"path/filepath"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Publisher uploads the output of a run to an S3 compatible bucket
type Publisher struct {
	client *miniogo.Client
	bucket string
}

func New(cfg Config) (*Publisher, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Publisher{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (p *Publisher) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", p.bucket, err)
		}
	}
	return nil
}

// PublishDir uploads every regular file under dir. Object keys are the file
// paths relative to dir, below prefix. It returns the uploaded keys.
func (p *Publisher) PublishDir(ctx context.Context, dir, prefix string) ([]string, error) {
	objects, err := ObjectKeys(dir, prefix)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return keys, err
		}
		_, err := p.client.FPutObject(ctx, p.bucket, obj.Key, obj.Path, miniogo.PutObjectOptions{
			ContentType: contentType(obj.Path),
		})
		if err != nil {
			return keys, fmt.Errorf("upload %s: %w", obj.Key, err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Object pairs a local file with the key it is stored under
type Object struct {
	Path string
	Key  string
}

// ObjectKeys lists the regular files under dir in lexical order together with
// their object keys
func ObjectKeys(dir, prefix string) ([]Object, error) {
	var objects []Object
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			Path: p,
			Key:  path.Join(strings.Trim(prefix, "/"), filepath.ToSlash(rel)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return objects, nil
}

func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
