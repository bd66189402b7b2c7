package remote

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"codrive/models"
)

// S3Config configures the bucket-backed Storage implementation.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint string
}

// S3Client implements Storage over an S3 bucket. Remote ids are object
// keys; a folder is a zero-byte marker object whose key ends in "/".
// S3 exposes no deletion feed, so FetchChanges reports creations and
// updates only.
type S3Client struct {
	svc    *s3.S3
	bucket string
}

func NewS3Client(cfg S3Config) (*S3Client, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}
	return &S3Client{svc: s3.New(sess), bucket: cfg.Bucket}, nil
}

func (c *S3Client) wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	code := "unknown"
	transient := false
	if aerr, ok := err.(awserr.Error); ok {
		code = aerr.Code()
		switch code {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket:
			transient = false
		case "RequestTimeout", "SlowDown", "InternalError", "ServiceUnavailable":
			transient = true
		}
	}
	return &models.RemoteError{Op: op, Code: code, Transient: transient, Err: err}
}

func folderKey(name, parentID string) string {
	if parentID == "" {
		return name + "/"
	}
	return parentID + name + "/"
}

func itemFromKey(key string, size int64) Item {
	folder := strings.HasSuffix(key, "/")
	trimmed := strings.TrimSuffix(key, "/")
	parent := ""
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		parent = trimmed[:idx+1]
	}
	return Item{
		ID:       key,
		Name:     path.Base(trimmed),
		Folder:   folder,
		Size:     size,
		ParentID: parent,
	}
}

func (c *S3Client) CreateFolder(ctx context.Context, name, parentID string) (*Item, error) {
	key := folderKey(name, parentID)

	// marker already present means a retried create
	_, err := c.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		item := itemFromKey(key, 0)
		return &item, nil
	}

	_, err = c.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return nil, c.wrapErr("create_folder", err)
	}
	item := itemFromKey(key, 0)
	return &item, nil
}

func (c *S3Client) UploadContent(ctx context.Context, name string, content io.Reader, parentID string) (*Item, error) {
	key := parentID + name

	// PutObject needs a seekable body
	data, err := ioutil.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload body: %v", err)
	}

	_, err = c.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(string(data)),
	})
	if err != nil {
		return nil, c.wrapErr("upload", err)
	}
	item := itemFromKey(key, int64(len(data)))
	return &item, nil
}

// copyPrefix copies every object under src to the same suffix under dst.
func (c *S3Client) copyPrefix(ctx context.Context, src, dst string) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(src),
	}
	var copyErr error
	err := c.svc.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			newKey := dst + strings.TrimPrefix(*obj.Key, src)
			_, copyErr = c.svc.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
				Bucket:     aws.String(c.bucket),
				CopySource: aws.String(c.bucket + "/" + *obj.Key),
				Key:        aws.String(newKey),
			})
			if copyErr != nil {
				return false
			}
			_, copyErr = c.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(c.bucket),
				Key:    obj.Key,
			})
			if copyErr != nil {
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	return copyErr
}

func (c *S3Client) Rename(ctx context.Context, remoteID, newName string) (*Item, error) {
	trimmed := strings.TrimSuffix(remoteID, "/")
	parent := ""
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		parent = trimmed[:idx+1]
	}
	newKey := parent + newName
	if strings.HasSuffix(remoteID, "/") {
		newKey += "/"
	}

	if err := c.copyPrefix(ctx, remoteID, newKey); err != nil {
		return nil, c.wrapErr("rename", err)
	}
	item := itemFromKey(newKey, 0)
	return &item, nil
}

func (c *S3Client) Move(ctx context.Context, remoteID, newParentID string) (*Item, error) {
	trimmed := strings.TrimSuffix(remoteID, "/")
	name := path.Base(trimmed)
	newKey := newParentID + name
	if strings.HasSuffix(remoteID, "/") {
		newKey += "/"
	}

	if err := c.copyPrefix(ctx, remoteID, newKey); err != nil {
		return nil, c.wrapErr("move", err)
	}
	item := itemFromKey(newKey, 0)
	return &item, nil
}

func (c *S3Client) Delete(ctx context.Context, remoteID string) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(remoteID),
	}
	var delErr error
	err := c.svc.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			_, delErr = c.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(c.bucket),
				Key:    obj.Key,
			})
			if delErr != nil {
				return false
			}
		}
		return true
	})
	if err != nil {
		return c.wrapErr("delete", err)
	}
	if delErr != nil {
		return c.wrapErr("delete", delErr)
	}
	return nil
}

func (c *S3Client) GetDownloadURL(ctx context.Context, remoteID string) (string, error) {
	req, _ := c.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(remoteID),
	})
	signedURL, err := req.Presign(15 * time.Minute)
	if err != nil {
		return "", c.wrapErr("get_download_url", err)
	}
	return signedURL, nil
}

// FetchChanges lists the bucket page by page. The cursor is the S3
// continuation token; the feed never reports deletions.
func (c *S3Client) FetchChanges(ctx context.Context, cursor string) (*ChangePage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}

	out, err := c.svc.ListObjectsV2WithContext(ctx, input)
	if err != nil {
		return nil, c.wrapErr("fetch_changes", err)
	}

	page := &ChangePage{}
	for _, obj := range out.Contents {
		size := int64(0)
		if obj.Size != nil {
			size = *obj.Size
		}
		page.Items = append(page.Items, itemFromKey(aws.StringValue(obj.Key), size))
	}
	if out.NextContinuationToken != nil {
		page.NextCursor = *out.NextContinuationToken
	}
	return page, nil
}

// GetQuota reports usage only; buckets carry no fixed capacity.
func (c *S3Client) GetQuota(ctx context.Context) (*Quota, error) {
	var used int64
	input := &s3.ListObjectsV2Input{Bucket: aws.String(c.bucket)}
	err := c.svc.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			if obj.Size != nil {
				used += *obj.Size
			}
		}
		return true
	})
	if err != nil {
		return nil, c.wrapErr("get_quota", err)
	}
	return &Quota{Used: used, State: "normal"}, nil
}
