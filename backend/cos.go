package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	cos "github.com/tencentyun/cos-go-sdk-v5"
)

// COSUploader stores audio blobs in a Tencent COS bucket instead of
// Supabase Storage.
type COSUploader struct {
	client *cos.Client
}

var _ Uploader = (*COSUploader)(nil)

func NewCOSUploader(bucketURL, secretID, secretKey string) (*COSUploader, error) {
	u, err := url.Parse(strings.TrimSpace(bucketURL))
	if err != nil {
		return nil, fmt.Errorf("cos bucket url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("cos bucket url: %q is not absolute", bucketURL)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  strings.TrimSpace(secretID),
			SecretKey: strings.TrimSpace(secretKey),
		},
	})
	return &COSUploader{client: client}, nil
}

func (c *COSUploader) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType: contentType,
		},
	}
	if _, err := c.client.Object.Put(ctx, path, bytes.NewReader(data), opt); err != nil {
		var cosErr *cos.ErrorResponse
		if errors.As(err, &cosErr) && cosErr.Response != nil {
			return &RemoteError{Op: "upload", Status: cosErr.Response.StatusCode, Body: cosErr.Message}
		}
		return fmt.Errorf("backend upload: %w", err)
	}
	return nil
}
