// Package objstore implements the Swift-like object store protocol the
// tile pipeline uploads through: token auth, bucket provisioning with a
// public-read ACL, and parallel per-file uploads.
package objstore

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
)

// DefaultTilePattern matches the z/x/y.png layout the cutter produces,
// relative to the batch output directory.
const DefaultTilePattern = "*/*/*.png"

// Config holds the client's credentials and endpoints.
type Config struct {
	// AuthURL is the token endpoint.
	AuthURL string

	// User and Key are the static credentials sent as X-Auth-User and
	// X-Auth-Key.
	User string
	Key  string

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration
}

// Session carries the storage URL and token returned by authentication.
type Session struct {
	StorageURL string
	Token      string
}

// UploadReport summarizes one batch upload.
type UploadReport struct {
	Uploaded int
	Failed   int
}

// Client talks to the object store. All uploads for one batch are issued
// concurrently without an internal cap; the orchestrator bounds total
// concurrent batches through the job queue's concurrency.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// New creates an object store client.
func New(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: slog.Default(),
	}
}

// Authenticate requests a token from the auth endpoint. The response
// carries the storage URL and token in headers; anything but 204 is
// treated as bad credentials and is not retryable.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.AuthURL, nil)
	if err != nil {
		return nil, fmt.Errorf("objstore: build auth request: %w", err)
	}
	req.Header.Set("X-Auth-User", c.config.User)
	req.Header.Set("X-Auth-Key", c.config.Key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("objstore: auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return nil, core.NoRetry(fmt.Errorf(
			"objstore: auth returned %d, likely wrong key", resp.StatusCode))
	}

	sess := &Session{
		StorageURL: resp.Header.Get("X-Storage-Url"),
		Token:      resp.Header.Get("X-Auth-Token"),
	}
	if sess.StorageURL == "" || sess.Token == "" {
		return nil, core.NoRetry(fmt.Errorf("objstore: auth response missing storage url or token"))
	}
	return sess, nil
}

// EnsureBucket provisions the bucket and grants public-read /
// service-write access. 201 is a fresh bucket and 202 an existing one;
// both are success and both (re-)apply the ACL, so a batch retried
// after a partial upload reuses the bucket instead of failing on it.
// 401 and 404 mean the credentials are not authorized for the path or
// the path changed; that is not retryable by this client, the caller
// decides. Any other status is a generic, retryable failure.
func (c *Client) EnsureBucket(ctx context.Context, sess *Session, bucket string) error {
	bucketURL := sess.StorageURL + "/" + bucket

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, bucketURL, nil)
	if err != nil {
		return fmt.Errorf("objstore: build bucket request: %w", err)
	}
	req.Header.Set("X-Auth-Token", sess.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("objstore: bucket request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusAccepted:
		return c.setACL(ctx, sess, bucketURL)
	case http.StatusUnauthorized, http.StatusNotFound:
		return core.NoRetry(fmt.Errorf(
			"objstore: bucket %s returned %d, not authorized or path changed", bucket, resp.StatusCode))
	default:
		return fmt.Errorf("objstore: bucket %s returned %d", bucket, resp.StatusCode)
	}
}

// setACL follows a bucket creation with the ACL grant. 202 is the
// expected acknowledgement.
func (c *Client) setACL(ctx context.Context, sess *Session, bucketURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bucketURL, nil)
	if err != nil {
		return fmt.Errorf("objstore: build acl request: %w", err)
	}
	req.Header.Set("X-Auth-Token", sess.Token)
	req.Header.Set("X-Container-Read", ".r:*")
	req.Header.Set("X-Container-Write", c.config.User)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("objstore: acl request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("objstore: acl on %s returned %d", bucketURL, resp.StatusCode)
	}
	return nil
}

// UploadDir globs dir for pattern and PUTs every match concurrently
// under the bucket, preserving the path relative to dir as the object
// name. A single file's failure is logged and does not abort its
// siblings; the report resolves once every file has a response. The
// orchestrator's retry of the whole batch is the correctness mechanism,
// not per-file retry.
func (c *Client) UploadDir(ctx context.Context, sess *Session, bucket, dir, pattern string) (UploadReport, error) {
	if pattern == "" {
		pattern = DefaultTilePattern
	}
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return UploadReport{}, fmt.Errorf("objstore: glob %s: %w", pattern, err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		report UploadReport
	)

	for _, file := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()

			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				rel = filepath.Base(path)
			}
			objectName := filepath.ToSlash(rel)

			uploadErr := c.uploadFile(ctx, sess, bucket, objectName, path)

			mu.Lock()
			defer mu.Unlock()
			if uploadErr != nil {
				report.Failed++
				c.logger.Error("tile upload failed", "bucket", bucket, "object", objectName, "error", uploadErr)
			} else {
				report.Uploaded++
			}
		}(file)
	}

	wg.Wait()
	return report, nil
}

func (c *Client) uploadFile(ctx context.Context, sess *Session, bucket, objectName, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	url := sess.StorageURL + "/" + bucket + "/" + objectName
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()
	req.Header.Set("X-Auth-Token", sess.Token)
	req.Header.Set("Content-Type", contentTypeFor(path))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
