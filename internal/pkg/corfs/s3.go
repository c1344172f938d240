package corfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
)

const objectCacheSize = 1000

// S3FileSystem abstracts AWS S3 as a filesystem.
type S3FileSystem struct {
	s3Client    s3iface.S3API
	uploader    *s3manager.Uploader
	objectCache *lru.Cache
}

// NewS3FileSystem returns an S3FileSystem using client.
func NewS3FileSystem(client s3iface.S3API) *S3FileSystem {
	fs := &S3FileSystem{}
	fs.setClient(client)
	return fs
}

func (s *S3FileSystem) setClient(client s3iface.S3API) {
	s.s3Client = client
	s.uploader = s3manager.NewUploaderWithClient(client)
	s.objectCache, _ = lru.New(objectCacheSize)
}

func parseS3URI(uri string) (*url.URL, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "s3" {
		return nil, fmt.Errorf("invalid s3 uri %q: scheme must be s3", uri)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid s3 uri %q: missing bucket", uri)
	}
	parsed.Path = strings.TrimPrefix(parsed.Path, "/")
	return parsed, nil
}

// globPrefix returns the part of a key pattern before the first glob
// metacharacter, usable as a ListObjects prefix.
func globPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?[\\"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// ListFiles lists files that match pathGlob. A pattern without glob
// characters also matches every object below it.
func (s *S3FileSystem) ListFiles(pathGlob string) ([]FileInfo, error) {
	parsed, err := parseS3URI(pathGlob)
	if err != nil {
		return nil, err
	}
	pattern := parsed.Path
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0)
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(parsed.Host),
		Prefix: aws.String(globPrefix(pattern)),
	}
	err = s.s3Client.ListObjectsV2PagesWithContext(context.Background(), params,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, object := range page.Contents {
				key := aws.StringValue(object.Key)
				if !s3Match(pattern, key) {
					continue
				}
				info := FileInfo{
					Name:    fmt.Sprintf("s3://%s/%s", parsed.Host, key),
					Size:    aws.Int64Value(object.Size),
					ModTime: aws.TimeValue(object.LastModified),
				}
				files = append(files, info)
				s.objectCache.Add(info.Name, info)
			}
			return true
		})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func s3Match(pattern, key string) bool {
	if ok, _ := path.Match(pattern, key); ok {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[\\") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "/")+"/")
	}
	return false
}

// OpenReader opens a reader to the object at filePath, starting at
// startAt bytes into the object.
func (s *S3FileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}

	params := &s3.GetObjectInput{
		Bucket: aws.String(parsed.Host),
		Key:    aws.String(parsed.Path),
	}
	if startAt > 0 {
		params.Range = aws.String(fmt.Sprintf("bytes=%d-", startAt))
	}
	out, err := s.s3Client.GetObjectWithContext(context.Background(), params)
	if err != nil {
		return nil, translateS3Error("open", filePath, err)
	}
	return out.Body, nil
}

// ReadFile reads the object at filePath skipping startAt bytes at the
// beginning.
func (s *S3FileSystem) ReadFile(filePath string, startAt int64) ([]byte, error) {
	reader, err := s.OpenReader(filePath, startAt)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

type s3Writer struct {
	pipe *io.PipeWriter
	done chan error
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.pipe.Write(p)
}

func (w *s3Writer) Close() error {
	if err := w.pipe.Close(); err != nil {
		return err
	}
	return <-w.done
}

// OpenWriter opens a streaming writer to the object at filePath. The upload
// completes when the writer is closed.
func (s *S3FileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}

	reader, writer := io.Pipe()
	w := &s3Writer{pipe: writer, done: make(chan error, 1)}
	go func() {
		_, err := s.uploader.Upload(&s3manager.UploadInput{
			Bucket: aws.String(parsed.Host),
			Key:    aws.String(parsed.Path),
			Body:   reader,
		})
		reader.CloseWithError(err)
		w.done <- err
	}()
	s.objectCache.Remove(filePath)
	return w, nil
}

// WriteFile uploads data to the object at filePath.
func (s *S3FileSystem) WriteFile(filePath string, data []byte) error {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return err
	}
	_, err = s.s3Client.PutObjectWithContext(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(parsed.Host),
		Key:    aws.String(parsed.Path),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return err
	}
	s.objectCache.Remove(filePath)
	return nil
}

// Stat returns information about the object at filePath.
func (s *S3FileSystem) Stat(filePath string) (FileInfo, error) {
	if cached, ok := s.objectCache.Get(filePath); ok {
		return cached.(FileInfo), nil
	}

	parsed, err := parseS3URI(filePath)
	if err != nil {
		return FileInfo{}, err
	}
	out, err := s.s3Client.HeadObjectWithContext(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(parsed.Host),
		Key:    aws.String(parsed.Path),
	})
	if err != nil {
		return FileInfo{}, translateS3Error("stat", filePath, err)
	}

	info := FileInfo{
		Name:    filePath,
		Size:    aws.Int64Value(out.ContentLength),
		ModTime: aws.TimeValue(out.LastModified),
	}
	s.objectCache.Add(filePath, info)
	return info, nil
}

// Delete deletes the object at filePath.
func (s *S3FileSystem) Delete(filePath string) error {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return err
	}
	s.objectCache.Remove(filePath)
	_, err = s.s3Client.DeleteObjectWithContext(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(parsed.Host),
		Key:    aws.String(parsed.Path),
	})
	return err
}

// Join joins file path elements
func (s *S3FileSystem) Join(elem ...string) string {
	stripped := make([]string, 0, len(elem))
	for i, e := range elem {
		if i > 0 {
			e = strings.TrimPrefix(e, "/")
		}
		if i < len(elem)-1 {
			e = strings.TrimSuffix(e, "/")
		}
		if e != "" {
			stripped = append(stripped, e)
		}
	}
	return strings.Join(stripped, "/")
}

// Init initializes the filesystem with the default AWS session.
func (s *S3FileSystem) Init() error {
	if s.s3Client != nil {
		return nil
	}
	sess, err := session.NewSession()
	if err != nil {
		log.Errorf("Failed to create AWS session: %s", err)
		return err
	}
	s.setClient(s3.New(sess))
	return nil
}

func translateS3Error(op, filePath string, err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return &os.PathError{Op: op, Path: filePath, Err: os.ErrNotExist}
		}
	}
	return err
}
