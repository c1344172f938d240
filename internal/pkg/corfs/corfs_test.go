package corfs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sizes(files []FileInfo) map[string]int64 {
	out := make(map[string]int64, len(files))
	for _, f := range files {
		out[f.Name] = f.Size
	}
	return out
}

func TestInferFilesystemType(t *testing.T) {
	assert.Equal(t, S3, InferFilesystemType("s3://bucket/trips/*"))
	assert.Equal(t, Memory, InferFilesystemType("mem://trips"))
	assert.Equal(t, Local, InferFilesystemType("./trips"))
	assert.Equal(t, "s3", S3.String())
}

func TestLocalFileSystem(t *testing.T) {
	dir := t.TempDir()
	fs := &LocalFileSystem{}

	path := fs.Join(dir, "nested", "a.txt")
	require.NoError(t, fs.WriteFile(path, []byte("hello world")))

	w, err := fs.OpenWriter(fs.Join(dir, "nested", "b.txt"))
	require.NoError(t, err)
	_, err = w.Write([]byte("bye"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	files, err := fs.ListFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = fs.ListFiles(filepath.Join(dir, "nested", "a*"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, path, files[0].Name)
	assert.Equal(t, int64(11), files[0].Size)
	assert.False(t, files[0].ModTime.IsZero())

	data, err := fs.ReadFile(path, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	info, err := fs.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size)

	require.NoError(t, fs.Delete(path))
	_, err = fs.ReadFile(path, 0)
	assert.True(t, os.IsNotExist(err))
}

func TestMemFileSystem(t *testing.T) {
	fs := NewMemFileSystem()

	require.NoError(t, fs.WriteFile("mem://out/map-bin0-1.out", []byte("abc")))
	w, err := fs.OpenWriter(fs.Join("mem://out", "map-bin0-2.out"))
	require.NoError(t, err)
	_, err = w.Write([]byte("defgh"))
	require.NoError(t, err)

	// not visible until closed
	_, err = fs.Stat("mem://out/map-bin0-2.out")
	assert.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, w.Close())

	require.NoError(t, fs.WriteFile("mem://out/map-bin1-1.out", []byte("x")))

	files, err := fs.ListFiles("mem://out/map-bin0-*")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"mem://out/map-bin0-1.out": 3,
		"mem://out/map-bin0-2.out": 5,
	}, sizes(files))

	info, err := fs.Stat("mem://out/map-bin0-1.out")
	require.NoError(t, err)
	assert.False(t, info.ModTime.IsZero())

	files, err = fs.ListFiles("mem://out")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	data, err := fs.ReadFile("mem://out/map-bin0-2.out", 3)
	require.NoError(t, err)
	assert.Equal(t, "gh", string(data))

	require.NoError(t, fs.Delete("mem://out/map-bin1-1.out"))
	_, err = fs.OpenReader("mem://out/map-bin1-1.out", 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, fs.Delete("mem://missing"), os.ErrNotExist)

	assert.Equal(t, "mem://out/part-0", fs.Join("mem://out/", "part-0"))
	assert.Equal(t, "out/part-0", fs.Join("out", "part-0"))
}

var s3ModTime = time.Date(2016, time.February, 1, 0, 0, 0, 0, time.UTC)

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	heads   int
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, input *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	page := &s3.ListObjectsV2Output{}
	for key, data := range f.objects {
		if strings.HasPrefix(key, aws.StringValue(input.Prefix)) {
			page.Contents = append(page.Contents, &s3.Object{
				Key:  aws.String(key),
				Size: aws.Int64(int64(len(data))),
			})
		}
	}
	fn(page, true)
	return nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(input.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	if input.Range != nil {
		start, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(*input.Range, "bytes="), "-"))
		if err != nil {
			return nil, err
		}
		data = data[start:]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(input.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObjectWithContext(ctx aws.Context, input *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error) {
	f.heads++
	data, ok := f.objects[aws.StringValue(input.Key)]
	if !ok {
		return nil, awserr.New("NotFound", "not found", nil)
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(s3ModTime),
	}, nil
}

func (f *fakeS3) DeleteObjectWithContext(ctx aws.Context, input *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.StringValue(input.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3FileSystem(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{
		"trips/2016-01/a.json": []byte(`{"PULocationID":4}`),
		"trips/2016-01/b.json": []byte(`{"PULocationID":7}`),
		"trips/2016-02/c.json": []byte(`{}`),
		"zones.csv":            []byte("LocationID,Borough,Zone\n"),
	}}
	fs := NewS3FileSystem(client)

	files, err := fs.ListFiles("s3://bucket/trips/2016-01/*.json")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = fs.ListFiles("s3://bucket/trips")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	data, err := fs.ReadFile("s3://bucket/zones.csv", 11)
	require.NoError(t, err)
	assert.Equal(t, "Borough,Zone\n", string(data))

	_, err = fs.ReadFile("s3://bucket/missing.csv", 0)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, fs.WriteFile("s3://bucket/out/output-part-0", []byte("Jamaica (Queens)\t2\n")))
	assert.Equal(t, "Jamaica (Queens)\t2\n", string(client.objects["out/output-part-0"]))

	info, err := fs.Stat("s3://bucket/zones.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(24), info.Size)
	assert.Equal(t, s3ModTime, info.ModTime)
	_, err = fs.Stat("s3://bucket/zones.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, client.heads, "second stat is served from the cache")

	_, err = fs.Stat("s3://bucket/nope")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, fs.Delete("s3://bucket/zones.csv"))
	_, ok := client.objects["zones.csv"]
	assert.False(t, ok)

	assert.Equal(t, "s3://bucket/out/part-0", fs.Join("s3://bucket/out/", "part-0"))

	_, err = fs.ListFiles("/local/path")
	assert.Error(t, err)
}
