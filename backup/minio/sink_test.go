package minio

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucket, key, r, size, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *mockClient) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucket, key, opts).Error(0)
}

func (m *mockClient) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return m.Called(ctx, bucket, opts).Get(0).(<-chan minio.ObjectInfo)
}

func objects(infos ...minio.ObjectInfo) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(infos))
	for _, info := range infos {
		ch <- info
	}
	close(ch)
	return ch
}

func TestSink_Put(t *testing.T) {
	client := &mockClient{}

	var uploaded string
	client.On("PutObject", mock.Anything, "bucket", "linkdb/db.zip", mock.Anything, int64(-1), mock.Anything).
		Run(func(args mock.Arguments) {
			data, _ := io.ReadAll(args.Get(3).(io.Reader))
			uploaded = string(data)
		}).
		Return(minio.UploadInfo{}, nil).Once()

	sink := NewSink(client, "bucket", "linkdb/")
	require.NoError(t, sink.Put(context.Background(), "db.zip", strings.NewReader("archive")))

	assert.Equal(t, "archive", uploaded)
	client.AssertExpectations(t)
}

func TestSink_PutError(t *testing.T) {
	boom := errors.New("boom")
	client := &mockClient{}
	client.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, boom)

	err := NewSink(client, "bucket", "").Put(context.Background(), "db.zip", strings.NewReader("x"))
	assert.ErrorIs(t, err, boom)
}

func TestSink_List(t *testing.T) {
	client := &mockClient{}
	client.On("ListObjects", mock.Anything, "bucket", minio.ListObjectsOptions{Prefix: "linkdb/", Recursive: true}).
		Return(objects(
			minio.ObjectInfo{Key: "linkdb/b.zip"},
			minio.ObjectInfo{Key: "linkdb/a.zip"},
		))

	names, err := NewSink(client, "bucket", "linkdb").List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.zip", "b.zip"}, names)
}

func TestSink_ListError(t *testing.T) {
	boom := errors.New("boom")
	client := &mockClient{}
	client.On("ListObjects", mock.Anything, "bucket", mock.Anything).
		Return(objects(minio.ObjectInfo{Err: boom}))

	_, err := NewSink(client, "bucket", "").List(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSink_DeleteMissing(t *testing.T) {
	client := &mockClient{}
	client.On("RemoveObject", mock.Anything, "bucket", "a.zip", mock.Anything).
		Return(minio.ErrorResponse{Code: "NoSuchKey"})

	assert.NoError(t, NewSink(client, "bucket", "").Delete(context.Background(), "a.zip"))
}
