package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	minioLib "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMinio implements minioAPI for testing without network.
type fakeMinio struct {
	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error
	madeBucket      bool

	putKey string
	putErr error

	getRC  io.ReadCloser
	getErr error

	removeErr  error
	removedKey string

	statInfo minioLib.ObjectInfo
	statErr  error
}

func (f *fakeMinio) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}

func (f *fakeMinio) MakeBucket(_ context.Context, _ string, _ minioLib.MakeBucketOptions) error {
	f.madeBucket = true
	return f.makeBucketErr
}

func (f *fakeMinio) PutObject(_ context.Context, _ string, object string, _ io.Reader, _ int64, _ minioLib.PutObjectOptions) (minioLib.UploadInfo, error) {
	f.putKey = object
	return minioLib.UploadInfo{}, f.putErr
}

func (f *fakeMinio) GetObject(_ context.Context, _ string, _ string, _ minioLib.GetObjectOptions) (io.ReadCloser, error) {
	return f.getRC, f.getErr
}

func (f *fakeMinio) RemoveObject(_ context.Context, _ string, object string, _ minioLib.RemoveObjectOptions) error {
	f.removedKey = object
	return f.removeErr
}

func (f *fakeMinio) StatObject(_ context.Context, _ string, _ string, _ minioLib.StatObjectOptions) (minioLib.ObjectInfo, error) {
	return f.statInfo, f.statErr
}

func TestNewAvatarStoreWithAPI_BucketExists(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExists: true}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.False(t, api.madeBucket)
}

func TestNewAvatarStoreWithAPI_CreatesBucket(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExists: false}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.True(t, api.madeBucket)
}

func TestNewAvatarStoreWithAPI_BucketExistsError(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExistsErr: errors.New("boom")}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	assert.Nil(t, s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ensure bucket exists")
}

func TestNewAvatarStoreWithAPI_MakeBucketError(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExists: false, makeBucketErr: errors.New("fail")}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	assert.Nil(t, s)
	assert.Error(t, err)
}

func TestAvatarStore_Upload(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExists: true}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	require.NoError(t, err)

	err = s.Upload(ctx, "avatars/u-1/a-1", bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	assert.Equal(t, "avatars/u-1/a-1", api.putKey)
}

func TestAvatarStore_UploadError(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExists: true, putErr: errors.New("boom")}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	require.NoError(t, err)

	err = s.Upload(ctx, "key", bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestAvatarStore_Download(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExists: true, getRC: io.NopCloser(bytes.NewReader([]byte("png")))}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	require.NoError(t, err)

	rc, err := s.Download(ctx, "key")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestAvatarStore_Delete(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExists: true}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "key"))
	assert.Equal(t, "key", api.removedKey)
}

func TestAvatarStore_Exists(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExists: true}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	require.NoError(t, err)

	exists, err := s.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAvatarStore_Exists_NoSuchKey(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExists: true, statErr: minioLib.ErrorResponse{Code: "NoSuchKey"}}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	require.NoError(t, err)

	exists, err := s.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAvatarStore_Exists_OtherError(t *testing.T) {
	ctx := context.Background()
	api := &fakeMinio{bucketExists: true, statErr: errors.New("network down")}
	s, err := NewAvatarStoreWithAPI(ctx, api, "avatars")
	require.NoError(t, err)

	_, err = s.Exists(ctx, "key")
	assert.Error(t, err)
}
