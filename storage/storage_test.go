package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeUploader) Upload(_ context.Context, key, contentType string, r io.Reader) (*UploadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.key, f.contentType, f.body = key, contentType, b
	return &UploadResult{Key: key, Location: "https://cdn.example.com/" + key}, nil
}

func (f *fakeUploader) Delete(context.Context, string) error { return nil }

func (f *fakeUploader) GetPublicURL(key string) string { return "https://cdn.example.com/" + key }

func TestSnapshotArchive_Store(t *testing.T) {
	up := &fakeUploader{}
	archive := NewSnapshotArchive(up)

	loc, err := archive.Store(context.Background(), 7, 2, []byte(`{"round":{}}`))
	require.NoError(t, err)

	assert.Equal(t, "fractals/7/rounds/2.json", up.key)
	assert.Equal(t, "application/json", up.contentType)
	assert.Equal(t, `{"round":{}}`, string(up.body))
	assert.Equal(t, "https://cdn.example.com/fractals/7/rounds/2.json", loc)
}

func TestSnapshotArchive_StoreError(t *testing.T) {
	boom := errors.New("boom")
	archive := NewSnapshotArchive(&fakeUploader{err: boom})

	_, err := archive.Store(context.Background(), 1, 0, nil)
	assert.ErrorIs(t, err, boom)
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		base string
		key  string
		want string
	}{
		{"https://pub.r2.dev", "fractals/1/rounds/0.json", "https://pub.r2.dev/fractals/1/rounds/0.json"},
		{"https://pub.r2.dev/", "/fractals/1/rounds/0.json", "https://pub.r2.dev/fractals/1/rounds/0.json"},
		{"https://cdn.example.com/archive", "a.json", "https://cdn.example.com/archive/a.json"},
		{"https://cdn.example.com/archive/", "a.json", "https://cdn.example.com/archive/a.json"},
		{"https://pub.r2.dev", "", ""},
	}
	for _, tt := range tests {
		base, err := url.Parse(tt.base)
		require.NoError(t, err)
		assert.Equal(t, tt.want, publicURL(base, tt.key), "%s + %s", tt.base, tt.key)
	}
	assert.Equal(t, "", publicURL(nil, "a.json"))
}

func TestR2Config(t *testing.T) {
	assert.False(t, R2Config{}.Enabled())

	partial := R2Config{AccountID: "acc"}
	assert.True(t, partial.Enabled())
	assert.ErrorIs(t, partial.Validate(), ErrInvalidR2Config)

	_, err := NewR2Uploader(context.Background(), partial)
	assert.ErrorIs(t, err, ErrInvalidR2Config)

	full := R2Config{AccountID: "a", AccessKeyID: "k", SecretAccessKey: "s", BucketName: "b", PublicBaseURL: "https://pub.r2.dev"}
	assert.NoError(t, full.Validate())
}
