package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	buckets map[string]bool
	objects map[string]string // key -> local file
	failPut error
}

func (f *fakeStore) BucketExists(_ context.Context, b string) (bool, error) {
	return f.buckets[b], nil
}

func (f *fakeStore) MakeBucket(_ context.Context, b string, _ minio.MakeBucketOptions) error {
	f.buckets[b] = true
	return nil
}

func (f *fakeStore) FPutObject(_ context.Context, b, key, file string, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.failPut != nil {
		return minio.UploadInfo{}, f.failPut
	}
	f.objects[b+"/"+key] = file
	return minio.UploadInfo{Bucket: b, Key: key}, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{buckets: map[string]bool{}, objects: map[string]string{}}
}

func TestPublish_UploadsModelDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "weights"), 0o755))
	for _, f := range []string{"model.json", filepath.Join("weights", "layer0.bin")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644))
	}
	store := newFakeStore()
	p := NewPublisher(store, Config{Bucket: "models", Prefix: "costa", Region: "us-east-1"})

	keys, err := p.Publish(context.Background(), "run-1", dir)
	require.NoError(t, err)
	sort.Strings(keys)
	want := []string{"costa/run-1/model.json", "costa/run-1/weights/layer0.bin"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
	require.True(t, store.buckets["models"], "bucket is created")
	require.Equal(t, filepath.Join(dir, "model.json"), store.objects["models/costa/run-1/model.json"])
}

func TestPublish_UploadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.bin"), []byte("x"), 0o644))
	boom := errors.New("denied")
	store := newFakeStore()
	store.failPut = boom

	_, err := NewPublisher(store, Config{Bucket: "models"}).Publish(context.Background(), "r", dir)
	require.ErrorIs(t, err, boom)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Region: "us-east-1", Bucket: "models"}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	require.Error(t, invalid.Validate(), "scheme in endpoint")
	invalid = valid
	invalid.Bucket = " "
	require.Error(t, invalid.Validate(), "empty bucket")
}

func TestObjectKey(t *testing.T) {
	require.Equal(t, "r1/a/b.bin", ObjectKey("", "r1", filepath.Join("a", "b.bin")))
}
