package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutGet(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "reports/2026/m1.json", []byte(`{"id":"m1"}`), "application/json"))

	body, err := store.Get(ctx, "reports/2026/m1.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1"}`, string(body))

	_, err = store.Get(ctx, "reports/missing.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Equal(t, "/storage/reports/2026/m1.json", store.URL("reports/2026/m1.json"))
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	for _, key := range []string{"", "../outside.json", "reports/../../x"} {
		t.Run(key, func(t *testing.T) {
			err := store.Put(context.Background(), key, []byte("x"), "")
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = body
	f.contentTypes[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3Store_PutGet(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
	store := newS3Store(fake, "arena", "https://cdn.example.com/")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "reports/m1.json", []byte("{}"), "application/json"))
	assert.Equal(t, "application/json", fake.contentTypes["arena/reports/m1.json"])

	body, err := store.Get(ctx, "reports/m1.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))

	_, err = store.Get(ctx, "reports/none.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Equal(t, "https://cdn.example.com/reports/m1.json", store.URL("reports/m1.json"))
	assert.ErrorIs(t, store.Put(ctx, "", nil, ""), ErrInvalidKey)
}
