package content

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	hash := common.HexToHash("0x01")

	_, err := store.Fetch(context.Background(), hash)
	assert.True(t, errors.Is(err, ErrNotFound))

	store.Put(hash, []byte("abc"))
	got, err := store.Fetch(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[0] = 'z'
	again, _ := store.Fetch(context.Background(), hash)
	assert.Equal(t, []byte("abc"), again)
}

func TestGatewayStore(t *testing.T) {
	hash := common.HexToHash("0xabcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimPrefix(r.URL.Path, "/ipfs/") {
		case hash.Hex():
			_, _ = w.Write([]byte("sealed"))
		case common.HexToHash("0x02").Hex():
			w.WriteHeader(http.StatusTooManyRequests)
		case common.HexToHash("0x03").Hex():
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := NewGatewayStore(srv.URL+"/ipfs/", time.Second)

	got, err := store.Fetch(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), got)

	_, err = store.Fetch(context.Background(), common.HexToHash("0x01"))
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.Fetch(context.Background(), common.HexToHash("0x02"))
	assert.True(t, errors.Is(err, ErrThrottled))

	_, err = store.Fetch(context.Background(), common.HexToHash("0x03"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestGatewayStoreSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{1}, 64))
	}))
	defer srv.Close()

	store := NewGatewayStore(srv.URL, time.Second)
	store.maxBytes = 16

	_, err := store.Fetch(context.Background(), common.Hash{})
	require.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
	err     error
	lastKey string
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.lastKey = *params.Key
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3Store(t *testing.T) {
	hash := common.HexToHash("0x0a")
	fake := &fakeS3{objects: map[string][]byte{"content/" + hash.Hex(): []byte("sealed")}}
	store := newS3Store(fake, "bucket", "content/")

	got, err := store.Fetch(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), got)
	assert.Equal(t, "content/"+hash.Hex(), fake.lastKey)

	_, err = store.Fetch(context.Background(), common.HexToHash("0x0b"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestS3StoreErrorMapping(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"NoSuchKey", ErrNotFound},
		{"AccessDenied", ErrAccessDenied},
		{"SlowDown", ErrThrottled},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			fake := &fakeS3{err: &smithy.GenericAPIError{Code: tc.code, Message: "x"}}
			_, err := newS3Store(fake, "bucket", "").Fetch(context.Background(), common.Hash{})
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	fake := &fakeS3{err: &smithy.GenericAPIError{Code: "InternalError"}}
	_, err := newS3Store(fake, "bucket", "").Fetch(context.Background(), common.Hash{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

type fakeRedis struct {
	data map[string]string
	sets int
	err  error
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.sets++
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCacheReadThrough(t *testing.T) {
	mem := NewMemoryStore()
	hash := common.HexToHash("0x0c")
	mem.Put(hash, []byte("sealed"))
	counting := &countingStore{next: mem}

	client := &fakeRedis{data: map[string]string{}}
	cache := newRedisCache(client, counting, time.Minute, nil)

	for i := 0; i < 3; i++ {
		got, err := cache.Fetch(context.Background(), hash)
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed"), got)
	}
	assert.Equal(t, int32(1), counting.calls.Load())
	assert.Equal(t, 1, client.sets)

	_, err := cache.Fetch(context.Background(), common.HexToHash("0x0d"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedisCacheFallsThroughOnRedisError(t *testing.T) {
	mem := NewMemoryStore()
	hash := common.HexToHash("0x0c")
	mem.Put(hash, []byte("sealed"))

	client := &fakeRedis{data: map[string]string{}, err: errors.New("connection refused")}
	got, err := newRedisCache(client, mem, time.Minute, nil).Fetch(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), got)
}

type countingStore struct {
	next  Store
	calls atomic.Int32
	errs  []error
}

func (s *countingStore) Fetch(ctx context.Context, hash common.Hash) ([]byte, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	return s.next.Fetch(ctx, hash)
}

func TestLimitedStoreRetries(t *testing.T) {
	mem := NewMemoryStore()
	hash := common.HexToHash("0x0e")
	mem.Put(hash, []byte("sealed"))
	counting := &countingStore{next: mem, errs: []error{errors.New("timeout"), ErrThrottled}}

	got, err := NewLimitedStore(counting, 0, 3, time.Millisecond).Fetch(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), got)
	assert.Equal(t, int32(3), counting.calls.Load())
}

func TestLimitedStoreDoesNotRetryNotFound(t *testing.T) {
	counting := &countingStore{next: NewMemoryStore()}

	_, err := NewLimitedStore(counting, 100, 5, time.Millisecond).Fetch(context.Background(), common.HexToHash("0x0f"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), counting.calls.Load())
}

func TestLimitedStoreGivesUp(t *testing.T) {
	boom := errors.New("boom")
	counting := &countingStore{next: NewMemoryStore(), errs: []error{boom, boom, boom}}

	_, err := NewLimitedStore(counting, 0, 2, time.Millisecond).Fetch(context.Background(), common.Hash{})
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, int32(3), counting.calls.Load())
}
