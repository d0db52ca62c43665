package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/is-it-pizza/internal/apierror"
	"github.com/example/is-it-pizza/internal/blobstore"
	"github.com/example/is-it-pizza/internal/vision"
)

type stubStore struct {
	keys         []string
	contentTypes []string
	url          string
	err          error
}

func (s *stubStore) Put(ctx context.Context, key string, data []byte, contentType string) (*blobstore.Object, error) {
	s.keys = append(s.keys, key)
	s.contentTypes = append(s.contentTypes, contentType)
	if s.err != nil {
		return nil, s.err
	}
	return &blobstore.Object{Key: key, URL: s.url + key, ContentType: contentType}, nil
}

type stubModel struct {
	answer  string
	err     error
	prompts []vision.Prompt
}

func (s *stubModel) Complete(ctx context.Context, prompt vision.Prompt) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.answer, s.err
}

type failingCache struct {
	gets, sets int
}

func (f *failingCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.sets++
	return errors.New("redis down")
}

func (f *failingCache) Get(ctx context.Context, key string) (string, error) {
	f.gets++
	return "", errors.New("redis down")
}

func newTestUseCase(store *stubStore, model *stubModel, cache Cache, opts Options) *PizzaUseCase {
	uc := NewPizzaUseCase(store, model, cache, opts, zap.NewNop())
	uc.now = func() time.Time { return time.UnixMilli(1700000000123) }
	uc.token = func() string { return "abcd1234" }
	return uc
}

func TestUploadImageBuildsKeyAndReturnsURL(t *testing.T) {
	store := &stubStore{url: "https://x.vercel-blob.com/"}
	uc := newTestUseCase(store, &stubModel{}, nil, Options{})

	res, err := uc.UploadImage(context.Background(), "a.jpg", "image/jpeg", []byte("jpeg"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Key != "1700000000123-a.jpg" {
		t.Fatalf("unexpected key: %s", res.Key)
	}
	if res.URL != "https://x.vercel-blob.com/1700000000123-a.jpg" {
		t.Fatalf("url must be the store's url verbatim, got %s", res.URL)
	}
	if store.contentTypes[0] != "image/jpeg" {
		t.Fatalf("content type not forwarded: %v", store.contentTypes)
	}
}

func TestUploadImageRandomSuffix(t *testing.T) {
	store := &stubStore{url: "https://blob/"}
	uc := newTestUseCase(store, &stubModel{}, nil, Options{RandomSuffix: true})

	if _, err := uc.UploadImage(context.Background(), "../../my pizza!.png", "image/png", []byte("png")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.keys[0]; got != "1700000000123-abcd1234-my-pizza-.png" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestStorageKeyFallsBackToImage(t *testing.T) {
	uc := newTestUseCase(&stubStore{}, &stubModel{}, nil, Options{})
	if got := uc.storageKey("..."); got != "1700000000123-image" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestUploadImageRejectsNonImage(t *testing.T) {
	store := &stubStore{}
	uc := newTestUseCase(store, &stubModel{}, nil, Options{})

	_, err := uc.UploadImage(context.Background(), "notes.txt", "text/plain", []byte("hi"))
	if !apierror.IsKind(err, apierror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(store.keys) != 0 {
		t.Fatal("store must not be called for rejected uploads")
	}
}

func TestUploadImageWrapsStoreFailure(t *testing.T) {
	cause := errors.New("403 forbidden")
	uc := newTestUseCase(&stubStore{err: cause}, &stubModel{}, nil, Options{})

	_, err := uc.UploadImage(context.Background(), "a.jpg", "image/jpeg", []byte("x"))
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierror.KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if apiErr.Message != MessageUploadFailed || !errors.Is(err, cause) {
		t.Fatalf("unexpected error contents: %+v", apiErr)
	}
}

func TestAnalyzeImageSendsConstrainedPrompt(t *testing.T) {
	model := &stubModel{answer: "Yes, this is pizza."}
	uc := newTestUseCase(&stubStore{}, model, nil, Options{MaxTokens: 10, Temperature: 0.5})

	verdict, err := uc.AnalyzeImage(context.Background(), "https://x.vercel-blob.com/123-a.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.IsPizza || verdict.Confidence != vision.ConfidenceHigh {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	p := model.prompts[0]
	if p.ImageURL != "https://x.vercel-blob.com/123-a.jpg" || p.MaxTokens != 10 || p.Temperature != 0.5 {
		t.Fatalf("unexpected prompt: %+v", p)
	}
	if !strings.Contains(p.Text, "'yes' or 'no'") {
		t.Fatalf("instruction must constrain the answer, got %q", p.Text)
	}
}

func TestAnalyzeImageRequiresURL(t *testing.T) {
	model := &stubModel{}
	uc := newTestUseCase(&stubStore{}, model, nil, Options{})

	_, err := uc.AnalyzeImage(context.Background(), "  ")
	if !apierror.IsKind(err, apierror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(model.prompts) != 0 {
		t.Fatal("model must not be called without a url")
	}
}

func TestAnalyzeImageModelFailureIsNotRetried(t *testing.T) {
	model := &stubModel{err: errors.New("timeout")}
	uc := newTestUseCase(&stubStore{}, model, nil, Options{MaxTokens: 10})

	_, err := uc.AnalyzeImage(context.Background(), "https://a/b.jpg")
	if !apierror.IsKind(err, apierror.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(model.prompts) != 1 {
		t.Fatalf("expected exactly one model call, got %d", len(model.prompts))
	}
}

func TestAnalyzeImageUsesRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	model := &stubModel{answer: "yes"}
	uc := newTestUseCase(&stubStore{}, model, NewRedisCache(client), Options{MaxTokens: 10, CacheTTL: time.Minute})

	for i := 0; i < 2; i++ {
		verdict, err := uc.AnalyzeImage(context.Background(), "https://a/pizza.jpg")
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if !verdict.IsPizza || verdict.Confidence != "high" {
			t.Fatalf("call %d: unexpected verdict %+v", i, verdict)
		}
	}
	if len(model.prompts) != 1 {
		t.Fatalf("expected second call to hit the cache, model called %d times", len(model.prompts))
	}
	if ttl := mr.TTL(verdictKey("https://a/pizza.jpg")); ttl != time.Minute {
		t.Fatalf("unexpected ttl: %v", ttl)
	}
}

func TestAnalyzeImageIgnoresCacheErrors(t *testing.T) {
	cache := &failingCache{}
	model := &stubModel{answer: "no"}
	uc := newTestUseCase(&stubStore{}, model, cache, Options{MaxTokens: 10, CacheTTL: time.Minute})

	verdict, err := uc.AnalyzeImage(context.Background(), "https://a/salad.jpg")
	if err != nil {
		t.Fatalf("cache failures must not fail the request: %v", err)
	}
	if verdict.IsPizza {
		t.Fatal("expected not pizza")
	}
	if cache.gets != 1 || cache.sets != 1 {
		t.Fatalf("expected one get and one set without retries, got %d/%d", cache.gets, cache.sets)
	}
}
