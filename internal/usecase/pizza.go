package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/is-it-pizza/internal/apierror"
	"github.com/example/is-it-pizza/internal/blobstore"
	"github.com/example/is-it-pizza/internal/logging"
	"github.com/example/is-it-pizza/internal/vision"
)

const (
	MessageUploadFailed  = "Failed to upload file"
	MessageAnalyzeFailed = "Failed to analyze image"
	MessageNotImage      = "The uploaded file must be an image"
	MessageMissingURL    = "Image URL is required"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Options tunes the model call and storage keys.
type Options struct {
	MaxTokens    int
	Temperature  float32
	CacheTTL     time.Duration
	RandomSuffix bool
}

// UploadResult is what the upload endpoint returns to the client.
type UploadResult struct {
	Key string
	URL string
}

// PizzaUseCase uploads images and classifies them by URL. It keeps no state
// between calls and is safe for concurrent use.
type PizzaUseCase struct {
	store  blobstore.Store
	model  vision.Model
	cache  Cache
	opts   Options
	logger *zap.Logger
	now    func() time.Time
	token  func() string
}

// NewPizzaUseCase wires the collaborators. cache may be nil.
func NewPizzaUseCase(store blobstore.Store, model vision.Model, cache Cache, opts Options, logger *zap.Logger) *PizzaUseCase {
	return &PizzaUseCase{
		store:  store,
		model:  model,
		cache:  cache,
		opts:   opts,
		logger: logger.Named("pizza_usecase"),
		now:    time.Now,
		token: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		},
	}
}

// UploadImage stores the image publicly and returns its URL verbatim.
func (uc *PizzaUseCase) UploadImage(ctx context.Context, filename, contentType string, data []byte) (*UploadResult, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apierror.Validation("usecase.upload_image", MessageNotImage)
	}

	requestID := uuid.NewString()
	key := uc.storageKey(filename)
	opLogger := logging.WithOperation(uc.logger, "usecase.upload_image", requestID)

	obj, err := uc.store.Put(ctx, key, data, contentType)
	if err != nil {
		wrapped := apierror.Upstream("usecase.blob_put", requestID, MessageUploadFailed, err)
		opLogger.Error("blob upload failed", zap.Error(wrapped), zap.String("key", key))
		return nil, wrapped
	}

	opLogger.Info("image stored",
		zap.String("key", obj.Key),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)))
	return &UploadResult{Key: obj.Key, URL: obj.URL}, nil
}

// AnalyzeImage asks the model whether the image at imageURL shows pizza.
func (uc *PizzaUseCase) AnalyzeImage(ctx context.Context, imageURL string) (*vision.Verdict, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return nil, apierror.Validation("usecase.analyze_image", MessageMissingURL)
	}

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze_image", requestID)

	if cached, ok := uc.cachedVerdict(ctx, opLogger, imageURL); ok {
		return cached, nil
	}

	answer, err := uc.model.Complete(ctx, vision.Prompt{
		Text:        vision.PizzaInstruction,
		ImageURL:    imageURL,
		MaxTokens:   uc.opts.MaxTokens,
		Temperature: uc.opts.Temperature,
	})
	if err != nil {
		wrapped := apierror.Upstream("usecase.model_complete", requestID, MessageAnalyzeFailed, err)
		opLogger.Error("vision model call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	verdict := vision.ParseVerdict(answer)
	opLogger.Info("image classified", zap.String("answer", answer), zap.Bool("is_pizza", verdict.IsPizza))

	uc.storeVerdict(ctx, opLogger, imageURL, verdict)
	return &verdict, nil
}

// storageKey is <millis>-[token-]<name>. Without the token two uploads of the
// same filename within one millisecond collide.
func (uc *PizzaUseCase) storageKey(filename string) string {
	name := unsafeKeyChars.ReplaceAllString(filepath.Base(filename), "-")
	name = strings.Trim(name, ".-")
	if name == "" {
		name = "image"
	}
	millis := uc.now().UnixMilli()
	if uc.opts.RandomSuffix {
		return fmt.Sprintf("%d-%s-%s", millis, uc.token(), name)
	}
	return fmt.Sprintf("%d-%s", millis, name)
}

// Cache failures are logged and otherwise ignored.
func (uc *PizzaUseCase) cachedVerdict(ctx context.Context, opLogger *zap.Logger, imageURL string) (*vision.Verdict, bool) {
	if uc.cache == nil || uc.opts.CacheTTL <= 0 {
		return nil, false
	}
	raw, err := uc.cache.Get(ctx, verdictKey(imageURL))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read verdict cache", zap.Error(err))
		}
		return nil, false
	}
	var verdict vision.Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		opLogger.Warn("failed to decode cached verdict", zap.Error(err))
		return nil, false
	}
	verdict.Confidence = vision.ConfidenceHigh
	opLogger.Debug("verdict served from cache", zap.Bool("is_pizza", verdict.IsPizza))
	return &verdict, true
}

func (uc *PizzaUseCase) storeVerdict(ctx context.Context, opLogger *zap.Logger, imageURL string, verdict vision.Verdict) {
	if uc.cache == nil || uc.opts.CacheTTL <= 0 {
		return
	}
	serialized, err := json.Marshal(verdict)
	if err != nil {
		opLogger.Warn("failed to serialize verdict", zap.Error(err))
		return
	}
	if err := uc.cache.Set(ctx, verdictKey(imageURL), string(serialized), uc.opts.CacheTTL); err != nil {
		opLogger.Warn("failed to cache verdict", zap.Error(err))
	}
}
