// Package session sequences one user's capture, upload and classification.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/example/is-it-pizza/internal/apiclient"
	"github.com/example/is-it-pizza/internal/capture"
	"github.com/example/is-it-pizza/internal/vision"
)

var (
	// ErrBusy is returned for any action while a submission is in flight.
	ErrBusy = errors.New("a submission is already in progress")
	// ErrInvalidTransition is returned when the action does not apply to the current state.
	ErrInvalidTransition = errors.New("action not available in the current state")
)

// API is the pair of endpoints a submission talks to.
type API interface {
	Upload(ctx context.Context, img *capture.Image) (*apiclient.UploadResult, error)
	Analyze(ctx context.Context, imageURL string) (*vision.Verdict, error)
}

type Option func(*Session)

// WithCelebration registers fn to run once each time a submission ends in
// a pizza verdict.
func WithCelebration(fn func()) Option {
	return func(s *Session) { s.celebrate = fn }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger.Named("session") }
}

// Session is safe to call from several goroutines, but only one submission
// runs at a time.
type Session struct {
	mu        sync.Mutex
	api       API
	current   State
	observers []func(State)
	celebrate func()
	logger    *zap.Logger
}

func New(api API, opts ...Option) *Session {
	s := &Session{api: api, current: Idle{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the active state. Reading it has no side effects.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnChange registers fn to be called after every transition.
func (s *Session) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Select holds img, replacing any earlier selection and clearing its error.
func (s *Session) Select(img *capture.Image) error {
	if img == nil {
		return nil
	}
	return s.apply(func(cur State) (State, error) {
		switch cur.(type) {
		case Idle, ImageSelected:
			return ImageSelected{Image: img}, nil
		}
		return nil, ErrInvalidTransition
	})
}

// Retake discards the selected image.
func (s *Session) Retake() error {
	return s.apply(func(cur State) (State, error) {
		if _, ok := cur.(ImageSelected); ok {
			return Idle{}, nil
		}
		return nil, ErrInvalidTransition
	})
}

// TryAgain leaves the result screen for a fresh start.
func (s *Session) TryAgain() error {
	return s.apply(func(cur State) (State, error) {
		if _, ok := cur.(Result); ok {
			return Idle{}, nil
		}
		return nil, ErrInvalidTransition
	})
}

// Submit uploads the selected image and, if that worked, classifies the
// returned URL. The local bytes never reach the classifier. Any failure
// puts the session back in ImageSelected with the error attached, and is
// also returned.
func (s *Session) Submit(ctx context.Context) error {
	var img *capture.Image
	err := s.apply(func(cur State) (State, error) {
		sel, ok := cur.(ImageSelected)
		if !ok {
			return nil, ErrInvalidTransition
		}
		img = sel.Image
		return Uploading{Image: img}, nil
	})
	if err != nil {
		return err
	}

	upload, err := s.api.Upload(ctx, img)
	if err != nil {
		return s.fail(img, "upload", err)
	}
	s.set(Analyzing{Image: img, Upload: *upload})

	verdict, err := s.api.Analyze(ctx, upload.URL)
	if err != nil {
		return s.fail(img, "analyze", err)
	}
	verdict.Confidence = vision.ConfidenceHigh
	s.set(Result{Image: img, Upload: *upload, Verdict: *verdict})
	s.logger.Info("submission finished", zap.String("url", upload.URL), zap.Bool("is_pizza", verdict.IsPizza))

	if verdict.IsPizza && s.celebrate != nil {
		s.celebrate()
	}
	return nil
}

func (s *Session) fail(img *capture.Image, stage string, err error) error {
	s.logger.Warn("submission failed", zap.String("stage", stage), zap.Error(err))
	s.set(ImageSelected{Image: img, Err: errorMessage(stage, err)})
	return fmt.Errorf("%s: %w", stage, err)
}

func errorMessage(stage string, err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if stage == "upload" {
		return fmt.Sprintf("Failed to upload image: %v", err)
	}
	return fmt.Sprintf("Failed to analyze image: %v", err)
}

// apply runs step against the current state under the lock. Busy states
// reject every action.
func (s *Session) apply(step func(State) (State, error)) error {
	s.mu.Lock()
	if Busy(s.current) {
		s.mu.Unlock()
		return ErrBusy
	}
	next, err := step(s.current)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = next
	observers := append([]func(State){}, s.observers...)
	s.mu.Unlock()

	notify(observers, next)
	return nil
}

// set is used by the in-flight submission, which owns the session until it
// leaves the busy states.
func (s *Session) set(next State) {
	s.mu.Lock()
	s.current = next
	observers := append([]func(State){}, s.observers...)
	s.mu.Unlock()

	notify(observers, next)
}

func notify(observers []func(State), st State) {
	for _, fn := range observers {
		fn(st)
	}
}
