package session

import (
	"github.com/example/is-it-pizza/internal/apiclient"
	"github.com/example/is-it-pizza/internal/capture"
	"github.com/example/is-it-pizza/internal/vision"
)

// State is one of Idle, ImageSelected, Uploading, Analyzing or Result.
// The set is closed; exactly one is active at a time.
type State interface {
	Name() string
	state()
}

// Idle: nothing selected.
type Idle struct{}

// ImageSelected holds the chosen image. Err is set when the previous
// submission failed; the image stays so the user can retry.
type ImageSelected struct {
	Image *capture.Image
	Err   string
}

// Uploading: the image is on its way to storage.
type Uploading struct {
	Image *capture.Image
}

// Analyzing: the stored image is being classified.
type Analyzing struct {
	Image  *capture.Image
	Upload apiclient.UploadResult
}

// Result: classification finished.
type Result struct {
	Image   *capture.Image
	Upload  apiclient.UploadResult
	Verdict vision.Verdict
}

func (Idle) Name() string          { return "idle" }
func (ImageSelected) Name() string { return "image_selected" }
func (Uploading) Name() string     { return "uploading" }
func (Analyzing) Name() string     { return "analyzing" }
func (Result) Name() string        { return "result" }

func (Idle) state()          {}
func (ImageSelected) state() {}
func (Uploading) state()     {}
func (Analyzing) state()     {}
func (Result) state()        {}

// Busy reports whether a submission is in flight.
func Busy(s State) bool {
	switch s.(type) {
	case Uploading, Analyzing:
		return true
	}
	return false
}
