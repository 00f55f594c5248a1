// Package render turns a preview key into a composited image: it invokes the
// preview function and the chrome entry point through a sandbox unit and
// stacks background, content and device chrome.
package render

import (
	"fmt"
	"image"
	"strings"
)

// Status tags the variant held by a State.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

// String returns the lowercase status name used in JSON and history rows.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// SizeDp is a rendered size in density-independent units.
type SizeDp struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// State is the render state of one key.
//
//   - Pending: WidthDp/HeightDp echo the requested size so the UI can lay out
//     a placeholder
//   - Success: Image holds the composited pixels, Size its size in dp
//   - Error: Message holds the failure text verbatim
type State struct {
	Status   Status
	WidthDp  int
	HeightDp int
	Image    *image.NRGBA
	Size     SizeDp
	Message  string
}

// Pending returns a pending state for the requested size.
func Pending(widthDp, heightDp int) State {
	return State{Status: StatusPending, WidthDp: widthDp, HeightDp: heightDp}
}

// Success returns a successful state.
func Success(img *image.NRGBA, size SizeDp) State {
	return State{Status: StatusSuccess, Image: img, Size: size}
}

// Error returns a failed state carrying message.
func Error(message string) State {
	return State{Status: StatusError, Message: message}
}

func (s State) IsPending() bool { return s.Status == StatusPending }
func (s State) IsSuccess() bool { return s.Status == StatusSuccess }
func (s State) IsError() bool   { return s.Status == StatusError }

// Same reports whether two states would look identical to a reader. Success
// states are the same only if they share the image buffer. Error states
// compare by Summary, so a repeated panic with a different stack is the same
// error.
func (s State) Same(o State) bool {
	if s.Status != o.Status {
		return false
	}
	switch s.Status {
	case StatusPending:
		return s.WidthDp == o.WidthDp && s.HeightDp == o.HeightDp
	case StatusSuccess:
		return s.Image == o.Image && s.Size == o.Size
	default:
		return s.Summary() == o.Summary()
	}
}

// Summary returns the first part of an Error message, before the blank line
// that separates it from a stack trace.
func (s State) Summary() string {
	head, _, _ := strings.Cut(s.Message, "\n\n")
	return head
}

// String renders a short description for logs.
func (s State) String() string {
	switch s.Status {
	case StatusPending:
		return fmt.Sprintf("Pending(%dx%ddp)", s.WidthDp, s.HeightDp)
	case StatusSuccess:
		b := s.Image.Bounds()
		return fmt.Sprintf("Success(%dx%dpx, %gx%gdp)", b.Dx(), b.Dy(), s.Size.Width, s.Size.Height)
	default:
		return fmt.Sprintf("Error(%q)", s.Message)
	}
}
