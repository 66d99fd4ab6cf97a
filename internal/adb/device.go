package adb

import (
	"context"
	"strings"
)

// Device is the capability set the capture loop needs from a transport.
// Controller implements it over adb; tests substitute fakes.
type Device interface {
	Connect(ctx context.Context) (ConnectResult, error)
	CaptureFrame(ctx context.Context) ([]byte, error)
	DumpUITree(ctx context.Context) ([]byte, error)
	InjectScroll(ctx context.Context, swipe SwipeParams) error
	RemoveRemoteArtifact(ctx context.Context, remotePath string) error
}

// SwipeParams defines parameters for swipe gestures
type SwipeParams struct {
	X1, Y1, X2, Y2 int
	Duration       int // milliseconds
}

// ConnectStatus is the outcome of a connect attempt
type ConnectStatus int

const (
	ConnectFailed ConnectStatus = iota
	Connected
	AlreadyConnected
)

func (s ConnectStatus) String() string {
	switch s {
	case Connected:
		return "connected"
	case AlreadyConnected:
		return "already connected"
	default:
		return "failed"
	}
}

// ConnectResult is the structured form of "adb connect" output
type ConnectResult struct {
	Status ConnectStatus
	Reason string // set when Status is ConnectFailed
}

// OK reports whether the device is usable after the attempt
func (r ConnectResult) OK() bool {
	return r.Status == Connected || r.Status == AlreadyConnected
}

// ParseConnectOutput translates adb's human-readable connect output.
// adb exits 0 even when the connection is refused, so the text is all we have.
func ParseConnectOutput(output string) ConnectResult {
	text := strings.ToLower(strings.TrimSpace(output))

	switch {
	case text == "":
		return ConnectResult{Status: ConnectFailed, Reason: "empty response from adb"}
	case strings.Contains(text, "failed"), strings.Contains(text, "cannot"), strings.Contains(text, "unable"):
		return ConnectResult{Status: ConnectFailed, Reason: strings.TrimSpace(output)}
	case strings.Contains(text, "already connected"):
		return ConnectResult{Status: AlreadyConnected}
	case strings.Contains(text, "connected"):
		return ConnectResult{Status: Connected}
	default:
		return ConnectResult{Status: ConnectFailed, Reason: strings.TrimSpace(output)}
	}
}
