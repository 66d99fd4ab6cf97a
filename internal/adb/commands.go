package adb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
)

const (
	remoteFramePrefix = "/sdcard/scrollcap_"
	remoteDumpPath    = "/sdcard/scrollcap_ui.xml"
)

var frameSeq atomic.Uint64

// Shell executes a shell command on the device and returns its output
func (c *Controller) Shell(ctx context.Context, args ...string) (string, error) {
	output, err := c.deviceExec(ctx, append([]string{"shell"}, args...)...)
	if err != nil {
		return "", fmt.Errorf("shell command failed: %w", err)
	}
	return output, nil
}

// Pull copies a file from device to local
func (c *Controller) Pull(ctx context.Context, remotePath, localPath string) error {
	if _, err := c.deviceExec(ctx, "pull", remotePath, localPath); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	return nil
}

// InjectScroll performs a single swipe gesture
func (c *Controller) InjectScroll(ctx context.Context, swipe SwipeParams) error {
	_, err := c.Shell(ctx, "input", "swipe",
		strconv.Itoa(swipe.X1), strconv.Itoa(swipe.Y1),
		strconv.Itoa(swipe.X2), strconv.Itoa(swipe.Y2),
		strconv.Itoa(swipe.Duration))
	return err
}

// RemoveRemoteArtifact deletes a file from device storage
func (c *Controller) RemoveRemoteArtifact(ctx context.Context, remotePath string) error {
	if _, err := c.Shell(ctx, "rm", "-f", remotePath); err != nil {
		return fmt.Errorf("failed to remove %s: %w", remotePath, err)
	}
	return nil
}

// CaptureFrame takes a full-screen PNG and returns its bytes
func (c *Controller) CaptureFrame(ctx context.Context) ([]byte, error) {
	remotePath := fmt.Sprintf("%s%d.png", remoteFramePrefix, frameSeq.Add(1))

	if _, err := c.Shell(ctx, "screencap", "-p", remotePath); err != nil {
		c.cleanupRemote(ctx, remotePath)
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return c.fetch(ctx, remotePath, "frame-*.png")
}

// DumpUITree dumps the uiautomator window hierarchy and returns the XML
func (c *Controller) DumpUITree(ctx context.Context) ([]byte, error) {
	if _, err := c.Shell(ctx, "uiautomator", "dump", remoteDumpPath); err != nil {
		c.cleanupRemote(ctx, remoteDumpPath)
		return nil, fmt.Errorf("failed to dump ui hierarchy: %w", err)
	}
	return c.fetch(ctx, remoteDumpPath, "ui-*.xml")
}

// fetch pulls remotePath into a local temp file, reads it and cleans up both ends.
func (c *Controller) fetch(ctx context.Context, remotePath, pattern string) ([]byte, error) {
	// Remote file must not outlive this call, whatever happens below.
	defer c.cleanupRemote(ctx, remotePath)

	local, err := os.CreateTemp(c.tempDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	localPath := local.Name()
	local.Close()
	defer os.Remove(localPath)

	if err := c.Pull(ctx, remotePath, localPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Clean(localPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read pulled file: %w", err)
	}
	return data, nil
}

// cleanupRemote removes a remote file, logging instead of failing. A failed
// capture may still have left a partial file behind.
func (c *Controller) cleanupRemote(ctx context.Context, remotePath string) {
	if err := c.RemoveRemoteArtifact(ctx, remotePath); err != nil {
		c.log.WarnWithContext("Remote cleanup failed", map[string]interface{}{
			"path":  remotePath,
			"error": err.Error(),
		})
	}
}

// GetWindowSize returns the current window/screen size
func (c *Controller) GetWindowSize(ctx context.Context) (width, height int, err error) {
	output, err := c.Shell(ctx, "wm", "size")
	if err != nil {
		return 0, 0, err
	}

	// Parse output like "Physical size: 1080x1920"
	var w, h int
	_, err = fmt.Sscanf(output, "Physical size: %dx%d", &w, &h)
	if err != nil {
		// Try override format
		_, err = fmt.Sscanf(output, "Override size: %dx%d", &w, &h)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to parse window size: %s", output)
		}
	}

	return w, h, nil
}
