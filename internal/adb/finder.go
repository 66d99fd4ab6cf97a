package adb

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// FindADB attempts to locate the ADB executable
func FindADB(preferredPath string) (string, error) {
	// Try preferred path first; it may be the binary itself or its directory.
	if preferredPath != "" {
		candidates := []string{preferredPath, filepath.Join(preferredPath, adbBinary())}
		for _, candidate := range candidates {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
		if !strings.ContainsRune(preferredPath, filepath.Separator) && !strings.Contains(preferredPath, "/") {
			if adbPath, err := exec.LookPath(preferredPath); err == nil {
				return adbPath, nil
			}
		}
	}

	if adbPath, err := exec.LookPath(adbBinary()); err == nil {
		return adbPath, nil
	}

	for _, path := range commonPaths() {
		expandedPath := os.ExpandEnv(path)
		if strings.HasPrefix(expandedPath, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				expandedPath = filepath.Join(home, expandedPath[2:])
			}
		}

		if _, err := os.Stat(expandedPath); err == nil {
			return expandedPath, nil
		}
	}

	return "", fmt.Errorf("adb not found, please specify path in config")
}

func adbBinary() string {
	if runtime.GOOS == "windows" {
		return "adb.exe"
	}
	return "adb"
}

func commonPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{
			// BlueStacks
			`C:\Program Files\BlueStacks_nxt\HD-Adb.exe`,
			`C:\Program Files\BlueStacks\HD-Adb.exe`,

			// MuMu Player
			`C:\Program Files\Netease\MuMuPlayer-12.0\shell\adb.exe`,

			// Android SDK
			`C:\Android\sdk\platform-tools\adb.exe`,
			`${LOCALAPPDATA}\Android\Sdk\platform-tools\adb.exe`,
		}
	}

	return []string{
		"/usr/bin/adb",
		"/usr/local/bin/adb",
		"~/Android/Sdk/platform-tools/adb",
		"~/Library/Android/sdk/platform-tools/adb",
		// BlueStacks from WSL
		"/mnt/c/Program Files/BlueStacks_nxt/HD-Adb.exe",
	}
}
