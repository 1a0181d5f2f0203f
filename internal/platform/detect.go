package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "voxrelay"

type Runtime struct {
	OS   string
	Arch string
}

func CurrentRuntime() Runtime {
	return Runtime{
		OS:   runtime.GOOS,
		Arch: NormalizeArch(runtime.GOARCH),
	}
}

func NormalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}

// DefaultModelDirFor is the model cache location. On windows dataHome is
// %LOCALAPPDATA%, elsewhere it is $XDG_DATA_HOME.
func DefaultModelDirFor(goos, homeDir, dataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux", "freebsd", "openbsd":
		if dataHome != "" {
			return filepath.Join(dataHome, appDirName, "models"), nil
		}
		return filepath.Join(homeDir, ".local", "share", appDirName, "models"), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Caches", appDirName, "models"), nil
	case "windows":
		if dataHome != "" {
			return filepath.Join(dataHome, appDirName, "models"), nil
		}
		return filepath.Join(homeDir, "AppData", "Local", appDirName, "models"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if runtime.GOOS == "windows" {
		dataHome = os.Getenv("LOCALAPPDATA")
	}
	return DefaultModelDirFor(runtime.GOOS, homeDir, dataHome)
}
