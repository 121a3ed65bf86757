package utils

import (
	"os"
	"path/filepath"
	"strings"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	// Get the directory containing the file
	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// ReadSource reads an assembly source file given a path relative to the
// working directory.
func ReadSource(relPath string) (string, string, error) {
	fullPath, _, err := GetPathInfo(relPath)
	if err != nil {
		return "", "", err
	}
	b, err := os.ReadFile(fullPath)
	if err != nil {
		return "", "", err
	}
	return string(b), fullPath, nil
}

// DefaultOutputPath replaces the extension of inPath with .bin.
func DefaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".bin"
	}
	return strings.TrimSuffix(inPath, ext) + ".bin"
}

// DefaultStorePath is the image library location used when none is given.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "bumbam", "images.db")
}
