// Package fsutil resolves the model paths stored in the catalog.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ModelPathToken is replaced by the configured model root in catalog paths.
const ModelPathToken = "{model_path}"

// ExpandHome replaces a leading "~" or "~/" with the user's home directory.
// Other paths, including "~user", are returned as is.
func ExpandHome(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && rest[0] != '/' && rest[0] != filepath.Separator) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, rest), nil
}

// ExpandModelPath substitutes every ModelPathToken in path with root and
// then expands a leading '~'. An empty root leaves the token in place.
func ExpandModelPath(path, root string) (string, error) {
	if root != "" && strings.Contains(path, ModelPathToken) {
		r, err := ExpandHome(root)
		if err != nil {
			return "", err
		}
		path = strings.ReplaceAll(path, ModelPathToken, filepath.Clean(r))
	}
	return ExpandHome(path)
}
