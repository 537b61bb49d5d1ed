package config

import (
	"os"
	"path/filepath"
)

// Paths locates Smith's on-disk files.
type Paths struct {
	Root     string // ~/.smith
	Config   string // ~/.smith/config.yaml
	Database string // ~/.smith/archive.db
	LogFile  string // ~/.smith/smith.log
}

// ResolvePaths determines the config directory, honoring SMITH_HOME.
// The directory is not created; callers create it on first write.
func ResolvePaths() (Paths, error) {
	root := os.Getenv("SMITH_HOME")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		root = filepath.Join(home, ".smith")
	}
	return Paths{
		Root:     root,
		Config:   filepath.Join(root, "config.yaml"),
		Database: filepath.Join(root, "archive.db"),
		LogFile:  filepath.Join(root, "smith.log"),
	}, nil
}
