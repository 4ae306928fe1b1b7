package util

import (
	"github.com/hetianyi/gox/file"
	"github.com/mitchellh/go-homedir"
	"path/filepath"
)

// ExpandDir expands a leading ~ and returns a cleaned absolute path.
func ExpandDir(dir string) (string, error) {
	d, err := homedir.Expand(dir)
	if err != nil {
		return "", err
	}
	return filepath.Abs(d)
}

// DefaultDataDir is where the server keeps its journal.
func DefaultDataDir() string {
	if h, err := homedir.Dir(); err == nil {
		return filepath.Join(h, ".gotftp", "data")
	}
	wd, _ := file.GetWorkDir()
	return filepath.Join(wd, "data")
}

func DefaultLogDir() string {
	if h, err := homedir.Dir(); err == nil {
		return filepath.Join(h, ".gotftp", "logs")
	}
	wd, _ := file.GetWorkDir()
	return filepath.Join(wd, "logs")
}

// DefaultRootDir is the served directory when none is configured.
func DefaultRootDir() string {
	wd, err := file.GetWorkDir()
	if err != nil {
		return "."
	}
	return wd
}
