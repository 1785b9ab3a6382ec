package config

import (
	"path"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/constants"
)

// GetConfigHomeDir returns the full path to the directory that stores config files.
func GetConfigHomeDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "unable to find home directory")
	}
	return path.Join(home, constants.ConfigDir), nil
}

// DefaultConfigFilePath returns ~/.casepipe/config.yaml.
func DefaultConfigFilePath() (string, error) {
	dir, err := GetConfigHomeDir()
	if err != nil {
		return "", err
	}
	return path.Join(dir, constants.ConfigFileName), nil
}

// ExpandPath resolves a leading ~ in p.
func ExpandPath(p string) (string, error) {
	return homedir.Expand(p)
}

// DefaultsFilePath returns ~/.casepipe/defaults.yaml, which holds default CLI flag values keyed by flag name.
func DefaultsFilePath() (string, error) {
	dir, err := GetConfigHomeDir()
	if err != nil {
		return "", err
	}
	return path.Join(dir, constants.DefaultsFileName), nil
}
