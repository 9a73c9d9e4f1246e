package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// localName turns "dir/raremblems.json5" into "dir/raremblems.local.json5".
func localName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

func decodeFile(dst any, name string) (bool, error) {
	contents, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = json5.Unmarshal(contents, dst)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

// decodeLayers decodes the json5 file at name and then its .local sibling onto
// dst. Only the keys a file contains are written, so a field keeps its current
// value unless a file sets it, zero included. Returns os.ErrNotExist when
// neither file exists.
func decodeLayers(dst any, name string) error {
	found, err := decodeFile(dst, name)
	if err != nil {
		return err
	}
	local := localName(name)
	foundLocal, err := decodeFile(dst, local)
	if err != nil {
		return err
	}
	if foundLocal {
		slog.Debug("applied local config overrides", "local", local)
	}
	if !found && !foundLocal {
		return os.ErrNotExist
	}
	return nil
}

// decodeNearest applies decodeLayers in the closest directory, from the working
// directory up to the root, that has the file or its .local sibling. Names that
// carry a directory are only looked up there.
func decodeNearest(dst any, name string) error {
	if filepath.Base(name) != name {
		return decodeLayers(dst, name)
	}

	current, err := os.Getwd()
	if err != nil {
		return err
	}
	for {
		err = decodeLayers(dst, filepath.Join(current, name))
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return os.ErrNotExist
		}
		current = parent
	}
}
