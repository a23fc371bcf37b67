package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"
)

// ErrNullManifest is returned by Decode for a JSON null.
var ErrNullManifest = errors.New("manifest: null is not a manifest")

// Decode reads a JSON object mapping template names to Unix modification
// times. A JSON null is rejected; an empty object is a manifest with no
// dependencies.
func Decode(r io.Reader) (map[string]int64, error) {
	var deps map[string]int64
	if err := json.NewDecoder(r).Decode(&deps); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if deps == nil {
		return nil, ErrNullManifest
	}
	return deps, nil
}

// Encode writes deps as an indented JSON object.
func Encode(w io.Writer, deps map[string]int64) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(deps)
}

// ReadFile loads a manifest written by WriteFile.
func ReadFile(path string) (map[string]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)
	return Decode(file)
}

// WriteFile stores deps at path. The file is replaced atomically, so a reader
// never sees a partially written manifest.
func WriteFile(path string, deps map[string]int64) error {
	var buf bytes.Buffer
	if err := Encode(&buf, deps); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}
