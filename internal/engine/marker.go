package engine

import (
	"os"
	"path/filepath"
	"strings"
)

// markerFileName records which backend a store directory belongs to,
// so reopening it with a different requested backend name fails
// loudly instead of silently misreading the directory.
const markerFileName = ".engine"

// KvsEngineName is the name of the only backend this package
// implements. Other names are accepted by resolveEngineMarker purely
// so a directory belonging to a different, hypothetical backend can be
// rejected with WrongEngineTypeError rather than silently misread.
const KvsEngineName = "kvs"

// supportedEngineNames lists every backend name resolveEngineMarker
// will accept as a request, independent of whether this process can
// actually open that backend. Only "kvs" is implemented here; "sled"
// exists so a switch away from "kvs" can be exercised end-to-end
// against a real, recognized-but-unimplemented-here name.
var supportedEngineNames = map[string]bool{
	"kvs":  true,
	"sled": true,
}

// resolveEngineMarker reads (or writes) dir/.engine and reconciles it
// against requested, the backend name the caller asked for ("" means
// "no preference, use whatever is recorded").
func resolveEngineMarker(dir, requested string) (resolved string, err error) {
	if requested != "" && !supportedEngineNames[requested] {
		return "", &UnknownEngineTypeError{Name: requested}
	}

	path := filepath.Join(dir, markerFileName)

	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		recorded := strings.TrimSpace(string(existing))
		if requested != "" && requested != recorded {
			return "", &WrongEngineTypeError{Wanted: requested, Got: recorded}
		}
		return recorded, nil

	case os.IsNotExist(err):
		resolved = requested
		if resolved == "" {
			resolved = KvsEngineName
		}
		if writeErr := os.WriteFile(path, []byte(resolved), 0644); writeErr != nil {
			return "", writeErr
		}
		return resolved, nil

	default:
		return "", err
	}
}
