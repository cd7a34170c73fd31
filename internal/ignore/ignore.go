// Package ignore implements the path-ignore engine: a name filter matched
// per path component against user-configured glob patterns, and a path
// filter that resolves a configured directory list to a set of
// (device-id, inode) pairs at load time. Both filters gate reloads on the
// SHA-256 of their source text, so an unchanged config never re-walks or
// re-compiles anything.
package ignore

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DirID identifies a directory by the same (device-id, inode) pair the
// catalog uses, so a bind mount or symlink loop back into an ignored tree
// is caught even if reached by a different path string.
type DirID struct {
	DeviceID uint64
	Inode    uint64
}

// StatFunc abstracts directory identification for testability; production
// callers pass a function backed by os.Stat + platform-specific
// device/inode extraction.
type StatFunc func(path string) (DirID, error)

// Engine holds both filters. It is safe for concurrent use: Reload takes an
// exclusive lock, IsNameIgnored/IsPathIgnored take a read lock.
type Engine struct {
	mu sync.RWMutex

	namePatterns   []string
	nameSourceSum  [sha256.Size]byte
	pathSourceSum  [sha256.Size]byte
	pathIgnoreDirs map[DirID]struct{}

	stat StatFunc
}

// New creates an empty Engine. Call Reload to populate it.
func New(stat StatFunc) *Engine {
	return &Engine{stat: stat}
}

// ReloadNamePatterns recompiles the name filter from a semicolon-separated
// pattern list, unless patterns is byte-identical to what's already loaded
// (checked via SHA-256 of the source text, not a string compare, matching
// the "consult source text's SHA-256" contract so the check is cheap even
// for a pattern list assembled from several config sources).
func (e *Engine) ReloadNamePatterns(patterns string) {
	sum := sha256.Sum256([]byte(patterns))

	e.mu.Lock()
	defer e.mu.Unlock()

	if sum == e.nameSourceSum {
		return
	}

	e.nameSourceSum = sum
	e.namePatterns = splitNonEmpty(patterns)
}

// ReloadPathIgnores resolves a semicolon-separated directory path list
// (with $HOME already expanded by the caller) to a set of (device, inode)
// pairs, skipping the walk entirely if the source text is unchanged.
// Directories that fail to stat (already gone, permission denied) are
// silently dropped from the set rather than erroring the whole reload.
func (e *Engine) ReloadPathIgnores(pathList string) error {
	sum := sha256.Sum256([]byte(pathList))

	e.mu.RLock()
	unchanged := sum == e.pathSourceSum
	e.mu.RUnlock()

	if unchanged {
		return nil
	}

	dirs := make(map[DirID]struct{})

	for _, p := range splitNonEmpty(pathList) {
		id, err := e.stat(p)
		if err != nil {
			continue
		}

		dirs[id] = struct{}{}
	}

	e.mu.Lock()
	e.pathSourceSum = sum
	e.pathIgnoreDirs = dirs
	e.mu.Unlock()

	return nil
}

// IsNameIgnored reports whether name (one path component, not a full path)
// matches any configured glob pattern.
func (e *Engine) IsNameIgnored(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, pattern := range e.namePatterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}

	return false
}

// IsPathIgnored reports whether dir is (or is inside) one of the
// configured ignore directories: dir and then each of its ancestors is
// looked up in the ignore set, a map keyed by DirID.
func (e *Engine) IsPathIgnored(dir DirID, ancestors []DirID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, ok := e.pathIgnoreDirs[dir]; ok {
		return true
	}

	for _, a := range ancestors {
		if _, ok := e.pathIgnoreDirs[a]; ok {
			return true
		}
	}

	return false
}

func splitNonEmpty(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}

	return out
}

// StatDirID is the production StatFunc: os.Stat plus platform device/inode
// extraction, supplied by dirid_unix.go / dirid_other.go.
func StatDirID(path string) (DirID, error) {
	info, err := os.Stat(path)
	if err != nil {
		return DirID{}, fmt.Errorf("ignore: stat %s: %w", path, err)
	}

	return dirIDFromFileInfo(info)
}
