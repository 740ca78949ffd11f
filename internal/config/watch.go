package config

import (
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/agentmesh/runtime/internal/logging"
)

// MtimesNs returns the modification times, in nanoseconds, of the global and
// agent config files. A missing file reports 0. The Agent Registry compares
// this pair against its cached value on every get_runtime call as the
// correctness fallback for reload detection, independent of the fsnotify
// fast path.
func MtimesNs(globalPath, agentPath string) (globalNs, agentNs int64) {
	return mtimeNs(globalPath), mtimeNs(agentPath)
}

func mtimeNs(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// Watcher drives fast-path reload notifications via fsnotify. It is a
// best-effort optimization: missed or coalesced events are always caught by
// the mtime_ns comparison the caller performs independently, so a Watcher
// that fails to start is not fatal.
type Watcher struct {
	fsw    *fsnotify.Watcher
	notify chan string
}

// NewWatcher starts watching the given config file paths (any may not yet
// exist; fsnotify watches their parent directories and filters by name).
func NewWatcher(paths ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, notify: make(chan string, 16)}

	dirs := map[string]struct{}{}
	names := map[string]struct{}{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		names[p] = struct{}{}
		dirs[dirOf(p)] = struct{}{}
	}
	for d := range dirs {
		if d == "" {
			continue
		}
		if err := fsw.Add(d); err != nil {
			logging.Warn().Err(err).Str("dir", d).Msg("config watcher failed to watch directory")
		}
	}

	go w.run(names)
	return w, nil
}

func (w *Watcher) run(names map[string]struct{}) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				close(w.notify)
				return
			}
			if _, watched := names[ev.Name]; !watched {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.notify <- ev.Name:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// Events returns the channel on which changed-file paths are delivered.
func (w *Watcher) Events() <-chan string {
	return w.notify
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
