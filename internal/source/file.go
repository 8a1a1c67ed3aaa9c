package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/logging"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TypeFile is the registry key of the file tail emitter.
const TypeFile = "file"

// FileProperties configures the file tail emitter.
type FileProperties struct {
	Paths   []string `json:"paths"`
	Exclude []string `json:"exclude,omitempty"`
	Monitoring
}

// File tails files matching glob patterns and emits every appended line.
type File struct {
	*emitter.Accepting
	props FileProperties
	run   runner
}

// NewFile creates a file tail emitter.
func NewFile(id model.Identity, props FileProperties, log logging.Facade) *File {
	f := &File{props: props}
	f.Accepting = emitter.NewAccepting(id.ID, id.Name, id.Description, f, props.Monitoring.options(log)...)
	return f
}

// FileFactory builds file tail emitters.
func FileFactory(log logging.Facade) emitter.FactoryFunc {
	return func(ctx context.Context, desc model.Description) (emitter.Emitter, error) {
		var props FileProperties
		if err := decodeProperties(desc.EmitterProperties, &props); err != nil {
			return nil, err
		}
		if len(props.Paths) == 0 {
			return nil, fmt.Errorf("file emitter %q needs at least one path", desc.ID)
		}
		for _, pattern := range props.Paths {
			if _, err := filepath.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
			}
		}
		return NewFile(desc.Identity(), props, log), nil
	}
}

// Type implements emitter.Kind.
func (f *File) Type() string { return TypeFile }

// MetaData implements emitter.Kind.
func (f *File) MetaData() any { return map[string]any{"paths": f.props.Paths} }

// EmitterProperties implements emitter.PropertiesProvider.
func (f *File) EmitterProperties() any {
	props := f.props
	props.Monitoring = props.Monitoring.live(f.Base)
	return props
}

// Start begins tailing. Lines written before Start are skipped.
func (f *File) Start(ctx context.Context) error {
	if err := f.Accepting.Start(ctx); err != nil {
		return err
	}

	watcher, positions, err := f.watch()
	if err != nil {
		f.Reject(err)
		return err
	}

	if !f.run.start(ctx, func(ctx context.Context) error {
		defer watcher.Close()
		return f.tail(ctx, watcher, positions)
	}, f.Reject) {
		watcher.Close() // already tailing
	}
	return nil
}

// Stop stops tailing and waits for the watcher to close.
func (f *File) Stop(ctx context.Context) error {
	f.run.stop()
	return f.Accepting.Stop(ctx)
}

// Dispose stops tailing and releases the emitter.
func (f *File) Dispose() {
	f.run.stop()
	f.Accepting.Dispose()
}

// watch sets up the watcher on every matching file and its directory.
func (f *File) watch() (*fsnotify.Watcher, map[string]int64, error) {
	var files []string
	for _, pattern := range f.props.Paths {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	files = f.filterExcluded(files)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("creating file watcher: %w", err)
	}

	positions := make(map[string]int64)
	dirs := make(map[string]struct{})
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		positions[file] = info.Size()
		if err := watcher.Add(file); err != nil {
			watcher.Close()
			return nil, nil, fmt.Errorf("watching file %q: %w", file, err)
		}
		dirs[filepath.Dir(file)] = struct{}{}
	}

	// Directories of the patterns catch files created later.
	for _, pattern := range f.props.Paths {
		dirs[filepath.Dir(pattern)] = struct{}{}
	}
	for dir := range dirs {
		_ = watcher.Add(dir)
	}

	f.Log(logging.LevelDebug, fmt.Sprintf("tailing %d files", len(positions)))
	return watcher, positions, nil
}

func (f *File) tail(ctx context.Context, watcher *fsnotify.Watcher, positions map[string]int64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Rotation: a new file replaces the old one.
			if event.Has(fsnotify.Create) && f.matchesPatterns(event.Name) && !f.isExcluded(event.Name) {
				positions[event.Name] = 0
				_ = watcher.Add(event.Name)
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				pos, tracked := positions[event.Name]
				if !tracked {
					continue
				}
				newPos, err := f.readNewLines(ctx, event.Name, pos)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return err
					}
					f.Reject(fmt.Errorf("reading %s: %w", event.Name, err))
					continue
				}
				positions[event.Name] = newPos
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.Reject(fmt.Errorf("watching files: %w", err))
		}
	}
}

// readNewLines emits content appended since pos and returns the new offset.
func (f *File) readNewLines(ctx context.Context, path string, pos int64) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return pos, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return pos, err
	}
	if info.Size() < pos {
		pos = 0 // truncated
	}

	if _, err := file.Seek(pos, io.SeekStart); err != nil {
		return pos, err
	}

	reader := bufio.NewReader(file)
	for {
		if ctx.Err() != nil {
			return pos, ctx.Err()
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			// A partial line is left for the next write event.
			if errors.Is(err, io.EOF) {
				return pos, nil
			}
			return pos, err
		}
		pos += int64(len(line))
		f.Accept(map[string]any{
			"line": trimNewline(line),
			"file": path,
		})
	}
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
		if n := len(s); n > 0 && s[n-1] == '\r' {
			s = s[:n-1]
		}
	}
	return s
}

// filterExcluded removes files matching exclude patterns.
func (f *File) filterExcluded(files []string) []string {
	if len(f.props.Exclude) == 0 {
		return files
	}
	var result []string
	for _, file := range files {
		if !f.isExcluded(file) {
			result = append(result, file)
		}
	}
	return result
}

// isExcluded checks if a file matches any exclude pattern.
func (f *File) isExcluded(file string) bool {
	for _, pattern := range f.props.Exclude {
		if matched, _ := filepath.Match(pattern, filepath.Base(file)); matched {
			return true
		}
	}
	return false
}

// matchesPatterns checks if a file matches any configured path pattern.
func (f *File) matchesPatterns(file string) bool {
	for _, pattern := range f.props.Paths {
		if matched, _ := filepath.Match(pattern, file); matched {
			return true
		}
	}
	return false
}
