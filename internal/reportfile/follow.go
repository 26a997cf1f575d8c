package reportfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"ctxdump/internal/render"
)

const separatorLine = render.Separator + "\n"

// Follower emits records as they are appended to a report file.
type Follower struct {
	path    string
	offset  int64
	pending strings.Builder
}

// NewFollower starts at the current end of path, so only records appended
// later are emitted. A missing file is followed from its creation.
func NewFollower(path string) *Follower {
	f := &Follower{path: filepath.Clean(path)}
	if info, err := os.Stat(f.path); err == nil {
		f.offset = info.Size()
	}
	return f
}

// Run watches the file until ctx is done, calling emit for every complete
// record. It returns nil when ctx is cancelled.
func (f *Follower) Run(ctx context.Context, emit func(Record)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so creation and rotation are seen.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if err := f.Poll(emit); err != nil {
					return err
				}
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				f.offset = 0
				f.pending.Reset()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", f.path, err)
		}
	}
}

// Poll reads whatever was appended since the last call and emits the
// records it completes.
func (f *Follower) Poll(emit func(Record)) error {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < f.offset {
		// Truncated; start over.
		f.offset = 0
		f.pending.Reset()
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.offset += int64(len(data))
	f.pending.Write(data)

	// A record is complete once its trailing blank line is followed by the
	// next separator or by the end of the data.
	text := f.pending.String()
	end := len(text)
	if !strings.HasSuffix(text, "\n\n") {
		end = strings.LastIndex(text, "\n\n"+separatorLine)
		if end < 0 {
			return nil
		}
		end += 2
	}
	complete, rest := text[:end], text[end:]
	f.pending.Reset()
	f.pending.WriteString(rest)

	records, err := Parse(strings.NewReader(complete))
	if err != nil {
		return err
	}
	for _, r := range records {
		emit(r)
	}
	return nil
}
