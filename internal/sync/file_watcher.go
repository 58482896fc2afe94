package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	eventBufferSize        = 64
	defaultDebounceTimeout = 500 * time.Millisecond
)

// FileWatcher watches the source tree recursively and coalesces bursts of
// filesystem events into single change signals.
type FileWatcher struct {
	watchDir  string
	rawEvents chan notify.EventInfo
	events    chan struct{}
	debounce  time.Duration
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir: watchDir,
		debounce: defaultDebounceTimeout,
		done:     make(chan struct{}),
	}
}

// SetDebounceTimeout sets how long the watcher waits for a burst of events
// to settle before signaling.
func (fw *FileWatcher) SetDebounceTimeout(timeout time.Duration) {
	fw.debounce = timeout
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.events = make(chan struct{}, 1)

	recursivePath := fw.watchDir + "/..."
	if err := notify.Watch(recursivePath, fw.rawEvents, notify.All); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.debounceEvents(ctx)
	return nil
}

// Events yields one signal per settled burst of source changes.
func (fw *FileWatcher) Events() <-chan struct{} {
	return fw.events
}

func (fw *FileWatcher) Stop() {
	slog.Info("file watcher stop")
	notify.Stop(fw.rawEvents)
	close(fw.done)
	fw.wg.Wait()
}

func (fw *FileWatcher) debounceEvents(ctx context.Context) {
	defer fw.wg.Done()

	timer := time.NewTimer(fw.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			slog.Debug("file watcher event", "path", event.Path(), "event", event.Event())
			timer.Reset(fw.debounce)
		case <-timer.C:
			select {
			case fw.events <- struct{}{}:
			default:
				// a signal is already pending
			}
		}
	}
}
