package poh

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
)

// DropRecordFunc is an optional callback counting entries shed because the
// archiver's buffer was full.
type DropRecordFunc func()

type archiveJob struct {
	index int
	entry Entry
}

// Archiver copies recorder entries into an Archive on its own goroutine so
// that a slow database never stalls the chain. When the buffer is full the
// entry is dropped and logged; the in-memory chain is unaffected.
type Archiver struct {
	archive Archive
	jobs    chan archiveJob
	timeout time.Duration
	onDrop  DropRecordFunc
	logger  *zap.Logger
}

// NewArchiver creates an Archiver with room for buffer pending entries.
func NewArchiver(archive Archive, buffer int, logger *zap.Logger) *Archiver {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Archiver{
		archive: archive,
		jobs:    make(chan archiveJob, buffer),
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// SetDropRecord configures the drop counter callback.
func (a *Archiver) SetDropRecord(fn DropRecordFunc) {
	a.onDrop = fn
}

// Enqueue schedules e for archiving without blocking. It has the AppendFunc
// signature so it can be registered with Recorder.OnAppend directly.
func (a *Archiver) Enqueue(index int, e Entry) {
	select {
	case a.jobs <- archiveJob{index: index, entry: e}:
	default:
		a.logger.Warn("archive buffer full, dropping entry", zap.Int("index", index))
		if a.onDrop != nil {
			a.onDrop()
		}
	}
}

// Start drains the queue until quit is signalled, then flushes whatever is
// still buffered.
func (a *Archiver) Start(quit <-chan os.Signal) {
	for {
		select {
		case job := <-a.jobs:
			a.store(job)
		case <-quit:
			a.flush()
			return
		}
	}
}

func (a *Archiver) flush() {
	for {
		select {
		case job := <-a.jobs:
			a.store(job)
		default:
			return
		}
	}
}

func (a *Archiver) store(job archiveJob) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.archive.Append(ctx, job.index, job.entry); err != nil {
		a.logger.Error("archive entry", zap.Int("index", job.index), zap.Error(err))
	}
}
