package intake

import (
	"context"
	"sync"

	"github.com/margot-dms/margot/internal/assembly"
	"github.com/margot-dms/margot/internal/models"
	"go.uber.org/zap"
)

const queueCapacity = 256

// PageSource extracts the page payloads of one file.
type PageSource interface {
	ExtractPages(ctx context.Context, path string) ([]models.PageSubmission, error)
}

// Processor consumes one page submission.
type Processor interface {
	ProcessPage(ctx context.Context, page models.PageSubmission) (assembly.Outcome, error)
}

// Loop connects the watcher to the engine: one queue, one consumer
// goroutine, so pages reach the engine strictly one at a time. Per-file
// failures are logged and never stop the loop.
type Loop struct {
	watcher   *Watcher
	extractor PageSource
	engine    Processor
	queue     chan string
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(l *zap.Logger) LoopOption {
	return func(lp *Loop) { lp.logger = l }
}

// NewLoop creates the intake loop over scanDir. extensions filter which
// files are picked up.
func NewLoop(scanDir string, extensions []string, extractor PageSource, engine Processor, opts ...LoopOption) *Loop {
	l := &Loop{
		extractor: extractor,
		engine:    engine,
		queue:     make(chan string, queueCapacity),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.watcher = NewWatcher(scanDir, extensions, l.enqueue, WithWatcherLogger(l.logger))
	return l
}

// Start begins watching and processing. Files already present in the scan
// directory are queued first. Runs until ctx is cancelled.
func (l *Loop) Start(ctx context.Context) error {
	if err := l.watcher.Start(ctx); err != nil {
		return err
	}
	l.wg.Add(1)
	go l.consume(ctx)
	go l.watcher.SyncExistingFiles()
	l.logger.Info("intake loop started")
	return nil
}

// Stop stops the watcher and waits for the in-flight file to finish.
func (l *Loop) Stop() {
	l.watcher.Stop()
	close(l.queue)
	l.wg.Wait()
}

func (l *Loop) enqueue(path string) {
	defer func() {
		// The watcher may fire after Stop closed the queue.
		if recover() != nil {
			l.logger.Debug("file arrived after shutdown", zap.String("path", path))
		}
	}()
	select {
	case l.queue <- path:
	default:
		l.logger.Warn("intake queue full, dropping file until next sync",
			zap.String("path", path))
	}
}

func (l *Loop) consume(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-l.queue:
			if !ok {
				return
			}
			l.processFile(ctx, path)
		}
	}
}

func (l *Loop) processFile(ctx context.Context, path string) {
	l.logger.Info("processing file", zap.String("path", path))
	pages, err := l.extractor.ExtractPages(ctx, path)
	if err != nil {
		l.logger.Error("extraction failed, file skipped",
			zap.String("path", path), zap.Error(err))
		return
	}
	for _, page := range pages {
		outcome, err := l.engine.ProcessPage(ctx, page)
		if err != nil {
			l.logger.Error("page processing failed",
				zap.String("path", path),
				zap.Int("page", page.PageIndex),
				zap.Error(err),
			)
			continue
		}
		l.logger.Info("page processed",
			zap.String("path", path),
			zap.Int("page", page.PageIndex),
			zap.String("action", string(outcome.Action)),
			zap.String("document_id", outcome.DocumentID),
		)
	}
}
