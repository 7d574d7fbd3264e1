package galleries

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/angelmondragon/shutterdesk-backend/pkg/errors"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
)

const (
	minConcurrency       = 5
	maxConcurrency       = 20
	tasksPerConcurrent   = 10
	defaultUploadTimeout = 2 * time.Minute
)

// ConcurrencyLimit is clamp(ceil(n/10), 5, 20).
func ConcurrencyLimit(n int) int {
	limit := (n + tasksPerConcurrent - 1) / tasksPerConcurrent
	if limit < minConcurrency {
		return minConcurrency
	}
	if limit > maxConcurrency {
		return maxConcurrency
	}
	return limit
}

type objectWriter interface {
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error)
}

type uploadObserver interface {
	ObserveWave(size int)
	AddUploaded(bytes int64)
}

// Executor uploads tasks in waves. Every task of a wave runs concurrently and
// the next wave starts only after the whole wave settled.
type Executor struct {
	store   objectWriter
	timeout time.Duration
	metrics uploadObserver
	logg    *logger.Logger
}

func NewExecutor(store objectWriter, timeout time.Duration, metrics uploadObserver, logg *logger.Logger) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	return &Executor{store: store, timeout: timeout, metrics: metrics, logg: logg}, nil
}

// Run uploads tasks with at most limit in flight; limit <= 0 uses
// ConcurrencyLimit(len(tasks)). onProgress is called once per settled wave
// with the number of completed tasks.
//
// The returned slice always has len(tasks) entries. When a task fails the
// current wave is allowed to settle, later waves are skipped and the error of
// the lowest failing index is returned; slots of settled tasks stay filled so
// the caller can remove what was uploaded.
//
// Cancelling ctx stops new waves from starting. Uploads already in flight run
// to completion or to the per-task timeout.
func (e *Executor) Run(ctx context.Context, tasks []UploadTask, limit int, onProgress func(done, total int)) ([]UploadResult, error) {
	total := len(tasks)
	results := make([]UploadResult, total)
	for i, task := range tasks {
		results[i] = UploadResult{Task: task, Err: ErrNotStarted}
	}
	if total == 0 {
		return results, nil
	}
	if limit <= 0 {
		limit = ConcurrencyLimit(total)
	}

	done := 0
	for start, wave := 0, 0; start < total; start, wave = start+limit, wave+1 {
		if err := ctx.Err(); err != nil {
			return results, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "publish canceled")
		}
		end := start + limit
		if end > total {
			end = total
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				url, err := e.upload(ctx, tasks[i])
				if err != nil {
					results[i] = UploadResult{Task: tasks[i], Err: err}
					return err
				}
				results[i] = UploadResult{Task: tasks[i], PublicURL: url}
				return nil
			})
		}
		waveErr := g.Wait()

		if e.metrics != nil {
			e.metrics.ObserveWave(end - start)
		}
		failed := -1
		for i := start; i < end; i++ {
			if results[i].Succeeded() {
				done++
				if e.metrics != nil {
					e.metrics.AddUploaded(tasks[i].Source.Size)
				}
			} else if failed < 0 {
				failed = i
			}
		}

		logCtx := e.logg.WithFields(ctx, map[string]any{
			"wave":      wave,
			"wave_size": end - start,
			"done":      done,
			"total":     total,
		})
		e.logg.Info(logCtx, "upload wave settled")

		if waveErr != nil && failed >= 0 {
			name := tasks[failed].Source.Name
			return results, pkgerrors.Wrap(pkgerrors.CodeDependency, results[failed].Err, fmt.Sprintf("upload failed for %s", name)).
				WithDetails(map[string]any{"file": name, "index": failed})
		}
		if onProgress != nil {
			onProgress(done, total)
		}
	}
	return results, nil
}

func (e *Executor) upload(ctx context.Context, task UploadTask) (string, error) {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if task.Source.Open == nil {
		return "", errors.New("file has no content")
	}
	body, err := task.Source.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", task.Source.Name, err)
	}
	defer body.Close()

	type putResult struct {
		url string
		err error
	}
	ch := make(chan putResult, 1)
	go func() {
		url, err := e.store.Put(taskCtx, task.DestinationPath, body, task.Source.Size, task.Source.ContentType)
		ch <- putResult{url: url, err: err}
	}()

	select {
	case res := <-ch:
		return res.url, res.err
	case <-taskCtx.Done():
		return "", fmt.Errorf("upload timed out after %s: %w", e.timeout, taskCtx.Err())
	}
}
