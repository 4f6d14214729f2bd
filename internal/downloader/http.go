package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"fetchbox/internal/domain"
	"fetchbox/internal/storage"
)

// progressChunkFloor is the smallest byte delta worth a registry write.
const progressChunkFloor = 512 * 1024

// runHTTP streams job.Source to job.DestinationPath. The cancellation
// signal is polled between chunks; observing it discards the staged part
// file so nothing partial survives near the destination. Transfer errors
// leave the part file alone.
func (m *manager) runHTTP(ctx context.Context, job domain.Job) {
	logger := m.cfg.Logger.WithField("job_id", job.ID)

	if _, err := m.registry.Transition(job.ID, domain.JobStatusDownloading, nil); err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.Source, nil)
	if err != nil {
		m.failJob(job.ID, fmt.Errorf("build request: %w", err))
		return
	}

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("job cancelled during connect")
			m.finishCancelled(job.ID)
			return
		}
		m.failJob(job.ID, fmt.Errorf("fetch %s: %w", job.Source, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.failJob(job.ID, fmt.Errorf("unexpected status: %s", resp.Status))
		return
	}

	writer, err := storage.BeginWrite(job.DestinationPath)
	if err != nil {
		m.failJob(job.ID, err)
		return
	}

	total := resp.ContentLength
	if total > 0 {
		m.registry.Update(job.ID, func(j *domain.Job) { j.TotalBytes = total })
	}

	throttle := newProgressThrottle(total)
	var transferred int64
	buf := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			writer.Discard()
			logger.Info("job cancelled, partial file removed")
			m.finishCancelled(job.ID)
			return
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := writer.Write(buf[:n]); writeErr != nil {
				writer.Close()
				m.failJob(job.ID, fmt.Errorf("write file: %w", writeErr))
				return
			}
			transferred += int64(n)
			if throttle.add(int64(n)) {
				m.registry.Update(job.ID, func(j *domain.Job) { j.DownloadedBytes = transferred })
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				writer.Discard()
				logger.Info("job cancelled, partial file removed")
				m.finishCancelled(job.ID)
				return
			}
			writer.Close()
			m.failJob(job.ID, fmt.Errorf("read body: %w", readErr))
			return
		}
	}

	// A cancellation that lands after the last chunk still wins: discard
	// instead of promoting.
	select {
	case <-ctx.Done():
		writer.Discard()
		logger.Info("job cancelled, partial file removed")
		m.finishCancelled(job.ID)
		return
	default:
	}

	if err := writer.Commit(); err != nil {
		m.failJob(job.ID, err)
		return
	}

	if _, err := m.registry.Transition(job.ID, domain.JobStatusDone, func(j *domain.Job) {
		j.TotalBytes = transferred
		j.DownloadedBytes = transferred
		j.Message = j.DestinationPath
	}); err != nil {
		return
	}
	logger.Infof("download completed, %d bytes at %s", transferred, job.DestinationPath)
}

// progressThrottle batches progress writes so a fast link does not flood
// the registry. Reports are due every max(1% of total, 512 KiB); with an
// unknown total every chunk reports, keeping small transfers responsive.
type progressThrottle struct {
	step    int64
	pending int64
}

func newProgressThrottle(total int64) *progressThrottle {
	if total <= 0 {
		return &progressThrottle{}
	}
	step := total / 100
	if step < progressChunkFloor {
		step = progressChunkFloor
	}
	return &progressThrottle{step: step}
}

// add accumulates n transferred bytes and reports whether an update is
// due.
func (t *progressThrottle) add(n int64) bool {
	if t.step == 0 {
		return true
	}
	t.pending += n
	if t.pending < t.step {
		return false
	}
	t.pending = 0
	return true
}
