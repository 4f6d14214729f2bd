package downloader

import (
	"errors"
	"fmt"

	"fetchbox/internal/domain"
	"fetchbox/internal/storage"
)

// RunUpload writes an already-buffered payload to the job's destination.
// It is synchronous: by the time it returns the job is done, or errored
// with the returned write failure. No cancellation handle is attached,
// there is no transfer to interrupt.
func (m *manager) RunUpload(job domain.Job, data []byte) (domain.Job, error) {
	if m.ctx == nil {
		return domain.Job{}, errors.New("manager not started")
	}

	created := m.registry.Create(job, nil)
	logger := m.cfg.Logger.WithField("job_id", created.ID)

	if _, err := m.registry.Transition(created.ID, domain.JobStatusDownloading, nil); err != nil {
		return m.currentJob(created.ID), nil
	}

	n, err := storage.WriteFile(created.DestinationPath, data)
	if err != nil {
		writeErr := fmt.Errorf("store upload: %w", err)
		m.failJob(created.ID, writeErr)
		return m.currentJob(created.ID), writeErr
	}

	final, err := m.registry.Transition(created.ID, domain.JobStatusDone, func(j *domain.Job) {
		j.TotalBytes = n
		j.DownloadedBytes = n
		j.Message = j.DestinationPath
	})
	if err != nil {
		return m.currentJob(created.ID), nil
	}
	logger.Infof("upload stored, %d bytes at %s", n, final.DestinationPath)
	return final, nil
}
