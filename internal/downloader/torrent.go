package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fetchbox/internal/admission"
	"fetchbox/internal/domain"
	"fetchbox/internal/swarm"
)

// runTorrent drives one swarm download. Pieces are assembled directly
// under the job's destination folder; on cancellation they are left on
// disk, since swarm downloads are large and the pieces stay usable.
func (m *manager) runTorrent(ctx context.Context, job domain.Job, source admission.TorrentSource) {
	logger := m.cfg.Logger.WithField("job_id", job.ID)

	if m.swarm == nil {
		m.failJob(job.ID, errors.New("torrent support is not configured"))
		return
	}

	// Until metadata arrives DestinationPath is the folder itself.
	folder := job.DestinationPath

	t, err := m.addToSwarm(source, folder)
	if err != nil {
		// The swarm client never started, so the job goes straight from
		// queued to error.
		m.failJob(job.ID, err)
		return
	}
	defer t.Drop()

	if _, err := m.registry.Transition(job.ID, domain.JobStatusDownloading, nil); err != nil {
		return
	}

	logger.Info("waiting for torrent metadata")
	select {
	case <-ctx.Done():
		logger.Info("job cancelled before metadata arrived")
		m.finishCancelled(job.ID)
		return
	case <-t.GotInfo():
	}

	name := admission.SanitizeFilename(t.Name())
	fullPath, err := admission.GuardPath(folder, name)
	if err != nil {
		m.failJob(job.ID, fmt.Errorf("torrent name %q: %w", t.Name(), err))
		return
	}

	total := t.Length()
	files := t.Files()
	applied := m.registry.Update(job.ID, func(j *domain.Job) {
		j.Filename = name
		j.DestinationPath = fullPath
		j.TotalBytes = total
		j.Files = make([]domain.TorrentFile, len(files))
		for i, f := range files {
			j.Files[i] = domain.TorrentFile{Path: f.Path, Size: f.Size}
		}
	})
	if !applied {
		m.finishCancelled(job.ID)
		return
	}
	logger.Infof("torrent metadata resolved: %s, %d bytes in %d files", name, total, len(files))

	t.DownloadAll()

	lastBytes := int64(0)
	lastTime := time.Now()
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("job cancelled, downloaded pieces kept on disk")
			m.finishCancelled(job.ID)
			return
		case <-ticker.C:
			completed := t.BytesCompleted()
			elapsed := time.Since(lastTime).Seconds()
			rate := int64(0)
			if elapsed > 0 {
				rate = int64(float64(completed-lastBytes) / elapsed)
			}
			lastBytes = completed
			lastTime = time.Now()
			stats := t.Stats()

			if !m.registry.Update(job.ID, func(j *domain.Job) {
				j.DownloadedBytes = completed
				j.Torrent = &domain.TorrentProgress{
					PeerCount:    stats.ActivePeers,
					DownloadRate: rate,
				}
			}) {
				// The job left downloading under us; stop sampling.
				return
			}

			if t.BytesMissing() == 0 {
				if _, err := m.registry.Transition(job.ID, domain.JobStatusDone, func(j *domain.Job) {
					j.DownloadedBytes = total
					j.Message = j.DestinationPath
				}); err == nil {
					logger.Infof("torrent completed at %s", fullPath)
				}
				return
			}
		}
	}
}

func (m *manager) addToSwarm(source admission.TorrentSource, folder string) (swarm.Torrent, error) {
	if source.Magnet != "" {
		t, err := m.swarm.AddMagnet(source.Magnet, folder)
		if err != nil {
			return nil, fmt.Errorf("add magnet: %w", err)
		}
		return t, nil
	}
	t, err := m.swarm.AddMetaInfo(source.MetaInfo, folder)
	if err != nil {
		return nil, fmt.Errorf("add torrent file: %w", err)
	}
	return t, nil
}
