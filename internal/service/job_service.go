package service

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fetchbox/internal/admission"
	"fetchbox/internal/domain"
	"fetchbox/internal/downloader"
	"fetchbox/internal/registry"
)

const (
	// uploadSource marks upload jobs, which have no remote origin.
	uploadSource = "upload"
	// torrentFileSource marks torrent jobs admitted from raw file bytes
	// rather than a magnet link.
	torrentFileSource = "torrent-file"
)

// JobService is the surface the route layer talks to: admission of new
// jobs and read/cancel access to existing ones. Admission errors are
// *admission.Error values; lookups and cancels surface the registry's
// sentinel errors.
type JobService interface {
	AdmitHTTPJob(url, folderKey, filenameOverride string) (domain.Job, error)
	AdmitUploadJob(data []byte, originalName, folderKey, filenameOverride string) (domain.Job, error)
	AdmitTorrentJob(magnet string, torrentFile []byte, folderKey string) (domain.Job, error)
	GetJob(id string) (domain.Job, error)
	ListJobs() []domain.Job
	CancelJob(id string) (domain.Job, error)
	FolderKeys() []string
}

type jobService struct {
	pipeline *admission.Pipeline
	registry *registry.Registry
	manager  downloader.Manager
	logger   *logrus.Logger
}

func NewJobService(pipeline *admission.Pipeline, reg *registry.Registry, manager downloader.Manager, logger *logrus.Logger) JobService {
	if logger == nil {
		logger = logrus.New()
	}
	return &jobService{
		pipeline: pipeline,
		registry: reg,
		manager:  manager,
		logger:   logger,
	}
}

func (s *jobService) AdmitHTTPJob(url, folderKey, filenameOverride string) (domain.Job, error) {
	resolved, err := s.pipeline.AdmitHTTP(url, folderKey, filenameOverride)
	if err != nil {
		return domain.Job{}, err
	}

	job := domain.Job{
		ID:              uuid.NewString(),
		Kind:            domain.JobKindHTTP,
		Source:          url,
		FolderKey:       resolved.FolderKey,
		DestinationPath: resolved.Path,
		Filename:        resolved.Filename,
	}
	created, err := s.manager.LaunchHTTP(job)
	if err != nil {
		return domain.Job{}, err
	}
	s.logger.WithField("job_id", created.ID).Infof("admitted http job for %s", url)
	return created, nil
}

func (s *jobService) AdmitUploadJob(data []byte, originalName, folderKey, filenameOverride string) (domain.Job, error) {
	resolved, err := s.pipeline.AdmitUpload(int64(len(data)), originalName, folderKey, filenameOverride)
	if err != nil {
		return domain.Job{}, err
	}

	job := domain.Job{
		ID:              uuid.NewString(),
		Kind:            domain.JobKindUpload,
		Source:          uploadSource,
		FolderKey:       resolved.FolderKey,
		DestinationPath: resolved.Path,
		Filename:        resolved.Filename,
	}
	stored, err := s.manager.RunUpload(job, data)
	if err != nil {
		return stored, err
	}
	s.logger.WithField("job_id", stored.ID).Infof("stored upload %s", stored.Filename)
	return stored, nil
}

func (s *jobService) AdmitTorrentJob(magnet string, torrentFile []byte, folderKey string) (domain.Job, error) {
	source, resolved, err := s.pipeline.AdmitTorrent(magnet, torrentFile, folderKey)
	if err != nil {
		return domain.Job{}, err
	}

	descriptor := source.Magnet
	if descriptor == "" {
		descriptor = torrentFileSource
	}
	job := domain.Job{
		ID:        uuid.NewString(),
		Kind:      domain.JobKindTorrent,
		Source:    descriptor,
		FolderKey: resolved.FolderKey,
		// The folder itself, until swarm metadata names the content.
		DestinationPath: resolved.Folder,
	}
	created, err := s.manager.LaunchTorrent(job, source)
	if err != nil {
		return domain.Job{}, err
	}
	s.logger.WithField("job_id", created.ID).Info("admitted torrent job")
	return created, nil
}

func (s *jobService) GetJob(id string) (domain.Job, error) {
	return s.registry.Get(id)
}

func (s *jobService) ListJobs() []domain.Job {
	return s.registry.List()
}

func (s *jobService) CancelJob(id string) (domain.Job, error) {
	job, err := s.registry.Cancel(id)
	if err != nil {
		return job, err
	}
	s.logger.WithField("job_id", id).Info("job cancelled by user")
	return job, nil
}

func (s *jobService) FolderKeys() []string {
	return s.pipeline.Folders()
}
