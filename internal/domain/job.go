package domain

import "time"

// JobKind identifies which retrieval path a job takes.
type JobKind string

const (
	JobKindHTTP    JobKind = "http"
	JobKindUpload  JobKind = "upload"
	JobKindTorrent JobKind = "torrent"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusDone        JobStatus = "done"
	JobStatusError       JobStatus = "error"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusDone, JobStatusError, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether next is a legal successor of s.
// Legal moves: queued→downloading, queued→error, queued→cancelled,
// downloading→done, downloading→error, downloading→cancelled.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusDownloading || next == JobStatusError || next == JobStatusCancelled
	case JobStatusDownloading:
		return next == JobStatusDone || next == JobStatusError || next == JobStatusCancelled
	}
	return false
}

// Job is the envelope shared by every retrieval kind. Fields that only
// make sense for one kind live in a kind-specific payload (Torrent, Files)
// so a plain HTTP job never carries swarm counters.
//
// For torrent jobs DestinationPath starts out as the destination folder
// itself; Filename and the final path are filled in once the swarm
// delivers the torrent's metadata.
type Job struct {
	ID              string
	Kind            JobKind
	Source          string // URL, magnet URI, torrent marker, or upload marker
	FolderKey       string
	DestinationPath string
	Filename        string
	Status          JobStatus
	Message         string
	TotalBytes      int64 // 0 until known
	DownloadedBytes int64
	Torrent         *TorrentProgress
	Files           []TorrentFile
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TorrentProgress carries the swarm counters sampled while a torrent job
// is downloading. Cleared once the job reaches a terminal status.
type TorrentProgress struct {
	PeerCount    int
	DownloadRate int64 // bytes per second, instantaneous
}

// TorrentFile is one file announced by a torrent's metadata.
type TorrentFile struct {
	Path string
	Size int64
}
