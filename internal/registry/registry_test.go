package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchbox/internal/domain"
	"fetchbox/internal/registry"
)

func newJob(id string) domain.Job {
	return domain.Job{
		ID:              id,
		Kind:            domain.JobKindHTTP,
		Source:          "https://example.com/" + id,
		FolderKey:       "files",
		DestinationPath: "/data/files/" + id,
		Filename:        id,
	}
}

func TestCreateStampsQueued(t *testing.T) {
	reg := registry.New(0)
	job := reg.Create(newJob("a"), nil)

	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)

	got, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestGetNotFound(t *testing.T) {
	reg := registry.New(0)
	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestTransitionWalksTheGraph(t *testing.T) {
	reg := registry.New(0)
	reg.Create(newJob("a"), nil)

	job, err := reg.Transition("a", domain.JobStatusDownloading, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDownloading, job.Status)

	job, err = reg.Transition("a", domain.JobStatusDone, func(j *domain.Job) {
		j.Message = j.DestinationPath
		j.DownloadedBytes = 42
		j.TotalBytes = 42
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.EqualValues(t, 42, job.DownloadedBytes)
}

func TestTransitionQueuedToError(t *testing.T) {
	// An engine that fails before it ever starts moves the job straight
	// from queued to error.
	reg := registry.New(0)
	reg.Create(newJob("a"), nil)

	job, err := reg.Transition("a", domain.JobStatusError, func(j *domain.Job) {
		j.Message = "swarm client init failed"
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, job.Status)
	assert.Equal(t, "swarm client init failed", job.Message)
}

func TestTransitionRefusedOnceTerminal(t *testing.T) {
	reg := registry.New(0)
	reg.Create(newJob("a"), nil)
	_, err := reg.Transition("a", domain.JobStatusCancelled, nil)
	require.NoError(t, err)

	job, err := reg.Transition("a", domain.JobStatusDownloading, nil)
	assert.ErrorIs(t, err, registry.ErrTerminal)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)

	_, err = reg.Transition("a", domain.JobStatusDone, nil)
	assert.ErrorIs(t, err, registry.ErrTerminal)
}

func TestTransitionRefusesIllegalMoveFromLiveJob(t *testing.T) {
	// queued cannot jump straight to done. The refusal names the illegal
	// move rather than claiming the job is terminal, and leaves the
	// record untouched.
	reg := registry.New(0)
	reg.Create(newJob("a"), nil)

	job, err := reg.Transition("a", domain.JobStatusDone, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, registry.ErrTerminal)
	assert.Contains(t, err.Error(), "illegal transition: queued to done")
	assert.Equal(t, domain.JobStatusQueued, job.Status)

	_, err = reg.Transition("a", domain.JobStatusDownloading, nil)
	require.NoError(t, err)
}

func TestTransitionNotFound(t *testing.T) {
	reg := registry.New(0)
	_, err := reg.Transition("missing", domain.JobStatusDownloading, nil)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestUpdateOnlyWhileDownloading(t *testing.T) {
	reg := registry.New(0)
	reg.Create(newJob("a"), nil)

	// Still queued: progress writes are refused.
	assert.False(t, reg.Update("a", func(j *domain.Job) { j.DownloadedBytes = 1 }))

	_, err := reg.Transition("a", domain.JobStatusDownloading, nil)
	require.NoError(t, err)
	assert.True(t, reg.Update("a", func(j *domain.Job) { j.DownloadedBytes = 10 }))

	job, err := reg.Get("a")
	require.NoError(t, err)
	assert.EqualValues(t, 10, job.DownloadedBytes)

	// A late write racing the terminal transition is a silent no-op.
	_, err = reg.Transition("a", domain.JobStatusDone, nil)
	require.NoError(t, err)
	assert.False(t, reg.Update("a", func(j *domain.Job) { j.DownloadedBytes = 999 }))

	job, err = reg.Get("a")
	require.NoError(t, err)
	assert.EqualValues(t, 10, job.DownloadedBytes)
}

func TestCancelFiresHandleOnce(t *testing.T) {
	reg := registry.New(0)
	fired := 0
	reg.Create(newJob("a"), func() { fired++ })

	job, err := reg.Cancel("a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	assert.Equal(t, "cancelled by user", job.Message)
	assert.Equal(t, 1, fired)

	// Second cancel conflicts and does not fire the handle again.
	job, err = reg.Cancel("a")
	assert.ErrorIs(t, err, registry.ErrTerminal)
	assert.Contains(t, err.Error(), "already cancelled")
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	assert.Equal(t, 1, fired)
}

func TestCancelWhileDownloading(t *testing.T) {
	reg := registry.New(0)
	fired := false
	reg.Create(newJob("a"), func() { fired = true })
	_, err := reg.Transition("a", domain.JobStatusDownloading, nil)
	require.NoError(t, err)

	job, err := reg.Cancel("a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	assert.True(t, fired)
}

func TestCancelNotFound(t *testing.T) {
	reg := registry.New(0)
	_, err := reg.Cancel("missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestCancelConflictOnDone(t *testing.T) {
	reg := registry.New(0)
	reg.Create(newJob("a"), nil)
	_, err := reg.Transition("a", domain.JobStatusDownloading, nil)
	require.NoError(t, err)
	_, err = reg.Transition("a", domain.JobStatusDone, nil)
	require.NoError(t, err)

	_, err = reg.Cancel("a")
	assert.ErrorIs(t, err, registry.ErrTerminal)
	assert.Contains(t, err.Error(), "already done")
}

func TestTerminalClearsSwarmCounters(t *testing.T) {
	reg := registry.New(0)
	job := newJob("a")
	job.Kind = domain.JobKindTorrent
	reg.Create(job, nil)

	_, err := reg.Transition("a", domain.JobStatusDownloading, nil)
	require.NoError(t, err)
	require.True(t, reg.Update("a", func(j *domain.Job) {
		j.Torrent = &domain.TorrentProgress{PeerCount: 12, DownloadRate: 1024}
		j.Files = []domain.TorrentFile{{Path: "a/b.bin", Size: 9}}
	}))

	got, err := reg.Transition("a", domain.JobStatusDone, nil)
	require.NoError(t, err)
	assert.Nil(t, got.Torrent)
	// The file list is metadata, not a live counter; it survives.
	assert.Len(t, got.Files, 1)
}

func TestListNewestFirst(t *testing.T) {
	reg := registry.New(0)
	reg.Create(newJob("a"), nil)
	reg.Create(newJob("b"), nil)

	jobs := reg.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0].ID)
	assert.Equal(t, "a", jobs[1].ID)
}

func TestReturnedJobsAreCopies(t *testing.T) {
	reg := registry.New(0)
	reg.Create(newJob("a"), nil)
	_, err := reg.Transition("a", domain.JobStatusDownloading, nil)
	require.NoError(t, err)
	require.True(t, reg.Update("a", func(j *domain.Job) {
		j.Torrent = &domain.TorrentProgress{PeerCount: 3}
	}))

	job, err := reg.Get("a")
	require.NoError(t, err)
	job.Torrent.PeerCount = 99
	job.Message = "scribbled"

	fresh, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Torrent.PeerCount)
	assert.Empty(t, fresh.Message)
}

func TestRetentionEvictsTerminalJobs(t *testing.T) {
	reg := registry.New(20 * time.Millisecond)
	reg.Create(newJob("a"), nil)
	reg.Create(newJob("b"), nil)

	_, err := reg.Cancel("a")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := reg.Get("a")
		return err != nil
	}, time.Second, 5*time.Millisecond)

	// Live jobs are untouched by eviction.
	_, err = reg.Get("b")
	assert.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestEvictAfter(t *testing.T) {
	reg := registry.New(0)
	reg.Create(newJob("a"), nil)
	reg.EvictAfter("a", 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return reg.Len() == 0
	}, time.Second, 5*time.Millisecond)
}
