package service_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchbox/internal/admission"
	"fetchbox/internal/domain"
	"fetchbox/internal/downloader"
	"fetchbox/internal/registry"
	"fetchbox/internal/service"
)

func newTestStack(t *testing.T, extensions []string, uploadCap int64, client *http.Client) (service.JobService, string) {
	t.Helper()
	dir := t.TempDir()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	pipeline := admission.NewPipeline(admission.Folders{"files": dir}, extensions, uploadCap)
	reg := registry.New(0)
	mgr := downloader.NewManager(downloader.Config{
		SampleInterval: 10 * time.Millisecond,
		HTTPClient:     client,
		Logger:         logger,
	}, reg, nil)
	require.NoError(t, mgr.Start(context.Background()))
	t.Cleanup(mgr.Shutdown)

	return service.NewJobService(pipeline, reg, mgr, logger), dir
}

// dialTo builds a client that connects to addr regardless of the URL's
// host. The origin guard only inspects the hostname, so tests admit a
// public-looking URL and land on a local test server.
func dialTo(addr string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}

func TestAdmitHTTPJobEndToEnd(t *testing.T) {
	payload := []byte("fetched bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	svc, dir := newTestStack(t, []string{".txt"}, 0, dialTo(srv.Listener.Addr().String()))

	job, err := svc.AdmitHTTPJob("http://downloads.example.com/sample.txt", "files", "")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, domain.JobKindHTTP, job.Kind)
	assert.Equal(t, "sample.txt", job.Filename)
	assert.Equal(t, "files", job.FolderKey)

	require.Eventually(t, func() bool {
		got, err := svc.GetJob(job.ID)
		return err == nil && got.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	final, err := svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, final.Status)

	data, err := os.ReadFile(filepath.Join(dir, "sample.txt"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestAdmitHTTPJobRejectedCreatesNoJob(t *testing.T) {
	svc, _ := newTestStack(t, nil, 0, nil)

	_, err := svc.AdmitHTTPJob("ftp://example.com/f.zip", "files", "")
	var admErr *admission.Error
	require.ErrorAs(t, err, &admErr)
	assert.Equal(t, admission.ReasonDisallowedScheme, admErr.Reason)

	assert.Empty(t, svc.ListJobs())
}

func TestAdmitHTTPJobExtensionRejected(t *testing.T) {
	svc, _ := newTestStack(t, []string{".jpg", ".png"}, 0, nil)

	_, err := svc.AdmitHTTPJob("https://example.com/tool.exe", "files", "")
	var admErr *admission.Error
	require.ErrorAs(t, err, &admErr)
	assert.Equal(t, admission.ReasonDisallowedExtension, admErr.Reason)
}

func TestAdmitUploadJob(t *testing.T) {
	svc, dir := newTestStack(t, nil, 0, nil)

	job, err := svc.AdmitUploadJob([]byte("contents"), "notes.txt", "files", "")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.Equal(t, domain.JobKindUpload, job.Kind)
	assert.Equal(t, "upload", job.Source)
	assert.EqualValues(t, 8, job.TotalBytes)

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "contents", string(data))
}

func TestAdmitUploadJobOverCap(t *testing.T) {
	svc, _ := newTestStack(t, nil, 10, nil)

	_, err := svc.AdmitUploadJob(make([]byte, 11), "big.bin", "files", "")
	var admErr *admission.Error
	require.ErrorAs(t, err, &admErr)
	assert.Equal(t, admission.ReasonPayloadTooLarge, admErr.Reason)
	assert.Empty(t, svc.ListJobs())
}

func TestAdmitJobsWithCollidingFilenames(t *testing.T) {
	// Filenames are not deduplicated: both jobs are admitted to the same
	// destination, both succeed, and the later write wins.
	svc, dir := newTestStack(t, nil, 0, nil)

	first, err := svc.AdmitUploadJob([]byte("first"), "clash.txt", "files", "")
	require.NoError(t, err)
	second, err := svc.AdmitUploadJob([]byte("second, longer"), "clash.txt", "files", "")
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusDone, first.Status)
	assert.Equal(t, domain.JobStatusDone, second.Status)
	assert.Equal(t, first.DestinationPath, second.DestinationPath)

	data, err := os.ReadFile(filepath.Join(dir, "clash.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second, longer", string(data))
}

func TestAdmitTorrentJobWithoutSource(t *testing.T) {
	svc, _ := newTestStack(t, nil, 0, nil)

	_, err := svc.AdmitTorrentJob("", nil, "files")
	var admErr *admission.Error
	require.ErrorAs(t, err, &admErr)
	assert.Equal(t, admission.ReasonMissingField, admErr.Reason)
}

func TestAdmitTorrentJobWithoutSwarmErrors(t *testing.T) {
	// The stack has no swarm client wired in, so the job is admitted and
	// then fails asynchronously.
	svc, dir := newTestStack(t, nil, 0, nil)

	magnet := "magnet:?xt=urn:btih:08ada5a7a6183aae1e09d831df6748d566095a10"
	job, err := svc.AdmitTorrentJob(magnet, nil, "files")
	require.NoError(t, err)
	assert.Equal(t, domain.JobKindTorrent, job.Kind)
	assert.Equal(t, magnet, job.Source)
	assert.Equal(t, dir, job.DestinationPath)
	assert.Empty(t, job.Filename)

	require.Eventually(t, func() bool {
		got, err := svc.GetJob(job.ID)
		return err == nil && got.Status == domain.JobStatusError
	}, 5*time.Second, 10*time.Millisecond)
}

func TestListJobsNewestFirst(t *testing.T) {
	svc, _ := newTestStack(t, nil, 0, nil)

	first, err := svc.AdmitUploadJob([]byte("a"), "a.txt", "files", "")
	require.NoError(t, err)
	second, err := svc.AdmitUploadJob([]byte("b"), "b.txt", "files", "")
	require.NoError(t, err)

	jobs := svc.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)
}

func TestCancelJobNotFound(t *testing.T) {
	svc, _ := newTestStack(t, nil, 0, nil)
	_, err := svc.CancelJob("nope")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestCancelJobConflictWhenDone(t *testing.T) {
	svc, _ := newTestStack(t, nil, 0, nil)

	job, err := svc.AdmitUploadJob([]byte("x"), "x.txt", "files", "")
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusDone, job.Status)

	_, err = svc.CancelJob(job.ID)
	assert.ErrorIs(t, err, registry.ErrTerminal)
}

func TestFolderKeys(t *testing.T) {
	svc, _ := newTestStack(t, nil, 0, nil)
	assert.Equal(t, []string{"files"}, svc.FolderKeys())
}

func TestAdmitHTTPJobFilenameOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	svc, _ := newTestStack(t, nil, 0, dialTo(srv.Listener.Addr().String()))

	job, err := svc.AdmitHTTPJob("http://downloads.example.com/original.bin", "files", "renamed.bin")
	require.NoError(t, err)
	assert.Equal(t, "renamed.bin", job.Filename)
}
