package swarm

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"github.com/sirupsen/logrus"
)

// Stats is the subset of swarm counters the sampler copies into a job.
type Stats struct {
	TotalPeers       int
	ActivePeers      int
	ConnectedSeeders int
}

// FileInfo is one file announced by a torrent's metadata.
type FileInfo struct {
	Path string
	Size int64
}

// Torrent is the handle the retrieval engine drives for one swarm
// download.
type Torrent interface {
	GotInfo() <-chan struct{}
	Name() string
	Length() int64
	Files() []FileInfo
	DownloadAll()
	BytesCompleted() int64
	BytesMissing() int64
	Stats() Stats
	Drop()
}

// Client adds torrents to the shared swarm. dataDir is the directory the
// torrent's pieces are assembled into; every job brings its own.
type Client interface {
	AddMagnet(uri, dataDir string) (Torrent, error)
	AddMetaInfo(raw []byte, dataDir string) (Torrent, error)
	Close()
}

type Config struct {
	// ScratchDir is the client's default data directory, used only for
	// torrents added without an explicit destination.
	ScratchDir string
	Trackers   []string
	Logger     *logrus.Logger
}

// Service owns the process-wide swarm client. The client is expensive to
// start and useless when no torrent job ever arrives, so it is created on
// first use and shared by every torrent job after that. Init failures are
// not latched: the next job retries.
type Service struct {
	cfg Config

	mu     sync.Mutex
	client *torrent.Client
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if len(cfg.Trackers) == 0 {
		cfg.Trackers = defaultTrackers()
	}
	return &Service{cfg: cfg}
}

func (s *Service) AddMagnet(uri, dataDir string) (Torrent, error) {
	client, err := s.lazyClient()
	if err != nil {
		return nil, err
	}
	spec, err := torrent.TorrentSpecFromMagnetUri(uri)
	if err != nil {
		return nil, fmt.Errorf("parse magnet uri: %w", err)
	}
	s.prepareSpec(spec, dataDir)
	t, _, err := client.AddTorrentSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("add torrent: %w", err)
	}
	return &swarmTorrent{t: t}, nil
}

func (s *Service) AddMetaInfo(raw []byte, dataDir string) (Torrent, error) {
	client, err := s.lazyClient()
	if err != nil {
		return nil, err
	}
	mi, err := metainfo.Load(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse torrent file: %w", err)
	}
	spec, err := torrent.TorrentSpecFromMetaInfoErr(mi)
	if err != nil {
		return nil, fmt.Errorf("build torrent spec: %w", err)
	}
	s.prepareSpec(spec, dataDir)
	t, _, err := client.AddTorrentSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("add torrent: %w", err)
	}
	return &swarmTorrent{t: t}, nil
}

// Close tears the shared client down. A later Add starts a fresh one.
func (s *Service) Close() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client != nil {
		client.Close()
		s.cfg.Logger.Info("swarm client stopped")
	}
}

func (s *Service) lazyClient() (*torrent.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	if err := os.MkdirAll(s.cfg.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DataDir = s.cfg.ScratchDir
	clientConfig.NoUpload = false
	clientConfig.Seed = false
	// The uTP transport can pull in platform-specific compiled code.
	// TCP peers are enough here.
	clientConfig.DisableUTP = true

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create torrent client: %w", err)
	}
	s.client = client
	s.cfg.Logger.Infof("swarm client started, scratch dir: %s", s.cfg.ScratchDir)
	return client, nil
}

// prepareSpec points the torrent's piece storage at the job's destination
// folder and attaches the configured trackers. Piece completion state is
// kept in memory: nothing outlives the process except the assembled
// files.
func (s *Service) prepareSpec(spec *torrent.TorrentSpec, dataDir string) {
	if dataDir != "" {
		spec.Storage = storage.NewFileWithCompletion(dataDir, storage.NewMapPieceCompletion())
	}
	for _, tracker := range s.cfg.Trackers {
		spec.Trackers = append(spec.Trackers, []string{tracker})
	}
}

type swarmTorrent struct {
	t *torrent.Torrent
}

func (w *swarmTorrent) GotInfo() <-chan struct{} { return w.t.GotInfo() }
func (w *swarmTorrent) Name() string             { return w.t.Name() }
func (w *swarmTorrent) Length() int64            { return w.t.Length() }

func (w *swarmTorrent) Files() []FileInfo {
	files := w.t.Files()
	out := make([]FileInfo, len(files))
	for i, f := range files {
		out[i] = FileInfo{Path: f.Path(), Size: f.Length()}
	}
	return out
}

func (w *swarmTorrent) DownloadAll()          { w.t.DownloadAll() }
func (w *swarmTorrent) BytesCompleted() int64 { return w.t.BytesCompleted() }
func (w *swarmTorrent) BytesMissing() int64   { return w.t.BytesMissing() }

func (w *swarmTorrent) Stats() Stats {
	stats := w.t.Stats()
	return Stats{
		TotalPeers:       stats.TotalPeers,
		ActivePeers:      stats.ActivePeers,
		ConnectedSeeders: stats.ConnectedSeeders,
	}
}

func (w *swarmTorrent) Drop() { w.t.Drop() }

func defaultTrackers() []string {
	return []string{
		"udp://tracker.opentrackr.org:1337/announce",
		"udp://tracker.openbittorrent.com:6969/announce",
		"udp://open.stealth.si:80/announce",
		"udp://exodus.desync.com:6969/announce",
		"http://tracker.opentrackr.org:1337/announce",
		"http://tracker.openbittorrent.com:80/announce",
		"udp://tracker.torrent.eu.org:451/announce",
		"udp://tracker.moeking.me:6969/announce",
	}
}

var _ Client = (*Service)(nil)
