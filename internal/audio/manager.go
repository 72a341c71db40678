// Package audio owns the transient audio files downloaded for recognition.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/forPelevin/scribe/internal/ports"
	"github.com/forPelevin/scribe/internal/types"
)

type Manager struct {
	dir      string
	source   ports.AudioSource
	maxBytes int64
	log      logrus.FieldLogger
}

// New returns a Manager storing files under dir, which is created if needed.
func New(dir string, source ports.AudioSource, maxBytes int64, log logrus.FieldLogger) (*Manager, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("audio dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("audio dir: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{dir: abs, source: source, maxBytes: maxBytes, log: log}, nil
}

func (m *Manager) Dir() string { return m.dir }

// Download fetches the audio of videoID into a uniquely named file.
func (m *Manager) Download(ctx context.Context, videoID string) (types.AudioAsset, error) {
	token := videoID + "_" + uuid.NewString()[:8]
	tmpl := filepath.Join(m.dir, token+".%(ext)s")
	op := "download " + videoID
	log := m.log.WithField("video_id", videoID)

	if err := m.source.DownloadAudio(ctx, videoID, tmpl, m.maxBytes); err != nil {
		m.removeMatching(token)
		if types.KindOf(err) == nil {
			err = types.NewError(types.ErrNetwork, op, err)
		}
		return types.AudioAsset{}, err
	}

	path, err := m.find(token)
	if err != nil {
		m.removeMatching(token)
		return types.AudioAsset{}, types.NewError(types.ErrNetwork, op, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		m.removeMatching(token)
		return types.AudioAsset{}, types.NewError(types.ErrNetwork, op, err)
	}
	if st.Size() == 0 {
		m.remove(path)
		return types.AudioAsset{}, types.NewError(types.ErrEmptyFile, op, errors.New("downloaded file is empty"))
	}
	if m.maxBytes > 0 && st.Size() > m.maxBytes {
		m.remove(path)
		return types.AudioAsset{}, types.NewError(types.ErrSizeExceeded, op,
			fmt.Errorf("%d bytes exceeds limit of %d", st.Size(), m.maxBytes))
	}

	log.WithFields(logrus.Fields{"path": path, "bytes": st.Size()}).Info("audio downloaded")
	return types.AudioAsset{Path: path, SizeBytes: st.Size(), CreatedAt: time.Now()}, nil
}

// find returns the final output for token, skipping yt-dlp partials.
func (m *Manager) find(token string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, token+".*"))
	if err != nil {
		return "", err
	}
	for _, p := range matches {
		if strings.HasSuffix(p, ".part") || strings.HasSuffix(p, ".ytdl") {
			continue
		}
		return p, nil
	}
	return "", errors.New("no output file produced")
}

func (m *Manager) removeMatching(token string) {
	matches, _ := filepath.Glob(filepath.Join(m.dir, token+".*"))
	for _, p := range matches {
		m.remove(p)
	}
}

func (m *Manager) remove(path string) bool {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.log.WithError(types.NewError(types.ErrCleanupFailed, "remove", err)).
			WithField("path", path).Warn("cleanup failed")
		return false
	}
	return true
}

// Cleanup deletes the asset's file. A missing file counts as success and
// failures are logged, never returned.
func (m *Manager) Cleanup(asset types.AudioAsset) bool {
	if asset.Path == "" {
		return true
	}
	return m.remove(asset.Path)
}

// Sweep deletes regular files in the audio directory whose modification
// time is older than maxAge. A zero maxAge deletes every file.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, types.NewError(types.ErrCleanupFailed, "sweep", err)
	}
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if maxAge > 0 && !info.ModTime().Before(cutoff) {
			continue
		}
		if m.remove(filepath.Join(m.dir, e.Name())) {
			n++
		}
	}
	if n > 0 {
		m.log.WithField("removed", n).Info("audio sweep")
	}
	return n, nil
}
