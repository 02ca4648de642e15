// Package updater checks a release manifest for a newer application version
// and replaces the running executable with the downloaded build.
package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

// Errors returned by the update service.
var (
	ErrNoEndpoint       = errors.New("update endpoint not configured")
	ErrNoPlatform       = errors.New("no update artifact for this platform")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Asset is the download for one platform.
type Asset struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256,omitempty"`
}

// Manifest is the JSON document served at the update endpoint.
type Manifest struct {
	Version   string           `json:"version"`
	Notes     string           `json:"notes"`
	PubDate   time.Time        `json:"pub_date"`
	Platforms map[string]Asset `json:"platforms"`
}

// Update describes a newer version available for this platform.
type Update struct {
	Version        string    `json:"version"`
	CurrentVersion string    `json:"currentVersion"`
	Notes          string    `json:"notes"`
	PubDate        time.Time `json:"pubDate"`
	URL            string    `json:"url"`
	SHA256         string    `json:"sha256,omitempty"`
}

// Progress reports download progress. Total is -1 when the server did not send a length.
type Progress struct {
	Downloaded int64 `json:"downloaded"`
	Total      int64 `json:"total"`
}

// Service checks for and installs updates.
type Service struct {
	endpoint   string
	current    *version.Version
	platform   string
	client     *http.Client
	executable func() (string, error)
}

// New creates a Service for the running version currentVersion.
func New(endpoint, currentVersion string) (*Service, error) {
	cur, err := version.NewVersion(currentVersion)
	if err != nil {
		return nil, fmt.Errorf("parse current version: %w", err)
	}
	return &Service{
		endpoint:   endpoint,
		current:    cur,
		platform:   PlatformKey(runtime.GOOS, runtime.GOARCH),
		client:     &http.Client{Timeout: 5 * time.Minute},
		executable: executablePath,
	}, nil
}

// PlatformKey returns the manifest key for an OS/architecture pair, e.g. "windows-x86_64".
func PlatformKey(goos, goarch string) string {
	arch := goarch
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	case "arm":
		arch = "armv7"
	}
	return goos + "-" + arch
}

// CurrentVersion returns the running version.
func (s *Service) CurrentVersion() string {
	return s.current.Original()
}

// Check fetches the manifest and returns the update for this platform, or nil
// when the manifest version is not newer than the running one.
func (s *Service) Check(ctx context.Context) (*Update, error) {
	if s.endpoint == "" {
		return nil, ErrNoEndpoint
	}

	m, err := s.fetchManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("check for updates failed: %w", err)
	}

	latest, err := version.NewVersion(m.Version)
	if err != nil {
		return nil, fmt.Errorf("check for updates failed: parse version %q: %w", m.Version, err)
	}
	if !latest.GreaterThan(s.current) {
		log.Printf("No update available (current %s, latest %s)", s.current, latest)
		return nil, nil
	}

	asset, ok := m.Platforms[s.platform]
	if !ok || asset.URL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoPlatform, s.platform)
	}

	log.Printf("Update available: %s", m.Version)
	return &Update{
		Version:        m.Version,
		CurrentVersion: s.current.Original(),
		Notes:          m.Notes,
		PubDate:        m.PubDate,
		URL:            asset.URL,
		SHA256:         strings.ToLower(asset.SHA256),
	}, nil
}

func (s *Service) fetchManifest(ctx context.Context) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ttbox/"+s.current.Original())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var m Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// DownloadAndInstall downloads u next to the running executable, verifies its
// checksum when the manifest has one, and swaps it in. The previous executable
// is kept as "<exe>.old". The new version runs after a restart.
func (s *Service) DownloadAndInstall(ctx context.Context, u *Update, onProgress func(Progress)) error {
	exe, err := s.executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	tmpPath, err := s.download(ctx, u, filepath.Dir(exe), onProgress)
	if err != nil {
		return err
	}

	if err := replaceExecutable(exe, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	log.Printf("Update %s installed to %s, restart to apply", u.Version, exe)
	return nil
}

func (s *Service) download(ctx context.Context, u *Update, dir string, onProgress func(Progress)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download update: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download update: unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, ".ttbox-update-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		_ = tmp.Close()
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	hash := sha256.New()
	pw := &progressWriter{total: resp.ContentLength, onProgress: onProgress}
	if _, err := io.Copy(io.MultiWriter(tmp, hash, pw), resp.Body); err != nil {
		return "", fmt.Errorf("download update: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if u.SHA256 != "" {
		if got := hex.EncodeToString(hash.Sum(nil)); got != u.SHA256 {
			return "", fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, u.SHA256, got)
		}
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return "", fmt.Errorf("make executable: %w", err)
	}

	cleanup = false
	return tmpPath, nil
}

type progressWriter struct {
	downloaded int64
	total      int64
	onProgress func(Progress)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.downloaded += int64(len(p))
	if w.onProgress != nil {
		w.onProgress(Progress{Downloaded: w.downloaded, Total: w.total})
	}
	return len(p), nil
}

func replaceExecutable(exe, newPath string) error {
	backup := exe + ".old"
	_ = os.Remove(backup)

	if err := os.Rename(exe, backup); err != nil {
		return fmt.Errorf("backup executable: %w", err)
	}
	if err := os.Rename(newPath, exe); err != nil {
		if rerr := os.Rename(backup, exe); rerr != nil {
			log.Printf("Warning: failed to restore %s from backup: %v", exe, rerr)
		}
		return fmt.Errorf("install update: %w", err)
	}
	return nil
}

func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}
