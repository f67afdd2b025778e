package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/fetcher"
)

// DownloadResult describes a stored image.
type DownloadResult struct {
	URL         string        `json:"url"`
	LocalPath   string        `json:"local_path"`
	PublicURL   string        `json:"public_url"`
	Size        int64         `json:"size"`
	ContentType string        `json:"content_type"`
	Hash        string        `json:"hash"`
	Reused      bool          `json:"reused"`
	Duration    time.Duration `json:"duration"`
}

// Downloader stores remote images locally. Identical content is kept once:
// every file is indexed by its SHA-256 and a repeated download returns the
// existing file.
type Downloader struct {
	dir       string
	urlPrefix string
	maxSize   int64
	fetcher   fetcher.Fetcher
	hashes    *HashRegistry
	logger    *slog.Logger

	downloaded atomic.Int64
	reused     atomic.Int64
	mu         sync.Mutex
}

// NewDownloader creates a downloader writing into cfg.Dir and indexes the files
// already present there.
func NewDownloader(cfg config.MediaConfig, f fetcher.Fetcher, logger *slog.Logger) (*Downloader, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	d := &Downloader{
		dir:       cfg.Dir,
		urlPrefix: cfg.URLPrefix,
		maxSize:   cfg.MaxSizeMB * 1024 * 1024,
		fetcher:   f,
		hashes:    NewHashRegistry(),
		logger:    logger.With("component", "media_downloader"),
	}

	indexed, err := d.hashes.IndexDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("index media dir: %w", err)
	}
	d.logger.Debug("media dir indexed", "dir", cfg.Dir, "files", indexed)
	return d, nil
}

// Download fetches rawURL and returns the stored file. Non-image responses and
// bodies above the size limit are rejected.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*DownloadResult, error) {
	start := time.Now()

	resp, err := fetcher.Get(ctx, d.fetcher, "media", rawURL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}

	contentType := resp.ContentType
	if contentType != "" && !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, fmt.Errorf("download %s: not an image (%s)", rawURL, contentType)
	}
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("download %s: empty body", rawURL)
	}
	if d.maxSize > 0 && int64(len(resp.Body)) > d.maxSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(resp.Body), d.maxSize)
	}

	sum := sha256.Sum256(resp.Body)
	hash := hex.EncodeToString(sum[:])

	// Serialize the lookup-then-write so two monitors never store the same content twice.
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.hashes.Lookup(hash); ok {
		d.reused.Add(1)
		return &DownloadResult{
			URL:         rawURL,
			LocalPath:   filepath.Join(d.dir, existing),
			PublicURL:   d.urlPrefix + existing,
			Size:        int64(len(resp.Body)),
			ContentType: contentType,
			Hash:        hash,
			Reused:      true,
			Duration:    time.Since(start),
		}, nil
	}

	filename := uuid.NewString() + extension(rawURL, contentType)
	localPath := filepath.Join(d.dir, filename)
	if err := os.WriteFile(localPath, resp.Body, 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	d.hashes.Register(hash, filename)
	d.downloaded.Add(1)

	result := &DownloadResult{
		URL:         rawURL,
		LocalPath:   localPath,
		PublicURL:   d.urlPrefix + filename,
		Size:        int64(len(resp.Body)),
		ContentType: contentType,
		Hash:        hash,
		Duration:    time.Since(start),
	}

	d.logger.Debug("image downloaded",
		"url", rawURL,
		"size", humanSize(result.Size),
		"hash", hash[:16],
		"duration", result.Duration,
	)
	return result, nil
}

// Stats returns download statistics.
func (d *Downloader) Stats() map[string]int64 {
	return map[string]int64{
		"total_downloaded": d.downloaded.Load(),
		"total_reused":     d.reused.Load(),
		"indexed":          int64(d.hashes.Len()),
	}
}

// IsCDNImage reports whether rawURL is served by one of hosts. A host entry
// matches itself and its subdomains.
func IsCDNImage(rawURL string, hosts []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	h := strings.ToLower(u.Hostname())
	for _, cdn := range hosts {
		cdn = strings.ToLower(strings.TrimSpace(cdn))
		if cdn != "" && (h == cdn || strings.HasSuffix(h, "."+cdn)) {
			return true
		}
	}
	return false
}

// HashRegistry maps content hashes to stored file names.
type HashRegistry struct {
	hashes map[string]string
	mu     sync.RWMutex
}

// NewHashRegistry creates an empty registry.
func NewHashRegistry() *HashRegistry {
	return &HashRegistry{hashes: make(map[string]string)}
}

// Lookup returns the file stored under hash.
func (r *HashRegistry) Lookup(hash string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.hashes[hash]
	return name, ok
}

// Register stores a hash for future duplicate detection.
func (r *HashRegistry) Register(hash, filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes[hash] = filename
}

// Len returns the number of indexed files.
func (r *HashRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hashes)
}

// IndexDir hashes every regular file in dir.
func (r *HashRegistry) IndexDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		hash, err := hashFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		r.Register(hash, e.Name())
		n++
	}
	return n, nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// extension picks a file extension from the URL path, else the content type.
func extension(rawURL, contentType string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(path.Ext(parsed.Path))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif", ".svg":
			return ext
		}
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ".jpg"
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
