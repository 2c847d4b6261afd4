package output

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nao1215/leadcrawler/internal/model"
	"github.com/nao1215/leadcrawler/internal/urlnorm"
)

// FileExt is the extension of route files.
const FileExt = ".txt"

// ErrNoRoutes is returned when asked to write an empty route set.
var ErrNoRoutes = errors.New("no routes to write")

// Store reads and writes route files in one directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for a domain key.
func (s *Store) Path(domain string) string {
	return filepath.Join(s.dir, FileName(domain))
}

// FileName maps a domain key to its file name. Ports keep their value with
// ":" replaced by "_" so the name is valid on every platform.
func FileName(domain string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "[", "", "]", "").Replace(domain)
	return name + FileExt
}

// Write replaces the route file of domain with the sorted routes and
// returns its path.
func (s *Store) Write(domain string, routes []string) (string, error) {
	if len(routes) == 0 {
		return "", ErrNoRoutes
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	sorted := slices.Clone(routes)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	tmp, err := os.CreateTemp(s.dir, ".routes-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) } //nolint:errcheck // best effort

	w := bufio.NewWriter(tmp)
	for _, r := range sorted {
		if _, err := w.WriteString(r + "\n"); err != nil {
			_ = tmp.Close()
			cleanup()
			return "", fmt.Errorf("write routes: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write routes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close temp file: %w", err)
	}

	path := s.Path(domain)
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return "", fmt.Errorf("replace %s: %w", path, err)
	}
	return path, nil
}

// Read returns the routes stored for domain.
func (s *Store) Read(domain string) ([]string, error) {
	return readRoutes(s.Path(domain))
}

// SingleRouteDomains scans the directory for files holding exactly one
// route and returns one result per file, ready for the retry pass.
// The seed of each result is the stored route with an https scheme.
func (s *Store) SingleRouteDomains() ([]*model.CrawlResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	var results []*model.CrawlResult
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		routes, err := readRoutes(path)
		if err != nil {
			return nil, err
		}
		if len(routes) != 1 {
			continue
		}

		seed := "https://" + routes[0]
		domain, err := urlnorm.DomainKey(seed)
		if err != nil {
			continue
		}
		r := &model.CrawlResult{
			Domain:     domain,
			SeedURL:    seed,
			Outcome:    model.OutcomeNoLinksFound,
			OutputFile: path,
		}
		r.SetRoutes(routes)
		results = append(results, r)
	}
	return results, nil
}

func readRoutes(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path is built from the output directory
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var routes []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			routes = append(routes, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return routes, nil
}
