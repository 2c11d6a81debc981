package attachments

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

// maxNameLen is the usual filesystem limit on a name, in bytes.
const maxNameLen = 255

const (
	kib = 1024
	mib = 1024 * 1024
)

// FormatSize renders a byte count as "x.xx KB" below one MiB and "x.xx MB" otherwise.
func FormatSize(size int64) string {
	if size < mib {
		return fmt.Sprintf("%.2f KB", float64(size)/kib)
	}
	return fmt.Sprintf("%.2f MB", float64(size)/mib)
}

// Descriptor describes one extracted attachment.
type Descriptor struct {
	Filename string
	Size     int64
	Path     string // where the bytes were written
}

// Label returns the formatted size.
func (d Descriptor) Label() string {
	return FormatSize(d.Size)
}

// String returns "filename (size label)".
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.Filename, d.Label())
}

// CollisionPolicy decides what happens when a filename is already taken.
type CollisionPolicy string

const (
	// Overwrite replaces an existing file; the last writer wins.
	Overwrite CollisionPolicy = "overwrite"
	// Rename appends " (n)" before the extension.
	Rename CollisionPolicy = "rename"
)

// ParseCollisionPolicy validates a policy name.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Overwrite:
		return Overwrite, nil
	case Rename:
		return Rename, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q", s)
	}
}

// Store writes attachment bytes into a single directory.
// Writes are serialized so concurrent extractions never interleave.
type Store struct {
	dir    string
	policy CollisionPolicy

	mu sync.Mutex
}

// NewStore returns a store rooted at dir. The directory is created on first write.
func NewStore(dir string, policy CollisionPolicy) *Store {
	if policy == "" {
		policy = Overwrite
	}
	return &Store{dir: dir, policy: policy}
}

// Dir returns the attachment directory.
func (s *Store) Dir() string {
	return s.dir
}

// File is an attachment waiting to be written.
type File struct {
	Name string
	Data []byte
}

// Save writes data under the sanitized filename and returns its descriptor.
func (s *Store) Save(filename string, data []byte) (Descriptor, error) {
	ds, err := s.SaveAll([]File{{Name: filename, Data: data}})
	if err != nil {
		return Descriptor{}, err
	}
	return ds[0], nil
}

// SaveAll writes every file or none of them. Data is staged in temporary
// files and renamed into place once all of it is on disk.
func (s *Store) SaveAll(files []File) ([]Descriptor, error) {
	descriptors := make([]Descriptor, 0, len(files))
	if len(files) == 0 {
		return descriptors, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}

	staged := make([]string, 0, len(files))
	for _, f := range files {
		tmp, err := s.stage(f.Data)
		if err != nil {
			removeAll(staged)
			return nil, fmt.Errorf("failed to write attachment %s: %w", SanitizeFilename(f.Name), err)
		}
		staged = append(staged, tmp)
	}

	taken := make(map[string]bool, len(files))
	placed := make([]string, 0, len(files))
	for i, f := range files {
		name := SanitizeFilename(f.Name)
		path := filepath.Join(s.dir, name)
		if s.policy == Rename {
			path = s.freePath(name, taken)
		}
		taken[path] = true

		if err := os.Rename(staged[i], path); err != nil {
			removeAll(staged[i:])
			removeAll(placed)
			return nil, fmt.Errorf("failed to write attachment %s: %w", name, err)
		}
		placed = append(placed, path)
		descriptors = append(descriptors, Descriptor{
			Filename: f.Name,
			Size:     int64(len(f.Data)),
			Path:     path,
		})
	}

	return descriptors, nil
}

func (s *Store) stage(data []byte) (string, error) {
	tmp, err := os.CreateTemp(s.dir, ".attachment-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

// freePath finds "name (n).ext" that neither exists nor is taken by the
// current batch. Caller holds mu.
func (s *Store) freePath(name string, taken map[string]bool) string {
	free := func(path string) bool {
		if taken[path] {
			return false
		}
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}

	path := filepath.Join(s.dir, name)
	if free(path) {
		return path
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		path = filepath.Join(s.dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if free(path) {
			return path
		}
	}
}

// SanitizeFilename strips directory components, control characters and quotes.
func SanitizeFilename(filename string) string {
	filename = filepath.Base(filepath.ToSlash(strings.ReplaceAll(filename, `\`, "/")))

	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' {
			return -1
		}
		return r
	}, filename)

	if len(cleaned) > maxNameLen {
		cut := maxNameLen
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}

	if cleaned == "" || cleaned == "." || cleaned == ".." || cleaned == "/" {
		cleaned = "attachment.bin"
	}

	return cleaned
}
