package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mbox "github.com/emersion/go-mbox"
)

// Source is one message to convert: a standalone .eml file or one entry of
// an mbox archive.
type Source struct {
	// Name identifies the source in the index and in errors.
	Name string
	// Path is the file the message lives in.
	Path string
	// Base is used to name per-source output files.
	Base string
	// Entry is the 1-based position inside an mbox archive, 0 for .eml files.
	Entry int

	data []byte
}

// Open returns a reader over the raw message.
func (s Source) Open() (io.ReadCloser, error) {
	if s.data != nil {
		return io.NopCloser(bytes.NewReader(s.data)), nil
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Scanner lists the messages in a single directory.
type Scanner struct {
	rootPath    string
	includeMbox bool
}

// NewScanner creates a new scanner for the given directory
func NewScanner(rootPath string) *Scanner {
	return &Scanner{
		rootPath: rootPath,
	}
}

// WithMbox makes the scanner also split *.mbox archives into messages.
func (s *Scanner) WithMbox(enabled bool) *Scanner {
	s.includeMbox = enabled
	return s
}

// GetRootPath returns the scanned directory
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// Scan lists .eml files directly inside the root directory, sorted by name.
// Subdirectories are not descended into.
func (s *Scanner) Scan() ([]Source, error) {
	entries, err := os.ReadDir(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var sources []Source
	for _, name := range names {
		path := filepath.Join(s.rootPath, name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".eml":
			sources = append(sources, Source{
				Name: name,
				Path: path,
				Base: strings.TrimSuffix(name, filepath.Ext(name)),
			})
		case ".mbox":
			if !s.includeMbox {
				continue
			}
			msgs, err := splitMbox(path, name)
			if err != nil {
				return nil, err
			}
			sources = append(sources, msgs...)
		}
	}

	return sources, nil
}

func splitMbox(path, name string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer f.Close()

	base := strings.TrimSuffix(name, filepath.Ext(name))
	reader := mbox.NewReader(f)

	var sources []Source
	for idx := 1; ; idx++ {
		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mbox %s message %d: %w", name, idx, err)
		}
		data, err := io.ReadAll(msgReader)
		if err != nil {
			return nil, fmt.Errorf("read mbox %s message %d: %w", name, idx, err)
		}
		sources = append(sources, Source{
			Name:  fmt.Sprintf("%s#%d", name, idx),
			Path:  path,
			Base:  fmt.Sprintf("%s-%04d", base, idx),
			Entry: idx,
			data:  data,
		})
	}

	return sources, nil
}
