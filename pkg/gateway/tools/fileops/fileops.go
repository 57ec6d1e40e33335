// Package fileops is the workspace document accessor. Every operation is
// confined to a single root directory; document names never escape it.
package fileops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DefaultDocument is used when a tool call omits the filename.
const DefaultDocument = "output.md"

var ErrNotFound = errors.New("document not found")

type Store struct {
	root string
}

// NewStore creates the workspace root if needed and returns a store rooted
// there.
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// resolve normalizes a document name and rejects anything that would leave
// the workspace. Names get a .md suffix when missing.
func (s *Store) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultDocument
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	return filepath.Join(s.root, name), nil
}

func (s *Store) Create(name, content string) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

func (s *Store) Read(name string) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return string(data), nil
}

func (s *Store) Write(name, content string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Append adds content to the end of a document, creating it when absent.
func (s *Store) Append(name, content string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("append %s: %w", filepath.Base(path), err)
	}
	return nil
}

// InsertAt inserts content before the given 1-indexed line. Out-of-range
// lines clamp to the document edges.
func (s *Store) InsertAt(name string, line int, content string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return fmt.Errorf("insert into %s: %w", filepath.Base(path), err)
	}
	lines := strings.SplitAfter(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if line < 1 {
		line = 1
	}
	if line > len(lines)+1 {
		line = len(lines) + 1
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:line-1]...)
	out = append(out, content)
	out = append(out, lines[line-1:]...)
	if err := os.WriteFile(path, []byte(strings.Join(out, "")), 0o644); err != nil {
		return fmt.Errorf("insert into %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Replace substitutes every match of a regular expression pattern and
// returns the match count.
func (s *Store) Replace(name, pattern, replacement string) (int, error) {
	path, err := s.resolve(name)
	if err != nil {
		return 0, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return 0, fmt.Errorf("replace in %s: %w", filepath.Base(path), err)
	}
	count := len(re.FindAllIndex(data, -1))
	if count == 0 {
		return 0, nil
	}
	next := re.ReplaceAll(data, []byte(replacement))
	if err := os.WriteFile(path, next, 0o644); err != nil {
		return 0, fmt.Errorf("replace in %s: %w", filepath.Base(path), err)
	}
	return count, nil
}

// SaveAs writes content under a new name; when content is empty the source
// document's current content is copied instead.
func (s *Store) SaveAs(src, dst, content string) (string, error) {
	if content == "" {
		existing, err := s.Read(src)
		if err != nil {
			return "", err
		}
		content = existing
	}
	return s.Create(dst, content)
}

// List returns the workspace's markdown documents in name order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list workspace: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Backup copies a document to a timestamped sibling and returns its path.
func (s *Store) Backup(name string) (string, error) {
	content, err := s.Read(name)
	if err != nil {
		return "", err
	}
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(path), ".md")
	backup := fmt.Sprintf("%s_backup_%s.md", base, time.Now().Format("20060102_150405"))
	return s.Create(backup, content)
}

// Info reports size and timestamps for a document.
func (s *Store) Info(name string) (map[string]any, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	return map[string]any{
		"name":     filepath.Base(path),
		"path":     path,
		"size":     st.Size(),
		"modified": st.ModTime().Format(time.RFC3339),
	}, nil
}
