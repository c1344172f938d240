package corfs

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattetti/filebuffer"
)

const memPrefix = "mem://"

// sharedMemFS backs InitFilesystem(Memory) so that every task of an
// in-process job sees the same files.
var sharedMemFS = NewMemFileSystem()

// MemFileSystem keeps files in memory. Paths may carry a "mem://" prefix.
type MemFileSystem struct {
	mut      sync.RWMutex
	files    map[string][]byte
	modTimes map[string]time.Time
}

// NewMemFileSystem returns an empty in-memory filesystem.
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{
		files:    make(map[string][]byte),
		modTimes: make(map[string]time.Time),
	}
}

func memKey(filePath string) string {
	return path.Clean("/" + strings.TrimPrefix(filePath, memPrefix))
}

func memName(key string, prefixed bool) string {
	if prefixed {
		return memPrefix + strings.TrimPrefix(key, "/")
	}
	return key
}

// ListFiles lists files matching pathGlob, or living below a directory
// matching pathGlob.
func (m *MemFileSystem) ListFiles(pathGlob string) ([]FileInfo, error) {
	prefixed := strings.HasPrefix(pathGlob, memPrefix)
	pattern := memKey(pathGlob)
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	m.mut.RLock()
	defer m.mut.RUnlock()

	files := make([]FileInfo, 0)
	for key, data := range m.files {
		if !memMatch(pattern, key) {
			continue
		}
		files = append(files, FileInfo{
			Name:    memName(key, prefixed),
			Size:    int64(len(data)),
			ModTime: m.modTimes[key],
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func memMatch(pattern, key string) bool {
	for candidate := key; candidate != "/" && candidate != "."; candidate = path.Dir(candidate) {
		if ok, _ := path.Match(pattern, candidate); ok {
			return true
		}
	}
	return false
}

// OpenReader opens the file at filePath, seeked to startAt.
func (m *MemFileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	m.mut.RLock()
	data, ok := m.files[memKey(filePath)]
	m.mut.RUnlock()
	if !ok {
		return nil, &os.PathError{Op: "open", Path: filePath, Err: os.ErrNotExist}
	}

	buf := filebuffer.New(data)
	if _, err := buf.Seek(startAt, io.SeekStart); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFile reads the file at filePath skipping startAt bytes at the
// beginning.
func (m *MemFileSystem) ReadFile(filePath string, startAt int64) ([]byte, error) {
	reader, err := m.OpenReader(filePath, startAt)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

type memWriter struct {
	*filebuffer.Buffer
	fs  *MemFileSystem
	key string
}

func (w *memWriter) Close() error {
	w.fs.store(w.key, w.Bytes())
	return w.Buffer.Close()
}

// OpenWriter opens a writer to filePath. Contents become visible on Close.
func (m *MemFileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	return &memWriter{
		Buffer: filebuffer.New(nil),
		fs:     m,
		key:    memKey(filePath),
	}, nil
}

// WriteFile stores data at filePath.
func (m *MemFileSystem) WriteFile(filePath string, data []byte) error {
	m.store(memKey(filePath), data)
	return nil
}

func (m *MemFileSystem) store(key string, data []byte) {
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mut.Lock()
	m.files[key] = stored
	m.modTimes[key] = time.Now()
	m.mut.Unlock()
}

// Stat returns information about the file at filePath.
func (m *MemFileSystem) Stat(filePath string) (FileInfo, error) {
	m.mut.RLock()
	defer m.mut.RUnlock()

	key := memKey(filePath)
	data, ok := m.files[key]
	if !ok {
		return FileInfo{}, &os.PathError{Op: "stat", Path: filePath, Err: os.ErrNotExist}
	}
	return FileInfo{Name: filePath, Size: int64(len(data)), ModTime: m.modTimes[key]}, nil
}

// Delete removes the file at filePath.
func (m *MemFileSystem) Delete(filePath string) error {
	m.mut.Lock()
	defer m.mut.Unlock()

	key := memKey(filePath)
	if _, ok := m.files[key]; !ok {
		return &os.PathError{Op: "remove", Path: filePath, Err: os.ErrNotExist}
	}
	delete(m.files, key)
	delete(m.modTimes, key)
	return nil
}

// Join joins path elements, keeping a leading "mem://" prefix intact.
func (m *MemFileSystem) Join(elem ...string) string {
	if len(elem) == 0 {
		return ""
	}
	if strings.HasPrefix(elem[0], memPrefix) {
		parts := append([]string{strings.TrimPrefix(elem[0], memPrefix)}, elem[1:]...)
		return memPrefix + strings.TrimPrefix(path.Join(parts...), "/")
	}
	return path.Join(elem...)
}

// Init initializes the filesystem.
func (m *MemFileSystem) Init() error {
	return nil
}

func (m *MemFileSystem) String() string {
	m.mut.RLock()
	defer m.mut.RUnlock()
	return fmt.Sprintf("MemFileSystem(%d files)", len(m.files))
}
