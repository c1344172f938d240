package corfs

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// LocalFileSystem wraps "os" to provide access to the local filesystem.
type LocalFileSystem struct{}

func walkDir(dir string) []FileInfo {
	files := make([]FileInfo, 0)
	if err := filepath.Walk(dir, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			log.Error(err)
			return err
		}
		if f.IsDir() {
			return nil
		}
		files = append(files, FileInfo{
			Name:    path,
			Size:    f.Size(),
			ModTime: f.ModTime(),
		})
		return nil
	}); err != nil {
		log.Errorf("Failed to walk directory %s: %s", dir, err)
	}

	return files
}

// ListFiles lists files that match pathGlob. Matched directories are
// walked recursively.
func (l *LocalFileSystem) ListFiles(pathGlob string) ([]FileInfo, error) {
	globbedFiles, err := filepath.Glob(pathGlob)
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0)
	for _, fileName := range globbedFiles {
		fInfo, err := os.Stat(fileName)
		if err != nil {
			log.Error(err)
			continue
		}
		if !fInfo.IsDir() {
			files = append(files, FileInfo{
				Name:    fileName,
				Size:    fInfo.Size(),
				ModTime: fInfo.ModTime(),
			})
		} else {
			files = append(files, walkDir(fileName)...)
		}
	}

	return files, nil
}

// OpenReader opens a reader to the file at filePath. The reader
// is initially seeked to "startAt" bytes into the file.
func (l *LocalFileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	file, err := os.OpenFile(filePath, os.O_RDONLY, 0600)
	if err != nil {
		return nil, err
	}
	if _, err = file.Seek(startAt, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}
	return file, nil
}

// ReadFile reads the file at filePath skipping startAt bytes at the
// beginning.
func (l *LocalFileSystem) ReadFile(filePath string, startAt int64) ([]byte, error) {
	file, err := l.OpenReader(filePath, startAt)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// OpenWriter opens a writer to the file at filePath.
func (l *LocalFileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	if err := ensureDir(filePath); err != nil {
		return nil, err
	}
	return os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
}

// WriteFile writes data to the file at filePath, replacing any previous
// contents.
func (l *LocalFileSystem) WriteFile(filePath string, data []byte) error {
	if err := ensureDir(filePath); err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0600)
}

func ensureDir(filePath string) error {
	dir := filepath.Dir(filePath)

	// Create writer directory if necessary
	_, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0777)
	}
	return err
}

// Stat returns information about the file at filePath.
func (l *LocalFileSystem) Stat(filePath string) (FileInfo, error) {
	fInfo, err := os.Stat(filePath)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:    filePath,
		Size:    fInfo.Size(),
		ModTime: fInfo.ModTime(),
	}, nil
}

// Init initializes the filesystem.
func (l *LocalFileSystem) Init() error {
	return nil
}

// Join joins file path elements
func (l *LocalFileSystem) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// Delete deletes the file at filePath.
func (l *LocalFileSystem) Delete(filePath string) error {
	return os.Remove(filePath)
}
