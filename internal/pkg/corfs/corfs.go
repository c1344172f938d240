// Package corfs abstracts the filesystems a job reads inputs, side inputs
// and intermediate data from.
package corfs

import (
	"io"
	"strings"
	"time"
)

// FileSystemType is an identifier for supported FileSystems
type FileSystemType int

// Identifiers for supported FileSystemTypes
const (
	Local FileSystemType = iota
	S3
	Memory
)

func (t FileSystemType) String() string {
	switch t {
	case Local:
		return "local"
	case S3:
		return "s3"
	case Memory:
		return "memory"
	}
	return "unknown"
}

// FileInfo provides information about a file
type FileInfo struct {
	Name    string    // file path
	Size    int64     // file size in bytes
	ModTime time.Time // last modification, zero when unknown
}

// FileSystem provides the file backend for MapReduce jobs.
// Input data is read from a file system. Intermediate and output data
// is written to a file system.
type FileSystem interface {
	ListFiles(pathGlob string) ([]FileInfo, error)
	OpenReader(filePath string, startAt int64) (io.ReadCloser, error)
	ReadFile(filePath string, startAt int64) ([]byte, error)
	OpenWriter(filePath string) (io.WriteCloser, error)
	WriteFile(filePath string, data []byte) error
	Stat(filePath string) (FileInfo, error)
	Delete(filePath string) error
	Join(elem ...string) string
	Init() error
}

// InitFilesystem initializes a filesystem of the given type
func InitFilesystem(fsType FileSystemType) FileSystem {
	var fs FileSystem
	switch fsType {
	case S3:
		fs = &S3FileSystem{}
	case Memory:
		return sharedMemFS
	default:
		fs = &LocalFileSystem{}
	}

	fs.Init()
	return fs
}

// InferFilesystem initializes a filesystem by inferring its type from
// a file address.
// For example, locations starting with "s3://" will resolve to an S3
// filesystem.
func InferFilesystem(location string) FileSystem {
	return InitFilesystem(InferFilesystemType(location))
}

// InferFilesystemType returns the FileSystemType for location.
func InferFilesystemType(location string) FileSystemType {
	if strings.HasPrefix(location, "s3://") {
		return S3
	}
	if strings.HasPrefix(location, memPrefix) {
		return Memory
	}
	return Local
}
