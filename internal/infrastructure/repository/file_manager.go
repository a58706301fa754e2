package repository

import (
	"devctl/internal/domain"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// FileManager stores user files in a single flat directory.
type FileManager struct {
	dir string
}

func NewFileManager(dir string) *FileManager {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warn("Failed to create files directory", "dir", dir, "err", err)
	}
	return &FileManager{dir: dir}
}

func (fm *FileManager) Dir() string { return fm.dir }

// resolve maps a client supplied name onto the files directory. Only plain names
// are accepted.
func (fm *FileManager) resolve(filename string) (string, error) {
	name := path.Clean(filename)
	if name == "." || name == ".." || !fs.ValidPath(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidFileName, filename)
	}
	return filepath.Join(fm.dir, name), nil
}

func (fm *FileManager) ListFiles() ([]domain.FileInfo, error) {
	entries, err := os.ReadDir(fm.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files := make([]domain.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, domain.FileInfo{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   e.IsDir(),
		})
	}
	return files, nil
}

func (fm *FileManager) ReadFile(filename string) ([]byte, error) {
	filePath, err := fm.resolve(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (fm *FileManager) WriteFile(filename string, data []byte) error {
	filePath, err := fm.resolve(filename)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (fm *FileManager) GetFileInfo(filename string) (*domain.FileInfo, error) {
	filePath, err := fm.resolve(filename)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	return &domain.FileInfo{
		Name:    stat.Name(),
		Size:    stat.Size(),
		ModTime: stat.ModTime(),
		IsDir:   stat.IsDir(),
	}, nil
}

func (fm *FileManager) DeleteFile(filename string) error {
	filePath, err := fm.resolve(filename)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// OpenUpload opens the target of an upload. A fresh upload (position 0) truncates
// the file. A resumed upload keeps exactly the first position bytes and continues
// writing from there, so bytes written after the last persisted position are
// overwritten rather than duplicated.
func (fm *FileManager) OpenUpload(filename string, position int64) (io.WriteCloser, error) {
	filePath, err := fm.resolve(filename)
	if err != nil {
		return nil, err
	}

	if position == 0 {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		return file, nil
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	if err := file.Truncate(position); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to truncate to offset: %w", err)
	}
	if _, err := file.Seek(position, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to seek to offset: %w", err)
	}
	return file, nil
}
