package logging

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	fileBufferSize = 64 * 1024
	flushInterval  = 5 * time.Second
)

var errWriterClosed = errors.New("file writer is closed")

// FileWriter is a buffered, size-rotated log sink. It implements zapcore.WriteSyncer.
type FileWriter struct {
	path    string
	rotator *LogRotator

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	ticker *time.Ticker
	done   chan struct{}
	closed bool
}

// NewFileWriter opens path for appending and flushes it every five seconds.
func NewFileWriter(path string, maxSizeMB, maxBackups int) (*FileWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	fw := &FileWriter{
		path:    path,
		rotator: NewLogRotator(path, maxSizeMB, maxBackups),
		done:    make(chan struct{}),
	}
	if err := fw.open(); err != nil {
		return nil, err
	}

	fw.ticker = time.NewTicker(flushInterval)
	go fw.flushLoop()
	return fw, nil
}

func (fw *FileWriter) open() error {
	f, err := os.OpenFile(fw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", fw.path, err)
	}
	fw.file = f
	fw.buf = bufio.NewWriterSize(f, fileBufferSize)
	return nil
}

func (fw *FileWriter) flushLoop() {
	for {
		select {
		case <-fw.done:
			return
		case <-fw.ticker.C:
			if err := fw.Sync(); err != nil && !errors.Is(err, errWriterClosed) {
				fmt.Fprintf(os.Stderr, "[ERROR] log flush: %v\n", err)
			}
		}
	}
}

// Write buffers p.
func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closed {
		return 0, errWriterClosed
	}
	return fw.buf.Write(p)
}

// Sync flushes the buffer and rotates the file when it is over the size limit.
func (fw *FileWriter) Sync() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closed {
		return errWriterClosed
	}
	return fw.flushLocked()
}

func (fw *FileWriter) flushLocked() error {
	if err := fw.buf.Flush(); err != nil {
		return fmt.Errorf("flush log buffer: %w", err)
	}
	info, err := fw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	if !fw.rotator.ShouldRotate(info.Size()) {
		return nil
	}

	if err := fw.file.Close(); err != nil {
		return fmt.Errorf("close log file before rotation: %w", err)
	}
	rotateErr := fw.rotator.Rotate()
	// the live file must be reopened even if rotation failed
	if err := fw.open(); err != nil {
		return errors.Join(rotateErr, err)
	}
	return rotateErr
}

// Close flushes pending entries and closes the file.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closed {
		return nil
	}
	fw.closed = true
	fw.ticker.Stop()
	close(fw.done)

	flushErr := fw.buf.Flush()
	if err := fw.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return flushErr
}
