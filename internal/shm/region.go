//go:build unix

// Package shm places fixed-layout values into named shared memory and guards
// them with process-shared semaphores.
//
// A region is a file under a shared memory directory (/dev/shm on Linux),
// mapped MAP_SHARED by every process that opens it. Every open handle holds
// an advisory lock on the file. An opener that gets the lock exclusively has
// no live peer and constructs the contents from scratch, whatever a dead
// process left behind; later openers attach and validate the layout.
package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Error definitions for shm operations
var (
	ErrInvalidName     = errors.New("shm: invalid region name")
	ErrInvalidSize     = errors.New("shm: invalid size")
	ErrLayoutMismatch  = errors.New("shm: layout mismatch")
	ErrIndirectPayload = errors.New("shm: payload type contains pointers")
	ErrClosed          = errors.New("shm: closed")
)

// linuxShmDir is where shm_open(3) places named objects on Linux.
const linuxShmDir = "/dev/shm"

// DefaultDir returns the directory used when Options.Dir is empty.
func DefaultDir() string {
	if runtime.GOOS == "linux" {
		if fi, err := os.Stat(linuxShmDir); err == nil && fi.IsDir() {
			return linuxShmDir
		}
	}
	return os.TempDir()
}

// Region is one mapped shared memory object.
type Region struct {
	name      string
	path      string
	size      int
	data      []byte
	file      *os.File // held open for the advisory lock
	created   bool
	exclusive bool
}

// openRegion creates or opens dir/name, locks it and maps exactly size bytes.
//
// With no other live holder the lock is exclusive and the object is resized
// to size regardless of its previous length. Otherwise the lock is shared
// and an object of a different non-zero size is rejected.
func openRegion(ctx context.Context, dir, name string, size int) (*Region, error) {
	if name == "" || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if dir == "" {
		dir = DefaultDir()
	}

	path := filepath.Join(dir, name)

	created := true
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		created = false
		f, err = os.OpenFile(path, os.O_RDWR, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}

	r, err := mapRegion(ctx, f, name, path, size)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.created = created
	return r, nil
}

func mapRegion(ctx context.Context, f *os.File, name, path string, size int) (*Region, error) {
	fd := int(f.Fd())

	exclusive, err := lockFile(ctx, fd)
	if err != nil {
		return nil, fmt.Errorf("shm: lock %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}

	if fi.Size() != int64(size) {
		if !exclusive && fi.Size() != 0 {
			return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrLayoutMismatch, path, fi.Size(), size)
		}
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	return &Region{
		name:      name,
		path:      path,
		size:      size,
		data:      data,
		file:      f,
		exclusive: exclusive,
	}, nil
}

// lockFile takes the exclusive lock when nobody else holds the file and a
// shared lock otherwise. It only waits while a peer holds the lock
// exclusively to construct the region; if that peer dies, the exclusive
// lock is taken over.
func lockFile(ctx context.Context, fd int) (exclusive bool, err error) {
	for {
		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return false, err
		}

		err = unix.Flock(fd, unix.LOCK_SH|unix.LOCK_NB)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return false, err
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(attachPoll):
		}
	}
}

func lockShared(ctx context.Context, fd int) error {
	for {
		err := unix.Flock(fd, unix.LOCK_SH|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(attachPoll):
		}
	}
}

// share downgrades an exclusive lock so peers can attach.
func (r *Region) share(ctx context.Context) error {
	if !r.exclusive {
		return nil
	}
	if err := lockShared(ctx, int(r.file.Fd())); err != nil {
		return fmt.Errorf("shm: lock %s: %w", r.path, err)
	}
	r.exclusive = false
	return nil
}

// Name returns the object name inside its directory.
func (r *Region) Name() string { return r.name }

// Path returns the full path of the backing object.
func (r *Region) Path() string { return r.path }

// Size returns the mapped size in bytes.
func (r *Region) Size() int { return r.size }

// Created reports whether this process created the name.
func (r *Region) Created() bool { return r.created }

// Exclusive reports whether no other handle held the region when it was
// opened and the lock has not been shared since.
func (r *Region) Exclusive() bool { return r.exclusive }

// Close unmaps the region and drops the lock. The name stays in place for
// other processes.
func (r *Region) Close() error {
	if r == nil || r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.file = nil
	return err
}

// Remove unlinks the name. A missing name is not an error.
func (r *Region) Remove() error {
	if r == nil {
		return nil
	}
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("shm: remove %s: %w", r.path, err)
	}
	return nil
}
