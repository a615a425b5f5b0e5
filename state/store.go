// Package state persists the portfolio snapshot so a restart resumes with the
// accumulated paper equity and open positions.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/evdnx/papertrader/types"
	"go.uber.org/multierr"
)

// ErrNoSnapshot means nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Store loads and saves the snapshot. Save must be all-or-nothing: a
// concurrent reader sees either the previous or the new snapshot.
type Store interface {
	Load(ctx context.Context) (types.Snapshot, error)
	Save(ctx context.Context, snap types.Snapshot) error
}

// File keeps the snapshot as JSON, replacing it with write-temp-then-rename.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

func (f *File) Load(_ context.Context) (types.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.path == "" {
		return types.Snapshot{}, errors.New("empty state path")
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Snapshot{}, ErrNoSnapshot
		}
		return types.Snapshot{}, err
	}
	snap, err := decode(data)
	if err != nil && !errors.Is(err, ErrNoSnapshot) {
		return types.Snapshot{}, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return snap, err
}

func (f *File) Save(_ context.Context, snap types.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.path == "" {
		return errors.New("empty state path")
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	_, err = tmp.Write(data)
	err = multierr.Combine(err, tmp.Sync(), tmp.Close())
	if err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, f.path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// Mirror saves to every store and loads from the first one holding a
// snapshot.
type Mirror []Store

func (m Mirror) Load(ctx context.Context) (types.Snapshot, error) {
	var errs error
	for _, s := range m {
		snap, err := s.Load(ctx)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, ErrNoSnapshot) {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return types.Snapshot{}, errs
	}
	return types.Snapshot{}, ErrNoSnapshot
}

func (m Mirror) Save(ctx context.Context, snap types.Snapshot) error {
	var errs error
	for _, s := range m {
		errs = multierr.Append(errs, s.Save(ctx, snap))
	}
	return errs
}
