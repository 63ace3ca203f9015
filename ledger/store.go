package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

var (
	// ErrNotFound means no ledger has been persisted yet.
	ErrNotFound = errors.New("ledger not found")
	// ErrCorrupt means neither the ledger nor its backup could be trusted.
	ErrCorrupt = errors.New("ledger corrupt")
)

type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore persists the ledger as JSON. Writes go to a temp file that is
// synced and renamed over the target; the previous good file is kept as .bak.
type FileStore struct {
	path string
	log  *zap.Logger
}

func NewFileStore(path string, log *zap.Logger) *FileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{path: path, log: log}
}

func (f *FileStore) Path() string   { return f.path }
func (f *FileStore) backup() string { return f.path + ".bak" }

func (f *FileStore) Load() (State, error) {
	st, err := readState(f.path)
	if err == nil {
		return st, nil
	}
	mainErr := err

	st, err = readState(f.backup())
	if err != nil {
		if errors.Is(mainErr, ErrNotFound) && errors.Is(err, ErrNotFound) {
			return State{}, mainErr
		}
		return State{}, fmt.Errorf("%w: %v; backup: %v", ErrCorrupt, mainErr, err)
	}

	f.log.Warn("ledger recovered from backup", zap.String("path", f.path), zap.Error(mainErr))
	if err := writeAtomic(f.path, st); err != nil {
		f.log.Warn("restore ledger from backup", zap.Error(err))
	}
	return st, nil
}

func (f *FileStore) Save(st State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	if prev, err := readState(f.path); err == nil {
		if err := writeAtomic(f.backup(), prev); err != nil {
			return fmt.Errorf("backup ledger: %w", err)
		}
	}
	return writeAtomic(f.path, st)
}

func readState(path string) (State, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return State{}, err
	}
	return decodeState(b)
}

// decodeState rejects documents that miss any required field.
func decodeState(b []byte) (State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for _, k := range requiredFields {
		if _, ok := raw[k]; !ok {
			return State{}, fmt.Errorf("%w: missing %q", ErrCorrupt, k)
		}
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if st.Initial <= 0 {
		return State{}, fmt.Errorf("%w: initial must be positive", ErrCorrupt)
	}
	if st.GradeStats == nil {
		st.GradeStats = map[string]GradeStat{}
	}
	return st, nil
}

func writeAtomic(path string, st State) error {
	if st.GradeStats == nil {
		st.GradeStats = map[string]GradeStat{}
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	fh, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := fh.Write(b); err != nil {
		fh.Close()
		return err
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return err
	}
	if err := fh.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
