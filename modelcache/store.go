package modelcache

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cloudflare/circl/xof"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/deep-rent/ormconf/resolve"
)

// Store persists serialized models.
type Store interface {
	// TryLoad returns the stored model of the named context, if any.
	TryLoad(contextName string) ([]byte, bool, error)
	// Save stores the model of the named context.
	Save(contextName string, model []byte) error
}

// StoreService is the tag of the Store service.
var StoreService = resolve.NewService[Store]("model store")

// ErrCorrupt is returned when a stored model fails its checksum.
var ErrCorrupt = errors.New("stored model is corrupt")

// Extension is the file extension of stored models.
const Extension = ".model"

const sumSize = 32

// FileStore stores models as files in a directory. Each file starts with a
// hex-encoded SHAKE256 checksum line followed by the model. It is safe for
// concurrent use.
type FileStore struct {
	mu  sync.Mutex
	fs  vfs.FileSystem
	dir string
}

// NewFileStore creates a store rooted at dir. If fs is nil, the operating
// system's file system is used. The directory is created if missing.
func NewFileStore(fs vfs.FileSystem, dir string) (*FileStore, error) {
	if fs == nil {
		fs = osfs.New()
	}
	if err := fs.MkdirAll(dir, 0o700); err != nil && !errors.Is(err, vfs.ErrExist) {
		return nil, fmt.Errorf("create model store directory: %w", err)
	}
	return &FileStore{fs: fs, dir: dir}, nil
}

// Path returns the file the model of the named context is stored in.
func (s *FileStore) Path(contextName string) string {
	r := strings.NewReplacer("/", "_", `\`, "_", ":", "_")
	return filepath.Join(s.dir, r.Replace(contextName)+Extension)
}

// TryLoad implements Store.
func (s *FileStore) TryLoad(contextName string) ([]byte, bool, error) {
	s.mu.Lock()
	data, err := vfs.ReadFile(s.fs, s.Path(contextName))
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, vfs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	line, model, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrCorrupt, contextName)
	}
	if string(line) != checksum(model) {
		return nil, false, fmt.Errorf("%w: %s", ErrCorrupt, contextName)
	}
	return model, true, nil
}

// Save implements Store.
func (s *FileStore) Save(contextName string, model []byte) error {
	var buf bytes.Buffer
	buf.Grow(2*sumSize + 1 + len(model))
	buf.WriteString(checksum(model))
	buf.WriteByte('\n')
	buf.Write(model)

	s.mu.Lock()
	defer s.mu.Unlock()
	return vfs.WriteFile(s.fs, s.Path(contextName), buf.Bytes(), 0o600)
}

// Remove deletes the stored model of the named context, if present.
func (s *FileStore) Remove(contextName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.fs.Remove(s.Path(contextName))
	if err != nil && !errors.Is(err, vfs.ErrNotExist) {
		return err
	}
	return nil
}

var _ Store = (*FileStore)(nil)

func checksum(data []byte) string {
	h := xof.SHAKE256.New()
	_, _ = h.Write(data)
	sum := make([]byte, sumSize)
	_, _ = h.Read(sum)
	return hex.EncodeToString(sum)
}
