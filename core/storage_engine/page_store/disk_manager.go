package pagestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// --- DiskManager ---

// tableFile is one open table file.
type tableFile struct {
	id       pagemanager.TableID
	path     string
	file     *os.File
	numPages uint64 // file size / page size
}

// DiskManager stores every table in its own file under a data directory.
type DiskManager struct {
	dataDir string
	logger  *zap.Logger

	mu        sync.Mutex
	opened    bool
	tables    map[pagemanager.TableID]*tableFile
	pathIndex map[string]pagemanager.TableID
	nextID    pagemanager.TableID
}

var _ PageStore = (*DiskManager)(nil)

// NewDiskManager creates a DiskManager rooted at dataDir. Relative table paths
// passed to OpenTableFile are resolved against dataDir.
func NewDiskManager(dataDir string, logger *zap.Logger) *DiskManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskManager{
		dataDir:   dataDir,
		logger:    logger.Named("disk_manager"),
		tables:    make(map[pagemanager.TableID]*tableFile),
		pathIndex: make(map[string]pagemanager.TableID),
		nextID:    1,
	}
}

// Open ensures the data directory exists.
func (dm *DiskManager) Open() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.dataDir != "" {
		if err := os.MkdirAll(dm.dataDir, 0755); err != nil {
			return fmt.Errorf("%w: creating data directory %s: %v", ErrIO, dm.dataDir, err)
		}
	}
	dm.opened = true
	return nil
}

// ResolvePath returns the on-disk location used for a table path.
func (dm *DiskManager) ResolvePath(path string) string {
	if filepath.IsAbs(path) || dm.dataDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(dm.dataDir, path)
}

// OpenTableFile opens an existing table file or creates a new one whose
// header describes an empty table.
func (dm *DiskManager) OpenTableFile(path string) (pagemanager.TableID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if !dm.opened {
		return pagemanager.InvalidTableID, ErrStoreClosed
	}

	fullPath := dm.ResolvePath(path)
	if id, ok := dm.pathIndex[fullPath]; ok {
		return id, nil
	}

	_, statErr := os.Stat(fullPath)
	switch {
	case os.IsNotExist(statErr):
		return dm.createTableFile(fullPath)
	case statErr == nil:
		return dm.openExistingTableFile(fullPath)
	default:
		return pagemanager.InvalidTableID, fmt.Errorf("%w: stating file %s: %v", ErrIO, fullPath, statErr)
	}
}

func (dm *DiskManager) createTableFile(fullPath string) (pagemanager.TableID, error) {
	file, err := os.OpenFile(fullPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return pagemanager.InvalidTableID, fmt.Errorf("%w: creating file %s: %v", ErrIO, fullPath, err)
	}

	header := pagemanager.NewPage()
	header.InitHeader()
	if _, err := file.WriteAt(header.GetData(), 0); err != nil {
		file.Close()
		_ = os.Remove(fullPath)
		return pagemanager.InvalidTableID, fmt.Errorf("%w: writing initial header to %s: %v", ErrIO, fullPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(fullPath)
		return pagemanager.InvalidTableID, fmt.Errorf("%w: syncing new table file %s: %v", ErrIO, fullPath, err)
	}

	tf := dm.register(fullPath, file, 1)
	dm.logger.Info("Created table file", zap.String("path", fullPath), zap.Int64("tableID", int64(tf.id)))
	return tf.id, nil
}

func (dm *DiskManager) openExistingTableFile(fullPath string) (pagemanager.TableID, error) {
	file, err := os.OpenFile(fullPath, os.O_RDWR, 0666)
	if err != nil {
		return pagemanager.InvalidTableID, fmt.Errorf("%w: opening file %s: %v", ErrIO, fullPath, err)
	}

	header := pagemanager.NewPage()
	n, err := file.ReadAt(header.GetData(), 0)
	if err != nil && !(errors.Is(err, io.EOF) && n == pagemanager.PageSize) {
		file.Close()
		return pagemanager.InvalidTableID, fmt.Errorf("%w: %s is too small or unreadable (header): %v", ErrInvalidTableFile, fullPath, err)
	}
	if header.Magic() != pagemanager.TableMagic {
		file.Close()
		return pagemanager.InvalidTableID, fmt.Errorf("%w: %s has magic 0x%x, expected 0x%x", ErrInvalidTableFile, fullPath, header.Magic(), pagemanager.TableMagic)
	}
	if header.HeaderPageSize() != pagemanager.PageSize {
		file.Close()
		return pagemanager.InvalidTableID, fmt.Errorf("%w: %s page size (%d) does not match configured page size (%d)", ErrInvalidTableFile, fullPath, header.HeaderPageSize(), pagemanager.PageSize)
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return pagemanager.InvalidTableID, fmt.Errorf("%w: getting file info for %s: %v", ErrIO, fullPath, err)
	}

	tf := dm.register(fullPath, file, uint64(fi.Size())/pagemanager.PageSize)
	dm.logger.Info("Opened table file", zap.String("path", fullPath), zap.Int64("tableID", int64(tf.id)), zap.Uint64("numPages", tf.numPages))
	return tf.id, nil
}

func (dm *DiskManager) register(fullPath string, file *os.File, numPages uint64) *tableFile {
	tf := &tableFile{id: dm.nextID, path: fullPath, file: file, numPages: numPages}
	dm.nextID++
	dm.tables[tf.id] = tf
	dm.pathIndex[fullPath] = tf.id
	return tf
}

func (dm *DiskManager) table(tableID pagemanager.TableID) (*tableFile, error) {
	tf, ok := dm.tables[tableID]
	if !ok {
		return nil, fmt.Errorf("%w: table %d", ErrTableNotOpen, tableID)
	}
	return tf, nil
}

// ReadPage reads a page's data from disk into dst.
func (dm *DiskManager) ReadPage(tableID pagemanager.TableID, pageNum pagemanager.PageNum, dst []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	tf, err := dm.table(tableID)
	if err != nil {
		return err
	}
	if err := checkPageBuffer(dst); err != nil {
		return err
	}
	offset := int64(pageNum) * pagemanager.PageSize
	bytesRead, err := tf.file.ReadAt(dst, offset)
	if err != nil {
		if errors.Is(err, io.EOF) && bytesRead == pagemanager.PageSize {
			return nil
		}
		return fmt.Errorf("%w: reading page %d of table %d at offset %d: %v", ErrIO, pageNum, tableID, offset, err)
	}
	return nil
}

// WritePage writes src to disk at pageNum's location.
func (dm *DiskManager) WritePage(tableID pagemanager.TableID, pageNum pagemanager.PageNum, src []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	tf, err := dm.table(tableID)
	if err != nil {
		return err
	}
	return dm.writeAt(tf, pageNum, src)
}

// AppendRawPage writes a page past the current end of the table file.
func (dm *DiskManager) AppendRawPage(tableID pagemanager.TableID, pageNum pagemanager.PageNum, src []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	tf, err := dm.table(tableID)
	if err != nil {
		return err
	}
	if uint64(pageNum) < tf.numPages {
		return fmt.Errorf("%w: page %d of table %d (file holds %d pages)", ErrRawWriteOverlap, pageNum, tableID, tf.numPages)
	}
	return dm.writeAt(tf, pageNum, src)
}

func (dm *DiskManager) writeAt(tf *tableFile, pageNum pagemanager.PageNum, src []byte) error {
	if err := checkPageBuffer(src); err != nil {
		return err
	}
	offset := int64(pageNum) * pagemanager.PageSize
	if _, err := tf.file.WriteAt(src, offset); err != nil {
		return fmt.Errorf("%w: writing page %d of table %d at offset %d: %v", ErrIO, pageNum, tf.id, offset, err)
	}
	if uint64(pageNum) >= tf.numPages {
		tf.numPages = uint64(pageNum) + 1
	}
	// No Sync() per page write. Syncing happens in CloseTableFiles.
	return nil
}

// NumPages reports how many pages the table file currently holds.
func (dm *DiskManager) NumPages(tableID pagemanager.TableID) (uint64, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	tf, err := dm.table(tableID)
	if err != nil {
		return 0, err
	}
	return tf.numPages, nil
}

// CloseTableFiles syncs and closes every open table file. It keeps going
// after a failure and returns the first error seen.
func (dm *DiskManager) CloseTableFiles() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	var firstErr error
	for id, tf := range dm.tables {
		if err := tf.file.Sync(); err != nil {
			dm.logger.Error("Failed to sync table file on close", zap.String("path", tf.path), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: syncing %s: %v", ErrIO, tf.path, err)
			}
		}
		if err := tf.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: closing %s: %v", ErrIO, tf.path, err)
		}
		delete(dm.tables, id)
		delete(dm.pathIndex, tf.path)
	}
	dm.opened = false
	return firstErr
}
