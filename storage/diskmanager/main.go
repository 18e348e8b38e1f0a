// Package diskmanager performs raw page I/O: opening and closing
// database files, reading and writing fixed-size pages at their file
// offset, and allocating new page numbers. It has no notion of
// caching or pinning — that is the buffer pool's job; the disk
// manager only ever touches the filesystem.
package diskmanager

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"storagecore/storage/page"
	"storagecore/types"
)

func NewDiskManager() *DiskManager {
	return &DiskManager{
		files:         make(map[uint32]*fileDescriptor),
		globalPageMap: make(map[int64]uint32),
		localToGlobal: make(map[pageKey]int64),
		nextFileID:    1,
		log:           logrus.WithField("component", "diskmanager"),
	}
}

// Lock takes an advisory exclusive flock on a marker file inside dir,
// preventing a second process from opening the same database
// directory concurrently. The lock is released by CloseAll; closing a
// single file does not release it.
func (dm *DiskManager) Lock(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("diskmanager: create database directory: %w", err)
	}
	lockPath := dir + "/.lock"
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("diskmanager: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("diskmanager: database directory %s is already locked by another process: %w", dir, err)
	}
	dm.lockFile = f
	return nil
}

func newPage(pageID types.PageID, pageType types.PageType) *page.Page {
	return page.New(pageID, pageType)
}

// OpenFileWithID opens or creates filePath under a caller-supplied,
// stable file ID. Used for heap and index files whose file ID comes
// from the catalog and must stay identical across restarts.
func (dm *DiskManager) OpenFileWithID(filePath string, catalogFileID uint32) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for id, fd := range dm.files {
		if fd.FilePath == filePath {
			return id, nil
		}
	}

	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, fmt.Errorf("diskmanager: open %s: %w", filePath, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return 0, err
	}

	numPages := stat.Size() / int64(page.Size)

	fd := &fileDescriptor{
		FileID:     catalogFileID,
		FilePath:   filePath,
		File:       file,
		NextPageID: numPages,
	}

	dm.files[catalogFileID] = fd
	if catalogFileID >= dm.nextFileID {
		dm.nextFileID = catalogFileID + 1
	}

	return catalogFileID, nil
}

// OpenFile opens or creates filePath under a session-scoped,
// auto-incrementing file ID. Used for WAL segments, which do not need
// a stable identity across restarts.
func (dm *DiskManager) OpenFile(filePath string) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for id, fd := range dm.files {
		if fd.FilePath == filePath {
			return id, nil
		}
	}

	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, fmt.Errorf("diskmanager: open %s: %w", filePath, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("diskmanager: stat %s: %w", filePath, err)
	}

	numPages := stat.Size() / int64(page.Size)

	fileID := dm.nextFileID
	dm.nextFileID++

	dm.log.WithFields(logrus.Fields{"path": filePath, "file_id": fileID}).Debug("opened session-scoped file")

	fd := &fileDescriptor{
		FileID:     fileID,
		FilePath:   filePath,
		File:       file,
		NextPageID: numPages,
	}
	dm.files[fileID] = fd

	return fileID, nil
}

// ReadPage reads one page from disk by its global page ID.
func (dm *DiskManager) ReadPage(pageID types.PageID) (*page.Page, error) {
	dm.mu.RLock()
	fileID, exists := dm.globalPageMap[int64(pageID)]
	dm.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("diskmanager: page %d not in global page map", pageID)
	}

	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("diskmanager: file %d not found", fileID)
	}

	fd.mu.RLock()
	defer fd.mu.RUnlock()
	if fd.File == nil {
		return nil, fmt.Errorf("diskmanager: file %d is closed", fileID)
	}

	localPageID := pageID.LocalPageNo()
	offset := int64(localPageID) * int64(page.Size)

	pg := newPage(pageID, types.PageTypeUnknown)
	n, err := fd.File.ReadAt(pg.Data, offset)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("diskmanager: read page %d of file %d: %w", localPageID, fileID, err)
	}
	for i := n; i < page.Size; i++ {
		pg.Data[i] = 0
	}

	if len(pg.Data) > 8 {
		pg.PageType = types.PageType(pg.Data[8])
	}

	return pg, nil
}

// WritePage writes one in-memory page back to its file offset.
func (dm *DiskManager) WritePage(pg *page.Page) error {
	fileID := pg.ID.FileID()

	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return fmt.Errorf("diskmanager: file %d not found", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return fmt.Errorf("diskmanager: file %d is closed", fileID)
	}
	if len(pg.Data) != page.Size {
		return fmt.Errorf("diskmanager: page data size %d != %d", len(pg.Data), page.Size)
	}

	pg.Data[8] = byte(pg.PageType)

	localPageID := pg.ID.LocalPageNo()
	offset := int64(localPageID) * int64(page.Size)

	if _, err := fd.File.WriteAt(pg.Data, offset); err != nil {
		return fmt.Errorf("diskmanager: write page %d of file %d: %w", localPageID, fileID, err)
	}

	if int64(localPageID) >= fd.NextPageID {
		fd.NextPageID = int64(localPageID) + 1
	}

	pg.IsDirty = false
	return nil
}

// AllocatePage reserves the next local page number for a file and
// computes its global page ID. It writes nothing to disk: that is
// the buffer pool's responsibility when the page is later flushed.
func (dm *DiskManager) AllocatePage(fileID uint32, _ types.PageType) (types.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return types.InvalidPageID, fmt.Errorf("diskmanager: file %d not found", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return types.InvalidPageID, fmt.Errorf("diskmanager: file %d is closed", fileID)
	}

	localPageNum := fd.NextPageID
	fd.NextPageID++

	pageID := types.NewPageID(fileID, uint32(localPageNum))
	dm.globalPageMap[int64(pageID)] = fileID
	dm.localToGlobal[pageKey{FileID: fileID, LocalNum: localPageNum}] = int64(pageID)

	return pageID, nil
}

// RegisterPage re-registers an existing on-disk page in the global
// page map. Called while reopening a database so previously allocated
// pages are addressable again without replaying every AllocatePage
// call.
func (dm *DiskManager) RegisterPage(fileID uint32, localPageNum int64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	key := pageKey{FileID: fileID, LocalNum: localPageNum}
	if _, exists := dm.localToGlobal[key]; exists {
		return nil
	}

	pageID := types.NewPageID(fileID, uint32(localPageNum))
	dm.globalPageMap[int64(pageID)] = fileID
	dm.localToGlobal[key] = int64(pageID)
	return nil
}

// Sync fsyncs every open file.
func (dm *DiskManager) Sync() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	for _, fd := range dm.files {
		fd.mu.Lock()
		if fd.File != nil {
			if err := fd.File.Sync(); err != nil {
				fd.mu.Unlock()
				return fmt.Errorf("diskmanager: sync file %d: %w", fd.FileID, err)
			}
		}
		fd.mu.Unlock()
	}
	return nil
}

func (dm *DiskManager) CloseFile(fileID uint32) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return fmt.Errorf("diskmanager: file %d not found", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return nil
	}
	if err := fd.File.Sync(); err != nil {
		return fmt.Errorf("diskmanager: sync before close: %w", err)
	}
	if err := fd.File.Close(); err != nil {
		return fmt.Errorf("diskmanager: close: %w", err)
	}
	fd.File = nil
	delete(dm.files, fileID)
	return nil
}

// CloseAll closes every open file and releases the directory flock.
func (dm *DiskManager) CloseAll() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var lastErr error
	for fileID, fd := range dm.files {
		fd.mu.Lock()
		if fd.File != nil {
			if err := fd.File.Sync(); err != nil {
				lastErr = err
			}
			if err := fd.File.Close(); err != nil {
				lastErr = err
			}
			fd.File = nil
		}
		fd.mu.Unlock()
		delete(dm.files, fileID)
	}

	if dm.lockFile != nil {
		unix.Flock(int(dm.lockFile.Fd()), unix.LOCK_UN)
		dm.lockFile.Close()
		dm.lockFile = nil
	}

	return lastErr
}

// TotalPagesForFile returns how many local pages a file currently has.
func (dm *DiskManager) TotalPagesForFile(fileID uint32) int64 {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	fd, exists := dm.files[fileID]
	if !exists {
		return 0
	}
	return fd.NextPageID
}

func (dm *DiskManager) TotalPages() int64 {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	var total int64
	for _, fd := range dm.files {
		total += fd.NextPageID
	}
	return total
}

// WriteMetadata writes to local page 0 of a file directly, bypassing
// the buffer pool: metadata pages are fixed-location and rarely
// re-read, so caching them buys nothing.
func (dm *DiskManager) WriteMetadata(fileID uint32, metadata []byte) error {
	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return fmt.Errorf("diskmanager: file %d not found", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return fmt.Errorf("diskmanager: file %d is closed", fileID)
	}

	metaPage := make([]byte, page.Size)
	metaPage[8] = byte(types.PageTypeMetadata)
	copy(metaPage[9:], metadata)

	if _, err := fd.File.WriteAt(metaPage, 0); err != nil {
		return fmt.Errorf("diskmanager: write metadata: %w", err)
	}
	return nil
}

func (dm *DiskManager) ReadMetadata(fileID uint32) ([]byte, error) {
	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("diskmanager: file %d not found", fileID)
	}

	fd.mu.RLock()
	defer fd.mu.RUnlock()
	if fd.File == nil {
		return nil, fmt.Errorf("diskmanager: file %d is closed", fileID)
	}

	metaPage := make([]byte, page.Size)
	if _, err := fd.File.ReadAt(metaPage, 0); err != nil {
		return nil, fmt.Errorf("diskmanager: read metadata: %w", err)
	}
	return metaPage[9:], nil
}

func (dm *DiskManager) WriteRootID(fileID uint32, rootID types.PageID) error {
	metadata := make([]byte, 8)
	binary.LittleEndian.PutUint64(metadata, uint64(rootID))
	return dm.WriteMetadata(fileID, metadata)
}

func (dm *DiskManager) ReadRootID(fileID uint32) (types.PageID, error) {
	metadata, err := dm.ReadMetadata(fileID)
	if err != nil {
		return types.InvalidPageID, err
	}
	if len(metadata) < 8 {
		return types.InvalidPageID, fmt.Errorf("diskmanager: invalid root-id metadata size")
	}
	return types.PageID(binary.LittleEndian.Uint64(metadata[:8])), nil
}

func (dm *DiskManager) GetTotalPages(filePath string) (int64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return info.Size() / types.PageSize, nil
}
