package diskmanager

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

type pageKey struct {
	FileID   uint32
	LocalNum int64
}

// fileDescriptor represents an open file managed by the disk manager.
type fileDescriptor struct {
	FileID     uint32
	FilePath   string
	File       *os.File
	NextPageID int64 // next available local page number within this file
	mu         sync.RWMutex
}

// DiskManager owns OS file handles and the global page ID space.
// Global page IDs are deterministic: fileID<<32|localPageNum, so no
// on-disk counter is required to reconstruct them after a restart.
type DiskManager struct {
	files      map[uint32]*fileDescriptor
	nextFileID uint32 // only used by OpenFile (WAL/session-scoped files)

	globalPageMap map[int64]uint32  // globalPageID -> fileID
	localToGlobal map[pageKey]int64 // (fileID, localNum) -> globalPageID

	lockFile *os.File // advisory flock on the database directory

	mu  sync.RWMutex
	log *logrus.Entry
}
