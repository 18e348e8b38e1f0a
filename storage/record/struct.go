package record

import (
	"sync"

	"storagecore/storage/bufferpool"
	"storagecore/storage/diskmanager"
)

// HeapFile is one table's heap file on disk.
type HeapFile struct {
	fileID      uint32
	tableName   string
	filePath    string
	diskManager *diskmanager.DiskManager
	bufferPool  *bufferpool.BufferPool
	mu          sync.RWMutex
}

// Manager owns every open heap file and dispatches by file ID or
// table name. It satisfies the txn.RecordManager interface consumed
// by the transaction manager's undo path.
type Manager struct {
	baseDir     string
	files       map[uint32]*HeapFile
	tableIndex  map[string]uint32
	bufferPool  *bufferpool.BufferPool
	diskManager *diskmanager.DiskManager
	mu          sync.RWMutex
}
