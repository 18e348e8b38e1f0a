// Package engine wires the storage subsystems together into one
// handle a CLI tool opens against a database directory: disk manager,
// buffer pool, write-ahead log, catalog, record manager, lock
// manager, and transaction manager. It is the one place cmd/seed and
// cmd/inspect share setup so both tools see an identical wiring of
// the components spec.md §2 lists in dependency order.
package engine

import (
	"fmt"
	"path/filepath"

	"storagecore/storage/bufferpool"
	"storagecore/storage/catalog"
	"storagecore/storage/diskmanager"
	"storagecore/storage/index/bplus"
	"storagecore/storage/lock"
	"storagecore/storage/record"
	"storagecore/storage/txn"
	"storagecore/storage/wal"
	"storagecore/types"
)

// Engine is a single open database: every subsystem plus the index
// handles currently attached via IndexRegistry.
type Engine struct {
	dbDir string

	Disk    *diskmanager.DiskManager
	Buffer  *bufferpool.BufferPool
	Log     *wal.SegmentLog
	Catalog *catalog.Manager
	Records *record.Manager
	Locks   *lock.Manager
	Txns    *txn.Manager
	Indexes *txn.IndexRegistry

	checkpoints *wal.CheckpointManager
	trees       map[uint32]*bplus.Tree
}

// Open attaches to the database directory dbDir, creating it if
// absent. bufferPoolCapacity is the number of frames the buffer pool
// is given; the WAL lives under dbDir/wal, db.meta directly under
// dbDir.
func Open(dbDir string, bufferPoolCapacity int) (*Engine, error) {
	dm := diskmanager.NewDiskManager()
	if err := dm.Lock(dbDir); err != nil {
		return nil, err
	}

	bp := bufferpool.NewBufferPool(bufferPoolCapacity, dm)

	logMgr, err := wal.Open(filepath.Join(dbDir, "wal"))
	if err != nil {
		return nil, fmt.Errorf("engine: open wal: %w", err)
	}
	bp.SetWALManager(logMgr)

	cat, err := catalog.NewManager(dbDir)
	if err != nil {
		return nil, fmt.Errorf("engine: open catalog: %w", err)
	}

	recMgr := record.NewManager(dbDir, bp, dm)
	indexes := txn.NewIndexRegistry()
	lockMgr := lock.NewManager()
	txnMgr := txn.NewManager(recMgr, indexes, lockMgr, logMgr)

	return &Engine{
		dbDir:       dbDir,
		Disk:        dm,
		Buffer:      bp,
		Log:         logMgr,
		Catalog:     cat,
		Records:     recMgr,
		Locks:       lockMgr,
		Txns:        txnMgr,
		Indexes:     indexes,
		checkpoints: wal.NewCheckpointManager(dbDir),
		trees:       make(map[uint32]*bplus.Tree),
	}, nil
}

// CreateTable registers schema in the catalog and creates its backing
// heap file.
func (e *Engine) CreateTable(schema types.TableSchema) (*record.HeapFile, error) {
	heapFileID, err := e.Catalog.CreateTable(schema)
	if err != nil {
		return nil, err
	}
	return e.Records.CreateHeapfile(schema.TableName, heapFileID)
}

// OpenTable reattaches to an already-registered table's heap file and
// every index already built over it, registering each tree in the
// engine's IndexRegistry so transaction undo can find them.
func (e *Engine) OpenTable(tableName string) (*record.HeapFile, error) {
	ids, err := e.Catalog.TableFileIDs(tableName)
	if err != nil {
		return nil, err
	}
	hf, err := e.Records.LoadHeapFile(tableName, ids.HeapFileID)
	if err != nil {
		return nil, err
	}
	for indexName, fileID := range ids.Indexes {
		columns, err := e.Catalog.IndexColumns(tableName, indexName)
		if err != nil {
			return nil, err
		}
		specs, err := e.columnSpecsFor(tableName, columns)
		if err != nil {
			return nil, err
		}
		if _, err := e.openIndexFile(tableName, indexName, fileID, specs); err != nil {
			return nil, err
		}
	}
	return hf, nil
}

// CreateIndex registers a new index over tableName's columns, creates
// its B+ tree file, and registers the tree so undo can reach it.
func (e *Engine) CreateIndex(tableName string, columns []string) (*bplus.Tree, string, error) {
	specs, err := e.columnSpecsFor(tableName, columns)
	if err != nil {
		return nil, "", err
	}
	fileID, indexName, err := e.Catalog.CreateIndex(tableName, columns)
	if err != nil {
		return nil, "", err
	}
	tree, err := e.openIndexFile(tableName, indexName, fileID, specs)
	if err != nil {
		return nil, "", err
	}
	return tree, indexName, nil
}

// Index returns the already-open tree backing fileID, if any.
func (e *Engine) Index(fileID uint32) (*bplus.Tree, bool) {
	t, ok := e.trees[fileID]
	return t, ok
}

// defaultStringColumnWidth is used for a string index column whose
// schema entry doesn't declare an explicit Length.
const defaultStringColumnWidth = 32

// columnSpecsFor translates a table's declared column types into the
// bplus.ColumnSpec list a composite index key over those columns needs
// to persist and to build its type-aware comparator from.
func (e *Engine) columnSpecsFor(tableName string, columns []string) ([]bplus.ColumnSpec, error) {
	schema, err := e.Catalog.GetTableSchema(tableName)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]types.ColumnDef, len(schema.Columns))
	for _, c := range schema.Columns {
		byName[c.Name] = c
	}

	specs := make([]bplus.ColumnSpec, len(columns))
	for i, name := range columns {
		col, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("engine: column %s not found on table %s", name, tableName)
		}
		switch col.Type {
		case "int":
			specs[i] = bplus.ColumnSpec{Type: bplus.ColumnInt, Length: 8}
		case "float":
			specs[i] = bplus.ColumnSpec{Type: bplus.ColumnFloat, Length: 8}
		default:
			width := col.Length
			if width == 0 {
				width = defaultStringColumnWidth
			}
			specs[i] = bplus.ColumnSpec{Type: bplus.ColumnString, Length: width}
		}
	}
	return specs, nil
}

func (e *Engine) openIndexFile(tableName, indexName string, fileID uint32, columns []bplus.ColumnSpec) (*bplus.Tree, error) {
	if t, ok := e.trees[fileID]; ok {
		return t, nil
	}
	path := filepath.Join(e.dbDir, fmt.Sprintf("%s.idx", indexName))
	tree, err := bplus.Open(path, fileID, e.Buffer, e.Disk, columns)
	if err != nil {
		return nil, fmt.Errorf("engine: open index %s for %s: %w", indexName, tableName, err)
	}
	e.trees[fileID] = tree
	e.Indexes.Register(fileID, tree)
	return tree, nil
}

// Checkpoint flushes every dirty page and records a recovery-point
// marker at the WAL's current durability horizon.
func (e *Engine) Checkpoint(database string) error {
	if err := e.Buffer.FlushAllPages(); err != nil {
		return fmt.Errorf("engine: checkpoint flush: %w", err)
	}
	return e.checkpoints.Save(e.Log.FlushedLSN(), database)
}

// Close flushes all dirty pages and releases every underlying file.
func (e *Engine) Close() error {
	if err := e.Buffer.FlushAllPages(); err != nil {
		return fmt.Errorf("engine: close flush: %w", err)
	}
	if err := e.Log.Close(); err != nil {
		return fmt.Errorf("engine: close wal: %w", err)
	}
	return e.Disk.CloseAll()
}
