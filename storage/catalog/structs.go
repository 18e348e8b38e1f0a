// Package catalog persists table and index metadata as a single
// db.meta document per database directory, fronted by an in-process
// schema cache so hot lookups don't round-trip through disk.
package catalog

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"storagecore/types"
)

// indexMeta describes one secondary index registered against a table.
type indexMeta struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	FileID  uint32   `json:"file_id"`
}

// tableMeta is the persisted record for one table: its schema, the
// heap file it lives in, and the indexes built over it.
type tableMeta struct {
	Schema     types.TableSchema    `json:"schema"`
	HeapFileID uint32               `json:"heap_file_id"`
	Indexes    map[string]indexMeta `json:"indexes"`
}

// dbMeta is the full contents of db.meta.
type dbMeta struct {
	NextFileID uint32               `json:"next_file_id"`
	Tables     map[string]tableMeta `json:"tables"`
}

// Manager owns db.meta for one database directory: table/index
// registration, canonical index naming, and file ID allocation.
type Manager struct {
	path  string
	mu    sync.RWMutex
	meta  dbMeta
	cache *ristretto.Cache[string, types.TableSchema]
}

// TableFileIDs is the heap file ID plus every index's canonical
// name mapped to its file ID, returned to callers opening a table.
type TableFileIDs struct {
	HeapFileID uint32
	Indexes    map[string]uint32
}
