package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"storagecore/storage/errs"
	"storagecore/types"
)

// CreateTable registers a new table's schema and allocates its heap
// file ID, grounded on original_source/lab4/sm_manager.cpp's
// create_table (existence check, then metadata registration before
// any file is opened by the caller).
func (m *Manager) CreateTable(schema types.TableSchema) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.meta.Tables[schema.TableName]; exists {
		return 0, fmt.Errorf("catalog: create table %s: %w", schema.TableName, errs.ErrTableAlreadyExists)
	}

	heapFileID := m.nextFileID()
	m.meta.Tables[schema.TableName] = tableMeta{
		Schema:     schema,
		HeapFileID: heapFileID,
		Indexes:    make(map[string]indexMeta),
	}
	if err := m.persist(); err != nil {
		delete(m.meta.Tables, schema.TableName)
		return 0, err
	}
	m.cache.Set(schema.TableName, schema, int64(len(schema.Columns)+1))
	log.WithFields(logFields(schema.TableName, heapFileID)).Info("table created")
	return heapFileID, nil
}

// DropTable removes a table and every index built over it, grounded
// on sm_manager.cpp's drop_table (erase index entries, then the table
// itself, then flush metadata).
func (m *Manager) DropTable(tableName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.meta.Tables[tableName]; !exists {
		return fmt.Errorf("catalog: drop table %s: %w", tableName, errs.ErrTableNotFound)
	}
	delete(m.meta.Tables, tableName)
	if err := m.persist(); err != nil {
		return err
	}
	m.cache.Del(tableName)
	log.WithField("table", tableName).Info("table dropped")
	return nil
}

// CreateIndex registers a new secondary index over tableName's
// columns and allocates its file ID. The caller is responsible for
// building the index file itself (storage/index/bplus.Open) and
// backfilling existing rows, mirroring sm_manager.cpp's create_index
// which scans the table and inserts entries after the catalog
// bookkeeping succeeds.
func (m *Manager) CreateIndex(tableName string, columns []string) (uint32, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab, exists := m.meta.Tables[tableName]
	if !exists {
		return 0, "", fmt.Errorf("catalog: create index on %s: %w", tableName, errs.ErrTableNotFound)
	}

	indexName := canonicalIndexName(tableName, columns)
	if _, exists := tab.Indexes[indexName]; exists {
		return 0, "", fmt.Errorf("catalog: create index %s: %w", indexName, errs.ErrIndexAlreadyExists)
	}

	indexFileID := m.nextFileID()
	tab.Indexes[indexName] = indexMeta{Name: indexName, Columns: columns, FileID: indexFileID}
	m.meta.Tables[tableName] = tab

	if err := m.persist(); err != nil {
		delete(tab.Indexes, indexName)
		return 0, "", err
	}
	log.WithFields(map[string]interface{}{"table": tableName, "index": indexName, "file_id": indexFileID}).Info("index created")
	return indexFileID, indexName, nil
}

// DropIndex removes a previously registered index, grounded on
// sm_manager.cpp's drop_index.
func (m *Manager) DropIndex(tableName string, columns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab, exists := m.meta.Tables[tableName]
	if !exists {
		return fmt.Errorf("catalog: drop index on %s: %w", tableName, errs.ErrTableNotFound)
	}
	indexName := canonicalIndexName(tableName, columns)
	if _, exists := tab.Indexes[indexName]; !exists {
		return fmt.Errorf("catalog: drop index %s: %w", indexName, errs.ErrIndexNotFound)
	}
	delete(tab.Indexes, indexName)
	m.meta.Tables[tableName] = tab

	if err := m.persist(); err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{"table": tableName, "index": indexName}).Info("index dropped")
	return nil
}

// GetTableSchema returns a table's schema, checking the ristretto
// cache before the in-memory metadata map (itself already loaded from
// db.meta at Open time, so there is no disk read on the miss path —
// the cache exists for the day a future version reloads schemas
// lazily rather than all at once).
func (m *Manager) GetTableSchema(tableName string) (types.TableSchema, error) {
	if schema, ok := m.cache.Get(tableName); ok {
		return schema, nil
	}

	m.mu.RLock()
	tab, exists := m.meta.Tables[tableName]
	m.mu.RUnlock()
	if !exists {
		return types.TableSchema{}, fmt.Errorf("catalog: get schema %s: %w", tableName, errs.ErrTableNotFound)
	}
	m.cache.Set(tableName, tab.Schema, int64(len(tab.Schema.Columns)+1))
	return tab.Schema, nil
}

// TableExists reports whether tableName is registered.
func (m *Manager) TableExists(tableName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.meta.Tables[tableName]
	return exists
}

// TableFileIDs returns the heap file ID and every index's canonical
// name mapped to its file ID, the set of IDs a caller needs to open
// everything backing a table.
func (m *Manager) TableFileIDs(tableName string) (TableFileIDs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tab, exists := m.meta.Tables[tableName]
	if !exists {
		return TableFileIDs{}, fmt.Errorf("catalog: file ids for %s: %w", tableName, errs.ErrTableNotFound)
	}
	ids := TableFileIDs{HeapFileID: tab.HeapFileID, Indexes: make(map[string]uint32, len(tab.Indexes))}
	for name, idx := range tab.Indexes {
		ids.Indexes[name] = idx.FileID
	}
	return ids, nil
}

// IndexColumns returns the column names an already-registered index
// was built over, so a caller reopening a table can rebuild the
// column list an index's B+ tree needs without the caller having to
// track it separately.
func (m *Manager) IndexColumns(tableName, indexName string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tab, exists := m.meta.Tables[tableName]
	if !exists {
		return nil, fmt.Errorf("catalog: index columns for %s: %w", tableName, errs.ErrTableNotFound)
	}
	idx, exists := tab.Indexes[indexName]
	if !exists {
		return nil, fmt.Errorf("catalog: index columns for %s: %w", indexName, errs.ErrIndexNotFound)
	}
	return idx.Columns, nil
}

// GetIndexName returns the canonical name for an index over columns
// on tableName, matching spec.md's get_index_name(table, cols).
func (m *Manager) GetIndexName(tableName string, columns []string) string {
	return canonicalIndexName(tableName, columns)
}

// canonicalIndexName hashes the sorted column list into a short
// suffix instead of concatenating raw column names, so a composite
// index over many columns doesn't produce a pathologically long index
// file name.
func canonicalIndexName(tableName string, columns []string) string {
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	sum := xxhash.Sum64String(strings.Join(sorted, ","))
	return fmt.Sprintf("%s_%016x", tableName, sum)
}

func logFields(table string, heapFileID uint32) map[string]interface{} {
	return map[string]interface{}{"table": table, "heap_file_id": heapFileID}
}
