package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"storagecore/storage/errs"
	"storagecore/types"
)

func testSchema(name string) types.TableSchema {
	return types.TableSchema{
		TableName: name,
		Columns: []types.ColumnDef{
			{Name: "id", Type: "int", IsPrimaryKey: true},
			{Name: "name", Type: "varchar"},
		},
	}
}

func TestCreateTableThenGetSchema(t *testing.T) {
	mgr, err := CreateDatabase(filepath.Join(t.TempDir(), "db1"))
	require.NoError(t, err)

	heapFileID, err := mgr.CreateTable(testSchema("users"))
	require.NoError(t, err)
	require.Equal(t, uint32(1), heapFileID)

	schema, err := mgr.GetTableSchema("users")
	require.NoError(t, err)
	require.Equal(t, "users", schema.TableName)
	require.Len(t, schema.Columns, 2)
}

func TestCreateTableDuplicateRejected(t *testing.T) {
	mgr, err := CreateDatabase(filepath.Join(t.TempDir(), "db1"))
	require.NoError(t, err)

	_, err = mgr.CreateTable(testSchema("users"))
	require.NoError(t, err)

	_, err = mgr.CreateTable(testSchema("users"))
	require.ErrorIs(t, err, errs.ErrTableAlreadyExists)
}

func TestDropTableRemovesSchemaAndIndexes(t *testing.T) {
	mgr, err := CreateDatabase(filepath.Join(t.TempDir(), "db1"))
	require.NoError(t, err)

	_, err = mgr.CreateTable(testSchema("users"))
	require.NoError(t, err)
	_, _, err = mgr.CreateIndex("users", []string{"id"})
	require.NoError(t, err)

	require.NoError(t, mgr.DropTable("users"))
	require.False(t, mgr.TableExists("users"))

	_, err = mgr.GetTableSchema("users")
	require.ErrorIs(t, err, errs.ErrTableNotFound)
}

func TestCreateIndexAllocatesFileIDAndCanonicalName(t *testing.T) {
	mgr, err := CreateDatabase(filepath.Join(t.TempDir(), "db1"))
	require.NoError(t, err)

	_, err = mgr.CreateTable(testSchema("users"))
	require.NoError(t, err)

	fileID, name, err := mgr.CreateIndex("users", []string{"id"})
	require.NoError(t, err)
	require.Equal(t, uint32(2), fileID)
	require.Equal(t, mgr.GetIndexName("users", []string{"id"}), name)

	// column order shouldn't change the canonical name
	require.Equal(t, mgr.GetIndexName("users", []string{"id", "name"}), mgr.GetIndexName("users", []string{"name", "id"}))

	ids, err := mgr.TableFileIDs("users")
	require.NoError(t, err)
	require.Equal(t, uint32(1), ids.HeapFileID)
	require.Equal(t, fileID, ids.Indexes[name])
}

func TestCreateIndexDuplicateRejected(t *testing.T) {
	mgr, err := CreateDatabase(filepath.Join(t.TempDir(), "db1"))
	require.NoError(t, err)

	_, err = mgr.CreateTable(testSchema("users"))
	require.NoError(t, err)
	_, _, err = mgr.CreateIndex("users", []string{"id"})
	require.NoError(t, err)

	_, _, err = mgr.CreateIndex("users", []string{"id"})
	require.ErrorIs(t, err, errs.ErrIndexAlreadyExists)
}

func TestDropIndexNotFound(t *testing.T) {
	mgr, err := CreateDatabase(filepath.Join(t.TempDir(), "db1"))
	require.NoError(t, err)

	_, err = mgr.CreateTable(testSchema("users"))
	require.NoError(t, err)

	err = mgr.DropIndex("users", []string{"missing"})
	require.ErrorIs(t, err, errs.ErrIndexNotFound)
}

func TestReopenRecoversMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db1")
	mgr, err := CreateDatabase(dir)
	require.NoError(t, err)

	_, err = mgr.CreateTable(testSchema("users"))
	require.NoError(t, err)
	_, _, err = mgr.CreateIndex("users", []string{"id"})
	require.NoError(t, err)

	reopened, err := NewManager(dir)
	require.NoError(t, err)

	require.True(t, reopened.TableExists("users"))
	ids, err := reopened.TableFileIDs("users")
	require.NoError(t, err)
	require.Equal(t, uint32(1), ids.HeapFileID)
	require.Len(t, ids.Indexes, 1)

	// next file ID must continue from where it left off, not restart
	_, err = reopened.CreateTable(testSchema("orders"))
	require.NoError(t, err)
	ordersIDs, err := reopened.TableFileIDs("orders")
	require.NoError(t, err)
	require.Equal(t, uint32(3), ordersIDs.HeapFileID)
}

func TestCreateDatabaseRejectsExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db1")
	_, err := CreateDatabase(dir)
	require.NoError(t, err)

	_, err = CreateDatabase(dir)
	require.ErrorIs(t, err, errs.ErrDatabaseExists)
}
