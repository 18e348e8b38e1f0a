// Command seed creates a database directory, registers a handful of
// tables and a primary-key index each, inserts sample rows inside
// committed transactions, writes a checkpoint, and prints the
// directory it seeded. It exercises the engine end to end — disk
// manager, buffer pool, WAL, catalog, record manager, transaction
// manager, and B+ tree index; it takes no locks, so the lock manager
// is not exercised — the way the teacher's own
// cmd/seed exercised its SQL pipeline end to end.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"storagecore/engine"
	"storagecore/types"
)

var (
	dbDir              string
	bufferPoolCapacity int
	logLevel           string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate a database directory with sample tables and rows",
	RunE:  runSeed,
}

func init() {
	fs := seedCmd.PersistentFlags()
	fs.StringVar(&dbDir, "db-dir", "databases/demo", "database directory to create or reattach to")
	fs.IntVar(&bufferPoolCapacity, "buffer-pool-capacity", 64, "number of frames in the buffer pool")
	fs.StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
}

func main() {
	if err := seedCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	ll, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logrus.SetLevel(ll)

	eng, err := engine.Open(dbDir, bufferPoolCapacity)
	if err != nil {
		return fmt.Errorf("seed: open engine: %w", err)
	}
	defer eng.Close()

	if err := seedStudents(eng); err != nil {
		return err
	}
	if err := seedCourses(eng); err != nil {
		return err
	}

	if err := eng.Checkpoint("demo"); err != nil {
		return fmt.Errorf("seed: checkpoint: %w", err)
	}

	fmt.Printf("Seeded database at %s\n", dbDir)
	return nil
}

func seedStudents(eng *engine.Engine) error {
	schema := types.TableSchema{
		TableName: "students",
		Columns: []types.ColumnDef{
			{Name: "id", Type: "string", IsPrimaryKey: true},
			{Name: "name", Type: "string"},
			{Name: "age", Type: "int"},
		},
	}
	hf, err := eng.CreateTable(schema)
	if err != nil {
		return fmt.Errorf("seed: create table students: %w", err)
	}
	tree, _, err := eng.CreateIndex("students", []string{"id"})
	if err != nil {
		return fmt.Errorf("seed: create index on students: %w", err)
	}

	rows := []struct {
		id, name string
		age      int
	}{
		{"S001", "Alice", 20},
		{"S002", "Bob", 21},
		{"S003", "Carol", 19},
	}

	tx := eng.Txns.Begin()
	var lastLSN uint64
	for _, r := range rows {
		row := []byte(fmt.Sprintf("%s,%s,%d", r.id, r.name, r.age))
		lsn, err := eng.Log.Append(row)
		if err != nil {
			eng.Txns.Abort(tx)
			return fmt.Errorf("seed: append wal for student %s: %w", r.id, err)
		}
		lastLSN = lsn

		rid, err := eng.Records.InsertRecordRow(hf.FileID(), row, lsn)
		if err != nil {
			eng.Txns.Abort(tx)
			return fmt.Errorf("seed: insert student %s: %w", r.id, err)
		}
		tx.RecordInsert(hf.FileID(), rid)

		if err := tree.InsertEntry(types.Key(r.id), rid); err != nil {
			eng.Txns.Abort(tx)
			return fmt.Errorf("seed: index student %s: %w", r.id, err)
		}
		tx.RecordIndexInsert(hf.FileID(), types.Key(r.id), rid)
	}
	return eng.Txns.Commit(tx, lastLSN)
}

func seedCourses(eng *engine.Engine) error {
	schema := types.TableSchema{
		TableName: "courses",
		Columns: []types.ColumnDef{
			{Name: "code", Type: "string", IsPrimaryKey: true},
			{Name: "title", Type: "string"},
		},
	}
	hf, err := eng.CreateTable(schema)
	if err != nil {
		return fmt.Errorf("seed: create table courses: %w", err)
	}
	tree, _, err := eng.CreateIndex("courses", []string{"code"})
	if err != nil {
		return fmt.Errorf("seed: create index on courses: %w", err)
	}

	rows := []struct{ code, title string }{
		{"CS101", "Intro to CS"},
		{"CS102", "Data Structures"},
	}

	tx := eng.Txns.Begin()
	var lastLSN uint64
	for _, r := range rows {
		row := []byte(fmt.Sprintf("%s,%s", r.code, r.title))
		lsn, err := eng.Log.Append(row)
		if err != nil {
			eng.Txns.Abort(tx)
			return fmt.Errorf("seed: append wal for course %s: %w", r.code, err)
		}
		lastLSN = lsn

		rid, err := eng.Records.InsertRecordRow(hf.FileID(), row, lsn)
		if err != nil {
			eng.Txns.Abort(tx)
			return fmt.Errorf("seed: insert course %s: %w", r.code, err)
		}
		tx.RecordInsert(hf.FileID(), rid)

		if err := tree.InsertEntry(types.Key(r.code), rid); err != nil {
			eng.Txns.Abort(tx)
			return fmt.Errorf("seed: index course %s: %w", r.code, err)
		}
		tx.RecordIndexInsert(hf.FileID(), types.Key(r.code), rid)
	}
	return eng.Txns.Commit(tx, lastLSN)
}
