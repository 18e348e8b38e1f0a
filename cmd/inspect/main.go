// Command inspect opens a database directory through engine.Open (which
// creates the directory and its WAL if they are absent and holds an
// exclusive lock on the directory while it runs) and renders buffer pool frame occupancy, lock table contents, and table/
// index page counts as tables, in the spirit of the teacher's
// cmd/inspect_idx and maho's table-rendering REPL output.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"storagecore/engine"
	"storagecore/types"
)

var (
	dbDir              string
	bufferPoolCapacity int
	tableNames         []string
)

var rootCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect a storagecore database directory",
}

var bufferCmd = &cobra.Command{
	Use:   "buffer",
	Short: "Show buffer pool frame occupancy",
	RunE:  runBuffer,
}

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Show the lock table's current grants",
	RunE:  runLocks,
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Show table and index page counts",
	RunE:  runTables,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbDir, "db-dir", "databases/demo", "database directory to inspect")
	rootCmd.PersistentFlags().IntVar(&bufferPoolCapacity, "buffer-pool-capacity", 64, "number of frames in the buffer pool")
	tablesCmd.Flags().StringSliceVar(&tableNames, "table", nil, "table name to include (repeatable); defaults to none opened")

	rootCmd.AddCommand(bufferCmd, locksCmd, tablesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openEngine() (*engine.Engine, error) {
	return engine.Open(dbDir, bufferPoolCapacity)
}

func runBuffer(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	stats := eng.Buffer.GetStats()
	fmt.Printf("capacity=%d resident=%d pinned=%d dirty=%d\n",
		stats.Capacity, stats.TotalPages, stats.PinnedPages, stats.DirtyPages)

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Frame", "Occupied", "PageID", "PinCount", "Dirty"})
	for _, f := range eng.Buffer.Frames() {
		if !f.Occupied {
			continue
		}
		tw.Append([]string{
			fmt.Sprintf("%d", f.Frame),
			"yes",
			fmt.Sprintf("%d", f.PageID),
			fmt.Sprintf("%d", f.PinCount),
			fmt.Sprintf("%v", f.Dirty),
		})
	}
	tw.Render()
	return nil
}

func runLocks(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Target", "FileID", "Rid", "GroupMode", "Requests"})
	for id, q := range eng.Locks.Snapshot() {
		target := "table"
		if id.Target == types.LockTargetRecord {
			target = "record"
		}
		requests := ""
		for i, r := range q.Requests {
			if i > 0 {
				requests += ", "
			}
			requests += fmt.Sprintf("txn=%d mode=%s granted=%v", r.TxnID, r.Mode, r.Granted)
		}
		tw.Append([]string{
			target,
			fmt.Sprintf("%d", id.FileID),
			fmt.Sprintf("%v", id.Rid),
			fmt.Sprintf("%d", q.GroupMode),
			requests,
		})
	}
	tw.Render()
	return nil
}

func runTables(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Table", "HeapFileID", "HeapPages", "Index", "IndexFileID", "IndexPages"})

	for _, name := range tableNames {
		hf, err := eng.OpenTable(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open table %s: %v\n", name, err)
			continue
		}
		heapPages := eng.Disk.TotalPagesForFile(hf.FileID())

		ids, err := eng.Catalog.TableFileIDs(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "file ids for %s: %v\n", name, err)
			continue
		}
		if len(ids.Indexes) == 0 {
			tw.Append([]string{name, fmt.Sprintf("%d", hf.FileID()), humanize.Comma(heapPages), "-", "-", "-"})
			continue
		}
		for indexName, fileID := range ids.Indexes {
			indexPages := eng.Disk.TotalPagesForFile(fileID)
			tw.Append([]string{
				name,
				fmt.Sprintf("%d", hf.FileID()),
				humanize.Comma(heapPages),
				indexName,
				fmt.Sprintf("%d", fileID),
				humanize.Comma(indexPages),
			})
		}
	}
	tw.Render()
	return nil
}
