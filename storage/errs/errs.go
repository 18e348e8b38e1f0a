// Package errs defines the error taxonomy shared across the storage
// engine. Call sites wrap these sentinels with fmt.Errorf("...: %w",
// ...) so errors.Is keeps working after context is attached.
package errs

import "errors"

var (
	// Lock manager
	ErrLockOnShrinking    = errors.New("lock request issued while transaction is in SHRINKING phase")
	ErrDeadlockPrevention = errors.New("lock request denied by no-wait deadlock prevention")
	ErrLockNotHeld        = errors.New("transaction does not hold the requested lock")

	// Index
	ErrIndexEntryNotFound = errors.New("index entry not found")
	ErrDuplicateKey       = errors.New("duplicate key")

	// Record / heap
	ErrRecordNotFound = errors.New("record not found")
	ErrPageFull        = errors.New("page has insufficient free space")

	// Buffer pool / disk manager
	ErrPageNotFound  = errors.New("page not found in buffer pool or on disk")
	ErrAllPagesPinned = errors.New("no free frame: all buffer pool pages are pinned")
	ErrPageIsPinned  = errors.New("cannot delete a pinned page")

	// Catalog
	ErrDatabaseExists     = errors.New("database already exists")
	ErrDatabaseNotFound   = errors.New("database not found")
	ErrTableNotFound      = errors.New("table not found in catalog")
	ErrTableAlreadyExists = errors.New("table already exists in catalog")
	ErrIndexNotFound      = errors.New("index not found in catalog")
	ErrIndexAlreadyExists = errors.New("index already exists in catalog")

	// Transaction
	ErrTxnNotFound  = errors.New("transaction not found")
	ErrTxnNotActive = errors.New("transaction is not active")
)
