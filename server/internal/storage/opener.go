package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// Drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Opener opens the store backing a library.
type Opener func(libraryID string) (spi.Store, error)

var validLibraryID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidLibraryID reports whether id can name a library.
func ValidLibraryID(id string) bool { return validLibraryID.MatchString(id) }

// NewOpener returns the opener for driver. dir is only used by sqlite.
func NewOpener(driver, dir string) (Opener, error) {
	switch driver {
	case "", DriverMemory:
		return MemoryOpener(), nil
	case DriverSQLite:
		if dir == "" {
			return nil, fmt.Errorf("sqlite storage requires a data directory")
		}
		return SQLiteOpener(dir), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// MemoryOpener returns an opener whose libraries survive being closed and
// reopened for the lifetime of the process.
func MemoryOpener() Opener {
	var mu sync.Mutex
	stores := map[string]spi.Store{}
	return func(libraryID string) (spi.Store, error) {
		if !ValidLibraryID(libraryID) {
			return nil, fmt.Errorf("invalid library id %q", libraryID)
		}
		mu.Lock()
		defer mu.Unlock()
		s, ok := stores[libraryID]
		if !ok {
			s = NewMemory(libraryID)
			stores[libraryID] = s
		}
		return s, nil
	}
}

// SQLiteOpener returns an opener storing each library in dir/<libraryID>.db.
func SQLiteOpener(dir string) Opener {
	return func(libraryID string) (spi.Store, error) {
		if !ValidLibraryID(libraryID) {
			return nil, fmt.Errorf("invalid library id %q", libraryID)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return NewSQLite(libraryID, filepath.Join(dir, libraryID+".db"))
	}
}
