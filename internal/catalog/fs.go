package catalog

import "os"

// removeAll deletes the catalog file and its WAL/SHM sidecars so a rebuild
// starts from a truly empty store.
func removeAll(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
