package datamove

import (
	"os"
	"path/filepath"
)

// writeLocal writes data to dst, creating parent directories as needed.
func writeLocal(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
