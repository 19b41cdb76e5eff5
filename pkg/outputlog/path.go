package outputlog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultPrefix is the file name prefix used when no output path is given.
const DefaultPrefix = "dmerged"

// ResolvePath returns explicit if it is set. Otherwise it returns a new, unique file name
// with DefaultPrefix in the current working directory. The file is not created.
func ResolvePath(explicit string) (path string, generated bool, err error) {
	if explicit != "" {
		return explicit, false, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(wd, DefaultPrefix+"."+uuid.New().String()), true, nil
}
