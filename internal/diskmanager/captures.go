// captures.go - listing of recorded face crops
package diskmanager

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/omniface/omniface-go/internal/errors"
)

// allowedFileTypes are the extensions cleanup may delete
var allowedFileTypes = []string{".jpg", ".jpeg"}

// CaptureFile is one face crop below the captures root
type CaptureFile struct {
	Path      string
	Tenant    string // tenant_<id> directory
	Label     string // person directory
	Timestamp time.Time
	Size      int64
}

func isAllowedFileType(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range allowedFileTypes {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ListCaptures walks root/<tenant>/<label>/ and returns the crops it finds.
// A missing root yields an empty list.
func ListCaptures(root string) ([]CaptureFile, error) {
	var files []CaptureFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !isAllowedFileType(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// removed while walking
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		f := CaptureFile{Path: path, Timestamp: info.ModTime(), Size: info.Size()}
		if rel, err := filepath.Rel(root, path); err == nil {
			parts := strings.Split(filepath.ToSlash(rel), "/")
			if len(parts) == 3 {
				f.Tenant, f.Label = parts[0], parts[1]
			}
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
