package server

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// uploadPath returns a fresh path in dir. Only the extension of the client
// supplied filename is kept.
func uploadPath(dir, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !safeExt.MatchString(ext) {
		ext = ""
	}
	return filepath.Join(dir, uuid.NewString()+ext)
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
