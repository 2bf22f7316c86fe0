package localstorage

import (
	"os"
	"path/filepath"
	"strings"

	"mediagrab/internal/core/domain"
)

// Leftovers of interrupted downloads; never an artifact.
var skippedExtensions = []string{".part", ".ytdl"}

// Locate finds the file the tool produced for a download.
//
// The tool may swap the extension after container negotiation or sanitize
// the title differently, so the lookup falls back in order: the expected
// path, then <safeTitle>_<id>.* in dir, then the newest file in dir. dir
// must only hold this download's files for the last step to be sound.
func Locate(expectedPath, safeTitle, id, dir string) (string, error) {
	if isRegularFile(expectedPath) {
		return expectedPath, nil
	}

	pattern := filepath.Join(dir, escapeGlob(safeTitle+"_"+id)+".*")
	matches, err := filepath.Glob(pattern)
	if err == nil {
		for _, m := range matches {
			if !skipped(m) && isRegularFile(m) {
				return m, nil
			}
		}
	}

	if newest := newestFile(dir); newest != "" {
		return newest, nil
	}

	return "", domain.Fail(domain.KindArtifactMissing, "download completed but output not found", nil)
}

func newestFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var newest string
	var newestMod int64
	for _, entry := range entries {
		if !entry.Type().IsRegular() || skipped(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest = filepath.Join(dir, entry.Name())
			newestMod = mod
		}
	}
	return newest
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func skipped(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range skippedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// escapeGlob quotes filepath.Match metacharacters.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
