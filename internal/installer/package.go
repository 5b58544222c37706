package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// Package zips dir into a temporary archive named <base>.zip. Entries are
// rooted at the directory's base name. The caller removes the archive.
func (c *Client) Package(ctx context.Context, dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("plugin directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("plugin directory: %s is not a directory", dir)
	}

	base := filepath.Base(filepath.Clean(dir))
	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{dir: base})
	if err != nil {
		return "", fmt.Errorf("collecting files: %w", err)
	}
	files = withoutVCS(files)

	tmp, err := os.MkdirTemp("", "codemage-pkg-")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	path := filepath.Join(tmp, base+".zip")

	out, err := os.Create(path)
	if err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("creating archive: %w", err)
	}
	if err := (archives.Zip{}).Archive(ctx, out, files); err != nil {
		out.Close()
		os.RemoveAll(tmp)
		return "", fmt.Errorf("writing archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("closing archive: %w", err)
	}
	return path, nil
}

// RemoveArchive deletes an archive produced by Package along with its
// temporary directory.
func RemoveArchive(path string) error {
	dir := filepath.Dir(path)
	if !strings.HasPrefix(filepath.Base(dir), "codemage-pkg-") {
		return os.Remove(path)
	}
	return os.RemoveAll(dir)
}

func withoutVCS(files []archives.FileInfo) []archives.FileInfo {
	out := files[:0]
	for _, f := range files {
		name := filepath.ToSlash(f.NameInArchive)
		if strings.Contains(name+"/", "/.git/") {
			continue
		}
		out = append(out, f)
	}
	return out
}
