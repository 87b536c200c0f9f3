package flush

import (
	"compress/gzip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// compressRotatedSegment gzips a segment file that has just been rotated
// away (never the live segment) and removes the original, atomically via
// a .tmp-then-rename. Adapted from the teacher's collector.compressFile;
// here it runs against closed segments only, so it never races a writer
// still appending to the file.
func compressRotatedSegment(path string) {
	dst := path + ".gz"
	tmp := dst + ".tmp"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}

	src, err := os.Open(path)
	if err != nil {
		slog.Warn("segment compress: open", "path", path, "err", err)
		return
	}
	defer src.Close()

	tmpFile, err := os.Create(tmp)
	if err != nil {
		slog.Warn("segment compress: create tmp", "path", tmp, "err", err)
		return
	}

	gz, _ := gzip.NewWriterLevel(tmpFile, gzip.BestCompression)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		tmpFile.Close()
		os.Remove(tmp)
		slog.Warn("segment compress: copy", "path", path, "err", err)
		return
	}
	if err := gz.Close(); err != nil {
		tmpFile.Close()
		os.Remove(tmp)
		slog.Warn("segment compress: gzip close", "path", path, "err", err)
		return
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmp)
		slog.Warn("segment compress: tmp close", "path", path, "err", err)
		return
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		slog.Warn("segment compress: rename", "path", path, "err", err)
		return
	}
	if err := os.Remove(path); err != nil {
		slog.Warn("segment compress: remove original", "path", path, "err", err)
		return
	}
	slog.Info("segment compressed", "dst", dst)
}

// CompressStaleTmp removes leftover .gz.tmp files matching pattern in dir,
// left behind by a compression interrupted in a prior run. It does not
// compress any segment files itself. Adapted from the teacher's
// CompressStaleFiles.
func CompressStaleTmp(dir, globPattern string) {
	tmps, _ := filepath.Glob(filepath.Join(dir, globPattern+".gz.tmp"))
	for _, tmp := range tmps {
		slog.Warn("removing stale compress tmp", "path", tmp)
		os.Remove(tmp)
	}
}
