package naf

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/studio-carto/prospect-cli/internal/fetcher"
)

// Download fetches the code/label reference CSV and installs it at path. The
// download goes to a temp file and is parsed before it replaces any previous
// table, so a bad download never clobbers a working one. Returns the freshly
// loaded table.
func Download(ctx context.Context, f fetcher.Fetcher, url, path string) (*Table, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "naf: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".naf-*.csv")
	if err != nil {
		return nil, eris.Wrap(err, "naf: create temp file")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	if _, err := f.DownloadToFile(ctx, url, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, eris.Wrapf(err, "naf: download %s", url)
	}

	table, err := LoadTable(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, eris.Wrap(err, "naf: downloaded table is unusable")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, eris.Wrapf(err, "naf: replace table %s", path)
	}

	zap.L().Info("activity label table downloaded",
		zap.String("url", url),
		zap.String("path", path),
		zap.Int("codes", table.Len()))
	return table, nil
}
