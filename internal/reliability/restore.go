package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// restoreDirName is where staged archives wait under the data directory.
const restoreDirName = "restore"

// Downloader fetches backup archives for staging.
type Downloader interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// StageRestore downloads a backup archive into the restore directory so
// the next startup applies it before the databases open. An empty key
// stages the most recent backup.
func StageRestore(ctx context.Context, dl Downloader, dataDir, key string, log zerolog.Logger) (string, error) {
	if key == "" {
		objects, err := dl.List(ctx, backupPrefix)
		if err != nil {
			return "", fmt.Errorf("listing backups: %w", err)
		}
		if len(objects) == 0 {
			return "", fmt.Errorf("no backups found")
		}
		key = objects[0].Key
	}

	restoreDir := filepath.Join(dataDir, restoreDirName)
	if err := os.MkdirAll(restoreDir, 0o755); err != nil {
		return "", fmt.Errorf("creating restore directory: %w", err)
	}

	body, err := dl.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", key, err)
	}
	defer body.Close()

	dest := filepath.Join(restoreDir, filepath.Base(key))
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	log.Info().Str("key", key).Str("staged", dest).Msg("Backup staged for restore")
	return dest, nil
}

// RunPendingRestore applies a staged backup archive, if one exists, by
// replacing the database files under dataDir. Must run before the
// databases open. Checksums are verified against the archive's metadata;
// a mismatch aborts with the live files untouched. Returns true when a
// restore was applied.
func RunPendingRestore(dataDir string, log zerolog.Logger) (bool, error) {
	restoreDir := filepath.Join(dataDir, restoreDirName)
	archive, err := newestArchive(restoreDir)
	if err != nil || archive == "" {
		return false, err
	}

	unpacked := filepath.Join(restoreDir, "unpacked")
	if err := os.MkdirAll(unpacked, 0o755); err != nil {
		return false, err
	}
	defer os.RemoveAll(unpacked)

	if err := unpackArchive(archive, unpacked); err != nil {
		return false, fmt.Errorf("unpacking %s: %w", archive, err)
	}

	metadata, err := readMetadata(filepath.Join(unpacked, "backup-metadata.json"))
	if err != nil {
		return false, err
	}
	for _, snap := range metadata.Databases {
		path := filepath.Join(unpacked, snap.Filename)
		sum, err := fileChecksum(path)
		if err != nil {
			return false, fmt.Errorf("checksum %s: %w", snap.Filename, err)
		}
		if sum != snap.Checksum {
			return false, fmt.Errorf("checksum mismatch for %s in %s", snap.Filename, archive)
		}
	}

	// All snapshots verified; swap the live files.
	for _, snap := range metadata.Databases {
		target := filepath.Join(dataDir, snap.Filename)
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := os.Remove(target + suffix); err != nil && !os.IsNotExist(err) {
				return false, err
			}
		}
		if err := os.Rename(filepath.Join(unpacked, snap.Filename), target); err != nil {
			return false, fmt.Errorf("restoring %s: %w", snap.Filename, err)
		}
		log.Info().Str("database", snap.Name).Str("path", target).Msg("Database restored")
	}

	if err := os.Remove(archive); err != nil {
		log.Warn().Err(err).Str("archive", archive).Msg("Failed to remove applied restore archive")
	}
	log.Info().Str("archive", archive).Time("backup_taken", metadata.Timestamp).Msg("Restore applied")
	return true, nil
}

// newestArchive returns the most recently named staged archive, or "".
func newestArchive(restoreDir string) (string, error) {
	entries, err := os.ReadDir(restoreDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	var archives []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tar.gz") {
			archives = append(archives, e.Name())
		}
	}
	if len(archives) == 0 {
		return "", nil
	}
	// Archive names embed the backup timestamp, so name order is time order.
	sort.Strings(archives)
	return filepath.Join(restoreDir, archives[len(archives)-1]), nil
}

func readMetadata(path string) (*BackupMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backup metadata: %w", err)
	}
	var metadata BackupMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("decoding backup metadata: %w", err)
	}
	if len(metadata.Databases) == 0 {
		return nil, fmt.Errorf("backup metadata lists no databases")
	}
	return &metadata, nil
}

func unpackArchive(archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := filepath.Base(hdr.Name) // flat archive, no paths trusted
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		out, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
}
