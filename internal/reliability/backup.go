package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/database"
	"github.com/aristath/hindsight/internal/events"
)

const backupPrefix = "backups/"

// Uploader is the slice of the R2 client the backup service uses. Nil-able
// for local-only snapshots in tests.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// BackupMetadata describes the archive contents.
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseSnapshot `json:"databases"`
}

// DatabaseSnapshot describes one database file inside the archive.
type DatabaseSnapshot struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupService snapshots every database into a tar.gz archive and uploads
// it to R2. Snapshots use VACUUM INTO, which is safe against live writers.
type BackupService struct {
	databases     map[string]*database.DB
	dataDir       string
	uploader      Uploader
	retentionDays int
	bus           *events.Bus
	log           zerolog.Logger
}

func NewBackupService(databases map[string]*database.DB, dataDir string, uploader Uploader, retentionDays int, bus *events.Bus, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases:     databases,
		dataDir:       dataDir,
		uploader:      uploader,
		retentionDays: retentionDays,
		bus:           bus,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUpload snapshots the databases, archives them and uploads the
// archive, then prunes old backups past retention.
func (s *BackupService) CreateAndUpload(ctx context.Context) error {
	started := time.Now()

	archivePath, metadata, err := s.CreateArchive()
	if err != nil {
		return err
	}
	defer os.Remove(archivePath)

	if s.uploader == nil {
		return fmt.Errorf("no upload target configured")
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	key := backupPrefix + filepath.Base(archivePath)
	if err := s.uploader.Upload(ctx, key, f); err != nil {
		return err
	}

	pruned, err := s.pruneOld(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Backup retention pruning failed")
	}

	info, _ := os.Stat(archivePath)
	var sizeBytes int64
	if info != nil {
		sizeBytes = info.Size()
	}

	s.log.Info().
		Str("key", key).
		Int64("size_bytes", sizeBytes).
		Int("databases", len(metadata.Databases)).
		Int("pruned", pruned).
		Dur("elapsed", time.Since(started)).
		Msg("Backup uploaded")

	if s.bus != nil {
		s.bus.Publish(events.BackupCompleted, map[string]any{
			"key":        key,
			"size_bytes": sizeBytes,
			"databases":  len(metadata.Databases),
		})
	}
	return nil
}

// CreateArchive snapshots every database into a staging directory and
// packs them with a metadata file into a timestamped tar.gz under the data
// directory. The caller removes the returned file.
func (s *BackupService) CreateArchive() (string, *BackupMetadata, error) {
	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := &BackupMetadata{
		Timestamp: time.Now().UTC(),
		Databases: make([]DatabaseSnapshot, 0, len(s.databases)),
	}

	for _, name := range s.databaseNames() {
		snapshotPath := filepath.Join(stagingDir, name+".db")
		if err := s.snapshot(s.databases[name], snapshotPath); err != nil {
			return "", nil, fmt.Errorf("snapshotting %s: %w", name, err)
		}

		info, err := os.Stat(snapshotPath)
		if err != nil {
			return "", nil, fmt.Errorf("stat %s snapshot: %w", name, err)
		}
		checksum, err := fileChecksum(snapshotPath)
		if err != nil {
			return "", nil, fmt.Errorf("checksum %s snapshot: %w", name, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseSnapshot{
			Name:      name,
			Filename:  name + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	raw, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(metadataPath, raw, 0o644); err != nil {
		return "", nil, fmt.Errorf("writing metadata: %w", err)
	}

	archiveName := fmt.Sprintf("hindsight-backup-%s.tar.gz", metadata.Timestamp.Format("2006-01-02-150405"))
	archivePath := filepath.Join(s.dataDir, archiveName)
	if err := packArchive(archivePath, stagingDir); err != nil {
		os.Remove(archivePath)
		return "", nil, err
	}
	return archivePath, metadata, nil
}

// ListBackups returns stored backups, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]ObjectInfo, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("no upload target configured")
	}
	return s.uploader.List(ctx, backupPrefix)
}

// snapshot copies a live database with VACUUM INTO.
func (s *BackupService) snapshot(db *database.DB, dest string) error {
	// VACUUM INTO refuses to overwrite.
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return err
	}
	_, err := db.Exec("VACUUM INTO ?", dest)
	return err
}

// pruneOld deletes backups older than the retention window, always keeping
// the most recent one.
func (s *BackupService) pruneOld(ctx context.Context) (int, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	objects, err := s.uploader.List(ctx, backupPrefix)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	pruned := 0
	for i, obj := range objects {
		if i == 0 {
			continue
		}
		when := obj.Modified
		if ts, ok := timestampFromKey(obj.Key); ok {
			when = ts
		}
		if when.After(cutoff) {
			continue
		}
		if err := s.uploader.Delete(ctx, obj.Key); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

func (s *BackupService) databaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func packArchive(archivePath, dir string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading staging directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addToArchive(tw, filepath.Join(dir, entry.Name()), entry.Name()); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar writer: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}
	return nil
}

func addToArchive(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", name, err)
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archiving %s: %w", name, err)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
