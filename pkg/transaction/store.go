package transaction

import (
	"encoding/json"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/paths"
)

// File name parts of the on-disk layout.
const (
	RecordExt      = ".json"
	PendingExt     = ".json.wip"
	BackupExt      = ".json.bak"
	FailedExt      = ".json.failed"
	PreviousPrefix = "previous-"

	UndoSuffix  = "-uninstall.sh"
	RedoExt     = ".log"
	ArchiveName = "removed.zip"
)

// Layout is where one transaction keeps its files.
type Layout struct {
	Dir        string
	UndoScript string
	RedoLog    string
	Archive    string
	Pending    string
	Record     string
	PackageDir string
}

// Store reads and writes records below the metadata root. Each package
// directory holds at most one canonical <install-id>.json, the latest
// successful install.
type Store struct {
	fs     filesystem.FS
	paths  *paths.Paths
	logger zerolog.Logger
}

// NewStore returns a Store on fsys.
func NewStore(fsys filesystem.FS, p *paths.Paths, logger zerolog.Logger) *Store {
	return &Store{fs: fsys, paths: p, logger: logger}
}

// Layout returns the file locations of transaction id for luid.
func (s *Store) Layout(luid, id string) (Layout, error) {
	pkgDir, err := s.paths.PackageDir(luid)
	if err != nil {
		return Layout{}, err
	}
	txDir, err := s.paths.TransactionDir(luid, id)
	if err != nil {
		return Layout{}, err
	}
	return Layout{
		Dir:        txDir,
		UndoScript: filepath.Join(txDir, id+UndoSuffix),
		RedoLog:    filepath.Join(txDir, id+RedoExt),
		Archive:    filepath.Join(txDir, ArchiveName),
		Pending:    filepath.Join(pkgDir, id+PendingExt),
		Record:     filepath.Join(pkgDir, id+RecordExt),
		PackageDir: pkgDir,
	}, nil
}

// Begin creates the transaction directory and writes rec as pending.
func (s *Store) Begin(rec *Record) (Layout, error) {
	l, err := s.Layout(rec.LUID, rec.InstallID)
	if err != nil {
		return Layout{}, err
	}
	if err := s.fs.MkdirAll(l.Dir, 0755); err != nil {
		return Layout{}, errors.Wrapf(err, errors.ErrTransaction, "create transaction dir %s", l.Dir)
	}
	rec.UninstallScript = l.UndoScript
	rec.RedoLog = l.RedoLog
	rec.Archive = l.Archive
	rec.Status = StatusPending
	if err := s.write(l.Pending, rec); err != nil {
		return Layout{}, err
	}
	s.logger.Debug().Str("luid", rec.LUID).Str("install_id", rec.InstallID).Str("dir", l.Dir).Msg("transaction started")
	return l, nil
}

// Promote turns the pending record into the canonical one. Any earlier
// canonical record is set aside as .json.bak first and then moved into
// the new transaction directory as previous-<id>.json.
func (s *Store) Promote(rec *Record) (string, error) {
	l, err := s.Layout(rec.LUID, rec.InstallID)
	if err != nil {
		return "", err
	}
	rec.Status = StatusInstalled
	if err := s.write(l.Pending, rec); err != nil {
		return "", err
	}

	prior, err := s.canonical(l.PackageDir)
	if err != nil {
		return "", err
	}
	var backups []string
	for _, old := range prior {
		if old == l.Record {
			continue
		}
		bak := strings.TrimSuffix(old, RecordExt) + BackupExt
		if err := s.fs.Rename(old, bak); err != nil {
			return "", errors.Wrapf(err, errors.ErrTransaction, "back up record %s", old)
		}
		backups = append(backups, bak)
	}

	if err := s.fs.Rename(l.Pending, l.Record); err != nil {
		return "", errors.Wrapf(err, errors.ErrTransaction, "promote record %s", l.Pending)
	}

	for _, bak := range backups {
		oldID := strings.TrimSuffix(filepath.Base(bak), BackupExt)
		dst := filepath.Join(l.Dir, PreviousPrefix+oldID+RecordExt)
		if err := s.fs.Rename(bak, dst); err != nil {
			return "", errors.Wrapf(err, errors.ErrTransaction, "move record %s", bak)
		}
	}

	s.logger.Info().Str("luid", rec.LUID).Str("record", l.Record).Int("replaced", len(backups)).Msg("record promoted")
	return l.Record, nil
}

// Fail moves the pending record into the transaction directory marked
// failed, so Latest keeps reporting the last good install.
func (s *Store) Fail(rec *Record, cause error) (string, error) {
	l, err := s.Layout(rec.LUID, rec.InstallID)
	if err != nil {
		return "", err
	}
	rec.Status = StatusFailed
	if cause != nil {
		rec.Error = cause.Error()
	}
	dst := filepath.Join(l.Dir, rec.InstallID+FailedExt)
	if err := s.write(dst, rec); err != nil {
		return "", err
	}
	if err := s.fs.Remove(l.Pending); err != nil && !isNotExist(err) {
		return dst, errors.Wrapf(err, errors.ErrTransaction, "remove pending record %s", l.Pending)
	}
	return dst, nil
}

// Discard removes a pending transaction that never touched the
// destination.
func (s *Store) Discard(rec *Record) error {
	l, err := s.Layout(rec.LUID, rec.InstallID)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(l.Pending); err != nil && !isNotExist(err) {
		return errors.Wrapf(err, errors.ErrTransaction, "remove pending record %s", l.Pending)
	}
	if err := s.fs.RemoveAll(l.Dir); err != nil {
		return errors.Wrapf(err, errors.ErrTransaction, "remove %s", l.Dir)
	}
	return nil
}

// Retire marks the canonical record of rec as uninstalled, moves it into
// its transaction directory and brings back the record it replaced, if
// any.
func (s *Store) Retire(rec *Record) error {
	l, err := s.Layout(rec.LUID, rec.InstallID)
	if err != nil {
		return err
	}
	rec.Status = StatusUninstalled
	if err := s.write(filepath.Join(l.Dir, rec.InstallID+RecordExt), rec); err != nil {
		return err
	}
	if err := s.fs.Remove(l.Record); err != nil && !isNotExist(err) {
		return errors.Wrapf(err, errors.ErrTransaction, "remove record %s", l.Record)
	}

	entries, err := s.fs.ReadDir(l.Dir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrTransaction, "read %s", l.Dir)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, PreviousPrefix) || !strings.HasSuffix(name, RecordExt) {
			continue
		}
		restored := filepath.Join(l.PackageDir, strings.TrimPrefix(name, PreviousPrefix))
		if err := s.fs.Rename(filepath.Join(l.Dir, name), restored); err != nil {
			return errors.Wrapf(err, errors.ErrTransaction, "restore record %s", name)
		}
		s.logger.Debug().Str("record", restored).Msg("previous record restored")
	}
	return nil
}

// Latest returns the canonical record of luid.
func (s *Store) Latest(luid string) (*Record, string, error) {
	pkgDir, err := s.paths.PackageDir(luid)
	if err != nil {
		return nil, "", err
	}
	records, err := s.canonical(pkgDir)
	if err != nil {
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", errors.Newf(errors.ErrNotFound, "%s is not installed", luid).WithDetail("luid", luid)
	}
	// install ids sort by time
	path := records[len(records)-1]
	rec, err := s.Load(path)
	return rec, path, err
}

// Installed returns the canonical record of every package, sorted by LUID.
func (s *Store) Installed() ([]*Record, error) {
	entries, err := s.fs.ReadDir(s.paths.MetadataRoot())
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrTransaction, "read %s", s.paths.MetadataRoot())
	}
	var out []*Record
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, _, err := s.Latest(e.Name())
		if errors.IsErrorCode(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("luid", e.Name()).Msg("unreadable record")
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LUID < out[j].LUID })
	return out, nil
}

// Load reads one record file.
func (s *Store) Load(path string) (*Record, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTransaction, "open record %s", path)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTransaction, "read record %s", path)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTransaction, "parse record %s", path)
	}
	return &rec, nil
}

// canonical lists the <id>.json files of a package directory in name
// order.
func (s *Store) canonical(pkgDir string) ([]string, error) {
	entries, err := s.fs.ReadDir(pkgDir)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrTransaction, "read %s", pkgDir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), RecordExt) {
			continue
		}
		out = append(out, filepath.Join(pkgDir, e.Name()))
	}
	return out, nil
}

func (s *Store) write(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrTransaction, "encode record")
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrTransaction, "create %s", filepath.Dir(path))
	}
	f, err := s.fs.Create(path, 0644)
	if err != nil {
		return errors.Wrapf(err, errors.ErrTransaction, "create record %s", path)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, errors.ErrTransaction, "write record %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrTransaction, "close record %s", path)
	}
	return nil
}
