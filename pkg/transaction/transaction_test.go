package transaction

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/paths"
	"github.com/Hierosoft/hierosoft/pkg/testutil"
	"github.com/Hierosoft/hierosoft/pkg/types"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	p, err := paths.New(root)
	require.NoError(t, err)
	return NewStore(filesystem.NewOS(), p, zerolog.Nop()), root
}

func sampleSpec() types.InstallSpec {
	return types.InstallSpec{
		SourceRoot: "/tmp/src",
		DestRoot:   "/opt/game",
		Keeps:      types.NewPathSet("saves", "config.ini"),
		Replaces:   types.NewPathSet("data"),
		Meta: types.PackageMeta{
			LUID:         "game",
			Name:         "Game",
			Version:      "1.2.0",
			Organization: "Acme",
			Extra:        map[string]interface{}{"homepage": "https://example.com", "luid": "ignored"},
		},
	}
}

func TestNewInstallIDSortsByTime(t *testing.T) {
	early := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	late := early.Add(time.Millisecond)
	assert.Equal(t, "20260102T030405.000006Z", NewInstallID(early))
	assert.Less(t, NewInstallID(early), NewInstallID(late))
	assert.NotEqual(t, NewRunID(), NewRunID())
}

func TestRecordJSON(t *testing.T) {
	date := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	rec := NewRecord(sampleSpec(), "id1", "run1", date)
	rec.Size = 42
	rec.UninstallScript = "/meta/game/transactions/id1/id1-uninstall.sh"

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "id1", raw["install_id"])
	assert.Equal(t, "2026-03-04T05:06:07Z", raw["install_date"])
	assert.Equal(t, "game", raw["luid"], "known fields win over extras")
	assert.Equal(t, "Acme", raw["organization"])
	assert.Equal(t, float64(42), raw["size"])
	assert.Equal(t, []interface{}{"config.ini", "saves"}, raw["keeps"])
	assert.Equal(t, []interface{}{"data"}, raw["replaces"])
	assert.Equal(t, "https://example.com", raw["homepage"])
	assert.Equal(t, StatusPending, raw["status"])

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec.InstallID, back.InstallID)
	assert.True(t, rec.InstallDate.Equal(back.InstallDate))
	assert.Equal(t, map[string]interface{}{"homepage": "https://example.com"}, back.Extra)
}

func TestBeginAndPromote(t *testing.T) {
	s, root := newStore(t)

	first := NewRecord(sampleSpec(), "20260101T000000.000000Z", "r1", time.Now())
	l1, err := s.Begin(first)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "game", "transactions", first.InstallID), l1.Dir)
	assert.True(t, testutil.DirExists(t, l1.Dir))
	assert.True(t, testutil.FileExists(t, l1.Pending))
	assert.Equal(t, l1.UndoScript, first.UninstallScript)

	_, _, err = s.Latest("game")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound), "a pending record is not installed yet")

	path, err := s.Promote(first)
	require.NoError(t, err)
	assert.Equal(t, l1.Record, path)
	testutil.AssertNoFile(t, l1.Pending)

	second := NewRecord(sampleSpec(), "20260201T000000.000000Z", "r2", time.Now())
	second.Version = "1.3.0"
	l2, err := s.Begin(second)
	require.NoError(t, err)
	_, err = s.Promote(second)
	require.NoError(t, err)

	latest, latestPath, err := s.Latest("game")
	require.NoError(t, err)
	assert.Equal(t, l2.Record, latestPath)
	assert.Equal(t, "1.3.0", latest.Version)
	assert.Equal(t, StatusInstalled, latest.Status)

	testutil.AssertNoFile(t, l1.Record)
	testutil.AssertNoFile(t, filepath.Join(l1.PackageDir, first.InstallID+BackupExt))
	prev, err := s.Load(filepath.Join(l2.Dir, PreviousPrefix+first.InstallID+RecordExt))
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", prev.Version)

	// uninstalling the second brings the first back
	require.NoError(t, s.Retire(latest))
	restored, _, err := s.Latest("game")
	require.NoError(t, err)
	assert.Equal(t, first.InstallID, restored.InstallID)
	retired, err := s.Load(filepath.Join(l2.Dir, second.InstallID+RecordExt))
	require.NoError(t, err)
	assert.Equal(t, StatusUninstalled, retired.Status)
}

func TestFail(t *testing.T) {
	s, _ := newStore(t)
	rec := NewRecord(sampleSpec(), "id-fail", "r", time.Now())
	l, err := s.Begin(rec)
	require.NoError(t, err)

	path, err := s.Fail(rec, errors.New(errors.ErrIO, "disk full"))
	require.NoError(t, err)
	testutil.AssertNoFile(t, l.Pending)

	failed, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "disk full")
}

func TestInstalled(t *testing.T) {
	s, _ := newStore(t)

	none, err := s.Installed()
	require.NoError(t, err)
	assert.Empty(t, none)

	for _, luid := range []string{"zeta", "alpha"} {
		spec := sampleSpec()
		spec.Meta.LUID = luid
		rec := NewRecord(spec, "id", "r", time.Now())
		_, err := s.Begin(rec)
		require.NoError(t, err)
		_, err = s.Promote(rec)
		require.NoError(t, err)
	}
	pending := sampleSpec()
	pending.Meta.LUID = "pending"
	_, err = s.Begin(NewRecord(pending, "id", "r", time.Now()))
	require.NoError(t, err)

	got, err := s.Installed()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].LUID)
	assert.Equal(t, "zeta", got[1].LUID)
}

func TestLayoutRejectsBadIDs(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Layout("../escape", "id")
	assert.Error(t, err)
	_, err = s.Layout("game", "a/b")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	s, _ := newStore(t)
	rec := NewRecord(sampleSpec(), "id-declined", "r", time.Now())
	l, err := s.Begin(rec)
	require.NoError(t, err)

	require.NoError(t, s.Discard(rec))
	testutil.AssertNoFile(t, l.Pending)
	testutil.AssertNoFile(t, l.Dir)
}
