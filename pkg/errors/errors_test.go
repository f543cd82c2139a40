package errors_test

import (
	"context"
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/paths"
	"github.com/Hierosoft/hierosoft/pkg/reconcile"
	"github.com/Hierosoft/hierosoft/pkg/types"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"bare", errors.New(errors.ErrSpecInvalid, "no package id"), "[SPEC_INVALID] no package id"},
		{"formatted", errors.Newf(errors.ErrTransaction, "record %s is pending", "abc"), "[TRANSACTION] record abc is pending"},
		{"wrapped", errors.Wrap(fs.ErrPermission, errors.ErrUndo, "rm failed"), "[UNDO] rm failed: permission denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.ErrIO, "x"))
	assert.Nil(t, errors.Wrapf(nil, errors.ErrIO, "x %d", 1))
	assert.Nil(t, errors.IOError(nil, "open", "/x"))
}

func TestIOError(t *testing.T) {
	err := errors.IOError(fs.ErrNotExist, "open", "/opt/app/bin")

	assert.Equal(t, "[IO] open /opt/app/bin: file does not exist", err.Error())
	assert.True(t, errors.IsErrorCode(err, errors.ErrIO))
	assert.True(t, stderrors.Is(err, fs.ErrNotExist), "the cause stays reachable")
	assert.Equal(t, map[string]interface{}{"path": "/opt/app/bin", "op": "open"}, errors.GetErrorDetails(err))
}

func TestIOErrorFromReconcile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	spec := types.InstallSpec{
		SourceRoot: missing,
		DestRoot:   filepath.Join(t.TempDir(), "app"),
		Meta:       types.PackageMeta{LUID: "app"},
	}

	_, _, err := reconcile.New(spec, reconcile.Options{Logger: zerolog.Nop()}).Simulate(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrIO, errors.GetErrorCode(err))
	assert.True(t, stderrors.Is(err, fs.ErrNotExist))
	assert.Equal(t, missing, errors.GetErrorDetails(err)["path"])
	assert.Equal(t, "stat", errors.GetErrorDetails(err)["op"])
}

func TestCancelledKeepsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := errors.Wrap(ctx.Err(), errors.ErrCancelled, "install cancelled")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCancelled))
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.False(t, stderrors.Is(err, context.DeadlineExceeded))
}

func TestSpecInvalidFromPaths(t *testing.T) {
	err := paths.ValidateRelative("../etc")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrSpecInvalid))
	assert.Equal(t, "../etc", errors.GetErrorDetails(err)["path"])

	wrapped := errors.Wrap(paths.ValidateInstallRoot("/", nil), errors.ErrSpecInvalid, "invalid destination root")
	assert.Equal(t, errors.ErrSpecInvalid, errors.GetErrorCode(wrapped))
	assert.Contains(t, wrapped.Error(), "filesystem root")
}

func TestOuterCodeWins(t *testing.T) {
	inner := errors.Newf(errors.ErrNotUnderRoot, "link escapes").WithDetail("path", "/tmp/x/link")
	outer := errors.Wrapf(inner, errors.ErrArchiveUnusable, "cannot extract %s", "link").WithDetail("entry", "link")

	assert.Equal(t, errors.ErrArchiveUnusable, errors.GetErrorCode(outer))
	assert.True(t, errors.IsErrorCode(outer, errors.ErrArchiveUnusable))
	assert.False(t, errors.IsErrorCode(outer, errors.ErrNotUnderRoot))
	assert.True(t, stderrors.Is(outer, errors.New(errors.ErrNotUnderRoot, "")), "Is compares codes along the chain")
	assert.Equal(t, map[string]interface{}{"entry": "link"}, errors.GetErrorDetails(outer))
}

func TestUncodedErrors(t *testing.T) {
	plain := stderrors.New("boom")
	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(plain))
	assert.Nil(t, errors.GetErrorDetails(plain))
	assert.False(t, errors.IsErrorCode(nil, errors.ErrUnknown))
}

func TestWithDetails(t *testing.T) {
	err := (&errors.InstallError{Code: errors.ErrShortcut, Message: "no icon"}).
		WithDetail("exe", "bin/game").
		WithDetails(map[string]interface{}{"luid": "game", "exe": "bin/game2"})

	assert.Equal(t, map[string]interface{}{"exe": "bin/game2", "luid": "game"}, err.Details)
}
