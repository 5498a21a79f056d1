package sessionstate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prodrefs/internal/browser"
	"github.com/JakeFAU/prodrefs/internal/browser/static"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s := New(filepath.Join(t.TempDir(), "absent.json"), nil)
	state, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, state.Cookies)
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := New(path, nil)
	want := browser.StorageState{Cookies: []browser.Cookie{
		{Name: "_SID_Tokopedia_", Value: "abc", Domain: ".tokopedia.com", Path: "/", Expires: 1893456000, HTTPOnly: true, Secure: true, SameSite: "Lax"},
	}}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "cookies")
}

func TestSaveEmptyWritesCookieArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, New(path, nil).Save(browser.StorageState{}))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cookies":[]}`, string(raw))
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s := New(path, nil)
	_, err := s.Load()
	require.Error(t, err)

	session := static.NewSession(static.NewSite(nil))
	require.NoError(t, s.Restore(context.Background(), session), "corrupt state is skipped")
}

func TestRestoreAndCaptureRoundTripThroughSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path, nil)
	cookie := browser.Cookie{Name: "DID", Value: "1", Domain: ".tokopedia.com", Path: "/", Expires: -1}
	require.NoError(t, s.Save(browser.StorageState{Cookies: []browser.Cookie{cookie}}))

	session := static.NewSession(static.NewSite(nil))
	require.NoError(t, s.Restore(ctx, session))
	state, err := session.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, []browser.Cookie{cookie}, state.Cookies)

	extra := browser.Cookie{Name: "_abck", Value: "solved", Domain: ".tokopedia.com", Path: "/", Expires: 1893456000}
	require.NoError(t, session.Restore(ctx, browser.StorageState{Cookies: []browser.Cookie{cookie, extra}}))
	require.NoError(t, s.Capture(ctx, session))

	saved, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, saved.Cookies, 2)
	assert.Equal(t, "solved", saved.Cookies[1].Value)
}

func TestDefaultPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultFile, New("", nil).Path())
}
