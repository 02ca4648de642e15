package command

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync"
	"testing"

	"github.com/CageChen/ttbox/internal/account"
	"github.com/CageChen/ttbox/internal/config"
	mfs "github.com/CageChen/ttbox/internal/fs"
	"github.com/CageChen/ttbox/internal/markdown"
	"github.com/CageChen/ttbox/internal/textfile"
	"github.com/CageChen/ttbox/internal/updater"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMessage struct {
	Type    string
	Payload any
}

type recorder struct {
	mu   sync.Mutex
	msgs []recordedMessage
}

func (r *recorder) Broadcast(msgType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, recordedMessage{msgType, payload})
}

type fakeWatcher struct {
	added   []string
	removed []string
}

func (f *fakeWatcher) Add(dir string) error {
	f.added = append(f.added, dir)
	return nil
}

func (f *fakeWatcher) Remove(dir string) {
	f.removed = append(f.removed, dir)
}

func newTestRegistry(t *testing.T, endpoint string) (*Registry, *mfs.LocalFS, *recorder) {
	t.Helper()

	fsys := mfs.NewMemFS()
	up, err := updater.New(endpoint, "1.0.0")
	require.NoError(t, err)

	events := &recorder{}
	r := New(Services{
		Config:   config.DefaultConfig(),
		FS:       fsys,
		Files:    textfile.NewAccessor(fsys),
		Accounts: account.NewStore(0),
		Updater:  up,
		Notes:    markdown.NewParser(),
		Events:   events,
	})
	return r, fsys, events
}

func invoke(t *testing.T, r *Registry, name string, args map[string]any) (any, error) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return r.Invoke(context.Background(), name, raw)
}

func TestRegistry_Unknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestRegistry_Names(t *testing.T) {
	r, _, _ := newTestRegistry(t, "")
	names := r.Names()
	for _, want := range []string{
		"greet", "decode_gbk_text", "read_file_content", "write_file_content",
		"write_file_content_gbk", "check_file_exists", "read_directory",
		"set_file_readonly", "is_file_readonly", "encode_to_gbk",
		"search_config_files", "check_for_updates", "update_info", "install_update",
		"register", "login", "logout", "current_user",
		"watch_directory", "unwatch_directory",
	} {
		assert.Contains(t, names, want)
	}
	assert.IsIncreasing(t, names)
}

func TestRegistry_BadArgs(t *testing.T) {
	r, _, _ := newTestRegistry(t, "")

	_, err := r.Invoke(context.Background(), "read_file_content", json.RawMessage(`{"filePath": 5}`))
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "read_file_content", argErr.Command)

	_, err = invoke(t, r, "read_file_content", nil)
	require.ErrorAs(t, err, &argErr)
	assert.Contains(t, err.Error(), "filePath")

	_, err = invoke(t, r, "set_file_readonly", map[string]any{"filePath": "a.ini"})
	require.ErrorAs(t, err, &argErr)
	assert.Contains(t, err.Error(), "readonly")
}

func TestGreet(t *testing.T) {
	r, _, _ := newTestRegistry(t, "")
	got, err := invoke(t, r, "greet", map[string]any{"name": "世界"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, 世界! You've been greeted from ttbox!", got)
}

func TestFileCommands(t *testing.T) {
	r, fsys, _ := newTestRegistry(t, "")

	_, err := invoke(t, r, "write_file_content", map[string]any{"filePath": "/game/a.ini", "content": "你好"})
	require.NoError(t, err)

	raw, err := fsys.ReadFile("/game/a.ini")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC4, 0xE3, 0xBA, 0xC3}, raw)

	got, err := invoke(t, r, "read_file_content", map[string]any{"filePath": "/game/a.ini"})
	require.NoError(t, err)
	assert.Equal(t, "你好", got)

	_, err = invoke(t, r, "write_file_content_gbk", map[string]any{"filePath": "/game/b.ini", "content": "[main]"})
	require.NoError(t, err)

	exists, err := invoke(t, r, "check_file_exists", map[string]any{"filePath": "/game/b.ini"})
	require.NoError(t, err)
	assert.Equal(t, true, exists)

	exists, err = invoke(t, r, "check_file_exists", map[string]any{"filePath": "/game/c.ini"})
	require.NoError(t, err)
	assert.Equal(t, false, exists)

	exists, err = invoke(t, r, "check_file_exists", map[string]any{"filePath": ""})
	require.NoError(t, err)
	assert.Equal(t, false, exists)

	exists, err = invoke(t, r, "check_file_exists", nil)
	require.NoError(t, err)
	assert.Equal(t, false, exists)

	entries, err := invoke(t, r, "read_directory", map[string]any{"dirPath": "/game"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = invoke(t, r, "read_file_content", map[string]any{"filePath": "/game/missing.ini"})
	assert.ErrorContains(t, err, "read failure")
}

func TestReadOnlyCommands(t *testing.T) {
	r, _, _ := newTestRegistry(t, "")

	_, err := invoke(t, r, "write_file_content", map[string]any{"filePath": "/a.ini", "content": "x"})
	require.NoError(t, err)

	_, err = invoke(t, r, "set_file_readonly", map[string]any{"filePath": "/a.ini", "readonly": true})
	require.NoError(t, err)
	ro, err := invoke(t, r, "is_file_readonly", map[string]any{"filePath": "/a.ini"})
	require.NoError(t, err)
	assert.Equal(t, true, ro)

	_, err = invoke(t, r, "set_file_readonly", map[string]any{"filePath": "/a.ini", "readonly": false})
	require.NoError(t, err)
	ro, err = invoke(t, r, "is_file_readonly", map[string]any{"filePath": "/a.ini"})
	require.NoError(t, err)
	assert.Equal(t, false, ro)
}

func TestTextCommands(t *testing.T) {
	r, _, _ := newTestRegistry(t, "")

	got, err := invoke(t, r, "decode_gbk_text", map[string]any{"text": "plain"})
	require.NoError(t, err)
	assert.Equal(t, "plain", got)

	got, err = invoke(t, r, "decode_gbk_text", map[string]any{"text": "��"})
	require.NoError(t, err)
	assert.Equal(t, "锟斤拷", got)

	got, err = invoke(t, r, "encode_to_gbk", map[string]any{"text": "你好"})
	require.NoError(t, err)
	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `[196,227,186,195]`, string(data))
}

func TestByteList_Empty(t *testing.T) {
	data, err := json.Marshal(ByteList(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestSearchConfigFiles(t *testing.T) {
	r, fsys, _ := newTestRegistry(t, "")
	require.NoError(t, fsys.WriteFile("/games/a.ini", []byte("x")))
	require.NoError(t, fsys.WriteFile("/games/sub/b.INI", []byte("x")))
	require.NoError(t, fsys.WriteFile("/games/sub/readme.txt", []byte("x")))
	require.NoError(t, fsys.WriteFile("/games/node_modules/pkg/skip.ini", []byte("x")))
	require.NoError(t, fsys.WriteFile("/games/.git/skip.ini", []byte("x")))

	got, err := invoke(t, r, "search_config_files", map[string]any{"dirPath": "/games"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = invoke(t, r, "search_config_files", map[string]any{"dirPath": "/games", "maxDepth": 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"/games/a.ini"}, got)

	got, err = invoke(t, r, "search_config_files", map[string]any{"dirPath": "/nowhere"})
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)
}

func TestAccountCommands(t *testing.T) {
	r, _, _ := newTestRegistry(t, "")

	_, err := invoke(t, r, "register", map[string]any{
		"email": "a@b.co", "password": "12345678", "confirmPassword": "12345678",
	})
	require.NoError(t, err)

	_, err = invoke(t, r, "register", map[string]any{
		"email": "a@b.co", "password": "12345678", "confirmPassword": "12345678",
	})
	assert.ErrorIs(t, err, account.ErrEmailTaken)

	res, err := invoke(t, r, "login", map[string]any{"email": "a@b.co", "password": "12345678"})
	require.NoError(t, err)
	session := res.(account.Session)
	assert.NotEmpty(t, session.Token)

	user, err := invoke(t, r, "current_user", map[string]any{"token": session.Token})
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", user.(account.User).Email)

	_, err = invoke(t, r, "logout", map[string]any{"token": session.Token})
	require.NoError(t, err)
	_, err = invoke(t, r, "current_user", map[string]any{"token": session.Token})
	assert.ErrorIs(t, err, account.ErrSessionNotFound)
}

func TestWatchCommands(t *testing.T) {
	r, _, _ := newTestRegistry(t, "")
	_, err := invoke(t, r, "watch_directory", map[string]any{"dirPath": t.TempDir()})
	assert.ErrorIs(t, err, errWatchDisabled)

	cfg := config.DefaultConfig()
	w := &fakeWatcher{}
	fsys := mfs.NewMemFS()
	r = New(Services{Config: cfg, FS: fsys, Files: textfile.NewAccessor(fsys), Watcher: w})

	dir := t.TempDir()
	_, err = invoke(t, r, "watch_directory", map[string]any{"dirPath": dir})
	require.NoError(t, err)
	_, err = invoke(t, r, "watch_directory", map[string]any{"dirPath": dir})
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, w.added)
	assert.Equal(t, []string{dir}, cfg.WatchDirs)

	_, err = invoke(t, r, "unwatch_directory", map[string]any{"dirPath": dir})
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, w.removed)
	assert.Empty(t, cfg.WatchDirs)
}

func manifestServer(t *testing.T, v string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":  v,
			"notes":    "## Fixes\n\n- faster saves",
			"pub_date": "2026-01-02T03:04:05Z",
			"platforms": map[string]any{
				updater.PlatformKey(runtime.GOOS, runtime.GOARCH): map[string]string{"url": "http://example.invalid/a"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUpdateCommands_Available(t *testing.T) {
	srv := manifestServer(t, "1.1.0")
	r, _, events := newTestRegistry(t, srv.URL)

	got, err := invoke(t, r, "check_for_updates", nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)
	require.Len(t, events.msgs, 1)
	assert.Equal(t, MsgUpdateAvailable, events.msgs[0].Type)

	got, err = invoke(t, r, "update_info", nil)
	require.NoError(t, err)
	info := got.(UpdateInfo)
	assert.True(t, info.Available)
	assert.Equal(t, "1.1.0", info.Version)
	assert.Contains(t, info.NotesHTML, "<h2")
	require.NotNil(t, info.PubDate)
	assert.Equal(t, 2026, info.PubDate.Year())
}

func TestUpdateCommands_UpToDate(t *testing.T) {
	srv := manifestServer(t, "1.0.0")
	r, _, events := newTestRegistry(t, srv.URL)

	got, err := invoke(t, r, "check_for_updates", nil)
	require.NoError(t, err)
	assert.Equal(t, false, got)
	assert.Empty(t, events.msgs)

	got, err = invoke(t, r, "update_info", nil)
	require.NoError(t, err)
	assert.Equal(t, UpdateInfo{Version: "1.0.0"}, got)

	got, err = invoke(t, r, "install_update", nil)
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestUpdateCommands_NoEndpoint(t *testing.T) {
	r, _, _ := newTestRegistry(t, "")
	_, err := invoke(t, r, "check_for_updates", nil)
	assert.ErrorIs(t, err, updater.ErrNoEndpoint)
}
