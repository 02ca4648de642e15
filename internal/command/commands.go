package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CageChen/ttbox/internal/account"
	"github.com/CageChen/ttbox/internal/config"
	mfs "github.com/CageChen/ttbox/internal/fs"
	"github.com/CageChen/ttbox/internal/markdown"
	"github.com/CageChen/ttbox/internal/textfile"
	"github.com/CageChen/ttbox/internal/updater"
)

// Message types pushed to connected clients.
const (
	MsgUpdateAvailable = "updateAvailable"
	MsgUpdateProgress  = "updateProgress"
	MsgUpdateInstalled = "updateInstalled"
)

var errWatchDisabled = errors.New("file watching is disabled")

// Broadcaster pushes a typed message to every connected client.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

// DirWatcher starts and stops change notifications for a directory tree.
type DirWatcher interface {
	Add(dir string) error
	Remove(dir string)
}

// Services are the components commands operate on. Watcher and Events may be nil.
type Services struct {
	Config   *config.Config
	FS       mfs.FileSystem
	Files    *textfile.Accessor
	Accounts *account.Store
	Updater  *updater.Service
	Notes    *markdown.Parser
	Watcher  DirWatcher
	Events   Broadcaster
}

// ByteList marshals as a JSON array of numbers instead of base64.
type ByteList []byte

// MarshalJSON implements json.Marshaler
func (b ByteList) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.Grow(len(b)*4 + 2)
	sb.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(v)))
	}
	sb.WriteByte(']')
	return []byte(sb.String()), nil
}

// UpdateInfo is the result of update_info.
type UpdateInfo struct {
	Available bool       `json:"available"`
	Version   string     `json:"version"`
	Notes     string     `json:"notes,omitempty"`
	NotesHTML string     `json:"notesHtml,omitempty"`
	PubDate   *time.Time `json:"pubDate,omitempty"`
}

type nameArgs struct {
	Name string `json:"name"`
}

type textArgs struct {
	Text string `json:"text"`
}

type pathArgs struct {
	FilePath string `json:"filePath"`
}

type writeArgs struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

type readOnlyArgs struct {
	FilePath string `json:"filePath"`
	ReadOnly *bool  `json:"readonly"`
}

type dirArgs struct {
	DirPath string `json:"dirPath"`
}

type searchArgs struct {
	DirPath  string `json:"dirPath"`
	MaxDepth *int   `json:"maxDepth"`
}

type registerArgs struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginArgs struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenArgs struct {
	Token string `json:"token"`
}

type commands struct {
	s         Services
	installMu sync.Mutex
}

// New returns a registry with every command bound to s
func New(s Services) *Registry {
	c := &commands{s: s}
	r := NewRegistry()

	r.Register("greet", typed(c.greet))
	r.Register("decode_gbk_text", typed(c.decodeGBKText))
	r.Register("read_file_content", typed(c.readFileContent))
	r.Register("write_file_content", typed(c.writeFileContent))
	r.Register("write_file_content_gbk", typed(c.writeFileContentGBK))
	r.Register("check_file_exists", typed(c.checkFileExists))
	r.Register("read_directory", typed(c.readDirectory))
	r.Register("set_file_readonly", typed(c.setFileReadOnly))
	r.Register("is_file_readonly", typed(c.isFileReadOnly))
	r.Register("encode_to_gbk", typed(c.encodeToGBK))
	r.Register("search_config_files", typed(c.searchConfigFiles))

	r.Register("check_for_updates", typed(c.checkForUpdates))
	r.Register("update_info", typed(c.updateInfo))
	r.Register("install_update", typed(c.installUpdate))

	r.Register("register", typed(c.register))
	r.Register("login", typed(c.login))
	r.Register("logout", typed(c.logout))
	r.Register("current_user", typed(c.currentUser))

	r.Register("watch_directory", typed(c.watchDirectory))
	r.Register("unwatch_directory", typed(c.unwatchDirectory))

	return r
}

func (c *commands) broadcast(msgType string, payload any) {
	if c.s.Events != nil {
		c.s.Events.Broadcast(msgType, payload)
	}
}

func (c *commands) greet(_ context.Context, a nameArgs) (any, error) {
	return fmt.Sprintf("Hello, %s! You've been greeted from ttbox!", a.Name), nil
}

func (c *commands) decodeGBKText(_ context.Context, a textArgs) (any, error) {
	return c.s.Files.DecodeProbe(a.Text), nil
}

func (c *commands) readFileContent(_ context.Context, a pathArgs) (any, error) {
	if a.FilePath == "" {
		return nil, missing("filePath")
	}
	return c.s.Files.Read(a.FilePath)
}

func (c *commands) writeFileContent(_ context.Context, a writeArgs) (any, error) {
	if a.FilePath == "" {
		return nil, missing("filePath")
	}
	return nil, c.s.Files.Write(a.FilePath, a.Content)
}

func (c *commands) writeFileContentGBK(_ context.Context, a writeArgs) (any, error) {
	if a.FilePath == "" {
		return nil, missing("filePath")
	}
	return nil, c.s.Files.WriteGBK(a.FilePath, a.Content)
}

func (c *commands) checkFileExists(_ context.Context, a pathArgs) (any, error) {
	if a.FilePath == "" {
		return false, nil
	}
	return c.s.FS.Exists(a.FilePath), nil
}

func (c *commands) readDirectory(_ context.Context, a dirArgs) (any, error) {
	if a.DirPath == "" {
		return nil, missing("dirPath")
	}
	entries, err := c.s.FS.ReadDir(a.DirPath)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []mfs.DirEntry{}
	}
	return entries, nil
}

func (c *commands) setFileReadOnly(_ context.Context, a readOnlyArgs) (any, error) {
	if a.FilePath == "" {
		return nil, missing("filePath")
	}
	if a.ReadOnly == nil {
		return nil, missing("readonly")
	}
	return nil, c.s.FS.SetReadOnly(a.FilePath, *a.ReadOnly)
}

func (c *commands) isFileReadOnly(_ context.Context, a pathArgs) (any, error) {
	if a.FilePath == "" {
		return nil, missing("filePath")
	}
	return c.s.FS.IsReadOnly(a.FilePath)
}

func (c *commands) encodeToGBK(_ context.Context, a textArgs) (any, error) {
	b, err := c.s.Files.Encode(a.Text)
	if err != nil {
		return nil, err
	}
	return ByteList(b), nil
}

func (c *commands) searchConfigFiles(_ context.Context, a searchArgs) (any, error) {
	if a.DirPath == "" {
		return nil, missing("dirPath")
	}
	depth := c.s.Config.SearchDepth
	if a.MaxDepth != nil {
		depth = *a.MaxDepth
	}
	found := mfs.FindFiles(c.s.FS, a.DirPath, c.s.Config.Extensions, depth, c.s.Config.IsExcluded)
	if found == nil {
		found = []string{}
	}
	return found, nil
}

func (c *commands) checkForUpdates(ctx context.Context, _ struct{}) (any, error) {
	u, err := c.s.Updater.Check(ctx)
	if err != nil {
		return nil, err
	}
	if u != nil {
		c.broadcast(MsgUpdateAvailable, u)
	}
	return u != nil, nil
}

func (c *commands) updateInfo(ctx context.Context, _ struct{}) (any, error) {
	u, err := c.s.Updater.Check(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return UpdateInfo{Version: c.s.Updater.CurrentVersion()}, nil
	}

	info := UpdateInfo{
		Available: true,
		Version:   u.Version,
		Notes:     u.Notes,
	}
	if !u.PubDate.IsZero() {
		pub := u.PubDate
		info.PubDate = &pub
	}
	if u.Notes != "" && c.s.Notes != nil {
		notes, err := c.s.Notes.Render(u.Notes)
		if err != nil {
			log.Printf("Warning: failed to render release notes: %v", err)
		} else {
			info.NotesHTML = notes.HTML
		}
	}
	return info, nil
}

func (c *commands) installUpdate(ctx context.Context, _ struct{}) (any, error) {
	if !c.installMu.TryLock() {
		return nil, errors.New("an update is already being installed")
	}
	defer c.installMu.Unlock()

	u, err := c.s.Updater.Check(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return false, nil
	}

	log.Printf("Installing update %s", u.Version)
	err = c.s.Updater.DownloadAndInstall(ctx, u, func(p updater.Progress) {
		c.broadcast(MsgUpdateProgress, p)
	})
	if err != nil {
		return nil, err
	}
	c.broadcast(MsgUpdateInstalled, map[string]string{"version": u.Version})
	return true, nil
}

func (c *commands) register(_ context.Context, a registerArgs) (any, error) {
	return c.s.Accounts.Register(a.Email, a.Password, a.ConfirmPassword)
}

func (c *commands) login(_ context.Context, a loginArgs) (any, error) {
	return c.s.Accounts.Login(a.Email, a.Password)
}

func (c *commands) logout(_ context.Context, a tokenArgs) (any, error) {
	c.s.Accounts.Logout(a.Token)
	return nil, nil
}

func (c *commands) currentUser(_ context.Context, a tokenArgs) (any, error) {
	return c.s.Accounts.Current(a.Token)
}

// hostPath maps a command path to the host filesystem path the watcher needs.
func (c *commands) hostPath(p string) string {
	if c.s.Config.Root == "" {
		return p
	}
	return filepath.Join(c.s.Config.Root, p)
}

func (c *commands) watchDirectory(_ context.Context, a dirArgs) (any, error) {
	if a.DirPath == "" {
		return nil, missing("dirPath")
	}
	if c.s.Watcher == nil {
		return nil, errWatchDisabled
	}

	dir := c.hostPath(a.DirPath)
	added, err := c.s.Config.AddWatchDir(dir)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, nil
	}
	if err := c.s.Watcher.Add(dir); err != nil {
		c.s.Config.RemoveWatchDir(dir)
		return nil, err
	}
	c.saveConfig()
	return nil, nil
}

func (c *commands) unwatchDirectory(_ context.Context, a dirArgs) (any, error) {
	if a.DirPath == "" {
		return nil, missing("dirPath")
	}
	if c.s.Watcher == nil {
		return nil, errWatchDisabled
	}

	dir := c.hostPath(a.DirPath)
	if c.s.Config.RemoveWatchDir(dir) {
		c.s.Watcher.Remove(dir)
		c.saveConfig()
	}
	return nil, nil
}

func (c *commands) saveConfig() {
	if c.s.Config.GetConfigFilePath() == "" {
		return
	}
	if err := c.s.Config.Save(); err != nil {
		log.Printf("Warning: failed to save config: %v", err)
	}
}
