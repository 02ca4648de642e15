// Package textfile reads and writes legacy config files, detecting UTF-8 or GBK
// on read and always writing GBK.
package textfile

import (
	"path/filepath"
	"runtime"

	"github.com/CageChen/ttbox/internal/charset"
	mfs "github.com/CageChen/ttbox/internal/fs"
)

// Accessor bridges GBK files on disk and UTF-8 strings in memory.
// It holds no per-call state; concurrent writes to one path are not coordinated.
type Accessor struct {
	fs mfs.FileSystem
	// clearReadOnly makes writes drop the read-only flag of an existing target first.
	clearReadOnly bool
}

// NewAccessor creates an Accessor over fsys. Read-only targets are made
// writable before a write on Windows only.
func NewAccessor(fsys mfs.FileSystem) *Accessor {
	return &Accessor{
		fs:            fsys,
		clearReadOnly: runtime.GOOS == "windows",
	}
}

// DecodeProbe repairs text that was mis-decoded from GBK. See charset.Probe.
func (a *Accessor) DecodeProbe(text string) string {
	return charset.Probe(text)
}

// Read returns the content of path as UTF-8. Decoding never fails; only the
// underlying read can.
func (a *Accessor) Read(path string) (string, error) {
	outcome, err := a.ReadOutcome(path)
	if err != nil {
		return "", err
	}
	return outcome.Text, nil
}

// ReadOutcome is Read but also reports whether the GBK fallback was used.
func (a *Accessor) ReadOutcome(path string) (charset.Outcome, error) {
	raw, err := a.fs.ReadFile(path)
	if err != nil {
		return charset.Outcome{}, &Error{Op: OpRead, Path: path, Cause: err}
	}
	return charset.Decode(raw), nil
}

// Write encodes content as GBK and writes it to path, creating missing parent directories.
func (a *Accessor) Write(path, content string) error {
	return a.write(path, content, writeFailure)
}

// WriteGBK behaves exactly like Write and differs only in its write failure message.
func (a *Accessor) WriteGBK(path, content string) error {
	return a.write(path, content, gbkWriteFailure)
}

// Encode converts text to GBK bytes.
func (a *Accessor) Encode(text string) ([]byte, error) {
	raw, err := charset.Encode(text)
	if err != nil {
		return nil, &Error{Op: OpEncode, Cause: err}
	}
	return raw, nil
}

func (a *Accessor) write(path, content, template string) error {
	if parent := filepath.Dir(path); parent != "." && !a.fs.Exists(parent) {
		if err := a.fs.MkdirAll(parent); err != nil {
			return &Error{Op: OpCreateDir, Path: parent, Cause: err}
		}
	}

	if a.clearReadOnly && a.fs.Exists(path) {
		if err := a.fs.SetReadOnly(path, false); err != nil {
			return &Error{Op: OpChangePermission, Path: path, Cause: err}
		}
	}

	raw, err := a.Encode(content)
	if err != nil {
		return err
	}

	if err := a.fs.WriteFile(path, raw); err != nil {
		return &Error{Op: OpWrite, Path: path, Cause: err, template: template}
	}
	return nil
}
