package persist

import (
	"bytes"
	"io"
	"os"

	"github.com/bytedance/sonic"

	"vitarp-go/internal/platform/errors"
)

// MaxDocumentSize bounds every document read. Writers must stay under it.
const MaxDocumentSize = 64 * 1024

// Runtime reads and writes small JSON documents at parameterized paths.
//
// Writes are not atomic at the filesystem level; durability comes from the
// sibling backup files the owning stores maintain (see Backup). Single-process
// access is assumed, no OS file lock is taken.
type Runtime struct{}

// NewRuntime builds the document runtime.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// Read loads at most MaxDocumentSize bytes from path. A missing file maps to
// KindNotFound so callers can fall back to defaults.
func (r *Runtime) Read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.KindNotFound, "persist.read", "document not found: "+path)
		}
		return nil, errors.Wrap(errors.KindIO, "persist.read", "open "+path, err)
	}
	defer f.Close()

	buf := make([]byte, MaxDocumentSize)
	n, err := readFull(f, buf)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, "persist.read", "read "+path, err)
	}
	// Documents are text; stop at an embedded NUL from a torn write.
	if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
		n = i
	}
	return buf[:n], nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Write serializes data to path, truncating any previous content. A short
// write surfaces as KindIO.
func (r *Runtime) Write(path string, data []byte) error {
	if len(data) > MaxDocumentSize {
		return errors.New(errors.KindBufferTooSmall, "persist.write",
			"document exceeds 64 KiB bound")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(errors.KindIO, "persist.write", "open "+path, err)
	}

	n, err := f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(errors.KindIO, "persist.write", "write "+path, err)
	}
	if n != len(data) {
		return errors.New(errors.KindIO, "persist.write", "short write to "+path)
	}
	return nil
}

// ReadJSON reads a document and decodes it into out.
func (r *Runtime) ReadJSON(path string, out any) error {
	data, err := r.Read(path)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.KindInvalidData, "persist.read_json", "decode "+path, err)
	}
	return nil
}

// WriteJSON encodes v with indentation and writes it to path.
func (r *Runtime) WriteJSON(path string, v any) error {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(errors.KindInvalidData, "persist.write_json", "encode "+path, err)
	}
	return r.Write(path, data)
}

// BackupPath derives the sibling backup path for a document.
func BackupPath(path string) string {
	return path + ".bak"
}

// Backup copies the document at path to its sibling backup file.
func (r *Runtime) Backup(path string) error {
	data, err := r.Read(path)
	if err != nil {
		return err
	}
	return r.Write(BackupPath(path), data)
}

// Restore copies the sibling backup back over the document.
func (r *Runtime) Restore(path string) error {
	data, err := r.Read(BackupPath(path))
	if err != nil {
		return err
	}
	return r.Write(path, data)
}

// Exists reports whether a document is present at path.
func (r *Runtime) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
