// Package snapshot writes and reads the flat output files of a run.
//
// Encoding is deterministic: slices are already ordered by the caller, maps
// are emitted with sorted keys and no field carries wall-clock or run state,
// so identical inputs give identical bytes.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/memocred/internal/domain/types"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
	"github.com/okian/memocred/pkg/metrics"
)

// Format selects the snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Snapshot kinds, also used as metric labels.
const (
	KindMemos       = "memos"
	KindCredibility = "credibility"
)

var (
	ErrWrite = errors.New("snapshot write failed")
	ErrRead  = errors.New("snapshot read failed")
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Option configures a Writer.
type Option func(*Writer)

// WithFormat selects JSON or YAML output.
func WithFormat(f Format) Option {
	return func(w *Writer) {
		if f == FormatJSON || f == FormatYAML {
			w.format = f
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.log = l
		}
	}
}

// Writer emits snapshots into one directory.
type Writer struct {
	dir    string
	format Format
	log    logger.Logger
}

// NewWriter creates a Writer for dir. The directory is created on first write.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{
		dir:    dir,
		format: FormatJSON,
		log:    logger.Get().Named("snapshot"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the file a snapshot kind is written to for token.
func (w *Writer) Path(kind, token string) string {
	return filepath.Join(w.dir, FileName(kind, token, w.format))
}

// FileName returns "<kind>_<token>.<format>" with unsafe characters replaced.
func FileName(kind, token string, f Format) string {
	safe := unsafeChars.ReplaceAllString(token, "_")
	if safe == "" {
		safe = "token"
	}
	return kind + "_" + safe + "." + string(f)
}

// WriteMemos writes the memo snapshot and returns its path.
func (w *Writer) WriteMemos(ctx context.Context, snap types.MemoSnapshot) (string, error) {
	return w.write(ctx, KindMemos, snap.Token, snap)
}

// WriteCredibility writes the credibility snapshot and returns its path.
func (w *Writer) WriteCredibility(ctx context.Context, snap types.CredibilitySnapshot) (string, error) {
	return w.write(ctx, KindCredibility, snap.Token, snap)
}

func (w *Writer) write(ctx context.Context, kind, token string, v interface{}) (string, error) {
	data, err := Encode(w.format, v)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "encode %s snapshot", kind), ErrWrite)
	}
	path := w.Path(kind, token)
	if err := WriteAtomic(path, data); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "write %s snapshot", kind), ErrWrite)
	}
	metrics.RecordSnapshotWrite(kind)
	w.log.Info(ctx, "snapshot written",
		logger.String("kind", kind),
		logger.String("path", path),
		logger.Int("bytes", len(data)))
	return path, nil
}

// Encode renders v as indented JSON or YAML with a trailing newline.
func Encode(f Format, v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// WriteAtomic replaces path with data through a temp file and a rename, so
// readers never see a partial file.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create output dir")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	return errors.Wrap(os.Rename(tmpName, path), "rename temp file")
}

// ReadMemos loads a memo snapshot. The encoding follows the file extension.
func ReadMemos(path string) (types.MemoSnapshot, error) {
	var snap types.MemoSnapshot
	if err := read(path, &snap); err != nil {
		return types.MemoSnapshot{}, err
	}
	return snap, nil
}

// ReadCredibility loads a credibility snapshot.
func ReadCredibility(path string) (types.CredibilitySnapshot, error) {
	var snap types.CredibilitySnapshot
	if err := read(path, &snap); err != nil {
		return types.CredibilitySnapshot{}, err
	}
	return snap, nil
}

func read(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "read %s", path), ErrRead)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "decode %s", path), ErrRead)
	}
	return nil
}
