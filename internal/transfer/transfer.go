// Package transfer moves whole tables between the store and files:
// CSV, JSON or XML, optionally xz-compressed, on local disk, plain
// HTTP(S) (read only) or S3.
package transfer

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/errors"
	"github.com/bgunnarsson/tabled/internal/logging"
)

// Tables is the part of the store transfer needs.
type Tables interface {
	ReadTable(ctx context.Context, table string) (*db.Rows, error)
	AddRows(ctx context.Context, table string, rows []db.Row) (int, error)
}

// Options tune one export or import.
type Options struct {
	// Format overrides the format derived from the location.
	Format Format
	S3     *S3Config
	// Digest, when set on import, must match the BLAKE3 digest of the
	// bytes read.
	Digest string
}

// Report describes a finished transfer. Digest is the hex BLAKE3 of the
// bytes as stored, after compression.
type Report struct {
	Table      string `json:"table"`
	Location   string `json:"location"`
	Format     Format `json:"format"`
	Compressed bool   `json:"compressed"`
	Rows       int    `json:"rows"`
	Bytes      int    `json:"bytes"`
	Digest     string `json:"digest"`
}

// Digest returns the hex BLAKE3-256 of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func resolveFormat(op, location string, opts Options) (Format, error) {
	if opts.Format != "" {
		f, err := ParseFormat(string(opts.Format))
		if err != nil {
			return "", errors.NewInvalid(op, err.Error())
		}
		return f, nil
	}
	f, err := FormatFromPath(location)
	if err != nil {
		return "", errors.NewInvalid(op, err.Error())
	}
	return f, nil
}

func compressed(location string) bool {
	return strings.HasSuffix(strings.ToLower(location), xzSuffix)
}

// Export writes every row of table to location.
func Export(ctx context.Context, t Tables, table, location string, opts Options) (*Report, error) {
	const op = "export"
	format, err := resolveFormat(op, location, opts)
	if err != nil {
		return nil, err
	}

	rows, err := t.ReadTable(ctx, table)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Table:      table,
		Location:   location,
		Format:     format,
		Compressed: compressed(location),
		Rows:       len(rows.Data),
	}

	var buf bytes.Buffer
	if rep.Compressed {
		xw, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := Encode(xw, table, rows, format); err != nil {
			return nil, fmt.Errorf("%s: encode: %w", op, err)
		}
		if err := xw.Close(); err != nil {
			return nil, fmt.Errorf("%s: compress: %w", op, err)
		}
	} else if err := Encode(&buf, table, rows, format); err != nil {
		return nil, fmt.Errorf("%s: encode: %w", op, err)
	}

	data := buf.Bytes()
	rep.Bytes = len(data)
	rep.Digest = Digest(data)

	w, err := openWriter(ctx, location, opts.S3)
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", op, location, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("%s: write %s: %w", op, location, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: write %s: %w", op, location, err)
	}

	logging.InfoContext(ctx, "table exported",
		"table", table, "location", location, "format", string(format),
		"rows", rep.Rows, "bytes", rep.Bytes, "blake3", rep.Digest)
	return rep, nil
}

// Import reads rows from location and appends them to table through
// AddRows. It is not atomic: on failure the report counts the rows added
// before the failing one.
func Import(ctx context.Context, t Tables, table, location string, opts Options) (*Report, error) {
	const op = "import"
	format, err := resolveFormat(op, location, opts)
	if err != nil {
		return nil, err
	}

	r, err := openReader(ctx, location, opts.S3)
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", op, location, err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", op, location, err)
	}

	rep := &Report{
		Table:      table,
		Location:   location,
		Format:     format,
		Compressed: compressed(location),
		Bytes:      len(data),
		Digest:     Digest(data),
	}
	if opts.Digest != "" && !strings.EqualFold(opts.Digest, rep.Digest) {
		return rep, errors.NewInvalid(op, fmt.Sprintf("digest mismatch: got %s, want %s", rep.Digest, opts.Digest))
	}

	var src io.Reader = bytes.NewReader(data)
	if rep.Compressed {
		xr, err := xz.NewReader(src)
		if err != nil {
			return rep, fmt.Errorf("%s: decompress: %w", op, err)
		}
		src = xr
	}

	rows, err := Decode(src, format)
	if err != nil {
		return rep, errors.NewInvalid(op, err.Error())
	}

	n, err := t.AddRows(ctx, table, rows)
	rep.Rows = n
	if err != nil {
		return rep, err
	}

	logging.InfoContext(ctx, "table imported",
		"table", table, "location", location, "format", string(format),
		"rows", rep.Rows, "bytes", rep.Bytes, "blake3", rep.Digest)
	return rep, nil
}
