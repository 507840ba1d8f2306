package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"diag-agent/app/domains"
	"diag-agent/app/utils"
)

// Compression names the stream format applied before upload
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression parses a compression name. The empty string means none.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	case CompressionLZ4:
		return CompressionLZ4, nil
	default:
		return "", fmt.Errorf("unknown compression: %q", name)
	}
}

// Extension returns the file suffix for compressed artifacts
func (c Compression) Extension() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// NewWriter wraps w with a compressing stream writer. Close flushes the
// stream but does not close w.
func NewWriter(c Compression, w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		return enc, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %q", c)
	}
}

// NewReader wraps r with a decompressing stream reader
func NewReader(c Compression, r io.Reader) (io.Reader, error) {
	switch c {
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil
	case CompressionNone:
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %q", c)
	}
}

// CompressFile writes a compressed copy of src to dst and returns its size
func CompressFile(c Compression, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}

	zw, err := NewWriter(c, out)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return 0, err
	}

	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("%s compress: %w", c, err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("%s flush: %w", c, err)
	}

	info, err := out.Stat()
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return 0, err
	}
	return info.Size(), nil
}

// CompressingTransport compresses artifacts into a sibling temp file before
// handing them to the next transport. The temp file is always removed; the
// original file is left for the caller.
type CompressingTransport struct {
	next        Transport
	compression Compression
}

// NewCompressingTransport wraps next. With CompressionNone it is a pass-through.
func NewCompressingTransport(next Transport, compression Compression) *CompressingTransport {
	return &CompressingTransport{next: next, compression: compression}
}

// Upload compresses then uploads the artifact
func (t *CompressingTransport) Upload(ctx context.Context, artifact domains.Artifact) (domains.UploadReceipt, error) {
	if t.compression == CompressionNone || t.compression == "" {
		return t.next.Upload(ctx, artifact)
	}

	if err := ctx.Err(); err != nil {
		return domains.UploadReceipt{}, err
	}

	// hidden sibling, unique per upload
	compressedPath := filepath.Join(filepath.Dir(artifact.Path), "."+utils.GenerateUUID()+t.compression.Extension())
	size, err := CompressFile(t.compression, artifact.Path, compressedPath)
	if err != nil {
		return domains.UploadReceipt{}, fmt.Errorf("compress %s: %w", artifact.FileName, err)
	}
	defer os.Remove(compressedPath)

	compressed := artifact
	compressed.Path = compressedPath
	compressed.FileName = artifact.FileName + t.compression.Extension()
	compressed.Size = size

	receipt, err := t.next.Upload(ctx, compressed)
	if err != nil {
		return domains.UploadReceipt{}, err
	}
	receipt.Compression = string(t.compression)
	return receipt, nil
}
