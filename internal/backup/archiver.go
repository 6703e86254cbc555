package backup

import (
	"compress/gzip"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects the built-in compression algorithm used when no
// external archiver command is configured.
type CompressionType string

const (
	CompressionZstd CompressionType = "zstd"
	CompressionLZ4  CompressionType = "lz4"
	CompressionGzip CompressionType = "gzip"
)

// Extension returns the filename extension for the algorithm.
func (c CompressionType) Extension() string {
	switch c {
	case CompressionLZ4:
		return ".lz4"
	case CompressionGzip:
		return ".gz"
	default:
		return ".zst"
	}
}

// Valid reports whether the compression type is supported.
func (c CompressionType) Valid() bool {
	switch c {
	case CompressionZstd, CompressionLZ4, CompressionGzip:
		return true
	}
	return false
}

// archiveSink is a compression writer, optionally wrapped in passphrase
// encryption, that must be closed innermost-first.
type archiveSink struct {
	compressor io.WriteCloser
	encryptor  io.WriteCloser // nil when no passphrase is set
}

func (s *archiveSink) Write(p []byte) (int, error) {
	return s.compressor.Write(p)
}

// Close flushes the compressor and then finalizes the encryption envelope.
func (s *archiveSink) Close() error {
	err := s.compressor.Close()
	if s.encryptor != nil {
		if cerr := s.encryptor.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// OpenArchiveSink wraps dst in the built-in streaming compression chain.
// When a passphrase is supplied, the compressed stream is additionally
// encrypted with an age scrypt recipient, protecting both headers and data.
// The compression settings use a deterministic low-resource profile suited
// to a background job: single-threaded, moderate size/speed tradeoff.
func OpenArchiveSink(dst io.Writer, algorithm CompressionType, passphrase string) (io.WriteCloser, error) {
	sink := &archiveSink{}
	target := dst

	if passphrase != "" {
		recipient, err := age.NewScryptRecipient(passphrase)
		if err != nil {
			return nil, NewPipelineError("failed to derive encryption recipient", err)
		}
		encw, err := age.Encrypt(dst, recipient)
		if err != nil {
			return nil, NewPipelineError("failed to open encryption stream", err)
		}
		sink.encryptor = encw
		target = encw
	}

	switch algorithm {
	case CompressionLZ4:
		w := lz4.NewWriter(target)
		if err := w.Apply(lz4.ConcurrencyOption(1)); err != nil {
			return nil, NewPipelineError("failed to configure lz4 writer", err)
		}
		sink.compressor = w
	case CompressionGzip:
		w, err := gzip.NewWriterLevel(target, gzip.DefaultCompression)
		if err != nil {
			return nil, NewPipelineError("failed to create gzip writer", err)
		}
		sink.compressor = w
	case CompressionZstd, "":
		w, err := zstd.NewWriter(target,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, NewPipelineError("failed to create zstd writer", err)
		}
		sink.compressor = w
	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}

	return sink, nil
}

// archiveSource pairs the decompression reader with the underlying closers.
type archiveSource struct {
	reader io.Reader
	close  func() error
}

func (s *archiveSource) Read(p []byte) (int, error) { return s.reader.Read(p) }
func (s *archiveSource) Close() error               { return s.close() }

// OpenArchiveSource reverses OpenArchiveSink: it decrypts (when a passphrase
// is given) and decompresses src. Used by restore tooling and tests.
func OpenArchiveSource(src io.Reader, algorithm CompressionType, passphrase string) (io.ReadCloser, error) {
	if passphrase != "" {
		identity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return nil, NewPipelineError("failed to derive decryption identity", err)
		}
		decrypted, err := age.Decrypt(src, identity)
		if err != nil {
			return nil, NewPipelineError("failed to open decryption stream", err)
		}
		src = decrypted
	}

	switch algorithm {
	case CompressionLZ4:
		return &archiveSource{reader: lz4.NewReader(src), close: func() error { return nil }}, nil
	case CompressionGzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, NewPipelineError("failed to open gzip reader", err)
		}
		return &archiveSource{reader: r, close: r.Close}, nil
	case CompressionZstd, "":
		r, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, NewPipelineError("failed to open zstd reader", err)
		}
		return &archiveSource{reader: r, close: func() error { r.Close(); return nil }}, nil
	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
}
