// Package compress compresses report payloads before they are persisted.
//
// ZSTD is the default; gzip is available for stores shared with tooling that
// only understands gzip. Decompress detects the algorithm from the payload's
// magic bytes, so rows written under one setting stay readable after the
// setting changes.
//
// Example usage:
//
//	c := compress.NewCompressor(compress.AlgorithmZSTD, compress.LevelDefault)
//	blob, err := c.Compress(reportJSON)
//	if err != nil {
//	    return err
//	}
//	original, err := compress.Decompress(blob)
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/scrutinychain/sdk/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// AlgorithmZSTD is the Zstandard compression algorithm.
	// Best balance of compression ratio and speed.
	AlgorithmZSTD Algorithm = "zstd"

	// AlgorithmGzip is the gzip compression algorithm.
	// Maximum compatibility with existing infrastructure.
	AlgorithmGzip Algorithm = "gzip"

	// AlgorithmNone indicates no compression.
	AlgorithmNone Algorithm = "none"
)

// ParseAlgorithm parses an algorithm name. The empty string means zstd.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case AlgorithmZSTD, "":
		return AlgorithmZSTD, nil
	case AlgorithmGzip:
		return AlgorithmGzip, nil
	case AlgorithmNone, "off":
		return AlgorithmNone, nil
	default:
		return "", errors.E(errors.KindConfiguration, "compress.ParseAlgorithm", fmt.Sprintf("unsupported compression algorithm %q", s))
	}
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// Detect reports the algorithm data was compressed with, judged by its
// magic bytes. Anything unrecognised is reported as AlgorithmNone.
func Detect(data []byte) Algorithm {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return AlgorithmZSTD
	case bytes.HasPrefix(data, gzipMagic):
		return AlgorithmGzip
	default:
		return AlgorithmNone
	}
}

// Level represents compression level.
type Level int

const (
	// LevelFastest prioritizes speed over compression ratio.
	LevelFastest Level = 1

	// LevelDefault is the default compression level (good balance).
	LevelDefault Level = 3

	// LevelBetter provides better compression at the cost of speed.
	LevelBetter Level = 6

	// LevelBest provides maximum compression (slowest).
	LevelBest Level = 9
)

// Compressor provides compression and decompression functionality.
type Compressor struct {
	algorithm Algorithm
	level     Level

	// ZSTD encoder/decoder pools for reuse
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
}

// NewCompressor creates a new compressor with the specified algorithm and level.
func NewCompressor(algorithm Algorithm, level Level) *Compressor {
	c := &Compressor{
		algorithm: algorithm,
		level:     level,
	}

	if algorithm == AlgorithmZSTD {
		c.zstdEncoderPool = sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(int(level))))
				return enc
			},
		}
	}

	// Every compressor can read zstd payloads.
	c.zstdDecoderPool = sync.Pool{
		New: func() any {
			dec, _ := zstd.NewReader(nil)
			return dec
		},
	}

	return c
}

// Algorithm returns the compression algorithm.
func (c *Compressor) Algorithm() Algorithm {
	return c.algorithm
}

// Compress compresses the input data.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZSTD:
		return c.compressZSTD(data)
	case AlgorithmGzip:
		return c.compressGzip(data)
	case AlgorithmNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// Decompress decompresses data written by any Compressor. The algorithm is
// taken from the payload itself, not from c.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	switch Detect(data) {
	case AlgorithmZSTD:
		return c.decompressZSTD(data)
	case AlgorithmGzip:
		return c.decompressGzip(data)
	case AlgorithmNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// compressZSTD compresses data using ZSTD.
func (c *Compressor) compressZSTD(data []byte) ([]byte, error) {
	enc := c.zstdEncoderPool.Get().(*zstd.Encoder)
	defer c.zstdEncoderPool.Put(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)

	if _, err := enc.Write(data); err != nil {
		return nil, fmt.Errorf("zstd write error: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd close error: %w", err)
	}

	return buf.Bytes(), nil
}

// decompressZSTD decompresses ZSTD data.
func (c *Compressor) decompressZSTD(data []byte) ([]byte, error) {
	dec := c.zstdDecoderPool.Get().(*zstd.Decoder)
	defer c.zstdDecoderPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("zstd reset error: %w", err)
	}

	result, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress error: %w", err)
	}

	return result, nil
}

// compressGzip compresses data using gzip.
func (c *Compressor) compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	level := gzip.DefaultCompression
	if c.level <= 3 {
		level = gzip.BestSpeed
	} else if c.level >= 7 {
		level = gzip.BestCompression
	}

	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer error: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write error: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close error: %w", err)
	}

	return buf.Bytes(), nil
}

// decompressGzip decompresses gzip data.
func (c *Compressor) decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader error: %w", err)
	}
	defer reader.Close()

	result, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress error: %w", err)
	}

	return result, nil
}

// CompressionStats holds statistics about a compression operation.
type CompressionStats struct {
	OriginalSize   int     `json:"original_size"`
	CompressedSize int     `json:"compressed_size"`
	Ratio          float64 `json:"ratio"`           // compressed/original
	Savings        float64 `json:"savings_percent"` // (1 - ratio) * 100
	Algorithm      string  `json:"algorithm"`
}

// CompressWithStats compresses data and returns statistics.
func (c *Compressor) CompressWithStats(data []byte) ([]byte, *CompressionStats, error) {
	compressed, err := c.Compress(data)
	if err != nil {
		return nil, nil, err
	}

	originalSize := len(data)
	compressedSize := len(compressed)
	ratio := float64(compressedSize) / float64(originalSize)

	stats := &CompressionStats{
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		Ratio:          ratio,
		Savings:        (1 - ratio) * 100,
		Algorithm:      string(c.algorithm),
	}

	return compressed, stats, nil
}

// Default compressors for convenience.
var (
	// DefaultZSTD is the default ZSTD compressor.
	DefaultZSTD = NewCompressor(AlgorithmZSTD, LevelDefault)

	// DefaultGzip is the default gzip compressor.
	DefaultGzip = NewCompressor(AlgorithmGzip, LevelDefault)
)

// Decompress decompresses data using the algorithm detected from its magic
// bytes. Uncompressed data is returned as is.
func Decompress(data []byte) ([]byte, error) {
	return DefaultZSTD.Decompress(data)
}
