package journal

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names how a diff payload is stored.
type Codec string

const (
	CodecNone Codec = "none"
	CodecLZ4  Codec = "lz4"
	CodecZstd Codec = "zstd"
)

// ParseCodec accepts "none", "lz4" and "zstd".
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case CodecNone, CodecLZ4, CodecZstd:
		return c, nil
	default:
		return "", fmt.Errorf("unknown codec %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// encode compresses data with c. Payloads that do not shrink are stored
// with CodecNone, so the returned codec may differ from c.
func encode(c Codec, data []byte) (Codec, []byte, error) {
	var out []byte
	switch c {
	case CodecNone:
		return CodecNone, data, nil
	case CodecZstd:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return "", nil, fmt.Errorf("lz4 compress: %w", err)
		}
		out = buf[:n]
	default:
		return "", nil, fmt.Errorf("unknown codec %q", c)
	}
	if len(out) == 0 || len(out) >= len(data) {
		return CodecNone, data, nil
	}
	return c, out, nil
}

// decode reverses encode. rawSize is the uncompressed length.
func decode(c Codec, data []byte, rawSize int) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case CodecLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != rawSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d", n, rawSize)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", c)
	}
}
