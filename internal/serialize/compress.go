package serialize

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// maxDecompressedSize ограничивает размер распаковки, чтобы битый
// заголовок не приводил к огромной аллокации.
const maxDecompressedSize = 1 << 24

// zstdFromVersion - первая версия формата, использующая zstd вместо RLE.
const zstdFromVersion uint8 = 8

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdInitErr error
)

func initZstd() {
	zstdOnce.Do(func() {
		zstdEncoder, zstdInitErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdInitErr != nil {
			return
		}
		zstdDecoder, zstdInitErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
}

// Compress дописывает сжатое представление data в w.
// Кодек выбирается по версии формата.
func Compress(w *Writer, data []byte, version uint8) error {
	if version >= zstdFromVersion {
		return compressZstd(w, data)
	}
	compressRLE(w, data)
	return nil
}

// Decompress читает одно сжатое представление из r.
func Decompress(r *Reader, version uint8) ([]byte, error) {
	if version >= zstdFromVersion {
		return decompressZstd(r)
	}
	return decompressRLE(r)
}

// compressRLE: [u32 длина] затем пары (u8 count-1, u8 value).
func compressRLE(w *Writer, data []byte) {
	w.U32(uint32(len(data)))
	for i := 0; i < len(data); {
		v := data[i]
		n := 1
		for i+n < len(data) && n < 256 && data[i+n] == v {
			n++
		}
		w.U8(uint8(n - 1))
		w.U8(v)
		i += n
	}
}

func decompressRLE(r *Reader) ([]byte, error) {
	size := r.U32()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if size > maxDecompressedSize {
		return nil, fmt.Errorf("%w: rle length %d too large", ErrSerialization, size)
	}
	out := make([]byte, 0, size)
	for uint32(len(out)) < size {
		count := int(r.U8()) + 1
		v := r.U8()
		if err := r.Err(); err != nil {
			return nil, err
		}
		if uint32(len(out)+count) > size {
			return nil, fmt.Errorf("%w: rle run overflows declared length", ErrSerialization)
		}
		for j := 0; j < count; j++ {
			out = append(out, v)
		}
	}
	return out, nil
}

// compressZstd: [u32 длина данных][u32 длина кадра][zstd кадр].
func compressZstd(w *Writer, data []byte) error {
	initZstd()
	if zstdInitErr != nil {
		return fmt.Errorf("zstd init: %w", zstdInitErr)
	}
	frame := zstdEncoder.EncodeAll(data, nil)
	w.U32(uint32(len(data)))
	w.U32(uint32(len(frame)))
	_, _ = w.Write(frame)
	return nil
}

func decompressZstd(r *Reader) ([]byte, error) {
	initZstd()
	if zstdInitErr != nil {
		return nil, fmt.Errorf("zstd init: %w", zstdInitErr)
	}
	size := r.U32()
	frameLen := r.U32()
	frame := r.Bytes(int(frameLen))
	if err := r.Err(); err != nil {
		return nil, err
	}
	if size > maxDecompressedSize {
		return nil, fmt.Errorf("%w: zstd length %d too large", ErrSerialization, size)
	}
	out, err := zstdDecoder.DecodeAll(frame, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrSerialization, err)
	}
	if uint32(len(out)) != size {
		return nil, fmt.Errorf("%w: zstd length %d, want %d", ErrSerialization, len(out), size)
	}
	return out, nil
}
