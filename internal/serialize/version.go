package serialize

import (
	"errors"
	"fmt"
)

// Версии формата сериализации MapBlock/MapNode.
//
//	0: узел хранит только материал (1 байт)
//	1: узел 2 байта, сохранённое освещение не поддерживается
//	2: освещение передаётся в param
//	3: опциональная подгрузка дальних блоков
//	4: RLE-сжатие блоков
//	5, 6: сжатие снова выключено
//	7: RLE-сжатие включено снова
//	8: zstd-сжатие
const (
	VersionLowest  uint8 = 0
	VersionHighest uint8 = 8
	VersionInvalid uint8 = 255
)

var (
	// ErrVersionMismatch - запрошена неподдерживаемая версия формата.
	ErrVersionMismatch = errors.New("serialization version not supported")
	// ErrSerialization - входные данные обрезаны или имеют неверный формат.
	ErrSerialization = errors.New("serialization error")
)

// VersionSupported сообщает, поддерживается ли версия формата.
func VersionSupported(v uint8) bool {
	return v >= VersionLowest && v <= VersionHighest
}

// CheckVersion возвращает ErrVersionMismatch для неподдерживаемой версии.
func CheckVersion(v uint8) error {
	if !VersionSupported(v) {
		return fmt.Errorf("%w: %d", ErrVersionMismatch, v)
	}
	return nil
}

// Compressed сообщает, сжимаются ли массивы узлов в данной версии.
func Compressed(v uint8) bool {
	return !(v <= 3 || v == 5 || v == 6)
}
