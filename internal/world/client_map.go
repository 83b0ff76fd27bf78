package world

import "github.com/annel0/voxel-core/internal/vec"

// ClientMap - кэш карты на клиенте. Заполняется только пакетами сервера
// и ничего не генерирует.
type ClientMap struct {
	*Map
}

// NewClientMap создаёт пустую карту клиента.
func NewClientMap() *ClientMap {
	return &ClientMap{Map: NewMap()}
}

// EmergeSector возвращает сектор, создавая пустой при необходимости.
func (m *ClientMap) EmergeSector(p vec.V2S16) *Sector {
	if s, err := m.GetSectorNoGenerate(p); err == nil {
		return s
	}
	s := NewSector(p)
	m.AddSector(s)
	return s
}

// ReceiveBlock загружает присланный сервером блок: в существующий блок
// или в новый. Возвращает блок и признак того, что освещение нужно
// пересчитать на клиенте (старые форматы без света).
func (m *ClientMap) ReceiveBlock(p vec.V3S16, data []byte, version uint8) (*MapBlock, bool, error) {
	sector := m.EmergeSector(p.XZ())
	if b, err := sector.GetBlockNoCreate(p.Y); err == nil {
		if err := b.Deserialize(data, version); err != nil {
			return nil, false, err
		}
		b.SetChanged()
		return b, version < 2, nil
	}
	b := NewMapBlock(p, true)
	if err := b.Deserialize(data, version); err != nil {
		return nil, false, err
	}
	sector.InsertBlock(b)
	return b, version < 2, nil
}
