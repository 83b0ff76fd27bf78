package world

import (
	"fmt"

	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// Map - разреженная таблица секторов и единственный источник правды о том,
// какие блоки существуют и что в них лежит.
//
// Map не синхронизирована: вызывающий код держит мировую блокировку.
type Map struct {
	sectors map[vec.V2S16]*Sector
}

// NewMap создаёт пустую карту.
func NewMap() *Map {
	return &Map{sectors: make(map[vec.V2S16]*Sector)}
}

// GetSectorNoGenerate возвращает сектор или ErrInvalidPosition.
func (m *Map) GetSectorNoGenerate(p vec.V2S16) (*Sector, error) {
	s, ok := m.sectors[p]
	if !ok {
		return nil, fmt.Errorf("%w: sector %v", ErrInvalidPosition, p)
	}
	s.usageTimer = 0
	return s, nil
}

// AddSector регистрирует новый сектор. Повтор считается ошибкой программиста.
func (m *Map) AddSector(s *Sector) {
	if _, ok := m.sectors[s.pos]; ok {
		panic(fmt.Sprintf("map: sector %v already exists", s.pos))
	}
	m.sectors[s.pos] = s
}

// GetBlockNoCreate возвращает блок или ErrInvalidPosition.
func (m *Map) GetBlockNoCreate(p vec.V3S16) (*MapBlock, error) {
	s, ok := m.sectors[p.XZ()]
	if !ok {
		return nil, fmt.Errorf("%w: block %v", ErrInvalidPosition, p)
	}
	return s.GetBlockNoCreate(p.Y)
}

// GetRealBlock возвращает блок с данными. Для пустышки возвращает ErrDummyBlock.
func (m *Map) GetRealBlock(p vec.V3S16) (*MapBlock, error) {
	b, err := m.GetBlockNoCreate(p)
	if err != nil {
		return nil, err
	}
	if b.IsDummy() {
		return nil, fmt.Errorf("%w: %v", ErrDummyBlock, p)
	}
	return b, nil
}

func (m *Map) blockAt(blockpos vec.V3S16) *MapBlock {
	s, ok := m.sectors[blockpos.XZ()]
	if !ok {
		return nil
	}
	return s.blocks[blockpos.Y]
}

// IsValidPosition проверяет, что узел лежит в загруженном непустом блоке.
func (m *Map) IsValidPosition(p vec.V3S16) bool {
	b := m.blockAt(vec.NodeToBlock(p))
	return b != nil && !b.IsDummy()
}

// GetNode читает узел по абсолютной позиции.
func (m *Map) GetNode(p vec.V3S16) (node.MapNode, bool) {
	b := m.blockAt(vec.NodeToBlock(p))
	if b == nil {
		return node.MapNode{}, false
	}
	return b.GetNode(vec.NodeInBlock(p))
}

// SetNode записывает узел по абсолютной позиции.
func (m *Map) SetNode(p vec.V3S16, n node.MapNode) bool {
	b := m.blockAt(vec.NodeToBlock(p))
	if b == nil {
		return false
	}
	return b.SetNode(vec.NodeInBlock(p), n)
}

// IsNodeUnderground сообщает, находится ли узел в подземном блоке.
func (m *Map) IsNodeUnderground(p vec.V3S16) bool {
	b := m.blockAt(vec.NodeToBlock(p))
	return b != nil && b.IsUnderground()
}

// SectorCount возвращает количество загруженных секторов.
func (m *Map) SectorCount() int { return len(m.sectors) }

// BlockCount возвращает количество загруженных блоков, включая пустышки.
func (m *Map) BlockCount() int {
	n := 0
	for _, s := range m.sectors {
		n += s.BlockCount()
	}
	return n
}

// Sectors возвращает все секторы в произвольном порядке.
func (m *Map) Sectors() []*Sector {
	out := make([]*Sector, 0, len(m.sectors))
	for _, s := range m.sectors {
		out = append(out, s)
	}
	return out
}

// TimerUpdate увеличивает таймеры неиспользования секторов.
func (m *Map) TimerUpdate(dtime float32) {
	for _, s := range m.sectors {
		s.usageTimer += dtime
	}
}

// UnloadUnusedSectors выгружает секторы, к которым не обращались дольше
// timeout секунд, и возвращает позиции удалённых блоков.
// keep может запретить выгрузку (например, несохранённых секторов).
func (m *Map) UnloadUnusedSectors(timeout float32, keep func(*Sector) bool) []vec.V3S16 {
	var deleted []vec.V3S16
	for p, s := range m.sectors {
		if s.usageTimer <= timeout {
			continue
		}
		if keep != nil && keep(s) {
			continue
		}
		for _, b := range s.Blocks() {
			deleted = append(deleted, b.Pos())
		}
		delete(m.sectors, p)
	}
	return deleted
}

func (m *Map) markModified(p vec.V3S16, modified BlockSet) {
	bp := vec.NodeToBlock(p)
	if b := m.blockAt(bp); b != nil {
		b.SetChanged()
	}
	modified.Add(bp)
}

// lightEntry - узел, который нужно погасить, и свет, который в нём был.
type lightEntry struct {
	pos   vec.V3S16
	light uint8
}

// faceDirs - шесть соседей узла по граням.
var faceDirs = [6]vec.V3S16{
	{X: 0, Y: 0, Z: 1},
	{X: 0, Y: 1, Z: 0},
	{X: 1, Y: 0, Z: 0},
	{X: 0, Y: 0, Z: -1},
	{X: 0, Y: -1, Z: 0},
	{X: -1, Y: 0, Z: 0},
}

// unspreadLight гасит свет, распространявшийся из узлов from.
// Соседи, светящие не хуже погашенного узла, и сами источники света
// попадают в lightSources: из них свет нужно разлить заново.
func (m *Map) unspreadLight(from []lightEntry, lightSources NodeSet, modified BlockSet) {
	queue := from
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		for _, d := range faceDirs {
			p2 := e.pos.Add(d)
			n2, ok := m.GetNode(p2)
			if !ok {
				continue
			}
			l2 := n2.GetLight()
			if l2 >= e.light || n2.LightSource() > 0 {
				lightSources.Add(p2)
				continue
			}
			if l2 != 0 && n2.LightPropagates() {
				// Этот свет пришёл от погашенного узла
				n2.SetLight(0)
				m.SetNode(p2, n2)
				m.markModified(p2, modified)
				queue = append(queue, lightEntry{pos: p2, light: l2})
			}
		}
	}
}

// spreadLight разливает свет из узлов from во все стороны.
func (m *Map) spreadLight(from NodeSet, modified BlockSet) {
	queue := make([]vec.V3S16, 0, len(from))
	for p := range from {
		queue = append(queue, p)
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		n, ok := m.GetNode(p)
		if !ok {
			continue
		}
		oldlight := n.GetLight()
		newlight := node.DiminishLight(oldlight)
		for _, d := range faceDirs {
			p2 := p.Add(d)
			n2, ok := m.GetNode(p2)
			if !ok {
				continue
			}
			l2 := n2.GetLight()
			if l2 > undiminishLight(oldlight) {
				// Сосед ярче: свет пойдёт от него
				queue = append(queue, p2)
				continue
			}
			if l2 < newlight && n2.LightPropagates() {
				n2.SetLight(newlight)
				m.SetNode(p2, n2)
				m.markModified(p2, modified)
				queue = append(queue, p2)
			}
		}
	}
}

// undiminishLight - обратная к DiminishLight; для солнца даёт LightSun+1.
func undiminishLight(light uint8) uint8 {
	if light == 0 || light == node.LightMax {
		return light
	}
	return light + 1
}

// UpdateLighting пересчитывает освещение набора блоков: гасит старый свет,
// заново пускает солнечный и разливает его к соседям. Возвращает все
// затронутые блоки.
func (m *Map) UpdateLighting(blocks map[vec.V3S16]*MapBlock) BlockSet {
	modified := make(BlockSet)
	var unlightFrom []lightEntry
	lightSources := make(NodeSet)

	for _, b := range blocks {
		if b == nil || b.IsDummy() {
			continue
		}
		modified.Add(b.Pos())
		b.SetChanged()
		rel := b.PosRelative()
		for z := int16(0); z < BlockSize; z++ {
			for y := int16(0); y < BlockSize; y++ {
				for x := int16(0); x < BlockSize; x++ {
					p := vec.V3S16{X: x, Y: y, Z: z}
					n := b.nodeRef(p)
					oldlight := n.GetLight()
					n.SetLight(0)
					if ls := n.LightSource(); ls > 0 {
						lightSources.Add(rel.Add(p))
					}
					if oldlight != 0 && onBlockBorder(p) {
						unlightFrom = append(unlightFrom, lightEntry{pos: rel.Add(p), light: oldlight})
					}
				}
			}
		}

		// Солнечный свет идёт вниз, пока нижние блоки не согласуются
		cur := b
		for {
			if cur.PropagateSunlight(m, lightSources) {
				break
			}
			below := m.blockAt(cur.Pos().Add(vec.V3S16{Y: -1}))
			if below == nil || below.IsDummy() {
				break
			}
			cur = below
			modified.Add(cur.Pos())
			cur.SetChanged()
		}
	}

	m.unspreadLight(unlightFrom, lightSources, modified)
	m.spreadLight(lightSources, modified)
	return modified
}

func onBlockBorder(p vec.V3S16) bool {
	return p.X == 0 || p.X == BlockSize-1 ||
		p.Y == 0 || p.Y == BlockSize-1 ||
		p.Z == 0 || p.Z == BlockSize-1
}

// unLightNeighbors гасит свет, который узел p со светом lightwas отдавал соседям.
func (m *Map) unLightNeighbors(p vec.V3S16, lightwas uint8, lightSources NodeSet, modified BlockSet) {
	m.unspreadLight([]lightEntry{{pos: p, light: lightwas}}, lightSources, modified)
}

// lightNeighbors разливает свет из узла p.
func (m *Map) lightNeighbors(p vec.V3S16, modified BlockSet) {
	from := make(NodeSet)
	from.Add(p)
	m.spreadLight(from, modified)
}

// getBrightestNeighbour возвращает позицию самого яркого соседа p.
func (m *Map) getBrightestNeighbour(p vec.V3S16) (vec.V3S16, bool) {
	var best vec.V3S16
	var bestLight uint8
	found := false
	for _, d := range faceDirs {
		p2 := p.Add(d)
		n2, ok := m.GetNode(p2)
		if !ok {
			continue
		}
		if l := n2.GetLight(); !found || l > bestLight {
			best, bestLight, found = p2, l, true
		}
	}
	return best, found
}

// AddNodeAndUpdate ставит узел n в p и обновляет освещение вокруг.
// Возвращает блоки, изменённые в процессе.
func (m *Map) AddNodeAndUpdate(p vec.V3S16, n node.MapNode) (BlockSet, error) {
	old, ok := m.GetNode(p)
	if !ok {
		return nil, fmt.Errorf("%w: node %v", ErrInvalidPosition, p)
	}
	modified := make(BlockSet)
	lightSources := make(NodeSet)
	lightwas := old.GetLight()

	// Над узлом солнце, если сверху сплошной солнечный свет или верх не загружен
	underSunlight := true
	if top, ok := m.GetNode(p.Add(vec.V3S16{Y: 1})); ok {
		underSunlight = top.GetLight() == node.LightSun
	}

	m.markModified(p, modified)
	m.unLightNeighbors(p, lightwas, lightSources, modified)

	n.SetLight(0)
	m.SetNode(p, n)

	// Новый узел перекрыл солнечный столб: гасим его вниз
	if underSunlight && !n.SunlightPropagates() {
		for y := p.Y - 1; ; y-- {
			p2 := vec.V3S16{X: p.X, Y: y, Z: p.Z}
			n2, ok := m.GetNode(p2)
			if !ok || n2.GetLight() != node.LightSun {
				break
			}
			m.unLightNeighbors(p2, n2.GetLight(), lightSources, modified)
			n2.SetLight(0)
			m.SetNode(p2, n2)
			m.markModified(p2, modified)
		}
	}

	if n.LightSource() > 0 {
		lightSources.Add(p)
	}
	m.spreadLight(lightSources, modified)
	return modified, nil
}

// RemoveNodeAndUpdate заменяет узел в p воздухом и обновляет освещение.
func (m *Map) RemoveNodeAndUpdate(p vec.V3S16) (BlockSet, error) {
	old, ok := m.GetNode(p)
	if !ok {
		return nil, fmt.Errorf("%w: node %v", ErrInvalidPosition, p)
	}
	modified := make(BlockSet)
	lightSources := make(NodeSet)
	lightwas := old.GetLight()

	m.SetNode(p, node.AirNode())
	m.markModified(p, modified)
	m.unLightNeighbors(p, lightwas, lightSources, modified)
	m.spreadLight(lightSources, modified)

	topSunlit := true
	if top, ok := m.GetNode(p.Add(vec.V3S16{Y: 1})); ok {
		topSunlit = top.GetLight() == node.LightSun
	}

	if topSunlit {
		ybottom := m.propagateSunlightColumn(p, modified)
		for y := p.Y; y >= ybottom; y-- {
			m.lightNeighbors(vec.V3S16{X: p.X, Y: y, Z: p.Z}, modified)
		}
	} else {
		n, _ := m.GetNode(p)
		n.SetLight(0)
		m.SetNode(p, n)
	}

	// Свет от самого яркого соседа заполняет освободившееся место
	if bp, ok := m.getBrightestNeighbour(p); ok {
		m.lightNeighbors(bp, modified)
	}
	return modified, nil
}

// propagateSunlightColumn опускает солнечный свет из start вниз, пока узлы
// его пропускают. Возвращает Y последнего освещённого узла.
func (m *Map) propagateSunlightColumn(start vec.V3S16, modified BlockSet) int16 {
	y := start.Y
	for {
		p := vec.V3S16{X: start.X, Y: y, Z: start.Z}
		n, ok := m.GetNode(p)
		if !ok || !n.SunlightPropagates() {
			break
		}
		n.SetLight(node.LightSun)
		m.SetNode(p, n)
		m.markModified(p, modified)
		if y == -32768 {
			return y
		}
		y--
	}
	return y + 1
}
