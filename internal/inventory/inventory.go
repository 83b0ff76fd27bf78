// Package inventory - инвентарь игрока и его текстовая сериализация,
// которая передаётся клиенту в TOCLIENT_INVENTORY.
//
// Формат: по строке на слот, "Item MaterialItem <материал> <количество>",
// "Item MBOItem <строка объекта>" или "Empty", в конце строка "end".
package inventory

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/annel0/voxel-core/internal/world/node"
)

// PlayerSize - количество слотов в инвентаре игрока.
const PlayerSize = 24

// ErrInvalidInventory - текст инвентаря не удалось разобрать.
var ErrInvalidInventory = errors.New("inventory: invalid data")

// Item - предмет в слоте.
type Item interface {
	// Name - тип предмета в сериализации.
	Name() string
	// Count - количество в стопке.
	Count() uint16
	serialize(w *bytes.Buffer)
}

// MaterialItem - стопка узлов одного материала.
type MaterialItem struct {
	Material node.Material
	count    uint16
}

// NewMaterialItem создаёт стопку материала.
func NewMaterialItem(m node.Material, count uint16) *MaterialItem {
	return &MaterialItem{Material: m, count: count}
}

func (i *MaterialItem) Name() string  { return "MaterialItem" }
func (i *MaterialItem) Count() uint16 { return i.count }

// Add добавляет n узлов в стопку.
func (i *MaterialItem) Add(n uint16) { i.count += n }

// Remove забирает n узлов. Забрать больше, чем есть, нельзя.
func (i *MaterialItem) Remove(n uint16) {
	if n > i.count {
		panic(fmt.Sprintf("inventory: removing %d from stack of %d", n, i.count))
	}
	i.count -= n
}

func (i *MaterialItem) serialize(w *bytes.Buffer) {
	fmt.Fprintf(w, "MaterialItem %d %d", uint8(i.Material), i.count)
}

// ObjectItem - объект блока (табличка и т.п.), хранимый строкой
// вида "Sign Example text".
type ObjectItem struct {
	InventoryString string
}

func (i *ObjectItem) Name() string  { return "MBOItem" }
func (i *ObjectItem) Count() uint16 { return 1 }

func (i *ObjectItem) serialize(w *bytes.Buffer) {
	w.WriteString("MBOItem ")
	w.WriteString(i.InventoryString)
}

// Inventory - фиксированный набор слотов. Не синхронизирован:
// вызывающий держит мировую блокировку.
type Inventory struct {
	items []Item
}

// New создаёт пустой инвентарь на size слотов.
func New(size int) *Inventory {
	return &Inventory{items: make([]Item, size)}
}

// Size возвращает количество слотов.
func (inv *Inventory) Size() int { return len(inv.items) }

// UsedSlots возвращает количество занятых слотов.
func (inv *Inventory) UsedSlots() int {
	n := 0
	for _, it := range inv.items {
		if it != nil {
			n++
		}
	}
	return n
}

// GetItem возвращает предмет слота или nil.
func (inv *Inventory) GetItem(i int) Item {
	if i < 0 || i >= len(inv.items) {
		return nil
	}
	return inv.items[i]
}

// DeleteItem очищает слот.
func (inv *Inventory) DeleteItem(i int) {
	if i < 0 || i >= len(inv.items) {
		return
	}
	inv.items[i] = nil
}

// AddItem кладёт предмет: материал сначала доливается в стопку того же
// материала, иначе занимает первый свободный слот. false, если места нет.
func (inv *Inventory) AddItem(item Item) bool {
	if mi, ok := item.(*MaterialItem); ok {
		for _, it := range inv.items {
			if other, ok := it.(*MaterialItem); ok && other.Material == mi.Material {
				other.Add(mi.count)
				return true
			}
		}
	}
	for i, it := range inv.items {
		if it == nil {
			inv.items[i] = item
			return true
		}
	}
	return false
}

// Clear очищает все слоты.
func (inv *Inventory) Clear() {
	for i := range inv.items {
		inv.items[i] = nil
	}
}

// Serialize возвращает текстовое представление.
func (inv *Inventory) Serialize() []byte {
	var w bytes.Buffer
	for _, it := range inv.items {
		if it == nil {
			w.WriteString("Empty\n")
			continue
		}
		w.WriteString("Item ")
		it.serialize(&w)
		w.WriteByte('\n')
	}
	w.WriteString("end\n")
	return w.Bytes()
}

// Deserialize заменяет содержимое разобранным текстом. Лишние слоты
// игнорируются, недостающие остаются пустыми.
func (inv *Inventory) Deserialize(data []byte) error {
	inv.Clear()
	sc := bufio.NewScanner(bytes.NewReader(data))
	slot := 0
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "end" {
			return nil
		}
		item, err := parseLine(line)
		if err != nil {
			return err
		}
		if slot < len(inv.items) {
			inv.items[slot] = item
		}
		slot++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInventory, err)
	}
	return fmt.Errorf("%w: missing end", ErrInvalidInventory)
}

func parseLine(line string) (Item, error) {
	if line == "Empty" {
		return nil, nil
	}
	rest, ok := strings.CutPrefix(line, "Item ")
	if !ok {
		return nil, fmt.Errorf("%w: unknown line %q", ErrInvalidInventory, line)
	}
	name, args, _ := strings.Cut(rest, " ")
	switch name {
	case "MaterialItem":
		f := strings.Fields(args)
		if len(f) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidInventory, line)
		}
		m, err := strconv.ParseUint(f[0], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: material %q", ErrInvalidInventory, f[0])
		}
		c, err := strconv.ParseUint(f[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: count %q", ErrInvalidInventory, f[1])
		}
		return NewMaterialItem(node.Material(m), uint16(c)), nil
	case "MBOItem":
		return &ObjectItem{InventoryString: args}, nil
	default:
		return nil, fmt.Errorf("%w: unknown item %q", ErrInvalidInventory, name)
	}
}
