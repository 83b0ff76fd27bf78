// Package physics - столкновения игрока с узлами карты.
package physics
