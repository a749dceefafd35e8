package retrodfrg

import (
	"sync"

	"github.com/gdamore/tcell/v2"
)

// Cell is the state of one block of the map.
type Cell uint8

const (
	CellPending Cell = iota
	CellWritten
	CellVerified
	// CellBad is sticky: later marks never clear it.
	CellBad
)

// Rune is how the cell is drawn.
func (c Cell) Rune() rune {
	switch c {
	case CellWritten:
		return '▒'
	case CellVerified:
		return '█'
	case CellBad:
		return 'X'
	default:
		return '░'
	}
}

func (c Cell) Style() tcell.Style {
	switch c {
	case CellVerified:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	case CellBad:
		return tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	default:
		return tcell.StyleDefault
	}
}

// Legend lines for the cell states.
func Legend() []string {
	return []string{
		string(CellPending.Rune()) + " untouched   " +
			string(CellWritten.Rune()) + " written   " +
			string(CellVerified.Rune()) + " verified   " +
			string(CellBad.Rune()) + " mismatch",
	}
}

// Tracker maps a byte range onto a fixed number of cells.
type Tracker struct {
	mu      sync.Mutex
	total   uint64
	unit    uint64
	cells   []Cell
	current int
}

// NewTracker splits total bytes into at most maxCells cells. A zero total
// gives an empty map.
func NewTracker(total uint64, maxCells int) *Tracker {
	t := &Tracker{total: total}
	if total == 0 || maxCells <= 0 {
		return t
	}
	t.unit = (total + uint64(maxCells) - 1) / uint64(maxCells)
	t.cells = make([]Cell, (total+t.unit-1)/t.unit)
	return t
}

// Len returns the number of cells.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cells)
}

// Mark sets every cell touched by [offset, offset+n) to c. A zero n marks
// the cell holding offset.
func (t *Tracker) Mark(offset, n uint64, c Cell) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.cells) == 0 || offset >= t.total {
		return
	}
	if n == 0 {
		n = 1
	}
	start := int(offset / t.unit)
	end := int((offset + n + t.unit - 1) / t.unit)
	if end > len(t.cells) {
		end = len(t.cells)
	}
	for i := start; i < end; i++ {
		if t.cells[i] == CellBad && c != CellBad {
			continue
		}
		t.cells[i] = c
	}
	if c != CellBad {
		t.current = end - 1
	}
}

// Count returns how many cells are in state c.
func (t *Tracker) Count(c Cell) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, x := range t.cells {
		if x == c {
			n++
		}
	}
	return n
}

// Rows lays the map out w cells wide. When it does not fit in rows, the
// window scrolls to keep the most recently marked cell on screen.
func (t *Tracker) Rows(w, rows int) [][]Cell {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w <= 0 || rows <= 0 || len(t.cells) == 0 {
		return nil
	}
	visible := w * rows
	start := 0
	if len(t.cells) > visible {
		if t.current >= visible-1 {
			start = t.current - (visible - 1)
		}
		// Whole rows only, so columns stay put while scrolling.
		start = (start + w - 1) / w * w
		last := (len(t.cells) - visible + w - 1) / w * w
		if start > last {
			start = last
		}
	}
	var out [][]Cell
	for i := start; i < len(t.cells) && len(out) < rows; i += w {
		end := i + w
		if end > len(t.cells) {
			end = len(t.cells)
		}
		out = append(out, append([]Cell(nil), t.cells[i:end]...))
	}
	return out
}
