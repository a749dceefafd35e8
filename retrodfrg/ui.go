// Package retrodfrg draws a full-screen progress display in the style of
// the old DOS disk tools: a title bar, summary lines, a block map that fills
// in as the device is written and read back, a phase line and a status block.
// It knows nothing about what is being tested; callers feed it lines and
// mark cells on a Tracker.
package retrodfrg

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// ErrInterrupted is returned when the user requests to stop the operation.
var ErrInterrupted = errors.New("interrupted")

// reservedRows is what the phase line and status block need below the map.
const reservedRows = 7

// UI is a terminal display. All setters and LayoutAndDraw may be called
// from any goroutine.
type UI struct {
	mu       sync.Mutex
	s        tcell.Screen
	stopChan chan struct{}
	once     sync.Once
	// restore is set for real terminals, which need the alternate screen
	// left explicitly on Close.
	restore bool

	title        string
	phases       []string
	phaseDoneMap map[string]bool
	summaryLines []string
	legendLines  []string
	statusLines  []string

	tracker *Tracker
}

// NewUI takes over the terminal and starts listening for q, Esc and Ctrl-C.
func NewUI() (*UI, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	u, err := newUIWithScreen(s)
	if err != nil {
		return nil, err
	}
	u.restore = true
	return u, nil
}

func newUIWithScreen(s tcell.Screen) (*UI, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	s.HideCursor()
	u := &UI{
		s:            s,
		stopChan:     make(chan struct{}),
		phaseDoneMap: make(map[string]bool),
	}
	go u.eventLoop(s)
	return u, nil
}

// Close restores the terminal. It is safe to call more than once.
func (u *UI) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.s == nil {
		return
	}
	u.s.Fini()
	u.s = nil
	if u.restore {
		fmt.Print("\033[?1049l\033[?25h")
	}
}

// RequestStop signals that the user wants to abort. It can be called
// multiple times safely.
func (u *UI) RequestStop() {
	u.once.Do(func() {
		close(u.stopChan)
	})
}

// Stopped is closed once the user has asked to stop.
func (u *UI) Stopped() <-chan struct{} {
	return u.stopChan
}

// MapCells is how many map cells fit on the current screen, given the
// number of summary and legend lines already set.
func (u *UI) MapCells() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.s == nil {
		return 0
	}
	w, h := u.s.Size()
	return w * u.mapRows(h)
}

func (u *UI) mapRows(h int) int {
	used := len(u.summaryLines) + len(u.legendLines) + reservedRows
	if u.title != "" {
		used++
	}
	if h-used < 1 {
		return 1
	}
	return h - used
}

func putStr(s tcell.Screen, x, y int, str string, style tcell.Style) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		pos := x + i
		if pos >= w {
			break
		}
		s.SetContent(pos, y, r, nil, style)
	}
}

// LayoutAndDraw redraws the entire screen from the current state.
func (u *UI) LayoutAndDraw() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.s == nil {
		return
	}
	s := u.s
	s.Clear()
	w, h := s.Size()
	plain := tcell.StyleDefault
	y := 0

	if u.title != "" {
		putStr(s, 0, y, strings.Repeat("═", w), plain)
		x := (w - len([]rune(u.title))) / 2
		if x < 0 {
			x = 0
		}
		putStr(s, x, y, u.title, plain.Bold(true))
		y++
	}
	for _, line := range append(append([]string(nil), u.summaryLines...), u.legendLines...) {
		if y >= h {
			break
		}
		putStr(s, 0, y, line, plain)
		y++
	}

	if u.tracker != nil {
		rows := u.mapRows(h)
		for _, row := range u.tracker.Rows(w, rows) {
			if y >= h {
				break
			}
			for x, c := range row {
				s.SetContent(x, y, c.Rune(), nil, c.Style())
			}
			y++
		}
	}

	if len(u.phases) > 0 && y < h {
		putStr(s, 0, y, strings.Repeat("─", w), plain)
		putStr(s, 2, y, " Phase ", plain)
		y++
		var b strings.Builder
		for i, p := range u.phases {
			if i > 0 {
				b.WriteByte(' ')
			}
			mark := ' '
			if u.phaseDoneMap[strings.ToLower(p)] {
				mark = '✓'
			}
			fmt.Fprintf(&b, "[%c]%s", mark, p)
		}
		putStr(s, 0, y, b.String(), plain)
		y++
	}

	if len(u.statusLines) > 0 && y < h {
		putStr(s, 0, y, strings.Repeat("─", w), plain)
		putStr(s, 2, y, " Status ", plain)
		y++
		for _, line := range u.statusLines {
			if y >= h {
				break
			}
			putStr(s, 0, y, line, plain)
			y++
		}
	}

	s.Show()
}

// SetPhaseDone marks the specified phase as completed.
// The phase name is case-insensitive.
func (u *UI) SetPhaseDone(p string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.phaseDoneMap[strings.ToLower(p)] = true
}

// SetPhases sets the list of phases to display.
func (u *UI) SetPhases(labels []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.phases = append([]string(nil), labels...)
}

func (u *UI) SetTitle(t string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.title = t
}

func (u *UI) SetSummaryLines(lines []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.summaryLines = append([]string(nil), lines...)
}

func (u *UI) SetLegend(lines []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.legendLines = append([]string(nil), lines...)
}

func (u *UI) SetStatusLines(lines []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statusLines = append([]string(nil), lines...)
}

// SetTracker sets the block map rendered between the legend and the phase line.
func (u *UI) SetTracker(t *Tracker) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tracker = t
}

func (u *UI) eventLoop(s tcell.Screen) {
	for {
		switch ev := s.PollEvent().(type) {
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyCtrlC, ev.Key() == tcell.KeyEscape:
				u.RequestStop()
			case ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q'):
				u.RequestStop()
			}
		case *tcell.EventResize:
			s.Sync()
		case nil:
			// Fini was called.
			return
		}
	}
}
