package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nerrad567/deckrelay/internal/button"
)

// ButtonHandle is what the bridge knows about one placed button.
type ButtonHandle struct {
	Context         string          `json:"context"`
	Action          string          `json:"action"`
	IsInMultiAction bool            `json:"isInMultiAction"`
	Title           *string         `json:"title,omitempty"`
	TitleParameters json.RawMessage `json:"titleParameters,omitempty"`
	State           *int            `json:"state,omitempty"`
}

type grid struct {
	rows    int
	columns int
	cells   [][]*ButtonHandle
}

func newGrid(rows, columns int) *grid {
	cells := make([][]*ButtonHandle, rows)
	for r := range cells {
		cells[r] = make([]*ButtonHandle, columns)
	}
	return &grid{rows: rows, columns: columns, cells: cells}
}

func (g *grid) cell(c button.Coordinate) (**ButtonHandle, error) {
	if c.Row < 0 || c.Row >= g.rows || c.Column < 0 || c.Column >= g.columns {
		return nil, fmt.Errorf("%w: %s in %dx%d", ErrOutOfRange, c.String(), g.rows, g.columns)
	}
	return &g.cells[c.Row][c.Column], nil
}

// Locations maps each device to a rows x columns grid of optional button
// handles. Grid dimensions are fixed when a device is first added.
//
// Locations is not safe for concurrent use. The Bridge confines it to
// its event loop.
type Locations struct {
	order []string
	grids map[string]*grid
}

// NewLocations returns an empty store.
func NewLocations() *Locations {
	return &Locations{grids: make(map[string]*grid)}
}

// Reset forgets every device.
func (l *Locations) Reset() {
	l.order = nil
	l.grids = make(map[string]*grid)
}

// Devices returns device ids in the order they were first seen.
func (l *Locations) Devices() []string {
	return append([]string(nil), l.order...)
}

// Has reports whether device has a grid.
func (l *Locations) Has(device string) bool {
	_, ok := l.grids[device]
	return ok
}

// AddDevice creates an empty grid for device. It reports false, leaving
// the store unchanged, when the device is already known or the size is
// not positive.
func (l *Locations) AddDevice(device string, rows, columns int) bool {
	if l.Has(device) || rows <= 0 || columns <= 0 {
		return false
	}
	l.grids[device] = newGrid(rows, columns)
	l.order = append(l.order, device)
	return true
}

func (l *Locations) lookup(device string, c button.Coordinate) (**ButtonHandle, error) {
	g, ok := l.grids[device]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, device)
	}
	return g.cell(c)
}

// Place stores h at c on device, replacing whatever was there.
func (l *Locations) Place(device string, c button.Coordinate, h ButtonHandle) error {
	p, err := l.lookup(device, c)
	if err != nil {
		return err
	}
	*p = &h
	return nil
}

// Remove empties the cell at c on device.
func (l *Locations) Remove(device string, c button.Coordinate) error {
	p, err := l.lookup(device, c)
	if err != nil {
		return err
	}
	*p = nil
	return nil
}

// UpdateTitle records new title details for the button at c.
func (l *Locations) UpdateTitle(device string, c button.Coordinate, title *string, params json.RawMessage, state *int) error {
	p, err := l.lookup(device, c)
	if err != nil {
		return err
	}
	if *p == nil {
		return fmt.Errorf("%w: %s on %q", ErrEmptyCell, c.String(), device)
	}
	h := *p
	h.Title = title
	h.TitleParameters = append(json.RawMessage(nil), params...)
	h.State = state
	return nil
}

// Get returns a copy of the handle at c on device.
func (l *Locations) Get(device string, c button.Coordinate) (ButtonHandle, bool) {
	p, err := l.lookup(device, c)
	if err != nil || *p == nil {
		return ButtonHandle{}, false
	}
	return **p, true
}

// Resolve returns the context of the button at c on the first device,
// in first-seen order, that has one there.
func (l *Locations) Resolve(c button.Coordinate) (string, bool) {
	for _, device := range l.order {
		if h, ok := l.Get(device, c); ok {
			return h.Context, true
		}
	}
	return "", false
}

// MarshalJSON encodes the store as {device: {row: {column: handle|null}}}.
func (l *Locations) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]map[string]*ButtonHandle, len(l.grids))
	for device, g := range l.grids {
		rows := make(map[string]map[string]*ButtonHandle, g.rows)
		for r := 0; r < g.rows; r++ {
			cols := make(map[string]*ButtonHandle, g.columns)
			for c := 0; c < g.columns; c++ {
				cols[strconv.Itoa(c)] = g.cells[r][c]
			}
			rows[strconv.Itoa(r)] = cols
		}
		out[device] = rows
	}
	return json.Marshal(out)
}
