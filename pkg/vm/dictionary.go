package vm

import "slices"

// Dictionary header layout, relative to the header address.
const (
	HeaderLink  = 0 // previous header, 0 ends the list
	HeaderXT    = 1 // execution target
	HeaderClass = 2 // class handler

	// NameOffsetLegacy is the name position in images with link, xt, class.
	NameOffsetLegacy = 3
	// NameOffsetCurrent is the name position in images that also carry a
	// documentation/flags field.
	NameOffsetCurrent = 4
)

// Header is a decoded dictionary entry.
type Header struct {
	Addr  Cell
	Link  Cell
	XT    Cell
	Class Cell
	Name  string
}

// Dictionary resolves names against the linked list of headers stored in
// memory. Lookups are cached; the cache only grows.
type Dictionary struct {
	mem        Memory
	nameOffset Cell
	cache      map[string]Cell
}

// NewDictionary creates a dictionary view over mem. nameOffset must be
// NameOffsetLegacy or NameOffsetCurrent.
func NewDictionary(mem Memory, nameOffset int) (*Dictionary, error) {
	if nameOffset != NameOffsetLegacy && nameOffset != NameOffsetCurrent {
		return nil, ErrBadNameOffset
	}
	return &Dictionary{
		mem:        mem,
		nameOffset: Cell(nameOffset),
		cache:      make(map[string]Cell),
	}, nil
}

// NameOffset returns the configured name field offset.
func (d *Dictionary) NameOffset() int {
	return int(d.nameOffset)
}

// Head returns the most recently defined header.
func (d *Dictionary) Head() Cell {
	return d.mem[AddrDictionary]
}

// Name extracts the name stored in the header at addr.
func (d *Dictionary) Name(header Cell) (string, error) {
	return d.mem.ExtractString(header + d.nameOffset)
}

// Header decodes the header at addr.
func (d *Dictionary) Header(addr Cell) (Header, error) {
	h := Header{Addr: addr}
	var err error
	if h.Link, err = d.mem.Fetch(addr + HeaderLink); err != nil {
		return h, err
	}
	if h.XT, err = d.mem.Fetch(addr + HeaderXT); err != nil {
		return h, err
	}
	if h.Class, err = d.mem.Fetch(addr + HeaderClass); err != nil {
		return h, err
	}
	if h.Name, err = d.Name(addr); err != nil {
		return h, err
	}
	return h, nil
}

// Find returns the header address for name. Lookup is exact and
// case-sensitive. A miss walks the list and caches the result.
func (d *Dictionary) Find(name string) (Cell, bool) {
	return d.FindCells(textCells(name))
}

// FindCells is Find for a name given as raw cells. Names holding cells that
// are not valid code points are compared cell by cell and never cached.
func (d *Dictionary) FindCells(name []Cell) (Cell, bool) {
	key, exact := cellsText(name)
	if exact {
		if h, ok := d.cache[key]; ok {
			return h, true
		}
	}
	header := d.Head()
	seen := 0
	for header != 0 && seen < len(d.mem) {
		n, err := d.mem.ExtractCells(header + d.nameOffset)
		if err != nil {
			return 0, false
		}
		if slices.Equal(n, name) {
			if exact {
				d.cache[key] = header
			}
			return header, true
		}
		next, err := d.mem.Fetch(header + HeaderLink)
		if err != nil {
			return 0, false
		}
		header = next
		seen++
	}
	return 0, false
}

// XT returns the execution target of name.
func (d *Dictionary) XT(name string) (Cell, bool) {
	h, ok := d.Find(name)
	if !ok {
		return 0, false
	}
	xt, err := d.mem.Fetch(h + HeaderXT)
	if err != nil {
		return 0, false
	}
	return xt, true
}

// Remember records a header that is about to be created at addr under
// name. Newer definitions shadow older ones. Names holding cells that are
// not valid code points are left to FindCells.
func (d *Dictionary) Remember(name []Cell, addr Cell) {
	if key, exact := cellsText(name); exact {
		d.cache[key] = addr
	}
}

// Populate walks the whole list and caches every name, keeping the most
// recent header for duplicated names.
func (d *Dictionary) Populate() error {
	return d.Walk(func(h Header) bool {
		cells, err := d.mem.ExtractCells(h.Addr + d.nameOffset)
		if err != nil {
			return false
		}
		if key, exact := cellsText(cells); exact {
			if _, ok := d.cache[key]; !ok {
				d.cache[key] = h.Addr
			}
		}
		return true
	})
}

// Walk visits headers from newest to oldest until fn returns false.
func (d *Dictionary) Walk(fn func(Header) bool) error {
	header := d.Head()
	seen := 0
	for header != 0 && seen < len(d.mem) {
		h, err := d.Header(header)
		if err != nil {
			return err
		}
		if !fn(h) {
			return nil
		}
		header = h.Link
		seen++
	}
	return nil
}

// NameForXT returns the name of the newest word whose execution target is
// xt.
func (d *Dictionary) NameForXT(xt Cell) (string, bool) {
	var name string
	found := false
	_ = d.Walk(func(h Header) bool {
		if h.XT == xt {
			name, found = h.Name, true
			return false
		}
		return true
	})
	return name, found
}

// Words returns every name from newest to oldest.
func (d *Dictionary) Words() []string {
	var names []string
	_ = d.Walk(func(h Header) bool {
		names = append(names, h.Name)
		return true
	})
	return names
}

// Cached reports the number of cached names.
func (d *Dictionary) Cached() int {
	return len(d.cache)
}
