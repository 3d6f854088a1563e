package pool

import "sync"

// ---------------------------------------------------------------------------
// Duplicate Index — append-only attribute sets for relaunch detection
// ---------------------------------------------------------------------------

// Attributes are the identity-bearing fields of a candidate asset.
type Attributes struct {
	Name        string
	Ticker      string
	Description string
	Image       string
	MetadataURI string
}

// DupIndex remembers every attribute combination seen so far. Entries are
// never removed for the life of the process.
type DupIndex struct {
	mu          sync.Mutex
	images      map[string]struct{}
	uris        map[string]struct{}
	names       map[string]struct{}
	descNames   map[string]struct{}
	descTickers map[string]struct{}
	nameTickers map[string]struct{}
}

func NewDupIndex() *DupIndex {
	return &DupIndex{
		images:      make(map[string]struct{}),
		uris:        make(map[string]struct{}),
		names:       make(map[string]struct{}),
		descNames:   make(map[string]struct{}),
		descTickers: make(map[string]struct{}),
		nameTickers: make(map[string]struct{}),
	}
}

func pairKey(a, b string) string {
	return a + "\x00" + b
}

// IsDuplicate reports whether ANY single attribute or pair matches a prior
// candidate. One shared attribute is enough to reject.
func (d *DupIndex) IsDuplicate(a Attributes) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if a.Image != "" {
		if _, ok := d.images[a.Image]; ok {
			return true
		}
	}
	if a.MetadataURI != "" {
		if _, ok := d.uris[a.MetadataURI]; ok {
			return true
		}
	}
	if a.Name != "" {
		if _, ok := d.names[a.Name]; ok {
			return true
		}
	}
	if a.Description != "" && a.Name != "" {
		if _, ok := d.descNames[pairKey(a.Description, a.Name)]; ok {
			return true
		}
	}
	if a.Description != "" && a.Ticker != "" {
		if _, ok := d.descTickers[pairKey(a.Description, a.Ticker)]; ok {
			return true
		}
	}
	if a.Name != "" && a.Ticker != "" {
		if _, ok := d.nameTickers[pairKey(a.Name, a.Ticker)]; ok {
			return true
		}
	}
	return false
}

// Record inserts all non-empty attributes and pairs.
func (d *DupIndex) Record(a Attributes) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if a.Image != "" {
		d.images[a.Image] = struct{}{}
	}
	if a.MetadataURI != "" {
		d.uris[a.MetadataURI] = struct{}{}
	}
	if a.Name != "" {
		d.names[a.Name] = struct{}{}
	}
	if a.Description != "" && a.Name != "" {
		d.descNames[pairKey(a.Description, a.Name)] = struct{}{}
	}
	if a.Description != "" && a.Ticker != "" {
		d.descTickers[pairKey(a.Description, a.Ticker)] = struct{}{}
	}
	if a.Name != "" && a.Ticker != "" {
		d.nameTickers[pairKey(a.Name, a.Ticker)] = struct{}{}
	}
}
