package linkdb

// rootGID is the permanent gid of the root item.
const rootGID int64 = 0

// rootItem is the entry point of every database: it maps names of top-level
// links to their gids.
type rootItem struct {
	Names map[string]int64 `json:"names"`

	link *Link
}

func (r *rootItem) OnCreate(l *Link) { r.link = l }

func (r *rootItem) OnLoad(l *Link) {
	r.link = l
	if r.Names == nil {
		r.Names = make(map[string]int64)
	}
}

// forget drops every name bound to gid and reports whether one was found.
func (r *rootItem) forget(gid int64) bool {
	found := false
	for name, g := range r.Names {
		if g == gid {
			delete(r.Names, name)
			found = true
		}
	}
	return found
}
