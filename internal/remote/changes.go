package remote

// Change is one entry of a remote change feed. Document is nil for deletions.
type Change struct {
	DocumentID string
	Deleted    bool
	Document   *Document
}

// NewChange reports a created or modified entry.
func NewChange(doc *Document) Change {
	return Change{DocumentID: doc.ID, Document: doc}
}

// NewDeletion reports an entry that no longer exists.
func NewDeletion(id string) Change {
	return Change{DocumentID: id, Deleted: true}
}

// Changes is the result of one polling cycle: regular changes keyed by remote
// id in feed order, folder changes used to resolve metadata-file parents, the
// cursor to resume from, and whether deletion inference already ran.
type Changes struct {
	order   []string
	changes map[string]Change
	folders map[string]Change

	DeltaMode    bool
	LastChangeID string
}

func NewChanges() *Changes {
	return &Changes{
		changes: make(map[string]Change),
		folders: make(map[string]Change),
	}
}

// Add records a change. A later change for the same id replaces the earlier
// one but keeps its position.
func (c *Changes) Add(ch Change) {
	if _, ok := c.changes[ch.DocumentID]; !ok {
		c.order = append(c.order, ch.DocumentID)
	}
	c.changes[ch.DocumentID] = ch
}

// AddFolder records a change whose target is a folder. Folder changes are
// also regular changes so that the engine sees and ignores them.
func (c *Changes) AddFolder(ch Change) {
	c.folders[ch.DocumentID] = ch
	c.Add(ch)
}

// Folder returns the folder change for id, if any.
func (c *Changes) Folder(id string) (Change, bool) {
	ch, ok := c.folders[id]
	return ch, ok
}

func (c *Changes) Get(id string) (Change, bool) {
	ch, ok := c.changes[id]
	return ch, ok
}

func (c *Changes) Contains(id string) bool {
	_, ok := c.changes[id]
	return ok
}

func (c *Changes) Len() int {
	return len(c.order)
}

// All returns the changes in feed order.
func (c *Changes) All() []Change {
	out := make([]Change, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.changes[id])
	}
	return out
}
