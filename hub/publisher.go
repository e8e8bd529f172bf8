package hub

import "github.com/algorealm/triggr/doc"

// ChangePublisher adapts a Bus to doc.Publisher, so the document store can
// notify subscribers without importing hub itself.
type ChangePublisher struct {
	Bus *Bus
}

func (p *ChangePublisher) PublishChange(cr doc.ChangeRecord) {
	var d interface{}
	switch {
	case cr.New != nil:
		d = cr.New
	case cr.Old != nil:
		d = cr.Old
	}
	p.Bus.Publish(string(cr.Op), cr.Collection, cr.DocID, d)
}
