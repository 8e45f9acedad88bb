package kinds

import (
	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
)

// NewGmap builds a "gmap" leaf: the posting list of ids whose linkage slot
// l points at g (spec.md §4.1 C2). ids must already be the full posting
// list content; callers own filtering to [low, high).
func NewGmap(l primitive.LinkageSlot, g primitive.Guid, ids []primitive.Id, low, high primitive.Id, forward bool) iterator.Iterator {
	summary := iterator.PrimitiveSummary{}
	gc := g
	summary.Locked[l] = &gc
	body := l.String() + ":" + g.String()
	return newPostingList("gmap", ids, low, high, forward, body, summary)
}
