package kinds

import (
	"strconv"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
)

// NewVip builds a "vip" leaf: the posting list restricted to primitives of
// type typeGuid whose linkage slot l points at endpoint (spec.md GLOSSARY,
// C2). VIP is preferred over a plain gmap fan-in whenever both the
// endpoint and the type are known, since it is a narrower index.
func NewVip(endpoint primitive.Id, l primitive.LinkageSlot, typeGuid primitive.Guid, ids []primitive.Id, low, high primitive.Id, forward bool) iterator.Iterator {
	summary := iterator.PrimitiveSummary{}
	tc := typeGuid
	summary.Locked[primitive.SlotType] = &tc
	body := strconv.FormatUint(uint64(endpoint), 10) + "," + l.String() + "," + typeGuid.String()
	return newPostingList("vip", ids, low, high, forward, body, summary)
}
