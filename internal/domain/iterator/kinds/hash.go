package kinds

import (
	"encoding/hex"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
)

// NewHash builds an "hmap" leaf: ids whose name hashes to the given bytes
// (spec.md C2, used by the planner's single-name exact-match rule, §4.7.ii).
func NewHash(name []byte, ids []primitive.Id, low, high primitive.Id, forward bool) iterator.Iterator {
	body := hex.EncodeToString(name)
	return newPostingList("hmap", ids, low, high, forward, body, iterator.PrimitiveSummary{})
}
