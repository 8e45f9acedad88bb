package cursor

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/iterator/kinds"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
)

// replayBudget bounds the work Thaw is willing to spend re-driving an
// iterator back to its saved position. It is generous rather than exact:
// position replay is always correct regardless of size, only sometimes
// slow (spec.md §4.9's survivability contract cares about correctness,
// not replay cost).
const replayBudget = 1 << 40

// Thaw reconstructs a live iterator from a full cursor string, replaying
// POSITION if present (spec.md §4.9). STATE recovery beyond position replay
// is kind-specific and handled by the planner layer that owns the
// constraint tree a materialised AND/ISA substitute was verified against;
// at this layer, a thaw with no matching registry entry degrades to the
// fail-soft resume_id contract described in spec.md §4.3/§4.5.
func Thaw(text string, store iterator.Store, reg *Registry) (iterator.Iterator, error) {
	c := Split(text)
	it, err := ThawSet(c.Set, store, reg)
	if err != nil {
		return nil, err
	}
	if c.Position == "" {
		return it, nil
	}
	b := budget.New(replayBudget)
	if resumeID, ok := strings.CutPrefix(c.Position, "resume="); ok {
		id, err := strconv.ParseUint(resumeID, 10, 64)
		if err != nil {
			return it, nil
		}
		if _, err := it.Find(primitive.Id(id), b); err != nil && !iterator.Is(err, iterator.ErrNoMoreData) {
			return nil, err
		}
		return it, nil
	}
	n, err := strconv.Atoi(c.Position)
	if err != nil {
		return it, nil
	}
	for i := 0; i < n; i++ {
		if _, err := it.Next(b); err != nil {
			if iterator.Is(err, iterator.ErrNoMoreData) {
				break
			}
			return nil, err
		}
	}
	return it, nil
}

// ThawSet reconstructs an iterator from a bare SET piece, recursing into
// parenthesised sub-cursors for composite kinds.
func ThawSet(text string, store iterator.Store, reg *Registry) (iterator.Iterator, error) {
	s, ok := ParseSet(text)
	if !ok {
		return nil, iterator.Wrap(iterator.ErrLexical, "malformed cursor SET: "+text)
	}
	switch s.Kind {
	case "null":
		return kinds.NewNull(), nil
	case "all":
		return kinds.NewAll(s.Low, s.High, s.Forward, store), nil
	case "fixed":
		return thawFixed(s, reg)
	case "gmap":
		return thawGmap(s, store)
	case "vip":
		return thawVip(s, store)
	case "hmap":
		return thawHash(s, store)
	case "and":
		return thawAnd(s, store, reg)
	case "or":
		return thawOr(s, store, reg)
	case "isa", "linksto":
		return thawIsa(s, store, reg)
	default:
		return nil, iterator.Wrap(iterator.ErrLexical, "unknown iterator kind: "+s.Kind)
	}
}

func thawSubs(subs []string, store iterator.Store, reg *Registry) ([]iterator.Iterator, error) {
	out := make([]iterator.Iterator, 0, len(subs))
	for _, sub := range subs {
		it, err := ThawSet(sub, store, reg)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// masqueradePrefixes lists every kind's verified-substitute recipe prefix
// (spec.md §4.2), in the order thawFixed tries to strip them.
var masqueradePrefixes = []string{"and-verified:", "isa-verified:", "or-verified:"}

// thawFixed handles both explicit id lists and the AND/ISA/OR masquerade
// recipe. A masquerade recipe only resolves if its original is still
// registered (live within this process): a hit rebinds to a clone of the
// still-live substitute, inheriting its verified contents and stats;
// otherwise it degrades to an empty result — the planner layer that
// re-derives the constraint tree is the one able to fully replay a lost
// masquerade (spec.md §4.2/§4.3).
func thawFixed(s Set, reg *Registry) (iterator.Iterator, error) {
	if strings.Contains(s.Body, "-verified:") {
		for _, prefix := range masqueradePrefixes {
			stamp, ok := strings.CutPrefix(s.Body, prefix)
			if !ok {
				continue
			}
			if it, found := reg.Lookup(stamp); found {
				return it.Clone(), nil
			}
			break
		}
		// Either the prefix is unrecognised or the original is no longer
		// registered: the literal ids aren't in the cursor text, so this
		// degrades to an empty result (see doc comment on thawFixed).
		return kinds.NewFixedSorted(nil, s.Low, s.High, s.Forward), nil
	}
	if s.Body == "" {
		return kinds.NewFixedUnsorted(nil, s.Low, s.High), nil
	}
	parts := strings.Split(s.Body, ",")
	ids := make([]primitive.Id, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, iterator.Wrap(iterator.ErrLexical, "bad fixed id: "+p)
		}
		ids = append(ids, primitive.Id(v))
	}
	return kinds.NewFixedSorted(ids, s.Low, s.High, s.Forward), nil
}

func thawGmap(s Set, store iterator.Store) (iterator.Iterator, error) {
	eq := strings.IndexByte(s.Body, ':')
	if eq < 0 {
		return nil, iterator.Wrap(iterator.ErrLexical, "bad gmap body: "+s.Body)
	}
	slot, ok := primitive.ParseLinkageSlot(s.Body[:eq])
	if !ok {
		return nil, iterator.Wrap(iterator.ErrLexical, "bad gmap slot: "+s.Body)
	}
	g, err := primitive.GuidFromHex(s.Body[eq+1:])
	if err != nil {
		return nil, iterator.Wrap(iterator.ErrLexical, err.Error())
	}
	return store.LinkageIterator(slot, g, s.Low, s.High, s.Forward), nil
}

func thawVip(s Set, store iterator.Store) (iterator.Iterator, error) {
	parts := strings.SplitN(s.Body, ",", 3)
	if len(parts) != 3 {
		return nil, iterator.Wrap(iterator.ErrLexical, "bad vip body: "+s.Body)
	}
	endpoint, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, iterator.Wrap(iterator.ErrLexical, "bad vip endpoint: "+parts[0])
	}
	slot, ok := primitive.ParseLinkageSlot(parts[1])
	if !ok {
		return nil, iterator.Wrap(iterator.ErrLexical, "bad vip slot: "+parts[1])
	}
	typeGuid, err := primitive.GuidFromHex(parts[2])
	if err != nil {
		return nil, iterator.Wrap(iterator.ErrLexical, err.Error())
	}
	return store.VipIterator(primitive.Id(endpoint), slot, typeGuid, s.Low, s.High, s.Forward), nil
}

func thawHash(s Set, store iterator.Store) (iterator.Iterator, error) {
	name, err := hex.DecodeString(s.Body)
	if err != nil {
		return nil, iterator.Wrap(iterator.ErrLexical, "bad hmap body: "+s.Body)
	}
	return store.NameHashIterator(name, s.Low, s.High, s.Forward), nil
}

func thawAnd(s Set, store iterator.Store, reg *Registry) (iterator.Iterator, error) {
	subs, err := thawSubs(s.Subs, store, reg)
	if err != nil {
		return nil, err
	}
	return kinds.NewAnd(subs, s.Low, s.High, s.Forward), nil
}

func thawOr(s Set, store iterator.Store, reg *Registry) (iterator.Iterator, error) {
	subs, err := thawSubs(s.Subs, store, reg)
	if err != nil {
		return nil, err
	}
	return kinds.NewOr(subs, s.Low, s.High, s.Forward), nil
}

func thawIsa(s Set, store iterator.Store, reg *Registry) (iterator.Iterator, error) {
	if len(s.Subs) != 1 {
		return nil, iterator.Wrap(iterator.ErrLexical, "isa cursor missing source sub-cursor")
	}
	source, err := ThawSet(s.Subs[0], store, reg)
	if err != nil {
		return nil, err
	}
	slot, ok := primitive.ParseLinkageSlot(s.Options["slot"])
	if !ok {
		return nil, iterator.Wrap(iterator.ErrLexical, "bad isa slot option")
	}
	return kinds.NewIsa(source, slot, store, s.Low, s.High, s.Forward, s.Kind == "linksto"), nil
}
