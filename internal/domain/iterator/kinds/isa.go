package kinds

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"

	"github.com/graphd/queryengine/internal/domain/isacache"
	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
	"github.com/graphd/queryengine/internal/infrastructure/rescache"
)

// defaultIsaCacheSerialCap is the serialisability cap used when no
// resource-cache-backed Isa has been configured with one (spec.md §4.6).
const defaultIsaCacheSerialCap = 4 * datasize.MB

// Method names the duplicate-suppression strategy an ISA settles on after
// its statistics experiment (spec.md §4.5 "Duplicate suppression method
// selection").
type Method int

const (
	Storable Method = iota
	Intersect
)

func (m Method) String() string {
	if m == Intersect {
		return "intersect"
	}
	return "storable"
}

// huge is HUGE(hint) from spec.md §4.5: above this estimated cardinality,
// a sorted source prefers INTERSECT over paying for a STORABLE hash cache.
const huge = 1 << 20

// isaStatSamples is K in the statistics experiment (spec.md §4.5 point 1).
const isaStatSamples = 5

// isaMaterialiseMax / isaMaterialiseCostMax / isaMaterialiseTotalMax are the
// thresholds spec.md §4.5 point 5 names for collapsing an ISA into a Fixed.
const (
	isaMaterialiseMax      = 300
	isaMaterialiseCostMax  = 50
	isaMaterialiseTotalMax = 15000
)

// Isa implements the ISA iterator (spec.md §4.5, C6): given a source
// sub-iterator S, follow linkage slot L from each id S produces and emit
// the distinct referenced ids. When linksTo is set it implements the dual
// named "linksto" in the planner (§4.7.iii, parent-points-to-child): each
// source id is treated as the pointee and candidates are its fan-in along
// L, rather than a single resolved target — the cheapest reading of
// "linksto" consistent with §4.5's fan-in/dedup machinery, since §4.5
// itself only describes isa's steady state and leaves linksto's as the
// planner's wrapping choice.
type Isa struct {
	set     iterator.Set
	source  iterator.Iterator
	slot    primitive.LinkageSlot
	store   iterator.Store
	linksTo bool

	method       Method
	methodChosen bool
	materialized *Fixed

	cache       *isacache.Cache
	cacheOffset int

	// STORABLE steady-state resume fields.
	curSrcID    primitive.Id
	hasCurSrc   bool
	fanin       iterator.Iterator // current source id's candidate stream

	// INTERSECT steady-state resume fields.
	lastEmitted    primitive.Id
	hasLastEmitted bool

	checkCache map[primitive.Id]bool

	primSummary iterator.PrimitiveSummary
	original    *iterator.Original

	// registrar, if set, is where isa.materialized publishes itself once
	// built, so a later thaw in this process can rebind to it by its
	// masquerade stamp (spec.md §5).
	registrar Registrar

	// resCache, if set, backs the STORABLE dedup cache with the shared
	// iterator-resource cache (spec.md §5) instead of a process-private
	// allocation, so concurrent clones of the same original — and, with a
	// Redis tier configured, a later process — can share the built cache
	// by stamp. serialCap is threaded alongside it since both come from the
	// same engine configuration.
	resCache  *rescache.Cache
	serialCap datasize.ByteSize
}

// WithRegistrar attaches the name-to-original index a verified materialised
// result publishes itself into (spec.md §5), so a later thaw in this
// process can rebind to it instead of re-walking the source iterator.
func (isa *Isa) WithRegistrar(r Registrar) *Isa {
	isa.registrar = r
	return isa
}

// WithResourceCache backs this Isa's STORABLE dedup cache with the shared
// iterator-resource cache rc, capping what Freeze is willing to inline at
// serialCap (spec.md §4.6, §5).
func (isa *Isa) WithResourceCache(rc *rescache.Cache, serialCap datasize.ByteSize) *Isa {
	isa.resCache = rc
	isa.serialCap = serialCap
	return isa
}

// NewIsa composes an ISA iterator over source, following slot.
func NewIsa(source iterator.Iterator, slot primitive.LinkageSlot, store iterator.Store, low, high primitive.Id, forward bool, linksTo bool) iterator.Iterator {
	if source.Kind() == "null" {
		return NewNull()
	}
	dir := iterator.Forward
	if !forward {
		dir = iterator.Backward
	}
	return &Isa{
		set:        iterator.Set{Low: low, High: high, Dir: dir},
		source:     source,
		slot:       slot,
		store:      store,
		linksTo:    linksTo,
		checkCache: make(map[primitive.Id]bool),
		original:   iterator.NewOriginal(fmt.Sprintf("isa-%p", source)),
	}
}

// candidatesFor returns the candidate-target stream for source id s: a
// single resolved id for isa mode, or the fan-in posting list for linksto.
func (isa *Isa) candidatesFor(s primitive.Id) (iterator.Iterator, error) {
	if !isa.linksTo {
		pr, ok := isa.store.ReadPrimitive(s)
		if !ok || !pr.HasLinkage(isa.slot) {
			return NewFixedUnsorted(nil, isa.set.Low, isa.set.High), nil // skip: missing read or absent slot
		}
		t, ok := isa.store.IdFromGuid(pr.LinkageGuid(isa.slot))
		if !ok {
			return NewFixedUnsorted(nil, isa.set.Low, isa.set.High), nil
		}
		return NewFixedUnsorted([]primitive.Id{t}, isa.set.Low, isa.set.High), nil
	}
	g, ok := isa.store.GuidFromId(s)
	if !ok {
		return NewFixedUnsorted(nil, isa.set.Low, isa.set.High), nil
	}
	return isa.store.LinkageIterator(isa.slot, g, isa.set.Low, isa.set.High, isa.set.Dir == iterator.Forward), nil
}

// Statistics runs the sampling experiment described in spec.md §4.5,
// selects a duplicate-suppression method, and attempts materialisation if
// the projected result is small and cheap.
func (isa *Isa) Statistics(b *budget.Budget) error {
	if isa.materialized != nil || isa.Stats().Valid {
		return nil
	}
	if err := isa.source.Statistics(b); err != nil {
		return err
	}

	sampleSrc := isa.source.Clone()
	distinct := make(map[primitive.Id]struct{})
	trials := 0
	for trials < isaStatSamples {
		sid, err := sampleSrc.Next(b)
		if iterator.Is(err, iterator.ErrNoMoreData) {
			break
		}
		if err != nil {
			return err
		}
		cands, err := isa.candidatesFor(sid)
		if err != nil {
			return err
		}
		for {
			t, err := cands.Next(b)
			if iterator.Is(err, iterator.ErrNoMoreData) {
				break
			}
			if err != nil {
				return err
			}
			if isa.set.InRange(t) {
				distinct[t] = struct{}{}
			}
		}
		trials++
	}
	distinctN := len(distinct)
	if distinctN == 0 {
		distinctN = 1
	}
	averageLoss := float64(trials) / float64(distinctN)

	// Scale S's cardinality by the ratio between the ISA's target range and
	// S's own source range — spec.md §4.5 point 3's "shared-spread ratio".
	srcStats := isa.source.Stats()
	srcRange := isa.source.RangeEstimate()
	srcRangeSpan := float64(srcRange.High - srcRange.Low)
	isaSpan := float64(isa.set.High - isa.set.Low)
	spread := 1.0
	if srcRangeSpan > 0 {
		spread = isaSpan / srcRangeSpan
	}
	n := uint64(float64(srcStats.N) * spread / maxFloat(averageLoss, 1))
	if n == 0 {
		n = uint64(distinctN)
	}

	nextCost := int64(float64(srcStats.NextCost+budget.CostPrimitive)/maxFloat(averageLoss, 1) + float64(budget.CostFunctionCall))

	isa.methodChosen = true
	if !isa.linksTo && srcStats.Valid && srcStats.OrderingTag != "" && n > huge {
		isa.method = Intersect
	} else {
		isa.method = Storable
		cache, err := isa.buildCache()
		if err != nil {
			return err
		}
		isa.cache = cache
	}

	if n <= isaMaterialiseMax && nextCost < isaMaterialiseCostMax && n*uint64(nextCost) <= isaMaterialiseTotalMax {
		if verified, ok := isa.tryMaterialise(b); ok {
			isa.materialized = NewFixedSorted(verified, isa.set.Low, isa.set.High, isa.set.Dir == iterator.Forward)
			isa.materialized.WithMasquerade(isa.masqueradeRecipe())
			if isa.registrar != nil {
				isa.registrar.Register(isa.original.Stamp(), isa.materialized)
			}
		}
	}

	isa.primSummary = isa.source.PrimitiveSummary()

	isa.original.SetStats(iterator.Statistics{
		Valid:     true,
		CheckCost: budget.CostFunctionCall * 2,
		NextCost:  nextCost,
		FindCost:  nextCost,
		N:         n,
	})
	return nil
}

// buildCache obtains this Isa's STORABLE dedup cache, linking into the
// shared iterator-resource cache by stamp when one is configured
// (spec.md §5) so concurrent clones of the same original, and — with a
// Redis tier — a later process, can reuse the same built cache instead of
// each paying the fan-in walk again. Falls back to a process-private cache
// when no resource cache is attached.
func (isa *Isa) buildCache() (*isacache.Cache, error) {
	serialCap := isa.serialCap
	if serialCap == 0 {
		serialCap = defaultIsaCacheSerialCap
	}
	if isa.resCache == nil {
		return isacache.New(serialCap, nil), nil
	}
	stamp := isa.original.Stamp()
	v, err := isa.resCache.Link(context.Background(), stamp, func(stamp string, serialized []byte) (rescache.Storable, error) {
		c := isacache.New(serialCap, nil)
		if serialized != nil {
			if err := c.Unmarshal(serialized); err != nil {
				return nil, err
			}
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*isacache.Cache), nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func (isa *Isa) tryMaterialise(b *budget.Budget) ([]primitive.Id, bool) {
	source := isa.source.Clone()
	seen := make(map[primitive.Id]struct{})
	var out []primitive.Id
	for {
		sid, err := source.Next(b)
		if iterator.Is(err, iterator.ErrNoMoreData) {
			return out, true
		}
		if err != nil {
			return nil, false
		}
		cands, err := isa.candidatesFor(sid)
		if err != nil {
			return nil, false
		}
		for {
			t, err := cands.Next(b)
			if iterator.Is(err, iterator.ErrNoMoreData) {
				break
			}
			if err != nil {
				return nil, false
			}
			if !isa.set.InRange(t) {
				continue
			}
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				out = append(out, t)
				if len(out) > isaMaterialiseMax {
					return nil, false
				}
			}
		}
		if b.Exhausted() {
			return nil, false
		}
	}
}

func (isa *Isa) Stats() iterator.Statistics { return isa.original.Stats() }

// Next implements the STORABLE and INTERSECT steady states (spec.md §4.5).
func (isa *Isa) Next(b *budget.Budget) (primitive.Id, error) {
	if isa.materialized != nil {
		return isa.materialized.Next(b)
	}
	if !isa.methodChosen {
		if err := isa.Statistics(b); err != nil {
			return 0, err
		}
		if isa.materialized != nil {
			return isa.materialized.Next(b)
		}
	}
	if isa.method == Storable {
		return isa.nextStorable(b)
	}
	return isa.nextIntersect(b)
}

func (isa *Isa) nextStorable(b *budget.Budget) (primitive.Id, error) {
	if id, ok, eof := isa.cacheLookup(); ok {
		isa.cacheOffset++
		return id, nil
	} else if eof {
		return 0, iterator.Wrap(iterator.ErrNoMoreData, "isa exhausted")
	}
	for {
		if isa.fanin == nil {
			sid, err := isa.source.Next(b)
			if iterator.Is(err, iterator.ErrNoMoreData) {
				isa.cache.MarkEOF()
				return 0, iterator.Wrap(iterator.ErrNoMoreData, "isa exhausted")
			}
			if err != nil {
				return 0, err
			}
			isa.curSrcID = sid
			isa.hasCurSrc = true
			cands, err := isa.candidatesFor(sid)
			if err != nil {
				return 0, err
			}
			isa.fanin = cands
		}
		t, err := isa.fanin.Next(b)
		if iterator.Is(err, iterator.ErrNoMoreData) {
			isa.fanin = nil
			continue
		}
		if err != nil {
			return 0, err // resume re-enters with fanin still set
		}
		if !isa.set.InRange(t) {
			continue
		}
		added, err := isa.cache.Add(isa.cacheOffset, t)
		if err != nil {
			return 0, iterator.Wrap(iterator.ErrInternal, "isa cache append")
		}
		if !added {
			continue // already emitted by an earlier source id
		}
		isa.cacheOffset++
		return t, nil
	}
}

func (isa *Isa) cacheLookup() (primitive.Id, bool, bool) {
	if id, ok := isa.cache.OffsetToID(isa.cacheOffset); ok {
		return id, true, false
	}
	return 0, false, isa.cache.EOF()
}

// nextIntersect implements strategy A from spec.md §4.5 ("next on fan-in,
// check on S"): a candidate t is fresh iff no id in fan-in(L,t) restricted
// to ids < src is also accepted by S. Strategies B and AB (cost-switched
// alternatives) are elided as a documented simplification — A is always
// correct, only sometimes not the cheapest, and the cost model to choose
// among the three is not pinned down by a concrete formula in the source.
func (isa *Isa) nextIntersect(b *budget.Budget) (primitive.Id, error) {
	for {
		if isa.fanin == nil {
			sid, err := isa.source.Next(b)
			if iterator.Is(err, iterator.ErrNoMoreData) {
				return 0, iterator.Wrap(iterator.ErrNoMoreData, "isa exhausted")
			}
			if err != nil {
				return 0, err
			}
			isa.curSrcID = sid
			isa.hasCurSrc = true
			cands, err := isa.candidatesFor(sid)
			if err != nil {
				return 0, err
			}
			isa.fanin = cands
		}
		t, err := isa.fanin.Next(b)
		if iterator.Is(err, iterator.ErrNoMoreData) {
			isa.fanin = nil
			continue
		}
		if err != nil {
			return 0, err
		}
		if !isa.set.InRange(t) {
			continue
		}
		fresh, err := isa.isFreshBefore(t, isa.curSrcID, b)
		if err != nil {
			return 0, err
		}
		if !fresh {
			continue
		}
		isa.lastEmitted = t
		isa.hasLastEmitted = true
		return t, nil
	}
}

// isFreshBefore reports whether t has never been a candidate of a source id
// strictly earlier than src.
func (isa *Isa) isFreshBefore(t, src primitive.Id, b *budget.Budget) (bool, error) {
	priorSources := isa.store.LinkageIterator(isa.slot, isa.guidOfTarget(t), isa.set.Low, src, isa.set.Dir == iterator.Forward)
	if priorSources == nil {
		return true, nil
	}
	checkSrc := isa.source.Clone()
	for {
		x, err := priorSources.Next(b)
		if iterator.Is(err, iterator.ErrNoMoreData) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		yes, err := checkSrc.Check(x, b)
		if err != nil {
			return false, err
		}
		if yes {
			return false, nil
		}
	}
}

func (isa *Isa) guidOfTarget(t primitive.Id) primitive.Guid {
	g, _ := isa.store.GuidFromId(t)
	return g
}

func (isa *Isa) Find(idIn primitive.Id, b *budget.Budget) (primitive.Id, error) {
	if isa.materialized != nil {
		return isa.materialized.Find(idIn, b)
	}
	for {
		id, err := isa.Next(b)
		if err != nil {
			return 0, err
		}
		if isa.set.Dir == iterator.Forward && id >= idIn {
			return id, nil
		}
		if isa.set.Dir == iterator.Backward && id <= idIn {
			return id, nil
		}
	}
}

// Check implements ISA's check (spec.md §4.5 "Check"): builds the fan-in of
// c along the linkage slot and tests whether any fan-in id is produced by
// S, memoising the answer in a request-scoped cache.
func (isa *Isa) Check(c primitive.Id, b *budget.Budget) (bool, error) {
	if isa.materialized != nil {
		return isa.materialized.Check(c, b)
	}
	if !isa.set.InRange(c) {
		return false, nil
	}
	if cached, ok := isa.checkCache[c]; ok {
		return cached, nil
	}
	fanin := isa.store.LinkageIterator(isa.slot, isa.guidOfTarget(c), 0, primitive.Max, true)
	checkSrc := isa.source.Clone()
	for {
		x, err := fanin.Next(b)
		if iterator.Is(err, iterator.ErrNoMoreData) {
			isa.checkCache[c] = false
			return false, nil
		}
		if err != nil {
			return false, err
		}
		yes, err := checkSrc.Check(x, b)
		if err != nil {
			return false, err
		}
		if yes {
			isa.checkCache[c] = true
			return true, nil
		}
	}
}

func (isa *Isa) Reset() {
	isa.source.Reset()
	isa.cacheOffset = 0
	isa.fanin = nil
	isa.hasCurSrc = false
	isa.hasLastEmitted = false
	isa.checkCache = make(map[primitive.Id]bool)
	if isa.materialized != nil {
		isa.materialized.Reset()
	}
}

func (isa *Isa) Clone() iterator.Iterator {
	isa.original.Ref()
	var materialized *Fixed
	if isa.materialized != nil {
		materialized = isa.materialized.Clone().(*Fixed)
	}
	return &Isa{
		set:          isa.set,
		source:       isa.source.Clone(),
		slot:         isa.slot,
		store:        isa.store,
		linksTo:      isa.linksTo,
		method:       isa.method,
		methodChosen: isa.methodChosen,
		materialized: materialized,
		cache:        isa.cache, // shared with original
		primSummary:  isa.primSummary,
		checkCache:   make(map[primitive.Id]bool),
		original:     isa.original,
		registrar:    isa.registrar,
		resCache:     isa.resCache,
		serialCap:    isa.serialCap,
	}
}

func (isa *Isa) Kind() string {
	if isa.linksTo {
		return "linksto"
	}
	return "isa"
}

// PrimitiveSummary records S's summary, enabling VIP-based fan-in higher up
// the tree (spec.md §4.5 point 6).
func (isa *Isa) PrimitiveSummary() iterator.PrimitiveSummary { return isa.primSummary }

func (isa *Isa) RangeEstimate() iterator.RangeEstimate {
	st := isa.Stats()
	return iterator.RangeEstimate{Low: isa.set.Low, High: isa.set.High, N: st.N, Exact: false}
}

func (isa *Isa) Beyond(id primitive.Id) bool {
	if isa.materialized != nil {
		return isa.materialized.Beyond(id)
	}
	if isa.hasLastEmitted {
		if isa.set.Dir == iterator.Forward {
			return isa.lastEmitted > id
		}
		return isa.lastEmitted < id
	}
	return false
}

func (isa *Isa) masqueradeRecipe() string {
	return "isa-verified:" + isa.original.Stamp()
}

// Freeze serialises bounds, direction, linkage, S's frozen SET, the chosen
// method, and — for STORABLE — the cache handle by name plus offset; for
// INTERSECT, the last emitted id as a resume point (spec.md §4.5
// "Freeze/thaw"). If the cache has grown past its serialisability cap, the
// cache handle is omitted and thaw must fall back to resume_id replay. Once
// the cheap-materialise thresholds are hit, isa.materialized (carrying the
// isa-verified masquerade) is the iterator actually driving Next/Find/Check,
// so it is also the one frozen.
func (isa *Isa) Freeze(flags iterator.FreezeFlags) (string, error) {
	if isa.materialized != nil {
		return isa.materialized.Freeze(flags)
	}
	var sb strings.Builder
	if flags&iterator.FreezeSet != 0 {
		dir := ""
		if isa.set.Dir == iterator.Backward {
			dir = "~"
		}
		sb.WriteString(isa.Kind())
		sb.WriteString(":")
		sb.WriteString(dir)
		sb.WriteString(strconv.FormatUint(uint64(isa.set.Low), 10))
		sb.WriteString("-")
		sb.WriteString(strconv.FormatUint(uint64(isa.set.High), 10))
		sb.WriteString(":")
		sb.WriteString("[slot:" + isa.slot.String() + "]")
		sb.WriteString("[method:" + isa.method.String() + "]")
		if isa.method == Storable && isa.cache != nil && !isa.cache.ExceedsSerialCap() {
			sb.WriteString("[cache:" + isa.original.Stamp() + "]")
		}
		body, err := isa.source.Freeze(iterator.FreezeSet)
		if err != nil {
			return "", err
		}
		sb.WriteString("(")
		sb.WriteString(body)
		sb.WriteString(")")
	}
	if flags&iterator.FreezePosition != 0 {
		sb.WriteString("/")
		if isa.method == Storable {
			sb.WriteString(strconv.Itoa(isa.cacheOffset))
		} else if isa.hasLastEmitted {
			sb.WriteString("resume=" + strconv.FormatUint(uint64(isa.lastEmitted), 10))
		}
	}
	return sb.String(), nil
}
