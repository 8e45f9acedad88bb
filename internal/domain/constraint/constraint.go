// Package constraint is the planner's input data model (spec.md §3
// "Constraint (planner input)"): the parsed query shape the planner turns
// into an iterator tree.
package constraint

import (
	"github.com/go-playground/validator/v10"

	"github.com/graphd/queryengine/internal/domain/primitive"
)

// ChildRelation names how a child constraint's linkage relates to its
// parent (spec.md §3).
type ChildRelation int

const (
	// ChildPointsToParent: the child primitive's linkage slot points at the
	// parent — wrapped as an `isa` iterator (spec.md §4.7.iii).
	ChildPointsToParent ChildRelation = iota
	// ParentPointsToChild: the parent's linkage slot points at the child —
	// wrapped as a `linksto` iterator.
	ParentPointsToChild
)

// Comparator names a value-constraint operator.
type Comparator string

const (
	Eq  Comparator = "="
	Ne  Comparator = "!="
	Lt  Comparator = "<"
	Le  Comparator = "<="
	Gt  Comparator = ">"
	Ge  Comparator = ">="
	Has Comparator = "~="
)

// LinkageRange constrains one linkage slot to a known GUID, a set of
// candidate GUIDs, or leaves it unconstrained.
type LinkageRange struct {
	Slot       primitive.LinkageSlot `validate:"gte=0,lte=3"`
	FixedGuid  *primitive.Guid
	Candidates []primitive.Guid
}

// ValueConstraint restricts the primitive's value/name field.
type ValueConstraint struct {
	Comparator Comparator `validate:"required,oneof='=' '!=' '<' '<=' '>' '>=' '~='"`
	Operand    []byte     `validate:"required"`
}

// Child is a subconstraint joined to its parent via a named linkage slot.
type Child struct {
	Relation ChildRelation `validate:"gte=0,lte=1"`
	Slot     primitive.LinkageSlot `validate:"gte=0,lte=3"`
	Sub      *Constraint `validate:"required"`
}

// OrAlternative is one branch of the constraint's `or`-alternatives tree.
type OrAlternative struct {
	Branch *Constraint `validate:"required"`
}

// Constraint is one node of the planner's input tree (spec.md §3).
type Constraint struct {
	Low  primitive.Id
	High primitive.Id `validate:"gtefield=Low"`

	Forward bool
	SortKey string

	FixedGuids []primitive.Guid
	Linkages   []LinkageRange `validate:"dive"`
	Values     []ValueConstraint `validate:"dive"`
	Name       []byte

	Children []Child         `validate:"dive"`
	Or       []OrAlternative `validate:"dive"`

	// CursorPinned, when set, is a previously-thawed iterator's frozen SET
	// that the planner must re-bind to rather than build fresh (spec.md
	// §4.7.i "install any cursor-pinned iterator").
	CursorPinned string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct-tag invariants on c and its whole subtree before
// the planner touches it (spec.md §4.7 "Initialise" assumes a well-formed
// tree): bounds ordered, comparators well-formed, linkage slots in range,
// required pointers non-nil.
func (c *Constraint) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for i := range c.Children {
		if c.Children[i].Sub != nil {
			if err := c.Children[i].Sub.Validate(); err != nil {
				return err
			}
		}
	}
	for i := range c.Or {
		if c.Or[i].Branch != nil {
			if err := c.Or[i].Branch.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}
