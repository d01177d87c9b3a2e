package ol

import "github.com/kevinxiao27/reg-walker/cg"

type OpType string

const (
	Insert OpType = "ins"
	Delete OpType = "del"
)

// Op is a single list operation. Pos is expressed in the document state at
// the op's parent frontier.
type Op[T any] struct {
	Type    OpType
	Pos     int
	Content T // Only meaningful for Insert.
}

// OpLog pairs each local version with its operation: Ops[lv] is the op at lv.
// Identity, parents and ordering live in the owned causal graph.
type OpLog[T any] struct {
	Ops []Op[T]
	CG  *cg.CausalGraph
}
