package cql

// Operator is a WHERE/IF comparison operator. Grounded on
// query-creator/src/clauses/condition.rs's Operator enum (Equal, Lesser,
// Greater, ...). The parser accepts all five (`<=` and `>=` as `<`/`>`
// followed by `=`), and the storage engine's evaluateCondition handles each.
type Operator uint8

const (
	OpEq Operator = iota
	OpLt
	OpGt
	OpLte
	OpGte
)

func (o Operator) String() string {
	switch o {
	case OpEq:
		return "="
	case OpLt:
		return "<"
	case OpGt:
		return ">"
	case OpLte:
		return "<="
	case OpGte:
		return ">="
	default:
		return "?"
	}
}

type LogicalOperator uint8

const (
	LogicalAnd LogicalOperator = iota
	LogicalOr
)

// Condition is a boolean expression tree over column comparisons, the
// shared shape used by WHERE and IF clauses alike.
type Condition struct {
	// Simple condition fields; Left/Right/Logical are nil/zero when this is
	// a leaf.
	Column   string
	Operator Operator
	Value    string

	Logical LogicalOperator
	Left    *Condition
	Right   *Condition
}

func (c *Condition) IsLeaf() bool { return c.Left == nil && c.Right == nil }

// Simple constructs a leaf condition.
func Simple(column string, op Operator, value string) *Condition {
	return &Condition{Column: column, Operator: op, Value: value}
}

// And/Or combine two conditions.
func And(left, right *Condition) *Condition {
	return &Condition{Logical: LogicalAnd, Left: left, Right: right}
}

func Or(left, right *Condition) *Condition {
	return &Condition{Logical: LogicalOr, Left: left, Right: right}
}

// Flatten walks a purely-AND tree (the only shape the WHERE grammar allows
// past partition-key equality) into its leaves, in left-to-right
// order. It returns ok=false if an OR is found anywhere in the tree.
func (c *Condition) Flatten() (leaves []*Condition, ok bool) {
	if c == nil {
		return nil, true
	}
	if c.IsLeaf() {
		return []*Condition{c}, true
	}
	if c.Logical == LogicalOr {
		return nil, false
	}
	left, lok := c.Left.Flatten()
	if !lok {
		return nil, false
	}
	right, rok := c.Right.Flatten()
	if !rok {
		return nil, false
	}
	return append(left, right...), true
}
