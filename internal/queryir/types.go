package queryir

// Statement is a sealed interface over the statement kinds.
type Statement interface {
	statementNode()
}

// Predicate is a sealed interface over filter conditions.
type Predicate interface {
	predicateNode()
}

// Select reads columns from a single table.
//
//	SELECT <columns> FROM <from> WHERE <filter> [LIMIT <limit>]
//
// Limit 0 means no limit. The reconciler uses Limit 2 for natural-key
// lookups: one row is a match, two rows prove the key is ambiguous.
type Select struct {
	From    string
	Columns []string
	Filter  Predicate
	Limit   int
}

func (Select) statementNode() {}

// Assignment sets one column in an Update.
type Assignment struct {
	Column string
	Value  any
}

// Update overwrites columns of the rows matched by Filter.
//
//	UPDATE <table> SET <set> WHERE <filter>
//
// Filter is required; an unfiltered update is rejected by Validate.
type Update struct {
	Table  string
	Set    []Assignment
	Filter Predicate
}

func (Update) statementNode() {}

// Insert creates one row.
//
//	INSERT INTO <table> (<columns>) VALUES (<values>) [RETURNING <returning>]
//
// Returning names a single column to read back (the primary key).
type Insert struct {
	Table     string
	Columns   []string
	Values    []any
	Returning string
}

func (Insert) statementNode() {}

// Equals matches rows whose column equals a value.
// A nil Value compiles to IS NULL.
type Equals struct {
	Column string
	Value  any
}

func (Equals) predicateNode() {}

// And matches rows satisfying every predicate.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// AllEqual builds an And of Equals, one per column/value pair, in order.
// A single pair returns a bare Equals.
func AllEqual(columns []string, values []any) Predicate {
	if len(columns) == 1 && len(values) == 1 {
		return Equals{Column: columns[0], Value: values[0]}
	}
	preds := make([]Predicate, 0, len(columns))
	for i := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		preds = append(preds, Equals{Column: columns[i], Value: v})
	}
	return And{Predicates: preds}
}
