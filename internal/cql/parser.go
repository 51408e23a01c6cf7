package cql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rusticdb/rusticdb/internal/rerrors"
	"github.com/rusticdb/rusticdb/internal/schema"
)

// Parse tokenizes and parses a single CQL statement into a typed Query. It
// is a pure function of s: the same string always yields the same Query,
// except where the statement contains a uuid() call in a value position
// (an INSERT's VALUES list, an UPDATE's SET values, or a condition's
// value), which expands to a freshly generated v4 UUID at parse time.
func Parse(s string) (*Query, error) {
	toks, err := Tokenize(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";")))
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, rerrors.New(rerrors.Syntax, "empty query")
	}
	p := &parser{toks: toks}
	head := strings.ToUpper(p.peekWord())

	switch head {
	case "SELECT":
		return p.parseSelect()
	case "INSERT":
		return p.parseInsert()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	case "CREATE":
		return p.parseCreate()
	case "DROP":
		return p.parseDrop()
	case "ALTER":
		return p.parseAlter()
	case "USE":
		return p.parseUse()
	default:
		return nil, rerrors.New(rerrors.Syntax, fmt.Sprintf("unrecognized statement %q", head))
	}
}

type parser struct {
	toks []Token
	pos  int
}

func (p *parser) peek() (Token, bool) {
	if p.pos >= len(p.toks) {
		return Token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) peekWord() string {
	t, ok := p.peek()
	if !ok || t.Kind != TokWord {
		return ""
	}
	return t.Text
}

func (p *parser) next() (Token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) expectWord(word string) error {
	t, ok := p.next()
	if !ok || t.Kind != TokWord || !strings.EqualFold(t.Text, word) {
		return rerrors.New(rerrors.Syntax, fmt.Sprintf("expected %q", word))
	}
	return nil
}

func (p *parser) expectSymbol(sym string) error {
	t, ok := p.next()
	if !ok || t.Kind != TokSymbol || t.Text != sym {
		return rerrors.New(rerrors.Syntax, fmt.Sprintf("expected %q", sym))
	}
	return nil
}

// tryWord consumes and reports whether the current token is word (case
// insensitive), without erroring if it doesn't match.
func (p *parser) tryWord(word string) bool {
	t, ok := p.peek()
	if ok && t.Kind == TokWord && strings.EqualFold(t.Text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) trySymbol(sym string) bool {
	t, ok := p.peek()
	if ok && t.Kind == TokSymbol && t.Text == sym {
		p.pos++
		return true
	}
	return false
}

func (p *parser) anyWord() (string, error) {
	t, ok := p.next()
	if !ok || t.Kind != TokWord {
		return "", rerrors.New(rerrors.Syntax, "expected an identifier")
	}
	return t.Text, nil
}

func (p *parser) atEnd() bool { return p.pos >= len(p.toks) }

// splitQualified splits a possibly "keyspace.table" dotted identifier.
func splitQualified(name string) (keyspace, rest string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// ---- SELECT ----

func (p *parser) parseSelect() (*Query, error) {
	if err := p.expectWord("SELECT"); err != nil {
		return nil, err
	}
	var columns []string
	if p.trySymbol("*") {
		columns = nil
	} else {
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		columns = cols
	}
	if err := p.expectWord("FROM"); err != nil {
		return nil, err
	}
	qualified, err := p.anyWord()
	if err != nil {
		return nil, err
	}
	ks, table := splitQualified(qualified)

	var where *Condition
	if p.tryWord("WHERE") {
		where, err = p.parseCondition()
		if err != nil {
			return nil, err
		}
	}

	var orderBy *OrderBy
	if p.tryWord("ORDER") {
		if err := p.expectWord("BY"); err != nil {
			return nil, err
		}
		col, err := p.anyWord()
		if err != nil {
			return nil, err
		}
		dir := OrderAsc
		if p.tryWord("DESC") {
			dir = OrderDesc
		} else {
			p.tryWord("ASC")
		}
		orderBy = &OrderBy{Column: col, Direction: dir}
	}

	if !p.atEnd() {
		return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
	}

	return &Query{Kind: KindSelect, Select: &Select{
		Keyspace: ks, Table: table, Columns: columns, Where: where, OrderBy: orderBy,
	}}, nil
}

func (p *parser) parseIdentList() ([]string, error) {
	var out []string
	for {
		id, err := p.anyWord()
		if err != nil {
			return nil, err
		}
		out = append(out, id)
		if !p.trySymbol(",") {
			break
		}
	}
	return out, nil
}

// ---- INSERT ----

func (p *parser) parseInsert() (*Query, error) {
	if err := p.expectWord("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectWord("INTO"); err != nil {
		return nil, err
	}
	qualified, err := p.anyWord()
	if err != nil {
		return nil, err
	}
	ks, table := splitQualified(qualified)

	colsTok, ok := p.next()
	if !ok || colsTok.Kind != TokGroup {
		return nil, rerrors.New(rerrors.Syntax, "expected column list")
	}
	columns, err := splitGroupIdents(colsTok.Text)
	if err != nil {
		return nil, err
	}

	if err := p.expectWord("VALUES"); err != nil {
		return nil, err
	}
	valsTok, ok := p.next()
	if !ok || valsTok.Kind != TokGroup {
		return nil, rerrors.New(rerrors.Syntax, "expected values list")
	}
	values, err := splitGroupValues(valsTok.Text)
	if err != nil {
		return nil, err
	}
	if len(values) != len(columns) {
		return nil, rerrors.New(rerrors.Syntax, "column and value counts do not match")
	}

	ifNotExists := false
	if p.tryWord("IF") {
		if err := p.expectWord("NOT"); err != nil {
			return nil, err
		}
		if err := p.expectWord("EXISTS"); err != nil {
			return nil, err
		}
		ifNotExists = true
	}

	if !p.atEnd() {
		return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
	}

	return &Query{Kind: KindInsert, Insert: &Insert{
		Keyspace: ks, Table: table, Columns: columns, Values: values, IfNotExists: ifNotExists,
	}}, nil
}

// ---- UPDATE ----

func (p *parser) parseUpdate() (*Query, error) {
	if err := p.expectWord("UPDATE"); err != nil {
		return nil, err
	}
	qualified, err := p.anyWord()
	if err != nil {
		return nil, err
	}
	ks, table := splitQualified(qualified)

	if err := p.expectWord("SET"); err != nil {
		return nil, err
	}
	var set []Assignment
	for {
		col, err := p.anyWord()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		val, err := p.parseScalarValue()
		if err != nil {
			return nil, err
		}
		set = append(set, Assignment{Column: col, Value: val})
		if !p.trySymbol(",") {
			break
		}
	}

	if err := p.expectWord("WHERE"); err != nil {
		return nil, err
	}
	where, err := p.parseCondition()
	if err != nil {
		return nil, err
	}

	var ifCond *Condition
	if p.tryWord("IF") {
		ifCond, err = p.parseCondition()
		if err != nil {
			return nil, err
		}
	}

	if !p.atEnd() {
		return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
	}

	return &Query{Kind: KindUpdate, Update: &Update{
		Keyspace: ks, Table: table, Set: set, Where: where, If: ifCond,
	}}, nil
}

// ---- DELETE ----

func (p *parser) parseDelete() (*Query, error) {
	if err := p.expectWord("DELETE"); err != nil {
		return nil, err
	}
	var columns []string
	if p.peekWord() != "FROM" {
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		columns = cols
	}
	if err := p.expectWord("FROM"); err != nil {
		return nil, err
	}
	qualified, err := p.anyWord()
	if err != nil {
		return nil, err
	}
	ks, table := splitQualified(qualified)

	if err := p.expectWord("WHERE"); err != nil {
		return nil, err
	}
	where, err := p.parseCondition()
	if err != nil {
		return nil, err
	}

	ifExists := false
	var ifCond *Condition
	if p.tryWord("IF") {
		if p.tryWord("EXISTS") {
			ifExists = true
		} else {
			ifCond, err = p.parseCondition()
			if err != nil {
				return nil, err
			}
		}
	}

	if !p.atEnd() {
		return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
	}

	return &Query{Kind: KindDelete, Delete: &Delete{
		Keyspace: ks, Table: table, Columns: columns, Where: where, If: ifCond, IfExists: ifExists,
	}}, nil
}

// ---- USE ----

func (p *parser) parseUse() (*Query, error) {
	if err := p.expectWord("USE"); err != nil {
		return nil, err
	}
	name, err := p.anyWord()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
	}
	return &Query{Kind: KindUse, Use: &Use{Keyspace: name}}, nil
}

// ---- CREATE ----

func (p *parser) parseCreate() (*Query, error) {
	if err := p.expectWord("CREATE"); err != nil {
		return nil, err
	}
	switch {
	case p.tryWord("TABLE"):
		return p.parseCreateTable()
	case p.tryWord("KEYSPACE"):
		return p.parseCreateKeyspace()
	default:
		return nil, rerrors.New(rerrors.Syntax, "expected TABLE or KEYSPACE after CREATE")
	}
}

func (p *parser) parseIfNotExists() bool {
	if p.tryWord("IF") {
		p.tryWord("NOT")
		p.tryWord("EXISTS")
		return true
	}
	return false
}

func (p *parser) parseIfExists() bool {
	if p.tryWord("IF") {
		p.tryWord("EXISTS")
		return true
	}
	return false
}

func (p *parser) parseCreateTable() (*Query, error) {
	ifNotExists := p.parseIfNotExists()
	qualified, err := p.anyWord()
	if err != nil {
		return nil, err
	}
	ks, table := splitQualified(qualified)

	defTok, ok := p.next()
	if !ok || defTok.Kind != TokGroup {
		return nil, rerrors.New(rerrors.Syntax, "expected column definition list")
	}
	columns, clusteringOrderOverride, err := parseTableDef(defTok.Text)
	if err != nil {
		return nil, err
	}

	if p.tryWord("WITH") {
		if err := p.expectWord("CLUSTERING"); err != nil {
			return nil, err
		}
		if err := p.expectWord("ORDER"); err != nil {
			return nil, err
		}
		if err := p.expectWord("BY"); err != nil {
			return nil, err
		}
		orderTok, ok := p.next()
		if !ok || orderTok.Kind != TokGroup {
			return nil, rerrors.New(rerrors.Syntax, "expected clustering order list")
		}
		overrides, err := parseClusteringOrderList(orderTok.Text)
		if err != nil {
			return nil, err
		}
		for name, order := range overrides {
			clusteringOrderOverride[name] = order
		}
	}

	for i := range columns {
		if o, ok := clusteringOrderOverride[columns[i].Name]; ok {
			columns[i].ClusteringOrder = o
		}
	}

	if !p.atEnd() {
		return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
	}

	return &Query{Kind: KindCreateTable, CreateTable: &CreateTable{
		Keyspace: ks, Table: table, IfNotExists: ifNotExists, Columns: columns,
	}}, nil
}

func (p *parser) parseCreateKeyspace() (*Query, error) {
	ifNotExists := p.parseIfNotExists()
	name, err := p.anyWord()
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("WITH"); err != nil {
		return nil, err
	}
	if err := p.expectWord("replication"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("="); err != nil {
		return nil, err
	}
	groupTok, ok := p.next()
	if !ok || groupTok.Kind != TokGroup {
		return nil, rerrors.New(rerrors.Syntax, "expected replication map")
	}
	rf, err := parseReplicationFactor(groupTok.Text)
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
	}
	return &Query{Kind: KindCreateKeyspace, CreateKeyspace: &CreateKeyspace{
		Name: name, IfNotExists: ifNotExists, ReplicationFactor: rf,
	}}, nil
}

// ---- DROP ----

func (p *parser) parseDrop() (*Query, error) {
	if err := p.expectWord("DROP"); err != nil {
		return nil, err
	}
	switch {
	case p.tryWord("TABLE"):
		ifExists := p.parseIfExists()
		qualified, err := p.anyWord()
		if err != nil {
			return nil, err
		}
		ks, table := splitQualified(qualified)
		if !p.atEnd() {
			return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
		}
		return &Query{Kind: KindDropTable, DropTable: &DropTable{Keyspace: ks, Table: table, IfExists: ifExists}}, nil
	case p.tryWord("KEYSPACE"):
		ifExists := p.parseIfExists()
		name, err := p.anyWord()
		if err != nil {
			return nil, err
		}
		if !p.atEnd() {
			return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
		}
		return &Query{Kind: KindDropKeyspace, DropKeyspace: &DropKeyspace{Name: name, IfExists: ifExists}}, nil
	default:
		return nil, rerrors.New(rerrors.Syntax, "expected TABLE or KEYSPACE after DROP")
	}
}

// ---- ALTER ----

func (p *parser) parseAlter() (*Query, error) {
	if err := p.expectWord("ALTER"); err != nil {
		return nil, err
	}
	switch {
	case p.tryWord("TABLE"):
		return p.parseAlterTable()
	case p.tryWord("KEYSPACE"):
		return p.parseAlterKeyspace()
	default:
		return nil, rerrors.New(rerrors.Syntax, "expected TABLE or KEYSPACE after ALTER")
	}
}

func (p *parser) parseAlterTable() (*Query, error) {
	qualified, err := p.anyWord()
	if err != nil {
		return nil, err
	}
	ks, table := splitQualified(qualified)

	switch {
	case p.tryWord("ADD"):
		name, err := p.anyWord()
		if err != nil {
			return nil, err
		}
		typeName, err := p.anyWord()
		if err != nil {
			return nil, err
		}
		dt, err := schema.ParseDataType(typeName)
		if err != nil {
			return nil, err
		}
		notNull := false
		if p.tryWord("NOT") {
			if err := p.expectWord("NULL"); err != nil {
				return nil, err
			}
			notNull = true
		}
		if !p.atEnd() {
			return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
		}
		return &Query{Kind: KindAlterTable, AlterTable: &AlterTable{
			Keyspace: ks, Table: table, Op: AlterAddColumn,
			Column: schema.Column{Name: name, Type: dt, NotNull: notNull},
		}}, nil
	case p.tryWord("DROP"):
		name, err := p.anyWord()
		if err != nil {
			return nil, err
		}
		if !p.atEnd() {
			return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
		}
		return &Query{Kind: KindAlterTable, AlterTable: &AlterTable{
			Keyspace: ks, Table: table, Op: AlterDropColumn, DropName: name,
		}}, nil
	case p.tryWord("RENAME"):
		oldName, err := p.anyWord()
		if err != nil {
			return nil, err
		}
		if err := p.expectWord("TO"); err != nil {
			return nil, err
		}
		newName, err := p.anyWord()
		if err != nil {
			return nil, err
		}
		if !p.atEnd() {
			return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
		}
		return &Query{Kind: KindAlterTable, AlterTable: &AlterTable{
			Keyspace: ks, Table: table, Op: AlterRenameColumn, OldName: oldName, NewName: newName,
		}}, nil
	case p.tryWord("MODIFY"):
		return nil, rerrors.New(rerrors.Syntax, "ALTER TABLE MODIFY is not supported")
	default:
		return nil, rerrors.New(rerrors.Syntax, "expected ADD, DROP or RENAME after ALTER TABLE")
	}
}

func (p *parser) parseAlterKeyspace() (*Query, error) {
	name, err := p.anyWord()
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("WITH"); err != nil {
		return nil, err
	}
	if err := p.expectWord("replication"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("="); err != nil {
		return nil, err
	}
	groupTok, ok := p.next()
	if !ok || groupTok.Kind != TokGroup {
		return nil, rerrors.New(rerrors.Syntax, "expected replication map")
	}
	rf, err := parseReplicationFactor(groupTok.Text)
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, rerrors.New(rerrors.Syntax, "unexpected trailing tokens")
	}
	return &Query{Kind: KindAlterKeyspace, AlterKeyspace: &AlterKeyspace{Name: name, ReplicationFactor: rf}}, nil
}

// ---- shared value/condition parsing ----

// parseScalarValue consumes one value token: a number, a quoted string, a
// bareword (e.g. true/false), or a uuid() call expanded immediately.
func (p *parser) parseScalarValue() (string, error) {
	t, ok := p.next()
	if !ok {
		return "", rerrors.New(rerrors.Syntax, "expected a value")
	}
	switch t.Kind {
	case TokNumber, TokString:
		return t.Text, nil
	case TokWord:
		if strings.EqualFold(t.Text, "uuid") {
			if g, ok := p.peek(); ok && g.Kind == TokGroup && g.Text == "()" {
				p.pos++
				return uuid.NewString(), nil
			}
		}
		return t.Text, nil
	default:
		return "", rerrors.New(rerrors.Syntax, "expected a value")
	}
}

func (p *parser) parseCondition() (*Condition, error) {
	left, err := p.parseSimpleCondition()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.tryWord("AND"):
			right, err := p.parseSimpleCondition()
			if err != nil {
				return nil, err
			}
			left = And(left, right)
		case p.tryWord("OR"):
			right, err := p.parseSimpleCondition()
			if err != nil {
				return nil, err
			}
			left = Or(left, right)
		default:
			return left, nil
		}
	}
}

func (p *parser) parseSimpleCondition() (*Condition, error) {
	col, err := p.anyWord()
	if err != nil {
		return nil, err
	}
	t, ok := p.next()
	if !ok || t.Kind != TokSymbol {
		return nil, rerrors.New(rerrors.Syntax, "expected a comparison operator")
	}
	var op Operator
	switch t.Text {
	case "=":
		op = OpEq
	case "<":
		if p.trySymbol("=") {
			op = OpLte
		} else {
			op = OpLt
		}
	case ">":
		if p.trySymbol("=") {
			op = OpGte
		} else {
			op = OpGt
		}
	default:
		return nil, rerrors.New(rerrors.Syntax, fmt.Sprintf("unexpected operator %q", t.Text))
	}
	val, err := p.parseScalarValue()
	if err != nil {
		return nil, err
	}
	return Simple(col, op, val), nil
}

// ---- group-content helpers (operate on the raw text inside a TokGroup) ----

func splitGroupIdents(group string) ([]string, error) {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(group, "("), ")"))
	if inner == "" {
		return nil, nil
	}
	toks, err := Tokenize(inner)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseIdentList()
}

func splitGroupValues(group string) ([]string, error) {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(group, "("), ")"))
	if inner == "" {
		return nil, nil
	}
	toks, err := Tokenize(inner)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var out []string
	for {
		v, err := p.parseScalarValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if !p.trySymbol(",") {
			break
		}
	}
	return out, nil
}

// splitTopLevel splits s on commas that are not nested inside ( ) or { }.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	inString := false
	r := []rune(s)
	for i, c := range r {
		switch {
		case c == '\'':
			inString = !inString
		case inString:
			// skip
		case c == '(' || c == '{':
			depth++
		case c == ')' || c == '}':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, string(r[start:i]))
			start = i + 1
		}
	}
	parts = append(parts, string(r[start:]))
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseTableDef parses the column-definition list inside CREATE TABLE's
// outer parentheses, including the trailing PRIMARY KEY clause, resolving
// partition-key and clustering-column flags. The clustering order defaults
// to ASC; a caller-supplied WITH CLUSTERING ORDER BY map overrides it.
func parseTableDef(group string) ([]schema.Column, map[string]schema.ClusteringOrder, error) {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(group, "("), ")"))
	parts := splitTopLevel(inner)

	var columns []schema.Column
	colIndex := make(map[string]int)
	var partitionKeys []string
	var clusteringKeys []string
	sawPrimaryKey := false

	for _, part := range parts {
		upper := strings.ToUpper(part)
		if strings.HasPrefix(upper, "PRIMARY KEY") {
			if sawPrimaryKey {
				return nil, nil, rerrors.New(rerrors.Syntax, "multiple PRIMARY KEY clauses")
			}
			sawPrimaryKey = true
			rest := strings.TrimSpace(part[len("PRIMARY KEY"):])
			rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
			pk, ck, err := parsePrimaryKeyBody(rest)
			if err != nil {
				return nil, nil, err
			}
			partitionKeys = pk
			clusteringKeys = ck
			continue
		}
		fields := strings.Fields(part)
		if len(fields) < 2 {
			return nil, nil, rerrors.New(rerrors.Syntax, fmt.Sprintf("invalid column definition %q", part))
		}
		name, typeName := fields[0], fields[1]
		dt, err := schema.ParseDataType(typeName)
		if err != nil {
			return nil, nil, err
		}
		notNull := len(fields) >= 4 && strings.EqualFold(fields[2], "NOT") && strings.EqualFold(fields[3], "NULL")
		colIndex[name] = len(columns)
		columns = append(columns, schema.Column{Name: name, Type: dt, NotNull: notNull})
	}

	if !sawPrimaryKey {
		return nil, nil, rerrors.New(rerrors.Syntax, "CREATE TABLE requires a PRIMARY KEY clause")
	}
	for _, k := range partitionKeys {
		idx, ok := colIndex[k]
		if !ok {
			return nil, nil, rerrors.New(rerrors.Syntax, fmt.Sprintf("PRIMARY KEY references unknown column %q", k))
		}
		columns[idx].IsPartitionKey = true
	}
	overrides := make(map[string]schema.ClusteringOrder)
	for _, k := range clusteringKeys {
		idx, ok := colIndex[k]
		if !ok {
			return nil, nil, rerrors.New(rerrors.Syntax, fmt.Sprintf("PRIMARY KEY references unknown column %q", k))
		}
		columns[idx].IsClusteringColumn = true
		columns[idx].ClusteringOrder = schema.Asc
		overrides[k] = schema.Asc
	}
	return columns, overrides, nil
}

// parsePrimaryKeyBody parses either "(p1,p2),c1,c2" or "p1,c1,c2" (a
// single-column partition key need not be parenthesized; without
// parentheses only the first name is the partition key, so "p1,p2" means
// partition key p1 and clustering column p2).
func parsePrimaryKeyBody(body string) (partitionKeys, clusteringKeys []string, err error) {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "(") {
		end := strings.IndexByte(body, ')')
		if end < 0 {
			return nil, nil, rerrors.New(rerrors.Syntax, "unbalanced PRIMARY KEY parentheses")
		}
		pkPart := body[1:end]
		partitionKeys = splitCommaTrim(pkPart)
		rest := strings.TrimSpace(body[end+1:])
		rest = strings.TrimPrefix(rest, ",")
		clusteringKeys = splitCommaTrim(rest)
		return partitionKeys, clusteringKeys, nil
	}
	fields := splitCommaTrim(body)
	if len(fields) == 0 {
		return nil, nil, rerrors.New(rerrors.Syntax, "empty PRIMARY KEY clause")
	}
	return fields[:1], fields[1:], nil
}

func splitCommaTrim(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseClusteringOrderList(group string) (map[string]schema.ClusteringOrder, error) {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(group, "("), ")"))
	out := make(map[string]schema.ClusteringOrder)
	for _, part := range splitCommaTrim(inner) {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		order := schema.Asc
		if len(fields) >= 2 && strings.EqualFold(fields[1], "DESC") {
			order = schema.Desc
		}
		out[fields[0]] = order
	}
	return out, nil
}

func parseReplicationFactor(group string) (int, error) {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(group, "{"), "}"))
	for _, part := range splitCommaTrim(inner) {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.Trim(strings.TrimSpace(kv[0]), "'\"")
		if !strings.EqualFold(key, "replication_factor") {
			continue
		}
		val := strings.Trim(strings.TrimSpace(kv[1]), "'\"")
		rf, err := strconv.Atoi(val)
		if err != nil {
			return 0, rerrors.New(rerrors.Syntax, "invalid replication_factor")
		}
		return rf, nil
	}
	return 0, rerrors.New(rerrors.Syntax, "replication map missing replication_factor")
}
