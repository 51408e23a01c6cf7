// Package schema holds the keyspace/table/column catalog: the in-memory
// representation of the DDL surface (keyspaces, tables, columns, and their
// storage-engine-facing primary-key metadata).
//
// Grounded on query-creator/src/clauses/types/column.go (Rust: Column with
// name, data_type, is_partition_key, is_clustering_column, clustering_order,
// allows_null) and query-creator/src/clauses/table/create_table_cql.rs
// (add_column/remove_column/rename_column semantics).
package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rusticdb/rusticdb/internal/rerrors"
)

// DataType enumerates the supported column types.
type DataType uint8

const (
	Int DataType = iota
	Bigint
	Ascii // also used for VARCHAR/TEXT; all three share this stored representation
	Boolean
	Double
	Float
	Timestamp
	Uuid
)

var dataTypeNames = map[DataType]string{
	Int:       "INT",
	Bigint:    "BIGINT",
	Ascii:     "TEXT",
	Boolean:   "BOOLEAN",
	Double:    "DOUBLE",
	Float:     "FLOAT",
	Timestamp: "TIMESTAMP",
	Uuid:      "UUID",
}

func (d DataType) String() string {
	if s, ok := dataTypeNames[d]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseDataType maps a CQL type keyword onto a DataType. TEXT, VARCHAR and
// ASCII are all accepted spellings for the same stored representation.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToUpper(s) {
	case "INT":
		return Int, nil
	case "BIGINT":
		return Bigint, nil
	case "ASCII", "VARCHAR", "TEXT":
		return Ascii, nil
	case "BOOLEAN":
		return Boolean, nil
	case "DOUBLE":
		return Double, nil
	case "FLOAT":
		return Float, nil
	case "TIMESTAMP":
		return Timestamp, nil
	case "UUID":
		return Uuid, nil
	default:
		return 0, rerrors.New(rerrors.Syntax, fmt.Sprintf("unknown data type %q", s))
	}
}

// ClusteringOrder is the declared sort direction of a clustering column.
type ClusteringOrder uint8

const (
	Asc ClusteringOrder = iota
	Desc
)

func (o ClusteringOrder) String() string {
	if o == Desc {
		return "DESC"
	}
	return "ASC"
}

// Invert returns the opposite order; the storage engine's insert/update scan
// compares rows using the *inverted* declared order (section 4.2), so that a
// naive forward scan still produces a sorted file.
func (o ClusteringOrder) Invert() ClusteringOrder {
	if o == Desc {
		return Asc
	}
	return Desc
}

// Column is a single column definition within a Table.
type Column struct {
	Name               string
	Type               DataType
	NotNull            bool
	IsPartitionKey     bool
	IsClusteringColumn bool
	ClusteringOrder    ClusteringOrder // meaningful only when IsClusteringColumn
}

// Compare orders two string-encoded cell values of this column's type
// according to the natural order of the type (ASC sense); callers invert the
// result themselves when the declared clustering order is DESC.
func (c Column) Compare(a, b string) (int, error) {
	if a == b {
		return 0, nil
	}
	switch c.Type {
	case Int, Bigint:
		ai, aerr := strconv.ParseInt(a, 10, 64)
		bi, berr := strconv.ParseInt(b, 10, 64)
		if aerr != nil || berr != nil {
			return 0, rerrors.New(rerrors.Internal, fmt.Sprintf("invalid integer in column %q", c.Name))
		}
		switch {
		case ai < bi:
			return -1, nil
		case ai > bi:
			return 1, nil
		default:
			return 0, nil
		}
	case Double, Float:
		af, aerr := strconv.ParseFloat(a, 64)
		bf, berr := strconv.ParseFloat(b, 64)
		if aerr != nil || berr != nil {
			return 0, rerrors.New(rerrors.Internal, fmt.Sprintf("invalid float in column %q", c.Name))
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	case Timestamp:
		at, aerr := time.Parse(time.RFC3339Nano, a)
		bt, berr := time.Parse(time.RFC3339Nano, b)
		if aerr != nil || berr != nil {
			return 0, rerrors.New(rerrors.Internal, fmt.Sprintf("invalid timestamp in column %q", c.Name))
		}
		if at.Before(bt) {
			return -1, nil
		}
		if at.After(bt) {
			return 1, nil
		}
		return 0, nil
	default: // Ascii, Boolean, Uuid: lexical
		return strings.Compare(a, b), nil
	}
}
