package registry

import (
	"strings"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
)

// generalPurposeTypes is the closed set of canonical column types a
// dataset may declare. DECIMAL is accepted without precision or scale.
var generalPurposeTypes = map[string]bool{
	"BIGINT":                   true,
	"BIT":                      true,
	"BLOB":                     true,
	"BOOLEAN":                  true,
	"DATE":                     true,
	"DECIMAL":                  true,
	"DOUBLE":                   true,
	"HUGEINT":                  true,
	"INTEGER":                  true,
	"INTERVAL":                 true,
	"REAL":                     true,
	"SMALLINT":                 true,
	"TIME":                     true,
	"TIMESTAMP WITH TIME ZONE": true,
	"TIMESTAMP":                true,
	"TINYINT":                  true,
	"UBIGINT":                  true,
	"UINTEGER":                 true,
	"USMALLINT":                true,
	"UTINYINT":                 true,
	"UUID":                     true,
	"VARCHAR":                  true,
}

// compositeTypes are recognized but rejected for dataset columns.
var compositeTypes = map[string]bool{
	"ARRAY": true, "LIST": true, "MAP": true, "STRUCT": true, "UNION": true,
}

// typeAliases maps accepted alias spellings to their canonical type.
var typeAliases = map[string]string{
	"INT8":       "BIGINT",
	"LONG":       "BIGINT",
	"BITSTRING":  "BIT",
	"BYTEA":      "BLOB",
	"BINARY":     "BLOB",
	"VARBINARY":  "BLOB",
	"BOOL":       "BOOLEAN",
	"LOGICAL":    "BOOLEAN",
	"NUMERIC":    "DECIMAL",
	"FLOAT8":     "DOUBLE",
	"INT4":       "INTEGER",
	"INT":        "INTEGER",
	"SIGNED":     "INTEGER",
	"FLOAT4":     "REAL",
	"FLOAT":      "REAL",
	"INT2":       "SMALLINT",
	"SHORT":      "SMALLINT",
	"TIMESTAMPZ": "TIMESTAMP WITH TIME ZONE",
	"DATETIME":   "TIMESTAMP",
	"INT1":       "TINYINT",
	"CHAR":       "VARCHAR",
	"BPCHAR":     "VARCHAR",
	"TEXT":       "VARCHAR",
	"STRING":     "VARCHAR",
}

// CanonicalType normalizes a column type spelling to its canonical
// form. Composite types and unrecognized spellings are rejected.
func CanonicalType(colType string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(colType))
	switch {
	case generalPurposeTypes[upper]:
		return upper, nil
	case compositeTypes[upper]:
		return "", geoerr.New(geoerr.KindInvalidColumnType,
			"column type is composite, not general purpose: %s", colType)
	default:
		if canon, ok := typeAliases[upper]; ok {
			return canon, nil
		}
		return "", geoerr.New(geoerr.KindInvalidColumnType,
			"unrecognized type: %s", colType)
	}
}
