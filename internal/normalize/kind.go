package normalize

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Kind is the closed set of value representations observed in legacy
// user documents. Every coercion switches over Kind rather than over
// arbitrary Go types.
type Kind int

const (
	KindMissing Kind = iota
	KindNull
	KindString
	KindInt32
	KindInt64
	KindDouble
	KindDateTime
	KindTimestamp
	KindBool
	KindDocument
	KindArray
	KindObjectID
	KindOther
)

var kindNames = [...]string{
	KindMissing:   "missing",
	KindNull:      "null",
	KindString:    "string",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindDouble:    "double",
	KindDateTime:  "datetime",
	KindTimestamp: "timestamp",
	KindBool:      "bool",
	KindDocument:  "document",
	KindArray:     "array",
	KindObjectID:  "objectId",
	KindOther:     "other",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// KindOf classifies a value decoded from a bson.D.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil, bson.Null, bson.Undefined:
		return KindNull
	case string:
		return KindString
	case int32:
		return KindInt32
	case int64, int:
		return KindInt64
	case float64:
		return KindDouble
	case bson.DateTime:
		return KindDateTime
	case bson.Timestamp:
		return KindTimestamp
	case bool:
		return KindBool
	case bson.D:
		return KindDocument
	case bson.A:
		return KindArray
	case bson.ObjectID:
		return KindObjectID
	default:
		return KindOther
	}
}

// fields is a keyed view over a legacy document. Missing keys report
// KindMissing; duplicate keys keep the first occurrence.
type fields map[string]any

func fieldsOf(doc bson.D) fields {
	f := make(fields, len(doc))
	for _, e := range doc {
		if _, dup := f[e.Key]; !dup {
			f[e.Key] = e.Value
		}
	}
	return f
}

func (f fields) get(key string) (any, Kind) {
	v, ok := f[key]
	if !ok {
		return nil, KindMissing
	}
	return v, KindOf(v)
}
