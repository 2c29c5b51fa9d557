package oplog

// Op is the canonical operation name of an oplog record.
type Op string

const (
	OpFind          Op = "Find"
	OpUpdate        Op = "Update"
	OpCount         Op = "Count"
	OpGetMore       Op = "GetMore"
	OpInsert        Op = "Insert"
	OpDelete        Op = "Delete"
	OpAggregate     Op = "Aggregate"
	OpFindAndModify Op = "FindAndModify"
)

// verbTable maps MongoDB command verbs to canonical ops. Verbs missing here
// are not harvested.
var verbTable = map[string]Op{
	"find":          OpFind,
	"update":        OpUpdate,
	"count":         OpCount,
	"getMore":       OpGetMore,
	"insert":        OpInsert,
	"delete":        OpDelete,
	"aggregate":     OpAggregate,
	"findAndModify": OpFindAndModify,
}

// LookupOp returns the canonical op for a raw command verb.
func LookupOp(verb string) (Op, bool) {
	op, ok := verbTable[verb]
	return op, ok
}

// AllOps lists every canonical op in verb table order.
func AllOps() []Op {
	return []Op{OpFind, OpUpdate, OpCount, OpGetMore, OpInsert, OpDelete, OpAggregate, OpFindAndModify}
}
