package sandbox

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// BuiltinID interns every name the evaluator can resolve to a built-in
// callable. Interning onto small integers lets AllowList use a dense bitset
// instead of a map of bools for its O(1) membership test (SPEC_FULL.md
// domain-stack entry for bits-and-blooms/bitset).
type BuiltinID uint

const (
	BAdd BuiltinID = iota
	BSub
	BMul
	BDiv
	BMod
	BEq
	BNeq
	BLt
	BLte
	BGt
	BGte
	BAnd
	BOr
	BNot
	BIf
	BDef
	BFn
	BDo
	BVector
	BMap
	BSet
	BGet
	BAssoc
	BCount
	BFirst
	BRest
	BConj
	BRange
	BMapSeq
	BFilter
	BReduce
	BTake
	BSort
	BReverse
	BConcat
	BStrJoin
	BStrSplit
	BStrUpper
	BStrLower
	BStrContains
	BStrReplace
	BStrTrim
	BRegexMatch
	BRegexFind
	BDateParse
	BDateCompare
	BDateAddDays
	BUnion
	BIntersection
	BDifference
	BPrint
	BPrintln
	BNumCount
)

var builtinNames = map[BuiltinID]string{
	BAdd: "+", BSub: "-", BMul: "*", BDiv: "/", BMod: "mod",
	BEq: "=", BNeq: "!=", BLt: "<", BLte: "<=", BGt: ">", BGte: ">=",
	BAnd: "and", BOr: "or", BNot: "not",
	BIf: "if", BDef: "def", BFn: "fn", BDo: "do",
	BVector: "vector", BMap: "hash-map", BSet: "set",
	BGet: "get", BAssoc: "assoc", BCount: "count",
	BFirst: "first", BRest: "rest", BConj: "conj",
	BRange: "range", BMapSeq: "map", BFilter: "filter", BReduce: "reduce",
	BTake: "take", BSort: "sort", BReverse: "reverse", BConcat: "concat",
	BStrJoin: "str-join", BStrSplit: "str-split", BStrUpper: "str-upper",
	BStrLower: "str-lower", BStrContains: "str-contains?", BStrReplace: "str-replace",
	BStrTrim: "str-trim",
	BRegexMatch: "re-match?", BRegexFind: "re-find",
	BDateParse: "date-parse", BDateCompare: "date-compare", BDateAddDays: "date-add-days",
	BUnion: "union", BIntersection: "intersection", BDifference: "difference",
	BPrint: "print", BPrintln: "println",
}

var builtinsByName map[string]BuiltinID

func init() {
	builtinsByName = make(map[string]BuiltinID, len(builtinNames))
	for id, name := range builtinNames {
		builtinsByName[name] = id
	}
}

// ErrNotAllowed is returned when a symbol resolves to neither a bound local,
// an allow-listed builtin, nor a registered tool (spec.md §4.2).
var ErrNotAllowed = fmt.Errorf("sandbox: not allowed")

// AllowList is a dense bitset over BuiltinIDs. DefaultAllowList enables the
// entire arithmetic/comparison/boolean/sequence/string/date/set surface
// named in spec.md §4.2; callers narrow it via Disallow for stricter
// deployments without forking the evaluator.
type AllowList struct {
	bits *bitset.BitSet
}

// NewAllowList builds an AllowList containing exactly the given ids.
func NewAllowList(ids ...BuiltinID) *AllowList {
	al := &AllowList{bits: bitset.New(uint(BNumCount))}
	for _, id := range ids {
		al.bits.Set(uint(id))
	}
	return al
}

// DefaultAllowList permits every interned builtin — the full surface spec.md
// §4.2 describes as available by default.
func DefaultAllowList() *AllowList {
	al := &AllowList{bits: bitset.New(uint(BNumCount))}
	for id := range builtinNames {
		al.bits.Set(uint(id))
	}
	return al
}

func (al *AllowList) Allow(id BuiltinID) *AllowList {
	al.bits.Set(uint(id))
	return al
}

func (al *AllowList) Disallow(id BuiltinID) *AllowList {
	al.bits.Clear(uint(id))
	return al
}

func (al *AllowList) Allowed(id BuiltinID) bool {
	return al.bits.Test(uint(id))
}
