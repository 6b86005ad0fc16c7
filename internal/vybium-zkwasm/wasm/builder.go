package wasm

// Builder assembles a WASM binary from hand-written function bodies.
// Exported functions are numbered in the order they are added.
type Builder struct {
	types   []FuncType
	funcs   []builtFunc
	memory  *Limits
	globals []Global
	data    []Data
}

type builtFunc struct {
	name   string
	typ    uint32
	locals []ValueType
	body   []byte
}

// NewBuilder returns an empty module builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Memory declares the module memory in pages; hi 0 means unbounded
func (b *Builder) Memory(lo, hi uint32) *Builder {
	b.memory = &Limits{Min: lo, Max: hi, HasMax: hi != 0}
	return b
}

// Global declares a global and returns its index
func (b *Builder) Global(t ValueType, mutable bool, init uint64) uint32 {
	b.globals = append(b.globals, Global{Type: t, Mutable: mutable, Init: init})
	return uint32(len(b.globals) - 1)
}

// Data adds an active data segment
func (b *Builder) Data(offset uint32, init []byte) *Builder {
	b.data = append(b.data, Data{Offset: offset, Init: init})
	return b
}

// Func adds a function and returns its index. An empty name keeps it unexported.
// The body must include the final end.
func (b *Builder) Func(name string, params, results, locals []ValueType, body ...[]byte) uint32 {
	t := FuncType{Params: params, Results: results}
	typ := -1
	for i, o := range b.types {
		if o.equal(t) {
			typ = i
			break
		}
	}
	if typ < 0 {
		b.types = append(b.types, t)
		typ = len(b.types) - 1
	}
	b.funcs = append(b.funcs, builtFunc{name: name, typ: uint32(typ), locals: locals, body: Expr(body...)})
	return uint32(len(b.funcs) - 1)
}

func appendVec(dst []byte, n int) []byte {
	return AppendUleb128(dst, uint64(n))
}

func appendSection(dst []byte, id byte, body []byte) []byte {
	dst = append(dst, id)
	dst = AppendUleb128(dst, uint64(len(body)))
	return append(dst, body...)
}

func appendConst(dst []byte, t ValueType, v uint64) []byte {
	if t == I64 {
		dst = append(dst, I64Const(int64(v))...)
	} else {
		dst = append(dst, I32Const(int32(uint32(v)))...)
	}
	return append(dst, opEnd)
}

// compressLocals groups consecutive locals of the same type
func compressLocals(locals []ValueType) []LocalEntry {
	var out []LocalEntry
	for _, t := range locals {
		if n := len(out); n > 0 && out[n-1].Type == t {
			out[n-1].Count++
			continue
		}
		out = append(out, LocalEntry{Count: 1, Type: t})
	}
	return out
}

// Bytes encodes the module
func (b *Builder) Bytes() []byte {
	out := append([]byte(nil), magic...)

	var sec []byte
	sec = appendVec(sec, len(b.types))
	for _, t := range b.types {
		sec = append(sec, 0x60)
		sec = appendVec(sec, len(t.Params))
		for _, p := range t.Params {
			sec = append(sec, byte(p))
		}
		sec = appendVec(sec, len(t.Results))
		for _, r := range t.Results {
			sec = append(sec, byte(r))
		}
	}
	out = appendSection(out, sectionType, sec)

	sec = appendVec(nil, len(b.funcs))
	for _, f := range b.funcs {
		sec = AppendUleb128(sec, uint64(f.typ))
	}
	out = appendSection(out, sectionFunction, sec)

	if b.memory != nil {
		sec = appendVec(nil, 1)
		if b.memory.HasMax {
			sec = append(sec, 0x01)
			sec = AppendUleb128(sec, uint64(b.memory.Min))
			sec = AppendUleb128(sec, uint64(b.memory.Max))
		} else {
			sec = append(sec, 0x00)
			sec = AppendUleb128(sec, uint64(b.memory.Min))
		}
		out = appendSection(out, sectionMemory, sec)
	}

	if len(b.globals) > 0 {
		sec = appendVec(nil, len(b.globals))
		for _, g := range b.globals {
			sec = append(sec, byte(g.Type))
			if g.Mutable {
				sec = append(sec, 1)
			} else {
				sec = append(sec, 0)
			}
			sec = appendConst(sec, g.Type, g.Init)
		}
		out = appendSection(out, sectionGlobal, sec)
	}

	var exports int
	sec = nil
	for i, f := range b.funcs {
		if f.name == "" {
			continue
		}
		exports++
		sec = AppendUleb128(sec, uint64(len(f.name)))
		sec = append(sec, f.name...)
		sec = append(sec, KindFunc)
		sec = AppendUleb128(sec, uint64(i))
	}
	out = appendSection(out, sectionExport, append(appendVec(nil, exports), sec...))

	sec = appendVec(nil, len(b.funcs))
	for _, f := range b.funcs {
		entries := compressLocals(f.locals)
		body := appendVec(nil, len(entries))
		for _, e := range entries {
			body = AppendUleb128(body, uint64(e.Count))
			body = append(body, byte(e.Type))
		}
		body = append(body, f.body...)
		sec = AppendUleb128(sec, uint64(len(body)))
		sec = append(sec, body...)
	}
	out = appendSection(out, sectionCode, sec)

	if len(b.data) > 0 {
		sec = appendVec(nil, len(b.data))
		for _, d := range b.data {
			sec = append(sec, 0x00)
			sec = appendConst(sec, I32, uint64(d.Offset))
			sec = appendVec(sec, len(d.Init))
			sec = append(sec, d.Init...)
		}
		out = appendSection(out, sectionData, sec)
	}
	return out
}
