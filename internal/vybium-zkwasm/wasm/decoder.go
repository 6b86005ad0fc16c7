package wasm

import (
	"bytes"
	"fmt"
)

var magic = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Section ids
const (
	sectionCustom byte = iota
	sectionType
	sectionImport
	sectionFunction
	sectionTable
	sectionMemory
	sectionGlobal
	sectionExport
	sectionStart
	sectionElement
	sectionCode
	sectionData
	sectionDataCount
)

// Decode parses a WASM binary
func Decode(bin []byte) (*Module, error) {
	if len(bin) < len(magic) || !bytes.Equal(bin[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: bad magic or version", ErrMalformed)
	}
	r := newReader(bin)
	r.pos = len(magic)
	m := &Module{}
	last := 0
	for !r.done() {
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, err
		}
		body, err := r.bytes(int(size))
		if err != nil {
			return nil, err
		}
		if id != sectionCustom {
			rank := sectionRank(id)
			if rank <= last {
				return nil, fmt.Errorf("%w: section %d out of order", ErrMalformed, id)
			}
			last = rank
		}
		sr := newReader(body)
		if err := m.decodeSection(id, sr); err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
	}
	if len(m.Functions) != len(m.Codes) {
		return nil, fmt.Errorf("%w: %d functions but %d bodies", ErrMalformed, len(m.Functions), len(m.Codes))
	}
	return m, nil
}

// sectionRank orders sections; the data count section sits between element and code
func sectionRank(id byte) int {
	if id == sectionDataCount {
		return 2*int(sectionElement) + 1
	}
	return 2 * int(id)
}

func (m *Module) decodeSection(id byte, r *reader) error {
	switch id {
	case sectionCustom, sectionElement, sectionDataCount:
		if id == sectionElement {
			n, err := r.u32()
			if err != nil {
				return err
			}
			m.Elements = int(n)
		}
		return nil
	case sectionType:
		return vec(r, func() error {
			t, err := decodeFuncType(r)
			m.Types = append(m.Types, t)
			return err
		})
	case sectionImport:
		return vec(r, func() error {
			im, err := decodeImport(r)
			m.Imports = append(m.Imports, im)
			return err
		})
	case sectionFunction:
		return vec(r, func() error {
			t, err := r.u32()
			m.Functions = append(m.Functions, t)
			return err
		})
	case sectionTable:
		return vec(r, func() error {
			if _, err := r.byte(); err != nil {
				return err
			}
			_, err := decodeLimits(r)
			m.Tables++
			return err
		})
	case sectionMemory:
		return vec(r, func() error {
			l, err := decodeLimits(r)
			m.Memories = append(m.Memories, l)
			return err
		})
	case sectionGlobal:
		return vec(r, func() error {
			g, err := decodeGlobal(r)
			m.Globals = append(m.Globals, g)
			return err
		})
	case sectionExport:
		return vec(r, func() error {
			name, err := r.name()
			if err != nil {
				return err
			}
			kind, err := r.byte()
			if err != nil {
				return err
			}
			idx, err := r.u32()
			m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Index: idx})
			return err
		})
	case sectionStart:
		idx, err := r.u32()
		m.Start = &idx
		return err
	case sectionCode:
		return vec(r, func() error {
			c, err := decodeCode(r)
			m.Codes = append(m.Codes, c)
			return err
		})
	case sectionData:
		return vec(r, func() error {
			d, err := decodeData(r)
			m.Data = append(m.Data, d)
			return err
		})
	}
	return fmt.Errorf("%w: unknown section id %d", ErrMalformed, id)
}

func vec(r *reader, f func() error) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if err := f(); err != nil {
			return err
		}
	}
	if !r.done() {
		return r.errorf("trailing bytes")
	}
	return nil
}

func decodeValueTypes(r *reader) ([]ValueType, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if int(n) > len(r.buf)-r.pos {
		return nil, r.errorf("too many value types")
	}
	out := make([]ValueType, n)
	for i := range out {
		b, err := r.byte()
		if err != nil {
			return nil, err
		}
		out[i] = ValueType(b)
	}
	return out, nil
}

func decodeFuncType(r *reader) (FuncType, error) {
	form, err := r.byte()
	if err != nil {
		return FuncType{}, err
	}
	if form != 0x60 {
		return FuncType{}, r.errorf("function type form %#x", form)
	}
	params, err := decodeValueTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	results, err := decodeValueTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	return FuncType{Params: params, Results: results}, nil
}

func decodeLimits(r *reader) (Limits, error) {
	flag, err := r.byte()
	if err != nil {
		return Limits{}, err
	}
	lo, err := r.u32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: lo}
	switch flag {
	case 0x00:
	case 0x01:
		if l.Max, err = r.u32(); err != nil {
			return Limits{}, err
		}
		l.HasMax = true
	default:
		return Limits{}, fmt.Errorf("%w: limits flag %#x", ErrUnsupported, flag)
	}
	return l, nil
}

func decodeImport(r *reader) (Import, error) {
	mod, err := r.name()
	if err != nil {
		return Import{}, err
	}
	name, err := r.name()
	if err != nil {
		return Import{}, err
	}
	kind, err := r.byte()
	if err != nil {
		return Import{}, err
	}
	im := Import{Module: mod, Name: name, Kind: kind}
	switch kind {
	case KindFunc:
		_, err = r.u32()
	case KindTable:
		if _, err = r.byte(); err == nil {
			_, err = decodeLimits(r)
		}
	case KindMemory:
		_, err = decodeLimits(r)
	case KindGlobal:
		_, err = r.bytes(2)
	default:
		err = r.errorf("import kind %#x", kind)
	}
	return im, err
}

// decodeConstExpr reads an i32.const or i64.const initializer terminated by end
func decodeConstExpr(r *reader) (ValueType, uint64, error) {
	op, err := r.byte()
	if err != nil {
		return 0, 0, err
	}
	var t ValueType
	var v uint64
	switch op {
	case opI32Const:
		x, err := r.sleb(32)
		if err != nil {
			return 0, 0, err
		}
		t, v = I32, uint64(uint32(int32(x)))
	case opI64Const:
		x, err := r.sleb(64)
		if err != nil {
			return 0, 0, err
		}
		t, v = I64, uint64(x)
	default:
		return 0, 0, fmt.Errorf("%w: constant expression opcode %#x", ErrUnsupported, op)
	}
	end, err := r.byte()
	if err != nil {
		return 0, 0, err
	}
	if end != opEnd {
		return 0, 0, fmt.Errorf("%w: constant expression is not a single constant", ErrUnsupported)
	}
	return t, v, nil
}

func decodeGlobal(r *reader) (Global, error) {
	t, err := r.byte()
	if err != nil {
		return Global{}, err
	}
	mut, err := r.byte()
	if err != nil {
		return Global{}, err
	}
	it, v, err := decodeConstExpr(r)
	if err != nil {
		return Global{}, err
	}
	g := Global{Type: ValueType(t), Mutable: mut == 1, Init: v}
	if !g.Type.integer() {
		return g, fmt.Errorf("%w: %s global", ErrUnsupported, g.Type)
	}
	if it != g.Type {
		return g, fmt.Errorf("%w: %s global initialized with %s", ErrInvalid, g.Type, it)
	}
	return g, nil
}

func decodeCode(r *reader) (Code, error) {
	size, err := r.u32()
	if err != nil {
		return Code{}, err
	}
	body, err := r.bytes(int(size))
	if err != nil {
		return Code{}, err
	}
	br := newReader(body)
	n, err := br.u32()
	if err != nil {
		return Code{}, err
	}
	var c Code
	var total uint64
	for i := uint32(0); i < n; i++ {
		count, err := br.u32()
		if err != nil {
			return Code{}, err
		}
		t, err := br.byte()
		if err != nil {
			return Code{}, err
		}
		total += uint64(count)
		if total > 1<<16 {
			return Code{}, fmt.Errorf("%w: too many locals", ErrUnsupported)
		}
		c.Locals = append(c.Locals, LocalEntry{Count: count, Type: ValueType(t)})
	}
	c.Body = body[br.pos:]
	return c, nil
}

func decodeData(r *reader) (Data, error) {
	flag, err := r.u32()
	if err != nil {
		return Data{}, err
	}
	switch flag {
	case 0:
	case 2:
		idx, err := r.u32()
		if err != nil {
			return Data{}, err
		}
		if idx != 0 {
			return Data{}, fmt.Errorf("%w: data segment for memory %d", ErrUnsupported, idx)
		}
	default:
		return Data{}, fmt.Errorf("%w: passive data segment", ErrUnsupported)
	}
	t, off, err := decodeConstExpr(r)
	if err != nil {
		return Data{}, err
	}
	if t != I32 {
		return Data{}, fmt.Errorf("%w: data offset of type %s", ErrInvalid, t)
	}
	n, err := r.u32()
	if err != nil {
		return Data{}, err
	}
	init, err := r.bytes(int(n))
	if err != nil {
		return Data{}, err
	}
	return Data{Offset: uint32(off), Init: append([]byte(nil), init...)}, nil
}
