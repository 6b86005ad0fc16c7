package gadgets

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
)

// Tuple is an allocated (addr, val, ts) memory tuple
type Tuple struct {
	Addr *AllocatedNum
	Val  *AllocatedNum
	TS   *AllocatedNum
}

// Slot is an allocated memory access: the tuple read, the tuple written back
// and the boolean active flag
type Slot struct {
	RS     Tuple
	WS     Tuple
	Active *AllocatedNum
}

func allocTuple(cs r1cs.ConstraintSystem, t vm.MemoryTuple) (Tuple, error) {
	addr, err := AllocUint64(cs, "addr", t.Addr)
	if err != nil {
		return Tuple{}, err
	}
	val, err := AllocUint64(cs, "val", t.Val)
	if err != nil {
		return Tuple{}, err
	}
	ts, err := AllocUint64(cs, "ts", t.TS)
	if err != nil {
		return Tuple{}, err
	}
	return Tuple{Addr: addr, Val: val, TS: ts}, nil
}

// AllocTuple allocates a tuple under name
func AllocTuple(cs r1cs.ConstraintSystem, name string, t vm.MemoryTuple) (Tuple, error) {
	return allocTuple(cs.Namespace(name), t)
}

// AllocSlot allocates the seven advice wires of a slot in advice order
func AllocSlot(cs r1cs.ConstraintSystem, name string, s vm.MemorySlot) (*Slot, error) {
	cs = cs.Namespace(name)
	rs, err := allocTuple(cs.Namespace("rs"), s.RS)
	if err != nil {
		return nil, err
	}
	ws, err := allocTuple(cs.Namespace("ws"), s.WS)
	if err != nil {
		return nil, err
	}
	active, err := AllocBit(cs, "active", func() (bool, error) { return s.Active, nil })
	if err != nil {
		return nil, err
	}
	return &Slot{RS: rs, WS: ws, Active: active}, nil
}

// Fingerprint returns addr + val·γ + ts·γ² - α
func (t Tuple) Fingerprint(cs r1cs.ConstraintSystem, name string, gamma, gammaSq, alpha *Num) (*Num, error) {
	cs = cs.Namespace(name)
	vg, err := Product(cs, "val_gamma", t.Val.Num(), gamma)
	if err != nil {
		return nil, err
	}
	tg, err := Product(cs, "ts_gamma_sq", t.TS.Num(), gammaSq)
	if err != nil {
		return nil, err
	}
	return t.Addr.Num().Add(vg.Num()).Add(tg.Num()).Sub(alpha), nil
}

// NativeFingerprint mirrors Tuple.Fingerprint outside the circuit
func NativeFingerprint(t vm.MemoryTuple, gamma, alpha fr.Element) fr.Element {
	var fp, g2, x fr.Element
	g2.Square(&gamma)
	fp = core.NewElement(t.Addr)
	x = core.NewElement(t.Val)
	x.Mul(&x, &gamma)
	fp.Add(&fp, &x)
	x = core.NewElement(t.TS)
	x.Mul(&x, &g2)
	fp.Add(&fp, &x)
	fp.Sub(&fp, &alpha)
	return fp
}

// Bind enforces s·(addr - rs.addr) = 0 and s·(1 - active) = 0
func Bind(cs r1cs.ConstraintSystem, name string, s, addr *Num, slot *Slot) {
	EnforceGatedEqual(cs, name+"_addr", s, addr, slot.RS.Addr.Num())
	EnforceGatedEqual(cs, name+"_active", s, slot.Active.Num(), OneNum())
}

// Preserve binds slot to addr as a read: a read writes back the value it
// found, so s·(ws.val - rs.val) = 0
func Preserve(cs r1cs.ConstraintSystem, name string, s, addr *Num, slot *Slot) {
	cs = cs.Namespace(name)
	Bind(cs, "bind", s, addr, slot)
	EnforceGatedEqual(cs, "unchanged", s, slot.WS.Val.Num(), slot.RS.Val.Num())
}

// Read is Preserve returning s·rs.val
func Read(cs r1cs.ConstraintSystem, name string, s, addr *Num, slot *Slot) (*Num, error) {
	Preserve(cs, name, s, addr, slot)
	v, err := Product(cs.Namespace(name), "value", s, slot.RS.Val.Num())
	if err != nil {
		return nil, err
	}
	return v.Num(), nil
}

// Write binds slot to addr and enforces s·(val - ws.val) = 0
func Write(cs r1cs.ConstraintSystem, name string, s, addr, val *Num, slot *Slot) {
	cs = cs.Namespace(name)
	Bind(cs, "bind", s, addr, slot)
	EnforceGatedEqual(cs, "value", s, val, slot.WS.Val.Num())
}

// Prior returns s·rs.val, the value a write is about to overwrite
func Prior(cs r1cs.ConstraintSystem, name string, s *Num, slot *Slot) (*Num, error) {
	v, err := Product(cs, name, s, slot.RS.Val.Num())
	if err != nil {
		return nil, err
	}
	return v.Num(), nil
}

// Unused enforces s·active = 0
func Unused(cs r1cs.ConstraintSystem, name string, s *Num, slot *Slot) {
	cs.Enforce(name, s.lc, slot.Active.LC(), nil)
}
