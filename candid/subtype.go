package candid

type typePair struct {
	a, b *Type
}

// subtypeCache memoizes subtype checks. Pairs under evaluation are assumed to
// hold, which makes the check coinductive over recursive types.
type subtypeCache struct {
	memo map[typePair]bool
}

func newSubtypeCache() *subtypeCache {
	return &subtypeCache{memo: make(map[typePair]bool)}
}

// IsSubtype reports whether every value of a can be decoded as b.
func IsSubtype(a, b *Type) bool {
	return newSubtypeCache().isSubtype(a, b)
}

func (c *subtypeCache) isSubtype(a, b *Type) bool {
	a, err := Resolve(a)
	if err != nil {
		return false
	}
	b, err = Resolve(b)
	if err != nil {
		return false
	}
	key := typePair{a, b}
	if v, ok := c.memo[key]; ok {
		return v
	}
	c.memo[key] = true
	v := c.check(a, b)
	c.memo[key] = v
	return v
}

func (c *subtypeCache) check(a, b *Type) bool {
	if b.Kind == KindReserved || b.Kind == KindOpt || a.Kind == KindEmpty {
		return true
	}
	if a.Kind.IsPrimitive() && a.Kind == b.Kind {
		return true
	}
	switch b.Kind {
	case KindNat:
		return a.Kind == KindNat || isNatN(a.Kind)
	case KindInt:
		return a.Kind == KindNat || isNatN(a.Kind) || isIntN(a.Kind)
	case KindNat8, KindNat16, KindNat32, KindNat64:
		return isNatN(a.Kind) && a.Kind >= b.Kind
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return isIntN(a.Kind) && a.Kind >= b.Kind
	case KindFloat64:
		return a.Kind == KindFloat32
	case KindVec:
		return a.Kind == KindVec && c.isSubtype(a.Elem, b.Elem)
	case KindRecord:
		if a.Kind != KindRecord {
			return false
		}
		for _, bf := range b.Fields {
			_, af, ok := a.FieldByID(bf.ID())
			if ok {
				if !c.isSubtype(af.Type, bf.Type) {
					return false
				}
				continue
			}
			if !optional(bf.Type) {
				return false
			}
		}
		return true
	case KindVariant:
		if a.Kind != KindVariant {
			return false
		}
		for _, af := range a.Fields {
			_, bf, ok := b.FieldByID(af.ID())
			if !ok || !c.isSubtype(af.Type, bf.Type) {
				return false
			}
		}
		return true
	case KindFunc:
		if a.Kind != KindFunc || len(a.Annotations) != len(b.Annotations) {
			return false
		}
		for i := range a.Annotations {
			if a.Annotations[i] != b.Annotations[i] {
				return false
			}
		}
		// arguments are contravariant, results covariant
		if len(a.Args) > len(b.Args) && !allOptional(a.Args[len(b.Args):]) {
			return false
		}
		for i := 0; i < len(a.Args) && i < len(b.Args); i++ {
			if !c.isSubtype(b.Args[i], a.Args[i]) {
				return false
			}
		}
		if len(b.Rets) > len(a.Rets) && !allOptional(b.Rets[len(a.Rets):]) {
			return false
		}
		for i := 0; i < len(a.Rets) && i < len(b.Rets); i++ {
			if !c.isSubtype(a.Rets[i], b.Rets[i]) {
				return false
			}
		}
		return true
	case KindService:
		if a.Kind != KindService {
			return false
		}
		for _, bm := range b.Methods {
			am, ok := methodByName(a, bm.Name)
			if !ok || !c.isSubtype(am.Type, bm.Type) {
				return false
			}
		}
		return true
	}
	return false
}

// optional reports whether a missing value of t decodes without error.
func optional(t *Type) bool {
	t, err := Resolve(t)
	if err != nil {
		return false
	}
	switch t.Kind {
	case KindOpt, KindNull, KindReserved:
		return true
	}
	return false
}

func allOptional(types []*Type) bool {
	for _, t := range types {
		if !optional(t) {
			return false
		}
	}
	return true
}

func methodByName(t *Type, name string) (Method, bool) {
	for _, m := range t.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}
