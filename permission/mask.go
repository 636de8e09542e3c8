package permission

const maskBits = 64

// Mask is a 64-bit permission set. The highest bit is the root bit and, when
// set, satisfies every registered permission.
type Mask uint64

const rootBit = maskBits - 1

// Has reports whether bit is granted, either directly or through the root bit.
func (m Mask) Has(bit int) bool {
	if bit < 0 || bit >= rootBit {
		return false
	}
	if m&(1<<rootBit) != 0 {
		return true
	}
	return m&(1<<uint(bit)) != 0
}

// Set returns m with bit granted.
func (m Mask) Set(bit int) Mask {
	if bit < 0 || bit >= maskBits {
		return m
	}
	return m | 1<<uint(bit)
}

// Clear returns m with bit removed.
func (m Mask) Clear(bit int) Mask {
	if bit < 0 || bit >= maskBits {
		return m
	}
	return m &^ (1 << uint(bit))
}

// Root reports whether the root bit is set.
func (m Mask) Root() bool {
	return m&(1<<rootBit) != 0
}

// Raw returns the underlying bits.
func (m Mask) Raw() uint64 {
	return uint64(m)
}
