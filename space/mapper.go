package space

// Mapper installs and removes page table entries for a space. Calls are made
// with the space locked.
type Mapper interface {
	Map(addr, size uint64, prot Prot) error
	Unmap(addr, size uint64) error
	Protect(addr, size uint64, prot Prot) error
}

// NopMapper accepts every request without doing anything.
type NopMapper struct{}

func (NopMapper) Map(uint64, uint64, Prot) error     { return nil }
func (NopMapper) Unmap(uint64, uint64) error         { return nil }
func (NopMapper) Protect(uint64, uint64, Prot) error { return nil }
