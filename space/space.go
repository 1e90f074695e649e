// Package space ties a vmregion.Region to a Mapper, keeping the allocated
// address ranges and the page tables behind them in step.
package space

import (
	"fmt"
	"io"
	"math/bits"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"golang.org/x/exp/slog"

	"github.com/nnanto/vmregion"
	"github.com/nnanto/vmregion/rangeset"
)

// Space is an address space: a region of free addresses plus the zones that
// have been mapped out of it. It is safe for concurrent use.
type Space struct {
	sync.RWMutex
	cfg    Config
	region *vmregion.Region
	zones  zoneSet
	mapper Mapper
	pool   rangeset.NodePool
	logger *slog.Logger
}

type Option func(*Space)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Space) {
		s.logger = logger
	}
}

// WithNodePool overrides the pool built from Config.MaxNodes. Spaces may
// share a pool.
func WithNodePool(pool rangeset.NodePool) Option {
	return func(s *Space) {
		s.pool = pool
	}
}

func New(cfg Config, mapper Mapper, opts ...Option) (*Space, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid space config")
	}
	if mapper == nil {
		mapper = NopMapper{}
	}
	s := &Space{
		cfg:    cfg,
		mapper: mapper,
		zones:  newZoneSet(),
		pool:   rangeset.Unbounded,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if cfg.MaxNodes > 0 {
		s.pool = rangeset.NewFixedPool(cfg.MaxNodes)
	}
	for _, opt := range opts {
		opt(s)
	}

	region, err := vmregion.New(cfg.Base, cfg.Size,
		vmregion.WithPageSize(cfg.PageSize),
		vmregion.WithNodePool(s.pool))
	if err != nil {
		return nil, err
	}
	s.region = region
	return s, nil
}

// Map reserves size bytes and maps them with prot. With fixed set the zone
// is placed exactly at addr; otherwise addr is ignored and the lowest free
// address aligned to alignment is used.
//
// If the mapper fails the reservation is released again and the space is
// left as it was.
func (s *Space) Map(addr, size, alignment uint64, prot Prot, fixed bool) (Zone, error) {
	if size == 0 || size%s.cfg.PageSize != 0 {
		return Zone{}, errors.Wrapf(ErrMisaligned, "size %#x", size)
	}
	if fixed && addr%s.cfg.PageSize != 0 {
		return Zone{}, errors.Wrapf(ErrMisaligned, "address %#x", addr)
	}

	s.Lock()
	defer s.Unlock()

	var err error
	if fixed {
		addr, err = s.region.AllocFixed(addr, size, alignment)
	} else {
		addr, err = s.region.Alloc(size, alignment)
	}
	if err != nil {
		if errors.Is(err, rangeset.ErrPoolExhausted) {
			s.logger.Warn("node pool exhausted", "op", "map", "size", hex(size))
		}
		return Zone{}, err
	}

	z := Zone{Addr: addr, Size: size, Prot: prot}
	if err := s.mapper.Map(addr, size, prot); err != nil {
		s.logger.Error("map failed", "addr", hex(addr), "size", hex(size), "prot", prot.String(), "err", err)
		err = errors.Wrapf(err, "map %v", z)
		if ferr := s.region.Free(addr, size); ferr != nil {
			return Zone{}, errors.CombineErrors(err, errors.Wrap(ferr, "release reservation"))
		}
		return Zone{}, err
	}
	s.zones.insert(z)
	return z, nil
}

// Unmap removes [addr, addr+size) from the page tables and returns it to the
// region. Zones are trimmed or split to match. The whole range must be mapped.
func (s *Space) Unmap(addr, size uint64) error {
	end, err := s.checkRange(addr, size)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	if !s.zones.covered(addr, end) {
		return errors.Wrapf(ErrNotMapped, "[%#x:%#x]", addr, end)
	}
	if err := s.mapper.Unmap(addr, size); err != nil {
		s.logger.Error("unmap failed", "addr", hex(addr), "size", hex(size), "err", err)
		return errors.Wrapf(err, "unmap [%#x:%#x]", addr, end)
	}
	if err := s.region.Free(addr, size); err != nil {
		s.logger.Warn("free failed, restoring mappings", "addr", hex(addr), "size", hex(size), "err", err)
		return errors.CombineErrors(err, s.remap(addr, end))
	}
	s.zones.cut(addr, end)
	return nil
}

// remap restores the mappings of [addr, end) from the zone list.
func (s *Space) remap(addr, end uint64) error {
	var err error
	for _, p := range s.zones.pieces(addr, end) {
		err = errors.CombineErrors(err, s.mapper.Map(p.Addr, p.Size, p.Prot))
	}
	return err
}

// Protect changes the protection of [addr, addr+size), which must be fully
// allocated. Zones are split at the edges of the range.
func (s *Space) Protect(addr, size uint64, prot Prot) error {
	end, err := s.checkRange(addr, size)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	if !s.region.Test(addr, size) {
		return errors.Wrapf(vmregion.ErrOutOfMemory, "[%#x:%#x] is not allocated", addr, end)
	}
	if err := s.mapper.Protect(addr, size, prot); err != nil {
		s.logger.Error("protect failed", "addr", hex(addr), "size", hex(size), "prot", prot.String(), "err", err)
		return errors.Wrapf(err, "protect [%#x:%#x]", addr, end)
	}
	s.zones.protect(addr, end, prot)
	return nil
}

// Dup copies the space onto mapper, mapping every zone again. A nil mapper
// reuses the mapper of s. On failure the copy is torn down and s is
// unchanged.
func (s *Space) Dup(mapper Mapper) (*Space, error) {
	if mapper == nil {
		mapper = s.mapper
	}

	// cloning the zone index is a write on it
	s.Lock()
	defer s.Unlock()

	region, err := s.region.Duplicate()
	if err != nil {
		s.logger.Warn("duplicate failed", "base", hex(s.cfg.Base), "err", err)
		return nil, err
	}
	zones := s.zones.all()
	for i, z := range zones {
		if err := mapper.Map(z.Addr, z.Size, z.Prot); err != nil {
			s.logger.Error("map failed", "op", "dup", "addr", hex(z.Addr), "size", hex(z.Size), "err", err)
			err = errors.Wrapf(err, "dup %v", z)
			for _, m := range zones[:i] {
				err = errors.CombineErrors(err, mapper.Unmap(m.Addr, m.Size))
			}
			region.Destroy()
			return nil, err
		}
	}
	return &Space{
		cfg:    s.cfg,
		region: region,
		zones:  s.zones.clone(),
		mapper: mapper,
		pool:   s.pool,
		logger: s.logger,
	}, nil
}

// Close unmaps every zone and releases the region's nodes.
func (s *Space) Close() error {
	s.Lock()
	defer s.Unlock()

	var err error
	for _, z := range s.zones.all() {
		err = errors.CombineErrors(err, s.mapper.Unmap(z.Addr, z.Size))
	}
	s.zones.clear()
	s.region.Destroy()
	return err
}

// Zones returns a copy of the mapped zones in address order.
func (s *Space) Zones() []Zone {
	s.RLock()
	defer s.RUnlock()
	return s.zones.all()
}

// Test reports whether [addr, addr+size) is fully allocated.
func (s *Space) Test(addr, size uint64) bool {
	s.RLock()
	defer s.RUnlock()
	return s.region.Test(addr, size)
}

// Validate checks the region invariants and that the zones account for
// exactly the allocated bytes.
func (s *Space) Validate() error {
	s.RLock()
	defer s.RUnlock()
	if err := s.region.Validate(); err != nil {
		return err
	}
	var mapped uint64
	zones := s.zones.all()
	for i, z := range zones {
		if i > 0 && zones[i-1].End() > z.Addr {
			return errors.Newf("zone %v overlaps %v", z, zones[i-1])
		}
		if !s.region.Test(z.Addr, z.Size) {
			return errors.Newf("zone %v is not allocated", z)
		}
		mapped += z.Size
	}
	if st := s.region.Stats(); st.AllocatedBytes != mapped {
		return errors.Newf("zones map %#x bytes, region has %#x allocated", mapped, st.AllocatedBytes)
	}
	return nil
}

// Stats is a snapshot of a space.
type Stats struct {
	vmregion.Stats
	Zones       int
	MappedBytes uint64
}

func (s *Space) Stats() Stats {
	s.RLock()
	defer s.RUnlock()
	st := Stats{Stats: s.region.Stats(), Zones: s.zones.len()}
	for _, z := range s.zones.all() {
		st.MappedBytes += z.Size
	}
	return st
}

// Print writes the zones followed by the region's free ranges.
func (s *Space) Print(w io.Writer) {
	s.RLock()
	defer s.RUnlock()
	fmt.Fprintf(w, "space 0x%016x - 0x%016x: %d zone(s)\n", s.cfg.Base, s.cfg.Base+s.cfg.Size, s.zones.len())
	var mapped uint64
	for _, z := range s.zones.all() {
		fmt.Fprintf(w, "  %v\n", z)
		mapped += z.Size
	}
	fmt.Fprintf(w, "  mapped: %s\n", humanize.IBytes(mapped))
	s.region.Print(w)
}

// checkRange validates a page aligned, non-wrapping range inside the space
// and returns its end.
func (s *Space) checkRange(addr, size uint64) (uint64, error) {
	if size == 0 || addr%s.cfg.PageSize != 0 || size%s.cfg.PageSize != 0 {
		return 0, errors.Wrapf(ErrMisaligned, "[%#x+%#x]", addr, size)
	}
	end, carry := bits.Add64(addr, size, 0)
	if carry != 0 {
		return 0, errors.Wrapf(vmregion.ErrOverflow, "%#x+%#x", addr, size)
	}
	if addr < s.cfg.Base || end > s.cfg.Base+s.cfg.Size {
		return 0, errors.Wrapf(ErrOutsideSpace, "[%#x:%#x]", addr, end)
	}
	return end, nil
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
