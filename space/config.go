package space

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
)

const (
	DefaultBase     = uint64(0x400000)
	DefaultSize     = uint64(0x800000000000) - DefaultBase
	DefaultPageSize = uint64(0x1000)
)

type Config struct {
	// Base is the first address of the space.
	Base uint64 `yaml:"base"`
	// Size is the length of the space in bytes.
	Size uint64 `yaml:"size"`
	// PageSize is the mapping granularity and the default alignment.
	PageSize uint64 `yaml:"page_size"`
	// MaxNodes bounds the free ranges the space may track. 0 means unbounded.
	MaxNodes int `yaml:"max_nodes"`
}

func (cfg *Config) RegisterFlags(f *pflag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("", f)
}

func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *pflag.FlagSet) {
	f.Uint64Var(&cfg.Base, prefix+"base", DefaultBase, "First address of the address space.")
	f.Uint64Var(&cfg.Size, prefix+"size", DefaultSize, "Size of the address space in bytes.")
	f.Uint64Var(&cfg.PageSize, prefix+"page-size", DefaultPageSize, "Page size; must be a power of two.")
	f.IntVar(&cfg.MaxNodes, prefix+"max-nodes", 0, "Maximum number of free ranges tracked; 0 for no limit.")
}

func (cfg *Config) Validate() error {
	if cfg.PageSize == 0 || cfg.PageSize&(cfg.PageSize-1) != 0 {
		return errors.Newf("page size %#x is not a power of two", cfg.PageSize)
	}
	if cfg.Size == 0 {
		return errors.New("size must be greater than 0")
	}
	if cfg.Base%cfg.PageSize != 0 || cfg.Size%cfg.PageSize != 0 {
		return errors.Wrapf(ErrMisaligned, "base %#x size %#x", cfg.Base, cfg.Size)
	}
	if cfg.Base+cfg.Size < cfg.Base {
		return errors.Newf("base %#x + size %#x overflows", cfg.Base, cfg.Size)
	}
	if cfg.MaxNodes < 0 {
		return errors.Newf("max nodes %d is negative", cfg.MaxNodes)
	}
	return nil
}
