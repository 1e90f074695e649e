package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"

	"github.com/nnanto/vmregion"
	"github.com/nnanto/vmregion/rangeset"
	"github.com/nnanto/vmregion/space"
)

var replayKeepGoing bool

func init() {
	cmd := newReplayCmd()
	cmd.Flags().BoolVar(&replayKeepGoing, "keep-going", false, "Continue after a failed command")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [script]",
		Short: "Run an allocation script against a fresh region",
		Long: `The replay command reads one command per line from the script (or stdin)
and applies it to a region built from the global flags:

  alloc SIZE [ALIGN]          first-fit allocation
  allocat ADDR SIZE [ALIGN]   fixed allocation
  free ADDR SIZE              release a range
  test ADDR SIZE              report whether a range is fully allocated
  dup                         continue on a duplicate of the region
  print                       print the free map

Numbers may be decimal, 0x-prefixed hex or sizes such as 16KiB.
Lines starting with # are ignored.

Example:
  regionctl replay script.txt --base 0x10000 --size 0x100000
  echo "alloc 0x2000" | regionctl replay --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "open script")
				}
				defer f.Close()
				in = f
			}
			return runReplay(in, cmd.OutOrStdout(), cfg, replayKeepGoing, jsonOut)
		},
	}
	return cmd
}

func newRegion(cfg space.Config) (*vmregion.Region, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []vmregion.Option{vmregion.WithPageSize(cfg.PageSize)}
	if cfg.MaxNodes > 0 {
		opts = append(opts, vmregion.WithNodePool(rangeset.NewFixedPool(cfg.MaxNodes)))
	}
	return vmregion.New(cfg.Base, cfg.Size, opts...)
}

func runReplay(in io.Reader, out io.Writer, cfg space.Config, keepGoing, asJSON bool) error {
	r, err := newRegion(cfg)
	if err != nil {
		return err
	}

	failed := 0
	sc := bufio.NewScanner(in)
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		logger.Debug("replay", "line", line, "cmd", strings.Join(fields, " "))
		res, next, err := apply(r, fields, out)
		if err != nil {
			err = errors.Wrapf(err, "line %d", line)
			if !keepGoing {
				return err
			}
			logger.Warn("command failed", "line", line, "err", err)
			fmt.Fprintf(out, "%s -> error: %v\n", strings.Join(fields, " "), err)
			failed++
			continue
		}
		if next != nil {
			r.Destroy()
			r = next
		}
		if res != "" {
			fmt.Fprintf(out, "%s -> %s\n", strings.Join(fields, " "), res)
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "read script")
	}

	if asJSON {
		w := jwriter.NewWriter()
		r.PrintDetailedMap(&w)
		if err := w.Error(); err != nil {
			return err
		}
		fmt.Fprintln(out, string(w.Bytes()))
	} else {
		r.Print(out)
	}

	if failed > 0 {
		return errors.Newf("%d command(s) failed", failed)
	}
	return nil
}

// apply runs one script command. A non-nil region replaces the current one.
func apply(r *vmregion.Region, fields []string, out io.Writer) (string, *vmregion.Region, error) {
	cmd, args := fields[0], fields[1:]
	nums, err := parseArgs(args)
	if err != nil {
		return "", nil, err
	}
	optional := func(i int) uint64 {
		if i < len(nums) {
			return nums[i]
		}
		return 0
	}

	switch cmd {
	case "alloc":
		if err := arity(cmd, nums, 1, 2); err != nil {
			return "", nil, err
		}
		addr, err := r.Alloc(nums[0], optional(1))
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%#x", addr), nil, nil
	case "allocat":
		if err := arity(cmd, nums, 2, 3); err != nil {
			return "", nil, err
		}
		addr, err := r.AllocFixed(nums[0], nums[1], optional(2))
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%#x", addr), nil, nil
	case "free":
		if err := arity(cmd, nums, 2, 2); err != nil {
			return "", nil, err
		}
		if err := r.Free(nums[0], nums[1]); err != nil {
			return "", nil, err
		}
		return "ok", nil, nil
	case "test":
		if err := arity(cmd, nums, 2, 2); err != nil {
			return "", nil, err
		}
		if r.Test(nums[0], nums[1]) {
			return "allocated", nil, nil
		}
		return "free", nil, nil
	case "dup":
		if err := arity(cmd, nums, 0, 0); err != nil {
			return "", nil, err
		}
		dup, err := r.Duplicate()
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d range(s), %s free", len(dup.Ranges()), humanize.IBytes(dup.Stats().FreeBytes)), dup, nil
	case "print":
		if err := arity(cmd, nums, 0, 0); err != nil {
			return "", nil, err
		}
		r.Print(out)
		return "", nil, nil
	}
	return "", nil, errors.Newf("unknown command %q", cmd)
}

func arity(cmd string, nums []uint64, lo, hi int) error {
	if len(nums) < lo || len(nums) > hi {
		if lo == hi {
			return errors.Newf("%s takes %d argument(s), got %d", cmd, lo, len(nums))
		}
		return errors.Newf("%s takes %d to %d arguments, got %d", cmd, lo, hi, len(nums))
	}
	return nil
}

func parseArgs(args []string) ([]uint64, error) {
	nums := make([]uint64, 0, len(args))
	for _, a := range args {
		n, err := parseNumber(a)
		if err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	return nums, nil
}

// parseNumber accepts anything strconv understands with base 0, then falls
// back to human readable sizes.
func parseNumber(s string) (uint64, error) {
	if n, err := strconv.ParseUint(s, 0, 64); err == nil {
		return n, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "bad number %q", s)
	}
	return n, nil
}

