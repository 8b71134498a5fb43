package docnum

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNoSequence indicates the series cannot supply the requested number of
// free slots within the scan horizon.
var ErrNoSequence = errors.New("docnum: no available sequence")

// horizonBuffer bounds the upward scan past the largest observed run number.
const horizonBuffer = 1000

// CodeSource lists existing codes whose text starts with a period prefix.
type CodeSource interface {
	CodesLike(ctx context.Context, prefix string) ([]string, error)
}

// NextSequences returns the n smallest run numbers not occupied by any of the
// given codes. Codes that do not parse are ignored; deleted documents leave
// holes and those holes are reused before the series grows. The scan is
// bounded by the format's digit capacity so an impossible request fails
// instead of spinning.
func NextSequences(f Format, codes []string, n int) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: requested %d slots", ErrNoSequence, n)
	}
	occupied := make(map[int]struct{}, len(codes))
	maxSeen := 0
	for _, code := range codes {
		seq, err := f.ParseSequence(code)
		if err != nil {
			continue
		}
		occupied[seq] = struct{}{}
		if seq > maxSeen {
			maxSeen = seq
		}
	}
	horizon := maxSeen + n + horizonBuffer
	if limit := f.MaxSequence(); horizon > limit {
		horizon = limit
	}
	free := make([]int, 0, n)
	for candidate := 1; candidate <= horizon && len(free) < n; candidate++ {
		if _, taken := occupied[candidate]; taken {
			continue
		}
		free = append(free, candidate)
	}
	if len(free) < n {
		return nil, fmt.Errorf("%w: found %d of %d slots", ErrNoSequence, len(free), n)
	}
	return free, nil
}

// Allocator binds a format to a code source for callers outside an explicit
// transaction. Transactional callers read the codes through their own tx and
// use NextSequences directly so the scan shares the tx isolation.
type Allocator struct {
	src    CodeSource
	format Format
}

// NewAllocator constructs an Allocator.
func NewAllocator(src CodeSource, format Format) *Allocator {
	return &Allocator{src: src, format: format}
}

// Next returns the n smallest free run numbers for the series period.
func (a *Allocator) Next(ctx context.Context, prefix string, date time.Time, n int) ([]int, error) {
	codes, err := a.src.CodesLike(ctx, a.format.PeriodPrefix(prefix, date))
	if err != nil {
		return nil, err
	}
	return NextSequences(a.format, codes, n)
}

// Occupied returns the sorted run numbers currently in use for the period.
func (a *Allocator) Occupied(ctx context.Context, prefix string, date time.Time) ([]int, error) {
	codes, err := a.src.CodesLike(ctx, a.format.PeriodPrefix(prefix, date))
	if err != nil {
		return nil, err
	}
	seqs := make([]int, 0, len(codes))
	for _, code := range codes {
		seq, err := a.format.ParseSequence(code)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	return seqs, nil
}
