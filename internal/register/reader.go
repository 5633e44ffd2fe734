package register

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/keelhaul-sec/keelhaul/internal/shell"
)

// Reader reads CPU register values from a live target. Implementations
// differ in what they require of the target (specific commands, permission
// to crash it, a deployed payload) and in how intrusive they are.
type Reader interface {
	// Name identifies the strategy, e.g. "crash_md". Profile files record
	// it so later sessions can go straight to a working strategy.
	Name() string

	// Available reports whether the target and the session's permissions
	// let this strategy run. It must not disturb the target.
	Available(ctx context.Context) (bool, error)

	// Read returns the named register's value.
	Read(ctx context.Context, reg string) (uint64, error)
}

// Set tries an ordered list of strategies and remembers the first one that
// works. Order encodes preference: least intrusive first.
type Set struct {
	d       *shell.Dispatcher
	readers []Reader
	active  Reader
	logger  *zap.Logger
}

// NewSet builds a set over the given strategies. If the dispatcher's
// profile names a strategy that worked before, it is preselected.
func NewSet(d *shell.Dispatcher, logger *zap.Logger, readers ...Reader) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Set{d: d, readers: readers, logger: logger}

	if name := d.Profile().RegisterReader; name != "" {
		for _, r := range readers {
			if r.Name() == name {
				s.active = r
				break
			}
		}
	}
	return s
}

// Readers returns the strategies in preference order.
func (s *Set) Readers() []Reader { return s.readers }

// Active returns the currently selected strategy, or nil if none has been
// selected or proven yet.
func (s *Set) Active() Reader { return s.active }

// Select forces a strategy by name.
func (s *Set) Select(name string) error {
	for _, r := range s.readers {
		if r.Name() == name {
			s.active = r
			s.d.Profile().RegisterReader = name
			return nil
		}
	}
	return fmt.Errorf("no register read strategy named %q", name)
}

// Read reads the named register with the selected strategy, or tries the
// strategies in order until one succeeds. The first success selects that
// strategy for subsequent reads and records it in the profile.
func (s *Set) Read(ctx context.Context, reg string) (uint64, error) {
	if s.active != nil {
		return s.active.Read(ctx, reg)
	}

	var lastErr error
	for _, r := range s.readers {
		ok, err := r.Available(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}

		value, err := r.Read(ctx, reg)
		if err != nil {
			s.logger.Debug("Register read strategy failed",
				zap.String("strategy", r.Name()), zap.Error(err))
			lastErr = err
			continue
		}

		s.logger.Info("Selected register read strategy", zap.String("strategy", r.Name()))
		s.active = r
		s.d.Profile().RegisterReader = r.Name()
		return value, nil
	}

	if lastErr != nil {
		return 0, fmt.Errorf("all register read strategies failed: %w", lastErr)
	}
	return 0, fmt.Errorf("no available register read strategy")
}

// Result is one strategy's row in a cross-validation report. Every
// strategy in the set gets a row; ones that cannot run on this target are
// reported with Available false rather than dropped.
type Result struct {
	Reader    string
	Available bool
	Value     uint64
	Err       error

	// GroundTruth marks the strategy the other rows are compared against:
	// the profile-selected strategy when it succeeded, otherwise the first
	// successful one in preference order.
	GroundTruth bool

	// Match reports whether Value agrees with the ground-truth value. Only
	// meaningful on available rows that read without error; an unavailable
	// or failed strategy is not evidence of disagreement.
	Match bool
}

// CrossValidate reads the named register with every available strategy and
// compares the answers against a designated ground truth. Disagreement
// between strategies usually means a faulty parser or a target that
// clobbers the register between reads; either way the caller should not
// trust a lone value.
func (s *Set) CrossValidate(ctx context.Context, reg string) ([]Result, error) {
	results := make([]Result, 0, len(s.readers))
	truth := -1
	for _, r := range s.readers {
		ok, err := r.Available(ctx)
		if err != nil {
			return results, err
		}
		res := Result{Reader: r.Name(), Available: ok}
		if ok {
			res.Value, res.Err = r.Read(ctx, reg)
			if res.Err == nil {
				if truth < 0 || (s.active != nil && r == s.active) {
					truth = len(results)
				}
			}
		}
		results = append(results, res)
	}

	if truth >= 0 {
		results[truth].GroundTruth = true
		for i := range results {
			if results[i].Available && results[i].Err == nil {
				results[i].Match = results[i].Value == results[truth].Value
			}
		}
	}
	return results, nil
}

// Consistent reports whether every successful result agrees with the
// ground truth. It returns false when no strategy succeeded.
func Consistent(results []Result) bool {
	agreed := false
	for _, res := range results {
		if !res.Available || res.Err != nil {
			continue
		}
		if !res.Match {
			return false
		}
		agreed = true
	}
	return agreed
}
