package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TechniqueName tags which capture path produced a result.
type TechniqueName string

const (
	TechniqueCanvas     TechniqueName = "canvas"
	TechniqueDataURL    TechniqueName = "dataurl"
	TechniqueBlobURL    TechniqueName = "bloburl"
	TechniqueBackground TechniqueName = "background"
	TechniqueScreenshot TechniqueName = "screenshot"
	TechniqueDOMClone   TechniqueName = "domclone"
)

// ErrNotApplicable is returned by a technique that cannot handle the element
// at all (wrong kind, missing source). The cascade treats it like any other
// per-step failure and moves on.
var ErrNotApplicable = errors.New("technique not applicable to element")

// Technique is one capture strategy. Implementations must be safe to call on
// any element and fail with an error rather than panic.
type Technique interface {
	Name() TechniqueName
	Capture(ctx context.Context, el *Element) (*Payload, error)
}

// Attempt records one technique trial for diagnostics.
type Attempt struct {
	Technique TechniqueName
	Err       error
}

// Result is the outcome of a cascade run: the payload, which technique
// produced it, and every attempt made on the way there.
type Result struct {
	Element   *Element
	Technique TechniqueName
	Payload   *Payload
	Attempts  []Attempt
}

// ExhaustedError reports that every technique failed for an element. Last
// carries the final step's error for diagnostics.
type ExhaustedError struct {
	Attempts []Attempt
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d capture techniques failed: %v", len(e.Attempts), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Cascade drives an ordered technique list with no backtracking: the first
// success wins and later techniques are never invoked for that element.
type Cascade struct {
	techniques []Technique
	log        *zap.Logger
	// delay paces batch capture so a page full of media doesn't hammer the
	// renderer.
	delay time.Duration
}

// NewCascade builds a cascade over the given techniques in the given order.
func NewCascade(log *zap.Logger, delay time.Duration, techniques ...Technique) *Cascade {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cascade{techniques: techniques, log: log, delay: delay}
}

// Techniques returns the declared order, for diagnostics.
func (c *Cascade) Techniques() []TechniqueName {
	out := make([]TechniqueName, len(c.techniques))
	for i, t := range c.techniques {
		out[i] = t.Name()
	}
	return out
}

// Capture tries each technique in order and stops at the first success.
// If all fail, the returned error is an *ExhaustedError carrying the
// per-technique attempts and the last error.
func (c *Cascade) Capture(ctx context.Context, el *Element) (*Result, error) {
	result := &Result{Element: el}
	var lastErr error

	for _, t := range c.techniques {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, err := c.safeCapture(ctx, t, el)
		result.Attempts = append(result.Attempts, Attempt{Technique: t.Name(), Err: err})
		if err == nil && payload != nil {
			result.Technique = t.Name()
			result.Payload = payload
			c.log.Debug("element captured",
				zap.String("technique", string(t.Name())),
				zap.String("key", el.Key()),
				zap.Int("bytes", len(payload.Bytes)))
			return result, nil
		}
		lastErr = err
		c.log.Debug("capture technique failed",
			zap.String("technique", string(t.Name())),
			zap.String("key", el.Key()),
			zap.Error(err))
	}

	return nil, &ExhaustedError{Attempts: result.Attempts, Last: lastErr}
}

func (c *Cascade) safeCapture(ctx context.Context, t Technique, el *Element) (payload *Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("technique %s panicked: %v", t.Name(), r)
		}
	}()
	return t.Capture(ctx, el)
}

// Progress reports batch advancement after each element.
type Progress func(done, total int, result *Result, err error)

// CaptureBatch captures a list of elements, deduplicating by element key so
// repeated invocations against the same page don't recapture, and pacing
// captures with the configured inter-element delay. Per-element exhaustion is
// reported through progress and does not stop the batch.
func (c *Cascade) CaptureBatch(ctx context.Context, elements []*Element, progress Progress) ([]*Result, error) {
	seen := make(map[string]bool)
	var unique []*Element
	for _, el := range elements {
		key := el.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, el)
	}

	var results []*Result
	for i, el := range unique {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := c.Capture(ctx, el)
		if err == nil {
			results = append(results, result)
		}
		if progress != nil {
			progress(i+1, len(unique), result, err)
		}
		if c.delay > 0 && i < len(unique)-1 {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
	}
	return results, nil
}
