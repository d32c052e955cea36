package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTechnique struct {
	name    TechniqueName
	payload *Payload
	err     error
	calls   int
}

func (f *fakeTechnique) Name() TechniqueName { return f.name }

func (f *fakeTechnique) Capture(ctx context.Context, el *Element) (*Payload, error) {
	f.calls++
	return f.payload, f.err
}

type panicTechnique struct{}

func (panicTechnique) Name() TechniqueName { return "boom" }

func (panicTechnique) Capture(ctx context.Context, el *Element) (*Payload, error) {
	panic("renderer went away")
}

func TestCaptureShortCircuitsOnFirstSuccess(t *testing.T) {
	first := &fakeTechnique{name: TechniqueCanvas, payload: &Payload{Bytes: []byte{1}, MIME: "image/png"}}
	second := &fakeTechnique{name: TechniqueDataURL}
	third := &fakeTechnique{name: TechniqueScreenshot}
	c := NewCascade(nil, 0, first, second, third)

	result, err := c.Capture(context.Background(), &Element{Kind: KindImage, Src: "https://a/x.png"})
	require.NoError(t, err)
	assert.Equal(t, TechniqueCanvas, result.Technique)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "later techniques must not run after a success")
	assert.Equal(t, 0, third.calls)
	assert.Len(t, result.Attempts, 1)
}

func TestCaptureFallsThroughToScreenshot(t *testing.T) {
	// Cross-origin canvas taint surfaces as an error from the rasterizer and
	// the cascade keeps going until the renderer-level screenshot succeeds.
	canvas := &fakeTechnique{name: TechniqueCanvas, err: errors.New("canvas tainted by cross-origin data")}
	dataURL := &fakeTechnique{name: TechniqueDataURL, err: ErrNotApplicable}
	blobURL := &fakeTechnique{name: TechniqueBlobURL, err: ErrNotApplicable}
	background := &fakeTechnique{name: TechniqueBackground, err: ErrNotApplicable}
	shot := &fakeTechnique{name: TechniqueScreenshot, payload: &Payload{Bytes: []byte{9}, MIME: "image/jpeg"}}
	c := NewCascade(nil, 0, canvas, dataURL, blobURL, background, shot)

	result, err := c.Capture(context.Background(), &Element{Kind: KindImage, Src: "https://cdn.other/x.png"})
	require.NoError(t, err)
	assert.Equal(t, TechniqueScreenshot, result.Technique)
	assert.Len(t, result.Attempts, 5)
	assert.Error(t, result.Attempts[0].Err)
}

func TestCaptureExhaustion(t *testing.T) {
	last := errors.New("clone raster unavailable")
	c := NewCascade(nil, 0,
		&fakeTechnique{name: TechniqueCanvas, err: ErrNotApplicable},
		&fakeTechnique{name: TechniqueDOMClone, err: last},
	)

	_, err := c.Capture(context.Background(), &Element{Kind: KindImage})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 2)
	assert.ErrorIs(t, err, last)
}

func TestCaptureContainsTechniquePanic(t *testing.T) {
	shot := &fakeTechnique{name: TechniqueScreenshot, payload: &Payload{Bytes: []byte{1}, MIME: "image/jpeg"}}
	c := NewCascade(nil, 0, panicTechnique{}, shot)

	result, err := c.Capture(context.Background(), &Element{Kind: KindImage})
	require.NoError(t, err)
	assert.Equal(t, TechniqueScreenshot, result.Technique)
	require.Error(t, result.Attempts[0].Err)
	assert.Contains(t, result.Attempts[0].Err.Error(), "panicked")
}

func TestCaptureHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tech := &fakeTechnique{name: TechniqueCanvas, payload: &Payload{Bytes: []byte{1}}}
	c := NewCascade(nil, 0, tech)

	_, err := c.Capture(ctx, &Element{Kind: KindImage})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, tech.calls)
}

func TestCaptureBatchDeduplicatesBySource(t *testing.T) {
	tech := &fakeTechnique{name: TechniqueCanvas, payload: &Payload{Bytes: []byte{1}, MIME: "image/png"}}
	c := NewCascade(nil, 0, tech)

	elements := []*Element{
		{Kind: KindImage, Src: "https://a/one.png"},
		{Kind: KindImage, Src: "https://a/one.png"},
		{Kind: KindImage, Src: "https://a/two.png"},
	}
	results, err := c.CaptureBatch(context.Background(), elements, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, tech.calls)
}

func TestCaptureBatchUnsourcedElementsAreDistinct(t *testing.T) {
	tech := &fakeTechnique{name: TechniqueCanvas, payload: &Payload{Bytes: []byte{1}}}
	c := NewCascade(nil, 0, tech)

	results, err := c.CaptureBatch(context.Background(), []*Element{
		{Kind: KindCanvas, Selector: "#chart-a"},
		{Kind: KindCanvas, Selector: "#chart-b"},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestCaptureBatchReportsProgressAndSkipsFailures(t *testing.T) {
	c := NewCascade(nil, 0, &fakeTechnique{name: TechniqueCanvas, err: errors.New("no pixels")})

	var calls []int
	var sawErr bool
	results, err := c.CaptureBatch(context.Background(), []*Element{
		{Kind: KindImage, Src: "https://a/1.png"},
		{Kind: KindImage, Src: "https://a/2.png"},
	}, func(done, total int, result *Result, err error) {
		calls = append(calls, done)
		assert.Equal(t, 2, total)
		if err != nil {
			sawErr = true
		}
	})
	require.NoError(t, err, "per-element exhaustion must not abort the batch")
	assert.Empty(t, results)
	assert.Equal(t, []int{1, 2}, calls)
	assert.True(t, sawErr)
}

func TestCaptureBatchStopsOnContextDuringDelay(t *testing.T) {
	tech := &fakeTechnique{name: TechniqueCanvas, payload: &Payload{Bytes: []byte{1}}}
	c := NewCascade(nil, time.Hour, tech)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	results, err := c.CaptureBatch(ctx, []*Element{
		{Kind: KindImage, Src: "https://a/1.png"},
		{Kind: KindImage, Src: "https://a/2.png"},
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 1)
}

func TestDefaultCascadeOrder(t *testing.T) {
	c := NewCascade(nil, 0, DefaultCascadeTechniques(nil, nil, nil, nil, 0)...)
	assert.Equal(t, []TechniqueName{
		TechniqueCanvas,
		TechniqueDataURL,
		TechniqueBlobURL,
		TechniqueBackground,
		TechniqueScreenshot,
		TechniqueDOMClone,
	}, c.Techniques())
}
