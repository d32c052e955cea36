package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"emma/internal/media"
	"emma/internal/page"
)

// Page wraps one live browser page. It produces document snapshots for the
// recognition pipeline and implements the capture surfaces of the media
// cascade against the real renderer.
type Page struct {
	page *rod.Page
	url  string
	log  *zap.Logger
}

var (
	_ media.ElementRasterizer = (*Page)(nil)
	_ media.Fetcher           = (*Page)(nil)
	_ media.ScreenshotClient  = (*Page)(nil)
	_ media.DOMRasterizer     = (*Page)(nil)
)

// URL returns the address the page was opened on.
func (p *Page) URL() string { return p.url }

// Close closes the underlying browser page.
func (p *Page) Close() error { return p.page.Close() }

// Snapshot parses the page's current DOM into a read-only snapshot.
func (p *Page) Snapshot(ctx context.Context) (*page.Snapshot, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	info, err := p.page.Context(ctx).Info()
	if err == nil && info.URL != "" {
		return page.Parse(info.URL, html)
	}
	return page.Parse(p.url, html)
}

// Selection returns the user's current text selection, or "".
func (p *Page) Selection(ctx context.Context) (string, error) {
	res, err := p.eval(ctx, `() => String(window.getSelection() || '')`, nil)
	if err != nil {
		return "", fmt.Errorf("read selection: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *Page) eval(ctx context.Context, js string, args []interface{}) (*proto.RuntimeRemoteObject, error) {
	return p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
}

// RasterizeElement draws the live element into an offscreen canvas and
// exports the pixels. Cross-origin taint surfaces as an eval error.
func (p *Page) RasterizeElement(ctx context.Context, el *media.Element) (*media.Payload, error) {
	res, err := p.eval(ctx, `
	async (sel, src) => {
		let el = sel ? document.querySelector(sel) : null;
		if (!el && src) {
			el = new Image();
			el.src = src;
			await new Promise((resolve, reject) => {
				el.onload = resolve;
				el.onerror = () => reject(new Error('image failed to load'));
				setTimeout(() => reject(new Error('image load timed out')), 10000);
			});
		}
		if (!el) throw new Error('element not found');
		if (el.tagName === 'CANVAS') return el.toDataURL('image/png');

		const w = el.naturalWidth || el.videoWidth || el.width || el.clientWidth;
		const h = el.naturalHeight || el.videoHeight || el.height || el.clientHeight;
		if (!w || !h) throw new Error('element has no drawable size');

		const canvas = document.createElement('canvas');
		canvas.width = w;
		canvas.height = h;
		canvas.getContext('2d').drawImage(el, 0, 0, w, h);
		return canvas.toDataURL('image/jpeg', 0.92);
	}`, []interface{}{el.Selector, el.Src})
	if err != nil {
		return nil, fmt.Errorf("rasterize element: %w", err)
	}
	return media.DecodeDataURL(res.Value.Str())
}

// Fetch resolves a URL inside the page context, which is the only place
// blob: object URLs are reachable.
func (p *Page) Fetch(ctx context.Context, url string) (*media.Payload, error) {
	res, err := p.eval(ctx, `
	async (url) => {
		const res = await fetch(url);
		if (!res.ok) throw new Error('fetch failed: ' + res.status);
		const blob = await res.blob();
		return await new Promise((resolve, reject) => {
			const reader = new FileReader();
			reader.onload = () => resolve(reader.result);
			reader.onerror = () => reject(new Error('blob read failed'));
			reader.readAsDataURL(blob);
		});
	}`, []interface{}{url})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return media.DecodeDataURL(res.Value.Str())
}

// Screenshot rasterizes the visible viewport.
func (p *Page) Screenshot(ctx context.Context) (*media.Payload, media.Viewport, error) {
	shot, err := p.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, media.Viewport{}, fmt.Errorf("viewport screenshot: %w", err)
	}

	viewport := media.Viewport{DevicePixelRatio: 1}
	res, err := p.eval(ctx, `() => ({
		width: window.innerWidth,
		height: window.innerHeight,
		dpr: window.devicePixelRatio || 1,
	})`, nil)
	if err == nil {
		raw, merr := res.Value.MarshalJSON()
		if merr == nil {
			var v struct {
				Width  float64 `json:"width"`
				Height float64 `json:"height"`
				DPR    float64 `json:"dpr"`
			}
			if json.Unmarshal(raw, &v) == nil {
				viewport = media.Viewport{Width: v.Width, Height: v.Height, DevicePixelRatio: v.DPR}
			}
		}
	}

	return &media.Payload{Bytes: shot, MIME: "image/png"}, viewport, nil
}

// RasterizeClone clones the node off-screen, renders the clone through an SVG
// foreignObject, and exports the pixels.
func (p *Page) RasterizeClone(ctx context.Context, el *media.Element) (*media.Payload, error) {
	res, err := p.eval(ctx, `
	async (sel) => {
		const el = document.querySelector(sel);
		if (!el) throw new Error('element not found');

		const rect = el.getBoundingClientRect();
		const w = Math.max(1, Math.ceil(rect.width));
		const h = Math.max(1, Math.ceil(rect.height));

		const wrapper = document.createElement('div');
		wrapper.appendChild(el.cloneNode(true));
		const svg = '<svg xmlns="http://www.w3.org/2000/svg" width="' + w + '" height="' + h + '">'
			+ '<foreignObject width="100%" height="100%">'
			+ '<div xmlns="http://www.w3.org/1999/xhtml">' + wrapper.innerHTML + '</div>'
			+ '</foreignObject></svg>';

		const img = new Image();
		img.src = 'data:image/svg+xml;charset=utf-8,' + encodeURIComponent(svg);
		await new Promise((resolve, reject) => {
			img.onload = resolve;
			img.onerror = () => reject(new Error('clone raster failed to load'));
			setTimeout(() => reject(new Error('clone raster timed out')), 5000);
		});

		const canvas = document.createElement('canvas');
		canvas.width = w;
		canvas.height = h;
		canvas.getContext('2d').drawImage(img, 0, 0);
		return canvas.toDataURL('image/png');
	}`, []interface{}{el.Selector})
	if err != nil {
		return nil, fmt.Errorf("rasterize clone: %w", err)
	}
	return media.DecodeDataURL(res.Value.Str())
}

// CollectElements enumerates the page's capturable visual elements with their
// live geometry, for feeding the cascade.
func (p *Page) CollectElements(ctx context.Context) ([]*media.Element, error) {
	res, err := p.eval(ctx, `
	() => {
		const dpr = window.devicePixelRatio || 1;
		const out = [];

		const path = (el) => {
			const parts = [];
			for (let n = el; n && n.nodeType === 1 && parts.length < 8; n = n.parentElement) {
				let part = n.tagName.toLowerCase();
				if (n.id) { parts.unshift(part + '#' + n.id); break; }
				let i = 1;
				for (let sib = n.previousElementSibling; sib; sib = sib.previousElementSibling) {
					if (sib.tagName === n.tagName) i++;
				}
				parts.unshift(part + ':nth-of-type(' + i + ')');
			}
			return parts.join(' > ');
		};
		const box = (el) => {
			const r = el.getBoundingClientRect();
			return { x: r.x, y: r.y, w: r.width, h: r.height };
		};

		document.querySelectorAll('img').forEach((el) => {
			out.push({ kind: 'img', selector: path(el), src: el.currentSrc || el.src || '', rect: box(el), dpr });
		});
		document.querySelectorAll('canvas').forEach((el) => {
			out.push({ kind: 'canvas', selector: path(el), rect: box(el), dpr });
		});
		document.querySelectorAll('video').forEach((el) => {
			out.push({ kind: 'video', selector: path(el), rect: box(el), dpr });
		});
		document.querySelectorAll('svg').forEach((el) => {
			out.push({ kind: 'svg', selector: path(el), svg: new XMLSerializer().serializeToString(el), rect: box(el), dpr });
		});
		document.querySelectorAll('*').forEach((el) => {
			const bg = window.getComputedStyle(el).backgroundImage;
			if (bg && bg !== 'none' && bg.includes('url(')) {
				out.push({ kind: 'background', selector: path(el), background: bg, rect: box(el), dpr });
			}
		});
		return out;
	}`, nil)
	if err != nil {
		return nil, fmt.Errorf("collect elements: %w", err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal collected elements: %w", err)
	}
	var nodes []struct {
		Kind       string  `json:"kind"`
		Selector   string  `json:"selector"`
		Src        string  `json:"src"`
		Background string  `json:"background"`
		SVG        string  `json:"svg"`
		DPR        float64 `json:"dpr"`
		Rect       struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			W float64 `json:"w"`
			H float64 `json:"h"`
		} `json:"rect"`
	}
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("decode collected elements: %w", err)
	}

	elements := make([]*media.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &media.Element{
			Kind:             media.Kind(n.Kind),
			Selector:         n.Selector,
			Src:              n.Src,
			BackgroundImage:  n.Background,
			SVGMarkup:        n.SVG,
			Rect:             media.Rect{X: n.Rect.X, Y: n.Rect.Y, W: n.Rect.W, H: n.Rect.H},
			DevicePixelRatio: n.DPR,
		})
	}
	return elements, nil
}

// WatchImages installs a mutation observer counting newly added image
// elements and polls it, signaling trigger on each batch of additions. The
// caller debounces; this just reports raw mutation activity. Blocks until ctx
// is done.
func (p *Page) WatchImages(ctx context.Context, interval time.Duration, trigger func()) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	_, err := p.eval(ctx, `
	() => {
		if (window.__imageMutations !== undefined) return true;
		window.__imageMutations = 0;
		const observer = new MutationObserver((mutations) => {
			for (const m of mutations) {
				for (const node of m.addedNodes) {
					if (node.nodeType !== 1) continue;
					if (node.tagName === 'IMG' || (node.querySelector && node.querySelector('img'))) {
						window.__imageMutations++;
						return;
					}
				}
			}
		});
		observer.observe(document.documentElement || document.body, { childList: true, subtree: true });
		return true;
	}`, nil)
	if err != nil {
		return fmt.Errorf("install mutation observer: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := p.eval(ctx, `
			() => {
				const n = window.__imageMutations || 0;
				window.__imageMutations = 0;
				return n;
			}`, nil)
			if err != nil {
				p.log.Debug("mutation poll failed", zap.Error(err))
				continue
			}
			if res.Value.Int() > 0 {
				trigger()
			}
		}
	}
}
