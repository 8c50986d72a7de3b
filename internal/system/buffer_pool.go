package system

import (
	"image"
	"sync"
)

// FramePool переиспользует кадровые буферы *image.RGBA одного размера,
// чтобы рендер 30 кадров в секунду не нагружал GC.
type FramePool struct {
	pools map[image.Point]*sync.Pool
	mu    sync.RWMutex
}

var globalPool = NewFramePool()

func NewFramePool() *FramePool {
	return &FramePool{pools: make(map[image.Point]*sync.Pool)}
}

// GetFrame возвращает буфер размера w×h из глобального пула.
func GetFrame(w, h int) *image.RGBA {
	return globalPool.Get(w, h)
}

// PutFrame возвращает буфер в глобальный пул.
func PutFrame(img *image.RGBA) {
	globalPool.Put(img)
}

// Get returns a buffer of the requested size. Its contents are undefined.
func (p *FramePool) Get(w, h int) *image.RGBA {
	key := image.Pt(w, h)
	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[key]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return image.NewRGBA(image.Rect(0, 0, key.X, key.Y))
				},
			}
			p.pools[key] = pool
		}
		p.mu.Unlock()
	}

	return pool.Get().(*image.RGBA)
}

// Put hands a buffer back. Buffers of a size never requested are dropped.
func (p *FramePool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect.Size()]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}
