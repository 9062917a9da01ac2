// internal/models/hotspot.go
package models

import "math"

// HotspotAction 热点动作
type HotspotAction string

const (
	ActionRoute HotspotAction = "route"
	ActionPlay  HotspotAction = "play"
)

// Valid 检查动作是否受支持
func (a HotspotAction) Valid() bool {
	return a == ActionRoute || a == ActionPlay
}

// DefaultHotspotTitle 新绘制热点的默认标题
const DefaultHotspotTitle = "Nuevo Hotspot"

// Hotspot 内容上的可点击矩形区域，坐标归一化到 [0,1]
type Hotspot struct {
	ID     string        `json:"id" yaml:"id"`
	X      float64       `json:"x" yaml:"x"`
	Y      float64       `json:"y" yaml:"y"`
	Width  float64       `json:"width" yaml:"width"`
	Height float64       `json:"height" yaml:"height"`
	Action HotspotAction `json:"action" yaml:"action"`
	Target string        `json:"target,omitempty" yaml:"target,omitempty"`
	Title  string        `json:"title,omitempty" yaml:"title,omitempty"`
	ZIndex int           `json:"zindex,omitempty" yaml:"zindex,omitempty"`
}

// Rect 返回热点的几何区域
func (h Hotspot) Rect() Rect {
	return Rect{X: h.X, Y: h.Y, Width: h.Width, Height: h.Height}
}

// Rect 归一化矩形
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

const rectEpsilon = 1e-9

// Valid 矩形是否落在单位正方形内且宽高为正
func (r Rect) Valid() bool {
	if !(r.Width > 0 && r.Height > 0) {
		return false
	}
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		if v < -rectEpsilon || v > 1+rectEpsilon {
			return false
		}
	}
	return r.X+r.Width <= 1+rectEpsilon && r.Y+r.Height <= 1+rectEpsilon
}

// Contains 点是否在矩形内（含边界）
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// RectFromCorners 由两个角点构造矩形
func RectFromCorners(ax, ay, bx, by float64) Rect {
	return Rect{
		X:      math.Min(ax, bx),
		Y:      math.Min(ay, by),
		Width:  math.Abs(bx - ax),
		Height: math.Abs(by - ay),
	}
}

// HitTest 返回点命中的最上层热点（zindex 大者优先，相同时后绘制者优先）
func (c *Content) HitTest(x, y float64) (Hotspot, bool) {
	var (
		best  Hotspot
		found bool
	)
	for _, h := range c.Hotspots {
		if !h.Rect().Contains(x, y) {
			continue
		}
		if !found || h.ZIndex >= best.ZIndex {
			best, found = h, true
		}
	}
	return best, found
}
