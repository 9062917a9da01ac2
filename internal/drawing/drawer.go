// internal/drawing/drawer.go
package drawing

import (
	"github.com/Corphon/HotspotDeck/internal/editor"
	"github.com/Corphon/HotspotDeck/internal/models"
)

// MinSize 宽高都必须超过该阈值才会生成热点
const MinSize = 0.02

// Canvas 内容显示区域的像素边界，每个事件都重新传入
type Canvas struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point 像素坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Normalize 将像素坐标映射到内容坐标系（未夹取）
func (c Canvas) Normalize(p Point) Point {
	var out Point
	if c.Width > 0 {
		out.X = (p.X - c.Left) / c.Width
	}
	if c.Height > 0 {
		out.Y = (p.Y - c.Top) / c.Height
	}
	return out
}

// State 绘制状态
type State int

const (
	Idle State = iota
	Drawing
)

func (s State) String() string {
	if s == Drawing {
		return "drawing"
	}
	return "idle"
}

// Drawer 热点绘制状态机
type Drawer struct {
	state   State
	anchor  Point
	current Point
	enabled bool
}

// NewDrawer 创建绘制状态机
func NewDrawer(enabled bool) *Drawer {
	return &Drawer{enabled: enabled}
}

// SetEnabled 只读模式或代码视图下禁用，禁用时放弃正在进行的绘制
func (d *Drawer) SetEnabled(enabled bool) {
	d.enabled = enabled
	if !enabled {
		d.Reset()
	}
}

// Enabled 是否响应指针事件
func (d *Drawer) Enabled() bool { return d.enabled }

// State 当前状态
func (d *Drawer) State() State { return d.state }

// PointerDown 开始绘制，返回 true 表示调用方应清除热点选中
// 锚点必须落在内容区域内，之后不再夹取
func (d *Drawer) PointerDown(p Point, canvas Canvas) bool {
	if !d.enabled {
		return false
	}
	n := canvas.Normalize(p)
	if !inUnit(n.X) || !inUnit(n.Y) {
		return false
	}
	d.state = Drawing
	d.anchor = n
	d.current = n
	return true
}

// PointerMove 更新当前点，夹取到 [0,1]
func (d *Drawer) PointerMove(p Point, canvas Canvas) {
	if !d.enabled || d.state != Drawing {
		return
	}
	n := canvas.Normalize(p)
	d.current = Point{X: clamp01(n.X), Y: clamp01(n.Y)}
}

// PointerUp 结束绘制，超过阈值时返回热点草稿
func (d *Drawer) PointerUp() (editor.HotspotDraft, bool) {
	if d.state != Drawing {
		return editor.HotspotDraft{}, false
	}
	rect := d.Preview()
	d.Reset()
	if rect.Width > MinSize && rect.Height > MinSize {
		return editor.HotspotDraft{Rect: rect, Title: models.DefaultHotspotTitle}, true
	}
	return editor.HotspotDraft{}, false
}

// PointerLeave 指针离开区域，放弃绘制
func (d *Drawer) PointerLeave() {
	d.Reset()
}

// Preview 正在绘制的矩形
func (d *Drawer) Preview() models.Rect {
	return models.RectFromCorners(d.anchor.X, d.anchor.Y, d.current.X, d.current.Y)
}

// Reset 回到空闲状态（切换内容时调用）
func (d *Drawer) Reset() {
	d.state = Idle
	d.anchor = Point{}
	d.current = Point{}
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
