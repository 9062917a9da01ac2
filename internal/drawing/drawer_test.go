package drawing

import (
	"math"
	"testing"
)

var canvas = Canvas{Left: 100, Top: 50, Width: 1000, Height: 500}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNormalizeUsesEventCanvas(t *testing.T) {
	p := canvas.Normalize(Point{X: 600, Y: 300})
	if !near(p.X, 0.5) || !near(p.Y, 0.5) {
		t.Fatalf("got=%+v want=(0.5,0.5)", p)
	}
	resized := Canvas{Left: 0, Top: 0, Width: 500, Height: 250}
	p = resized.Normalize(Point{X: 250, Y: 125})
	if !near(p.X, 0.5) || !near(p.Y, 0.5) {
		t.Fatalf("after resize got=%+v", p)
	}
}

func TestDrawEmitsHotspotAboveThreshold(t *testing.T) {
	d := NewDrawer(true)
	if !d.PointerDown(Point{X: 200, Y: 100}, canvas) {
		t.Fatal("pointer down should request clearing the selection")
	}
	// 0.03 x 0.03
	d.PointerMove(Point{X: 230, Y: 115}, canvas)
	draft, ok := d.PointerUp()
	if !ok {
		t.Fatal("expected a hotspot draft")
	}
	r := draft.Rect
	if !near(r.X, 0.1) || !near(r.Y, 0.1) || !near(r.Width, 0.03) || !near(r.Height, 0.03) {
		t.Fatalf("rect: got=%+v", r)
	}
	if draft.Title != "Nuevo Hotspot" {
		t.Fatalf("title: got=%q", draft.Title)
	}
	if d.State() != Idle {
		t.Fatal("pointer up should return to idle")
	}
}

func TestDrawDiscardsThinRect(t *testing.T) {
	d := NewDrawer(true)
	d.PointerDown(Point{X: 200, Y: 100}, canvas)
	// 0.01 x 0.5
	d.PointerMove(Point{X: 210, Y: 350}, canvas)
	if _, ok := d.PointerUp(); ok {
		t.Fatal("rect narrower than the threshold must be discarded")
	}

	d.PointerDown(Point{X: 200, Y: 100}, canvas)
	if _, ok := d.PointerUp(); ok {
		t.Fatal("click without movement must not create a hotspot")
	}
}

func TestDrawReversedDragNormalizesCorners(t *testing.T) {
	d := NewDrawer(true)
	d.PointerDown(Point{X: 600, Y: 300}, canvas)
	d.PointerMove(Point{X: 350, Y: 175}, canvas)
	draft, ok := d.PointerUp()
	if !ok {
		t.Fatal("expected draft")
	}
	if !near(draft.Rect.X, 0.25) || !near(draft.Rect.Y, 0.25) || !near(draft.Rect.Width, 0.25) {
		t.Fatalf("got=%+v", draft.Rect)
	}
}

func TestMoveClampsOutsideEveryEdge(t *testing.T) {
	tests := []struct {
		name string
		move Point
	}{
		{"left", Point{X: canvas.Left - 50, Y: 300}},
		{"right", Point{X: canvas.Left + canvas.Width + 50, Y: 300}},
		{"top", Point{X: 600, Y: canvas.Top - 50}},
		{"bottom", Point{X: 600, Y: canvas.Top + canvas.Height + 50}},
	}
	for _, tt := range tests {
		d := NewDrawer(true)
		d.PointerDown(Point{X: 600, Y: 300}, canvas)
		d.PointerMove(tt.move, canvas)
		r := d.Preview()
		if !r.Valid() {
			t.Fatalf("%s: preview escaped the unit square: %+v", tt.name, r)
		}
		if r.X+r.Width > 1+1e-9 || r.Y+r.Height > 1+1e-9 || r.X < 0 || r.Y < 0 {
			t.Fatalf("%s: got=%+v", tt.name, r)
		}
	}
}

func TestPointerDownOutsideCanvasIgnored(t *testing.T) {
	tests := []struct {
		name string
		down Point
	}{
		{"left", Point{X: canvas.Left - 1, Y: 300}},
		{"above", Point{X: 600, Y: canvas.Top - 50}},
		{"right", Point{X: canvas.Left + canvas.Width + 1, Y: 300}},
		{"below", Point{X: 600, Y: canvas.Top + canvas.Height + 1}},
	}
	for _, tt := range tests {
		d := NewDrawer(true)
		if d.PointerDown(tt.down, canvas) {
			t.Fatalf("%s: pointer down outside the canvas must be ignored", tt.name)
		}
		if d.State() != Idle {
			t.Fatalf("%s: state got=%v want=idle", tt.name, d.State())
		}
		d.PointerMove(Point{X: 400, Y: 250}, canvas)
		if _, ok := d.PointerUp(); ok {
			t.Fatalf("%s: no draft expected", tt.name)
		}
	}

	// 边界上的点仍然有效
	d := NewDrawer(true)
	if !d.PointerDown(Point{X: canvas.Left, Y: canvas.Top}, canvas) {
		t.Fatal("pointer down on the top-left corner should start drawing")
	}
	d.PointerMove(Point{X: 300, Y: 200}, canvas)
	draft, ok := d.PointerUp()
	if !ok || !draft.Rect.Valid() {
		t.Fatalf("corner draft: ok=%v rect=%+v", ok, draft.Rect)
	}
}

func TestPointerLeaveAborts(t *testing.T) {
	d := NewDrawer(true)
	d.PointerDown(Point{X: 200, Y: 100}, canvas)
	d.PointerMove(Point{X: 500, Y: 400}, canvas)
	d.PointerLeave()
	if d.State() != Idle {
		t.Fatal("leave should return to idle")
	}
	if _, ok := d.PointerUp(); ok {
		t.Fatal("no draft after leave")
	}
}

func TestDisabledDrawerIgnoresInput(t *testing.T) {
	d := NewDrawer(false)
	if d.PointerDown(Point{X: 200, Y: 100}, canvas) {
		t.Fatal("disabled drawer must ignore pointer down")
	}
	if d.State() != Idle {
		t.Fatal("state changed while disabled")
	}

	d.SetEnabled(true)
	d.PointerDown(Point{X: 200, Y: 100}, canvas)
	d.SetEnabled(false)
	if d.State() != Idle {
		t.Fatal("disabling must abort drawing")
	}
}
