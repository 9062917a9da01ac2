// internal/services/render_service.go
package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/Corphon/HotspotDeck/internal/editor"
	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

const (
	DefaultOverlayWidth  = 1280
	DefaultOverlayHeight = 720
	maxOverlaySide       = 4096
)

// OverlayOptions 热点叠加图参数
type OverlayOptions struct {
	Width      int
	Height     int
	Selected   string       // 高亮的热点
	Draft      *models.Rect // 正在绘制的矩形
	Background bool         // 图片内容时绘制原图
}

// RenderService 将内容的热点渲染成 PNG，供审阅或缩略图使用
type RenderService struct {
	mediaDir string
	logger   *utils.Logger

	fontOnce sync.Once
	fontFace font.Face
	fontErr  error
}

// NewRenderService 创建渲染服务，mediaDir 对应 /media/ 路径
func NewRenderService(mediaDir string, logger *utils.Logger) *RenderService {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &RenderService{mediaDir: mediaDir, logger: logger}
}

func (r *RenderService) face() (font.Face, error) {
	r.fontOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			r.fontErr = err
			return
		}
		r.fontFace = truetype.NewFace(f, &truetype.Options{Size: 14, Hinting: font.HintingFull})
	})
	return r.fontFace, r.fontErr
}

// RenderOverlay 渲染内容上的全部热点
func (r *RenderService) RenderOverlay(c *models.Content, opts OverlayOptions) ([]byte, error) {
	if c == nil {
		return nil, apperrors.NewValidationError("内容不能为空", nil)
	}
	if opts.Width <= 0 {
		opts.Width = DefaultOverlayWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultOverlayHeight
	}
	if opts.Width > maxOverlaySide || opts.Height > maxOverlaySide {
		return nil, apperrors.NewValidationError(fmt.Sprintf("图片尺寸不能超过 %d", maxOverlaySide), nil)
	}

	w, h := float64(opts.Width), float64(opts.Height)
	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(color.NRGBA{R: 0x1a, G: 0x1a, B: 0x2e, A: 0xff})
	dc.Clear()

	if opts.Background && c.Type == models.ContentTypeImage {
		if bg, err := r.loadBackground(c.Src, opts.Width, opts.Height); err == nil {
			dc.DrawImage(bg, 0, 0)
		} else {
			r.logger.Debug("Overlay background skipped", map[string]interface{}{
				"content_id": c.ID,
				"src":        c.Src,
				"error":      err,
			})
		}
	}

	face, err := r.face()
	if err != nil {
		return nil, apperrors.NewProcessingError("加载字体失败", err)
	}
	dc.SetFontFace(face)

	for _, hs := range c.Hotspots {
		x, y := hs.X*w, hs.Y*h
		rw, rh := hs.Width*w, hs.Height*h

		fill := color.NRGBA{R: 0x4e, G: 0xcc, B: 0xa3, A: 0x40}
		stroke := color.NRGBA{R: 0x4e, G: 0xcc, B: 0xa3, A: 0xff}
		if hs.Action == models.ActionPlay {
			fill = color.NRGBA{R: 0xe9, G: 0x45, B: 0x60, A: 0x40}
			stroke = color.NRGBA{R: 0xe9, G: 0x45, B: 0x60, A: 0xff}
		}
		if hs.ID == opts.Selected {
			fill.A = 0x80
		}

		dc.DrawRectangle(x, y, rw, rh)
		dc.SetColor(fill)
		dc.FillPreserve()
		dc.SetColor(stroke)
		dc.SetLineWidth(2)
		if hs.ID == opts.Selected {
			dc.SetLineWidth(4)
		}
		dc.Stroke()

		dc.SetColor(color.White)
		dc.DrawStringAnchored(hotspotLabel(hs), x+4, y+4, 0, 1)
	}

	if opts.Draft != nil {
		d := opts.Draft
		dc.SetDash(6, 4)
		dc.SetLineWidth(2)
		dc.SetColor(color.White)
		dc.DrawRectangle(d.X*w, d.Y*h, d.Width*w, d.Height*h)
		dc.Stroke()
		dc.SetDash()
	}

	var out bytes.Buffer
	if err := dc.EncodePNG(&out); err != nil {
		return nil, apperrors.NewProcessingError("编码 PNG 失败", err)
	}
	return out.Bytes(), nil
}

// loadBackground 读取 /media/ 下的图片并缩放到画布大小
func (r *RenderService) loadBackground(src string, width, height int) (image.Image, error) {
	if r.mediaDir == "" || !strings.HasPrefix(src, editor.MediaPathPrefix) {
		return nil, fmt.Errorf("不是本地媒体: %s", src)
	}
	name := filepath.Clean("/" + strings.TrimPrefix(src, editor.MediaPathPrefix))
	raw, err := os.ReadFile(filepath.Join(r.mediaDir, name))
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst, nil
}
