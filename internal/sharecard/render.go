package sharecard

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Card geometry. Text is laid out on a small canvas with the 7x13 bitmap
// face and then scaled up, which keeps glyphs crisp without a font file.
const (
	baseWidth  = 300
	baseHeight = 200
	scale      = 4

	Width  = baseWidth * scale
	Height = baseHeight * scale
)

var (
	colorBackground = color.RGBA{R: 0x11, G: 0x18, B: 0x27, A: 0xff}
	colorPanel      = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
	colorText       = color.RGBA{R: 0xf9, G: 0xfa, B: 0xfb, A: 0xff}
	colorMuted      = color.RGBA{R: 0x9c, G: 0xa3, B: 0xaf, A: 0xff}
	colorProfit     = color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}
	colorLoss       = color.RGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff}
)

func amountColor(negative bool) color.Color {
	if negative {
		return colorLoss
	}
	return colorProfit
}

// Render rasterises the card.
func Render(card Card) *image.RGBA {
	small := image.NewRGBA(image.Rect(0, 0, baseWidth, baseHeight))
	draw.Draw(small, small.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)
	draw.Draw(small, image.Rect(8, 8, baseWidth-8, baseHeight-8), image.NewUniform(colorPanel), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	text := func(x, y int, c color.Color, s string) {
		d := &font.Drawer{
			Dst:  small,
			Src:  image.NewUniform(c),
			Face: face,
			Dot:  fixed.P(x, y),
		}
		d.DrawString(s)
	}
	centered := func(y int, c color.Color, s string) {
		w := font.MeasureString(face, s).Ceil()
		text((baseWidth-w)/2, y, c, s)
	}

	centered(30, colorMuted, strings.ToUpper(card.Month.String())+" P/L")
	centered(58, amountColor(card.Total.IsNegative()), FormatCompact(card.Total))

	stats := card.Stats
	rows := []struct {
		label string
		value string
		col   color.Color
	}{
		{"Trading days", strconv.Itoa(stats.TradingDays), colorText},
		{"Win rate", stats.FormatWinRate(), colorText},
		{"Best day", FormatCompact(stats.BestDay), amountColor(stats.BestDay.IsNegative())},
		{"Worst day", FormatCompact(stats.WorstDay), amountColor(stats.WorstDay.IsNegative())},
		{"Trades", strconv.Itoa(stats.TotalTrades), colorText},
	}
	y := 86
	for _, r := range rows {
		text(28, y, colorMuted, r.label)
		w := font.MeasureString(face, r.value).Ceil()
		text(baseWidth-28-w, y, r.col, r.value)
		y += 16
	}

	if len(card.Winners) > 0 {
		centered(y+8, colorProfit, "Winners: "+strings.Join(card.Winners, "  "))
	}

	big := image.NewRGBA(image.Rect(0, 0, Width, Height))
	xdraw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), xdraw.Src, nil)
	return big
}

// RenderPNG writes the card as a PNG.
func RenderPNG(w io.Writer, card Card) error {
	if err := png.Encode(w, Render(card)); err != nil {
		return fmt.Errorf("encode share card: %w", err)
	}
	return nil
}
