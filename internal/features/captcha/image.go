package captcha

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	imageScale = 5
	imagePad   = 4
	noiseDots  = 400
)

var (
	background = color.RGBA{R: 0xf4, G: 0xf1, B: 0xea, A: 0xff}
	ink        = []color.RGBA{
		{R: 0x1f, G: 0x2a, B: 0x44, A: 0xff},
		{R: 0x6b, G: 0x1d, B: 0x2f, A: 0xff},
		{R: 0x1b, G: 0x4d, B: 0x3e, A: 0xff},
	}
)

// Render draws code with the built-in bitmap face, upscales it and sprinkles
// noise over the result. The returned bytes are a PNG.
func Render(code string) ([]byte, error) {
	face := basicfont.Face7x13
	w := len(code)*face.Advance + 2*imagePad
	h := face.Height + 2*imagePad

	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(small, small.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	for i, r := range code {
		d := &font.Drawer{
			Dst:  small,
			Src:  image.NewUniform(ink[rand.IntN(len(ink))]),
			Face: face,
			Dot:  fixed.P(imagePad+i*face.Advance, imagePad+face.Ascent+rand.IntN(3)-1),
		}
		d.DrawString(string(r))
	}

	big := image.NewRGBA(image.Rect(0, 0, w*imageScale, h*imageScale))
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)

	bounds := big.Bounds()
	for range noiseDots {
		x, y := rand.IntN(bounds.Dx()), rand.IntN(bounds.Dy())
		c := ink[rand.IntN(len(ink))]
		big.SetRGBA(x, y, c)
		if x+1 < bounds.Dx() {
			big.SetRGBA(x+1, y, c)
		}
	}
	// Two strike lines across the glyphs.
	for range 2 {
		y := imagePad*imageScale + rand.IntN(face.Height*imageScale)
		c := ink[rand.IntN(len(ink))]
		for x := 0; x < bounds.Dx(); x++ {
			big.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, big); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
