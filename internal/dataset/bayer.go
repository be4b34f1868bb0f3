package dataset

import (
	"image"

	"github.com/HarborC/kalibrlib/internal/imaging"
)

type bayerColor uint8

const (
	red bayerColor = iota
	green
	blue
)

// bayerPattern holds the colour of the 2x2 tile in row-major order.
type bayerPattern [4]bayerColor

var (
	patternRGGB = bayerPattern{red, green, green, blue}
	patternBGGR = bayerPattern{blue, green, green, red}
	patternGBRG = bayerPattern{green, blue, red, green}
	patternGRBG = bayerPattern{green, red, blue, green}
)

func (p bayerPattern) at(x, y int) bayerColor {
	return p[(y&1)*2+(x&1)]
}

// convertBayer demosaics bilinearly: each missing colour is the mean of
// the 3x3 neighbours of that colour, with mirrored borders so the tile
// parity holds at the edges. Mosaics smaller than one tile pass through.
func convertBayer(p bayerPattern) func(*image.Gray, rawPixels) {
	return func(dst *image.Gray, src rawPixels) {
		if src.width < 2 || src.height < 2 {
			convertMono8(dst, src)
			return
		}
		for y := 0; y < src.height; y++ {
			out := dst.Pix[y*dst.Stride:]
			for x := 0; x < src.width; x++ {
				own := p.at(x, y)
				var sum, n [3]int
				for dy := -1; dy <= 1; dy++ {
					yy := mirror(y+dy, src.height)
					for dx := -1; dx <= 1; dx++ {
						xx := mirror(x+dx, src.width)
						c := p.at(xx, yy)
						if c == own {
							continue
						}
						sum[c] += int(src.data[yy*src.step+xx])
						n[c]++
					}
				}

				var rgb [3]uint8
				for c := range rgb {
					if bayerColor(c) == own {
						rgb[c] = src.data[y*src.step+x]
					} else if n[c] > 0 {
						rgb[c] = uint8((sum[c] + n[c]/2) / n[c])
					}
				}
				out[x] = imaging.Luma(rgb[red], rgb[green], rgb[blue])
			}
		}
	}
}

// mirror reflects i into [0, n) without repeating the edge sample.
func mirror(i, n int) int {
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - 2 - i
	}
	return i
}
