package main

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/innovationcore/openslide"
)

func newTileCmd() *cobra.Command {
	var scale, tx, ty int
	var out string

	cmd := &cobra.Command{
		Use:   "tile <path>",
		Short: "decode one tile to a BGRA-derived PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openslide.Open(args[0], openslide.Options{})
			if err != nil {
				return err
			}
			defer d.Close()

			bgra, err := d.ReadTileBGRA(scale, tx, ty)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			return writeBGRAPng(out, info.TileWidth, info.TileHeight, bgra)
		},
	}

	cmd.Flags().IntVar(&scale, "scale", 0, "pyramid level")
	cmd.Flags().IntVar(&tx, "x", 0, "tile column")
	cmd.Flags().IntVar(&ty, "y", 0, "tile row")
	cmd.Flags().StringVar(&out, "out", "tile.png", "output PNG path")
	return cmd
}

// writeBGRAPng converts a BGRA byte buffer to an RGBA image.Image and
// writes it to path as a PNG, the one stdlib-only step in this command:
// nothing in the retrieval pack implements a BGRA-aware PNG encoder.
func writeBGRAPng(path string, width, height int, bgra []byte) error {
	if len(bgra) != width*height*4 {
		return fmt.Errorf("isyntax-dump: tile buffer is %d bytes, expected %d", len(bgra), width*height*4)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		b, g, r, a := bgra[i*4], bgra[i*4+1], bgra[i*4+2], bgra[i*4+3]
		img.Pix[i*4+0] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = a
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
