package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/innovationcore/openslide"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "print level geometry and header metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openslide.Open(args[0], openslide.Options{})
			if err != nil {
				return err
			}
			defer d.Close()

			info, err := d.Info()
			if err != nil {
				return err
			}

			fmt.Printf("levels:       %d\n", info.LevelCount)
			fmt.Printf("block size:   %dx%d\n", info.BlockWidth, info.BlockHeight)
			fmt.Printf("tile size:    %dx%d\n", info.TileWidth, info.TileHeight)
			fmt.Printf("mpp known:    %v (x=%.6f y=%.6f)\n", info.MppKnown, info.MppX, info.MppY)
			fmt.Printf("icc profile:  %d bytes\n", len(info.ICCProfile))
			for _, lvl := range info.Levels {
				fmt.Printf("  scale %2d: %4dx%-4d tiles, downsample %d\n", lvl.Scale, lvl.WidthInTiles, lvl.HeightInTiles, lvl.DownsampleFactor)
			}
			if alts := d.AlternateImages(); len(alts) > 0 {
				fmt.Printf("alternate WSI images: %d\n", len(alts))
				for i, a := range alts {
					fmt.Printf("  [%d] %dx%d, %d levels\n", i, a.Width, a.Height, a.LevelCount)
				}
			}
			return nil
		},
	}
}
