package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/innovationcore/openslide"
)

func newThumbnailCmd() *cobra.Command {
	var which, out string

	cmd := &cobra.Command{
		Use:   "thumbnail <path>",
		Short: "dump the embedded label or macro image to a PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openslide.Open(args[0], openslide.Options{})
			if err != nil {
				return err
			}
			defer d.Close()

			var thumb openslide.Thumbnail
			var present bool
			switch which {
			case "label":
				thumb, present, err = d.LabelBGRA()
			case "macro":
				thumb, present, err = d.MacroBGRA()
			default:
				return fmt.Errorf("isyntax-dump: --which must be \"label\" or \"macro\", got %q", which)
			}
			if err != nil {
				return err
			}
			if !present {
				fmt.Printf("no %s image present\n", which)
				return nil
			}
			fmt.Printf("%s image: %dx%d, rotation %d degrees\n", which, thumb.Width, thumb.Height, thumb.RotationDegrees)
			return writeBGRAPng(out, thumb.Width, thumb.Height, thumb.BGRA)
		},
	}

	cmd.Flags().StringVar(&which, "which", "label", "which image to dump (label|macro)")
	cmd.Flags().StringVar(&out, "out", "thumbnail.png", "output PNG path")
	return cmd
}
