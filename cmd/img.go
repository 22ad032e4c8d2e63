package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/argentwm/argent/internal/control"
	"github.com/argentwm/argent/wire"
	"github.com/spf13/cobra"
)

var (
	imgOutput string
	imgX      int
	imgY      int

	imgCmd = &cobra.Command{
		Use:   "img PATH",
		Short: "Show an image as a static surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			client := control.NewClient(control.SocketPath(wire.SocketPath()))
			data, err := client.MapImage(control.MapImageArgs{
				Path:   path,
				Output: imgOutput,
				X:      imgX,
				Y:      imgY,
			})
			if err != nil {
				return err
			}
			fmt.Printf("mapped %vx%v on %v\n", data.Width, data.Height, data.Output)
			return nil
		},
	}
)

func init() {
	imgCmd.Flags().StringVar(&imgOutput, "output", "", "output to show the image on")
	imgCmd.Flags().IntVar(&imgX, "x", 0, "x position")
	imgCmd.Flags().IntVar(&imgY, "y", 0, "y position")
}
