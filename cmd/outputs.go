package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/argentwm/argent/internal/control"
	"github.com/argentwm/argent/wire"
	"github.com/spf13/cobra"
)

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "List the running compositor's outputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := control.NewClient(control.SocketPath(wire.SocketPath()))
		infos, err := client.Outputs()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMODE\tPOSITION\tSCALE\tENABLED\tSURFACES")
		for _, o := range infos {
			fmt.Fprintf(w, "%v\t%vx%v@%v\t%v,%v\t%v\t%v\t%v\n",
				o.Name, o.Width, o.Height, o.Refresh, o.X, o.Y, o.Scale, o.Enabled, o.Surfaces)
		}
		return w.Flush()
	},
}
