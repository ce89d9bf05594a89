package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available scanners",
	Long: `List the scanners SANE can see, one per line.

With --local-only=false, network backends (net, airscan, escl) are asked
for remote devices as well, which can take several seconds.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := openSANE()
		if err != nil {
			return err
		}
		defer ctx.Close()

		devices, err := listDevices(ctx, globalConfig.LocalOnly)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(devices) == 0 {
			fmt.Fprintln(out, "No scanners were identified.")
			return nil
		}
		for _, d := range devices {
			fmt.Fprintf(out, "device `%s' is a %s %s %s\n", d.Name, d.Vendor, d.Model, d.Type)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
