package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgekit/facegate/internal/capture"
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List available capture devices",
	Run: func(cmd *cobra.Command, args []string) {
		devices := capture.Devices()
		if len(devices) == 0 {
			fmt.Println("No capture devices found")
			return
		}
		for _, d := range devices {
			if d.Name != "" {
				fmt.Printf("%s  %s\n", d.Path, d.Name)
			} else {
				fmt.Println(d.Path)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(camerasCmd)
}
