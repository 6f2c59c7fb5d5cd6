package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/facegate/internal/ffmpeg"
	"github.com/smazurov/facegate/internal/logging"
)

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe [device]",
		Short: "Print a camera's native size and frame rate",
		Long:  `Runs ffprobe against the device (the configured capture device by default) and prints what a recording would use.`,
		Args:  cobra.MaximumNArgs(1),
		Run: humacli.WithOptions(func(_ *cobra.Command, args []string, opts *Options) {
			device := opts.CaptureDevice
			if len(args) == 1 {
				device = args[0]
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			info, err := ffmpeg.Probe(ctx, device)
			if err != nil {
				logging.GetLogger("probe").Error("Probe failed", "device", device, "error", err)
				os.Exit(1)
			}
			fmt.Println(formatStreamInfo(device, info))
		}),
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long")
	return cmd
}

func formatStreamInfo(device string, info ffmpeg.StreamInfo) string {
	fps := "unknown fps"
	if info.FPS > 0 {
		fps = fmt.Sprintf("%.2f fps, %s/frame", info.FPS, info.FrameInterval().Round(time.Microsecond))
	}
	return fmt.Sprintf("%s: %dx%d @ %s (%s, %s)", device, info.Width, info.Height, fps, info.CodecName, info.PixFmt)
}
