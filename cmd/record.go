package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/smazurov/facegate/internal/capture"
	"github.com/smazurov/facegate/internal/detect"
	"github.com/smazurov/facegate/internal/logging"
	"github.com/smazurov/facegate/internal/recorder"
	"github.com/smazurov/facegate/internal/sink"
)

const stopGrace = 10 * time.Second

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the camera until interrupted",
		Long: `Runs one recording session without the API server. Frames with a detected face are ` +
			`written to a new file in the recordings directory until Ctrl+C or --duration elapses.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(_ *cobra.Command, _ []string, opts *Options) {
			logger := logging.GetLogger("record")
			if err := runRecord(context.Background(), opts, duration); err != nil {
				logger.Error("Recording failed", "error", err)
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long, 0 records until interrupted")
	return cmd
}

func buildRecorder(opts *Options) (*recorder.Controller, *detect.Detector, error) {
	captureCfg, err := opts.CaptureConfig()
	if err != nil {
		return nil, nil, err
	}
	detectCfg, err := opts.DetectorConfig()
	if err != nil {
		return nil, nil, err
	}
	recorderCfg, err := opts.RecorderConfig()
	if err != nil {
		return nil, nil, err
	}
	// Nobody watches previews here
	recorderCfg.PreviewInterval = 0

	source, err := capture.New(captureCfg, logging.GetLogger("capture"))
	if err != nil {
		return nil, nil, err
	}
	sinks, err := sink.New(opts.SinkConfig(), logging.GetLogger("sink"))
	if err != nil {
		return nil, nil, err
	}
	detector, err := detect.Open(detectCfg, logging.GetLogger("detect"))
	if err != nil {
		return nil, nil, err
	}
	return recorder.New(recorderCfg, source, detector, sinks, nil, logging.GetLogger("recorder")), detector, nil
}

func runRecord(ctx context.Context, opts *Options, duration time.Duration) error {
	rec, detector, err := buildRecorder(opts)
	if err != nil {
		return err
	}
	defer detector.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	started, err := rec.Start(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Recording to %s (%dx%d @ %.1f fps), Ctrl+C to stop\n",
		started.Path, started.Width, started.Height, started.FPS)

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("Waiting for a face"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	ended := watchSession(ctx, rec, bar)
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	if ended {
		last := rec.Status().Last
		if last == nil {
			return errors.New("recording ended unexpectedly")
		}
		return fmt.Errorf("recording ended (%s): %s", last.Reason, last.Error)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	res, err := rec.Stop(stopCtx)
	if errors.Is(err, recorder.ErrNotRecording) {
		// Ended on its own between the last poll and Stop
		if last := rec.Status().Last; last != nil && last.Reason != recorder.ReasonRequested {
			return fmt.Errorf("recording ended (%s): %s", last.Reason, last.Error)
		}
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Saved %s: %d of %d frames had a face\n", res.Path, res.FramesWritten, res.FramesRead)
	return nil
}

// watchSession updates the spinner until ctx is done. It reports true when
// the session ended on its own first.
func watchSession(ctx context.Context, rec *recorder.Controller, bar *progressbar.ProgressBar) bool {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			st := rec.Status()
			if st.State != recorder.Recording || st.Session == nil {
				return true
			}
			_ = bar.Set64(int64(st.Session.FramesWritten))
			if st.Session.FramesWritten > 0 {
				bar.Describe(fmt.Sprintf("Recording (%d frames read)", st.Session.FramesRead))
			}
		}
	}
}
