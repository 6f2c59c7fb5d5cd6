// Package process provides subprocess lifecycle management for helpers that
// exchange data over their standard streams (ffmpeg encoders and decoders,
// classifier workers).
//
// A Process offers:
//   - Optional stdin/stdout pipes for frame data
//   - Stderr streamed into a logger with pluggable log-level parsing
//   - Finish: close stdin and let the child flush on its own
//   - Stop: SIGINT, configurable graceful timeout, then SIGKILL of the process group
//
// Example:
//
//	p := process.New("sink", []string{"ffmpeg", "-f", "rawvideo", "-i", "-", "out.avi"}, logger,
//	    process.WithStdin(),
//	    process.WithLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel),
//	)
//	if err := p.Start(); err != nil {
//	    return err
//	}
//	defer p.Finish()
package process
