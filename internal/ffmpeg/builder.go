// Package ffmpeg builds ffmpeg and ffprobe argument lists for reading raw
// frames from a camera and for encoding raw frames into a recording.
package ffmpeg

import (
	"fmt"
	"strconv"
)

const (
	// Binary is the ffmpeg executable looked up on PATH.
	Binary = "ffmpeg"
	// ProbeBinary is the ffprobe executable looked up on PATH.
	ProbeBinary = "ffprobe"

	// PixFmt is the packed layout exchanged over pipes.
	PixFmt = "bgr24"
)

// Base returns ffmpeg's leading arguments. The level+ prefix makes every
// stderr line carry a [level] tag for ParseLogLevel.
func Base() []string {
	return []string{Binary, "-hide_banner", "-nostdin", "-loglevel", "level+warning"}
}

// BuildCaptureArgs builds an argv that reads the camera and writes raw frames to stdout.
func BuildCaptureArgs(p CaptureParams) []string {
	args := Base()
	args = append(args, optionArgs(p.Options)...)
	args = append(args, "-f", "v4l2")
	if p.InputFormat != "" {
		args = append(args, "-input_format", p.InputFormat)
	}
	if p.Width > 0 && p.Height > 0 {
		args = append(args, "-video_size", Resolution(p.Width, p.Height))
	}
	if p.FPS > 0 {
		args = append(args, "-framerate", formatFPS(p.FPS))
	}
	args = append(args, "-i", p.DevicePath, "-an")
	if p.Width > 0 && p.Height > 0 {
		// Drivers may pick the nearest supported mode; scale so every frame has the requested size
		args = append(args, "-s", Resolution(p.Width, p.Height))
	}
	args = append(args, "-f", "rawvideo", "-pix_fmt", PixFmt, "pipe:1")
	return args
}

// BuildEncodeArgs builds an argv that reads raw frames from stdin and writes
// p.OutputPath. Callers reserve OutputPath first, so -y only replaces that
// empty placeholder.
func BuildEncodeArgs(p EncodeParams) ([]string, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", p.Width, p.Height)
	}
	if p.FPS <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", p.FPS)
	}
	if p.OutputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}

	container := p.Container
	if container == "" {
		container = ContainerAVI
	}
	encoder := p.Encoder
	if encoder == "" {
		encoder = container.DefaultEncoder()
	}

	// Base includes -nostdin which would stop ffmpeg from reading frames
	args := []string{Binary, "-hide_banner", "-loglevel", "level+warning", "-y"}
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", PixFmt,
		"-video_size", Resolution(p.Width, p.Height),
		"-framerate", formatFPS(p.FPS),
		"-i", "pipe:0",
		"-c:v", encoder,
	)

	switch encoder {
	case "mpeg4":
		// XVID fourcc keeps AVI files playable in legacy players
		args = append(args, "-vtag", "XVID", "-pix_fmt", "yuv420p")
		if p.Bitrate != "" {
			args = append(args, "-b:v", p.Bitrate)
		} else {
			args = append(args, "-q:v", "4")
		}
	case "libx264":
		args = append(args, "-pix_fmt", "yuv420p")
		if p.Preset != "" {
			args = append(args, "-preset", p.Preset)
		}
		if p.CRF > 0 {
			args = append(args, "-crf", strconv.Itoa(p.CRF))
		}
		if container == ContainerMP4 {
			// moov atom up front so partial downloads start playing
			args = append(args, "-movflags", "+faststart")
		}
	}

	args = append(args, "-f", string(container), p.OutputPath)
	return args, nil
}

// BuildProbeArgs builds an ffprobe argv describing the first video stream of a v4l2 device.
func BuildProbeArgs(devicePath string) []string {
	return []string{
		ProbeBinary, "-hide_banner", "-v", "error",
		"-f", "v4l2",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,pix_fmt,codec_name",
		"-of", "json",
		devicePath,
	}
}

// Resolution formats dimensions the way ffmpeg's -video_size expects.
func Resolution(width, height int) string {
	return strconv.Itoa(width) + "x" + strconv.Itoa(height)
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
