package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoVideoStream is returned when ffprobe finds no video stream on the input.
var ErrNoVideoStream = errors.New("no video stream")

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		PixFmt       string `json:"pix_fmt"`
		CodecName    string `json:"codec_name"`
	} `json:"streams"`
}

// Probe runs ffprobe against a v4l2 device and returns its native stream geometry.
func Probe(ctx context.Context, devicePath string) (StreamInfo, error) {
	return probeWith(ctx, BuildProbeArgs(devicePath))
}

func probeWith(ctx context.Context, argv []string) (StreamInfo, error) {
	if _, err := exec.LookPath(argv[0]); err != nil {
		return StreamInfo{}, fmt.Errorf("%s not found: %w", argv[0], err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return StreamInfo{}, fmt.Errorf("ffprobe: %s: %w", msg, err)
		}
		return StreamInfo{}, fmt.Errorf("ffprobe: %w", err)
	}
	return ParseProbeOutput(out)
}

// ParseProbeOutput decodes ffprobe's JSON stream listing.
func ParseProbeOutput(data []byte) (StreamInfo, error) {
	var res probeOutput
	if err := json.Unmarshal(data, &res); err != nil {
		return StreamInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(res.Streams) == 0 {
		return StreamInfo{}, ErrNoVideoStream
	}

	s := res.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return StreamInfo{}, fmt.Errorf("ffprobe reported invalid size %dx%d", s.Width, s.Height)
	}

	fps, ok := ParseFrameRate(s.AvgFrameRate)
	if !ok {
		fps, _ = ParseFrameRate(s.RFrameRate)
	}

	return StreamInfo{
		Width:     s.Width,
		Height:    s.Height,
		FPS:       fps,
		PixFmt:    s.PixFmt,
		CodecName: s.CodecName,
	}, nil
}

// ParseFrameRate parses ffprobe rationals such as "30000/1001" or plain "25".
// "0/0" and malformed values report false.
func ParseFrameRate(s string) (float64, bool) {
	num, den, isRatio := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	if !isRatio {
		return n, true
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0, false
	}
	return n / d, true
}
