package ffmpeg

import "time"

// CaptureParams describes a camera read that emits packed bgr24 frames on stdout.
type CaptureParams struct {
	DevicePath  string
	InputFormat string // v4l2 input_format: yuyv422, mjpeg, ...
	Width       int    // 0 = device default
	Height      int
	FPS         float64 // 0 = device default
	Options     []OptionType
}

// EncodeParams describes an encoder that reads packed bgr24 frames on stdin.
type EncodeParams struct {
	Width      int
	Height     int
	FPS        float64
	Container  Container
	Encoder    string // empty picks the container default
	Preset     string // libx264 only
	CRF        int    // 0 = encoder default
	Bitrate    string // mpeg4 only, e.g. "4M"
	OutputPath string
}

// Container is the file format a recording is written in.
type Container string

const (
	ContainerAVI Container = "avi"
	ContainerMP4 Container = "mp4"
)

// Ext returns the file extension for the container.
func (c Container) Ext() string {
	return string(c)
}

// DefaultEncoder returns the codec used when EncodeParams.Encoder is empty.
func (c Container) DefaultEncoder() string {
	if c == ContainerMP4 {
		return "libx264"
	}
	return "mpeg4"
}

// StreamInfo is what ffprobe reports for a device's first video stream.
type StreamInfo struct {
	Width     int
	Height    int
	FPS       float64
	PixFmt    string
	CodecName string
}

// FrameInterval returns the time between frames, or zero when the rate is unknown.
func (s StreamInfo) FrameInterval() time.Duration {
	if s.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / s.FPS)
}
