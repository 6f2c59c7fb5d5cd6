package cmd

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/facegate/internal/capture"
	"github.com/smazurov/facegate/internal/detect"
	"github.com/smazurov/facegate/internal/ffmpeg"
	"github.com/smazurov/facegate/internal/logging"
	"github.com/smazurov/facegate/internal/recorder"
	"github.com/smazurov/facegate/internal/sink"
)

// Options for the CLI - flat structure with toml mapping. Durations and the
// scale factor are strings so they read the same in flags, env and TOML.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"facegate.toml"`

	// Server settings
	Port string `help:"Address to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Capture settings
	CaptureBackend     string `help:"Capture backend (ffmpeg, mediadevices, gocv)" default:"ffmpeg" toml:"capture.backend" env:"CAPTURE_BACKEND"`
	CaptureDevice      string `help:"Camera device path or index" default:"/dev/video0" toml:"capture.device" env:"CAPTURE_DEVICE"`
	CaptureInputFormat string `help:"V4L2 input format (yuyv422, mjpeg)" default:"" toml:"capture.input_format" env:"CAPTURE_INPUT_FORMAT"`
	CaptureWidth       int    `help:"Requested frame width, 0 = device default" default:"0" toml:"capture.width" env:"CAPTURE_WIDTH"`
	CaptureHeight      int    `help:"Requested frame height, 0 = device default" default:"0" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	CaptureFramerate   int    `help:"Requested frame rate, 0 = device default" default:"0" toml:"capture.framerate" env:"CAPTURE_FRAMERATE"`
	CaptureOptions     string `help:"Comma-separated ffmpeg capture options" default:"" toml:"capture.options" env:"CAPTURE_OPTIONS"`
	CaptureOpenTimeout string `help:"Time allowed for the first frame" default:"10s" toml:"capture.open_timeout" env:"CAPTURE_OPEN_TIMEOUT"`
	CaptureReadTimeout string `help:"Per-frame read timeout, 0 disables" default:"0s" toml:"capture.read_timeout" env:"CAPTURE_READ_TIMEOUT"`

	// Detector settings
	DetectorClassifier   string `help:"Classifier (worker, cascade, none)" default:"worker" toml:"detector.classifier" env:"DETECTOR_CLASSIFIER"`
	DetectorCommand      string `help:"Classifier worker command" default:"facegate-classifier" toml:"detector.command" env:"DETECTOR_COMMAND"`
	DetectorCascade      string `help:"Haar cascade XML for the cascade classifier" default:"" toml:"detector.cascade" env:"DETECTOR_CASCADE"`
	DetectorScaleFactor  string `help:"Image pyramid scale factor, must be > 1" default:"1.1" toml:"detector.scale_factor" env:"DETECTOR_SCALE_FACTOR"`
	DetectorMinNeighbors int    `help:"Neighbors required to keep a candidate" default:"3" toml:"detector.min_neighbors" env:"DETECTOR_MIN_NEIGHBORS"`
	DetectorMinSize      int    `help:"Smallest face side in pixels, 0 = classifier default" default:"0" toml:"detector.min_size" env:"DETECTOR_MIN_SIZE"`

	// Recording settings
	RecordingDir         string `help:"Recordings directory" default:"recordings" toml:"recording.dir" env:"RECORDING_DIR"`
	RecordingBackend     string `help:"Writer backend (ffmpeg, gocv)" default:"ffmpeg" toml:"recording.backend" env:"RECORDING_BACKEND"`
	RecordingContainer   string `help:"Container (avi, mp4)" default:"avi" toml:"recording.container" env:"RECORDING_CONTAINER"`
	RecordingEncoder     string `help:"Encoder, empty picks the container default" default:"" toml:"recording.encoder" env:"RECORDING_ENCODER"`
	RecordingPreset      string `help:"libx264 preset" default:"" toml:"recording.preset" env:"RECORDING_PRESET"`
	RecordingCrf         int    `help:"libx264 CRF, 0 = encoder default" default:"0" toml:"recording.crf" env:"RECORDING_CRF"`
	RecordingBitrate     string `help:"mpeg4 bitrate, e.g. 4M" default:"" toml:"recording.bitrate" env:"RECORDING_BITRATE"`
	RecordingAnnotate    bool   `help:"Draw detection boxes on persisted frames" default:"true" toml:"recording.annotate" env:"RECORDING_ANNOTATE"`
	RecordingStopTimeout string `help:"Bound on joining the capture worker on stop" default:"5s" toml:"recording.stop_timeout" env:"RECORDING_STOP_TIMEOUT"`

	// Preview settings
	PreviewInterval string `help:"Minimum time between preview frames, 0 disables" default:"1s" toml:"preview.interval" env:"PREVIEW_INTERVAL"`
	PreviewQuality  int    `help:"Preview JPEG quality" default:"75" toml:"preview.quality" env:"PREVIEW_QUALITY"`

	// Features settings
	FeaturesLEDControl bool   `help:"Drive a recording indicator LED" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	FeaturesLEDName    string `help:"sysfs LED name, empty picks the board default" default:"" toml:"features.led_name" env:"FEATURES_LED_NAME"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingRecorder string `help:"Recorder logging level" default:"info" toml:"logging.modules.recorder" env:"LOGGING_RECORDER"`
	LoggingCapture  string `help:"Capture logging level" default:"info" toml:"logging.modules.capture" env:"LOGGING_CAPTURE"`
	LoggingDetect   string `help:"Detector logging level" default:"info" toml:"logging.modules.detect" env:"LOGGING_DETECT"`
	LoggingSink     string `help:"Sink logging level" default:"info" toml:"logging.modules.sink" env:"LOGGING_SINK"`
	LoggingFfmpeg   string `help:"ffmpeg output logging level" default:"warn" toml:"logging.modules.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.modules.api" env:"LOGGING_API"`
}

// LoggingConfig returns the logging setup described by the options.
func (o *Options) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"recorder": o.LoggingRecorder,
			"capture":  o.LoggingCapture,
			"detect":   o.LoggingDetect,
			"sink":     o.LoggingSink,
			"ffmpeg":   o.LoggingFfmpeg,
			"api":      o.LoggingAPI,
			"http":     o.LoggingAPI,
		},
	}
}

// CaptureConfig returns the frame source settings.
func (o *Options) CaptureConfig() (capture.Config, error) {
	openTimeout, err := parseDuration("capture.open_timeout", o.CaptureOpenTimeout)
	if err != nil {
		return capture.Config{}, err
	}
	readTimeout, err := parseDuration("capture.read_timeout", o.CaptureReadTimeout)
	if err != nil {
		return capture.Config{}, err
	}
	return capture.Config{
		Backend:     o.CaptureBackend,
		Device:      o.CaptureDevice,
		InputFormat: o.CaptureInputFormat,
		Width:       o.CaptureWidth,
		Height:      o.CaptureHeight,
		FPS:         float64(o.CaptureFramerate),
		Options:     splitList(o.CaptureOptions),
		OpenTimeout: openTimeout,
		ReadTimeout: readTimeout,
	}, nil
}

// DetectorConfig returns the classifier selection and its parameters.
func (o *Options) DetectorConfig() (detect.Config, error) {
	scale, err := strconv.ParseFloat(strings.TrimSpace(o.DetectorScaleFactor), 64)
	if err != nil {
		return detect.Config{}, fmt.Errorf("detector.scale_factor: %w", err)
	}
	return detect.Config{
		Classifier:  o.DetectorClassifier,
		Command:     o.DetectorCommand,
		CascadePath: o.DetectorCascade,
		Params: detect.Params{
			ScaleFactor:  scale,
			MinNeighbors: o.DetectorMinNeighbors,
			MinSize:      image.Pt(o.DetectorMinSize, o.DetectorMinSize),
		},
	}, nil
}

// SinkConfig returns the recording writer settings.
func (o *Options) SinkConfig() sink.Config {
	return sink.Config{
		Backend:   o.RecordingBackend,
		Container: ffmpeg.Container(o.RecordingContainer),
		Encoder:   o.RecordingEncoder,
		Preset:    o.RecordingPreset,
		CRF:       o.RecordingCrf,
		Bitrate:   o.RecordingBitrate,
	}
}

// RecorderConfig returns the controller settings.
func (o *Options) RecorderConfig() (recorder.Config, error) {
	stopTimeout, err := parseDuration("recording.stop_timeout", o.RecordingStopTimeout)
	if err != nil {
		return recorder.Config{}, err
	}
	previewInterval, err := parseDuration("preview.interval", o.PreviewInterval)
	if err != nil {
		return recorder.Config{}, err
	}
	return recorder.Config{
		Dir:             o.RecordingDir,
		Annotate:        o.RecordingAnnotate,
		StopTimeout:     stopTimeout,
		PreviewInterval: previewInterval,
		PreviewQuality:  o.PreviewQuality,
	}, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", key, value)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
