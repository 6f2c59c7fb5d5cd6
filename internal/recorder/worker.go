package recorder

import (
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"time"

	"github.com/smazurov/facegate/internal/events"
	"github.com/smazurov/facegate/internal/frame"
	"github.com/smazurov/facegate/internal/metrics"
	"github.com/smazurov/facegate/internal/sink"
)

var boxColor = color.RGBA{R: 255, A: 255}

const boxThickness = 2

// run is the session's worker goroutine. When the loop fails on its own it
// releases the session and moves the controller to Idle, unless a Stop got
// there first.
func (c *Controller) run(ctx context.Context, sess *session) {
	reason, err := c.loop(ctx, sess)
	if reason != "" {
		sess.failReason, sess.failErr = reason, err
	}
	close(sess.done)

	if reason == "" {
		return
	}

	c.logger.Error("Recording worker stopped", "session", sess.id, "reason", reason, "error", err)
	if relErr := sess.release(); relErr != nil {
		c.logger.Warn("Error releasing recording resources", "session", sess.id, "error", relErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live() != sess {
		return
	}
	c.end(sess, reason, err)
}

// loop reads, detects and writes until ctx is cancelled or a component
// fails. It returns an empty reason when cancelled.
func (c *Controller) loop(ctx context.Context, sess *session) (string, error) {
	var (
		lastPreview time.Time
		hadFaces    bool
	)
	for {
		if ctx.Err() != nil {
			return "", nil
		}

		if chk, ok := sess.snk.(sink.Checker); ok {
			if err := chk.Err(); err != nil {
				return ReasonSinkFailed, err
			}
		}

		f, err := sess.src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil
			}
			return ReasonSourceFailed, err
		}
		sess.framesRead.Add(1)
		metrics.FrameRead()

		result := c.detector.Detect(f)
		faces := len(result)

		if faces > 0 {
			sess.detections.Add(1)
			if !hadFaces {
				c.publish(events.FaceDetectedEvent{
					SessionID: sess.id,
					Count:     faces,
					Timestamp: f.Time.Format(time.RFC3339Nano),
				})
			}

			out := f
			if sess.annotated {
				out = f.Annotate(result.Rects(), boxColor, boxThickness)
			}
			if err := sess.snk.Write(out); err != nil {
				if ctx.Err() != nil {
					return "", nil
				}
				return ReasonSinkFailed, err
			}
			sess.framesWritten.Add(1)
			metrics.FrameWritten()
		}
		hadFaces = faces > 0

		if c.bus != nil && c.cfg.PreviewInterval > 0 && time.Since(lastPreview) >= c.cfg.PreviewInterval {
			lastPreview = time.Now()
			c.publishPreview(sess, f, result.Rects())
		}
	}
}

// publishPreview sends an annotated JPEG of f. Preview frames always carry
// the boxes regardless of the persisted-frame policy.
func (c *Controller) publishPreview(sess *session, f *frame.Frame, rects []image.Rectangle) {
	if len(rects) > 0 {
		f = f.Annotate(rects, boxColor, boxThickness)
	}
	data, err := f.JPEG(c.cfg.PreviewQuality)
	if err != nil {
		c.logger.Debug("Failed to encode preview frame", "error", err)
		return
	}
	c.publish(events.PreviewFrameEvent{
		SessionID: sess.id,
		ImageData: base64.StdEncoding.EncodeToString(data),
		Faces:     len(rects),
		Timestamp: f.Time.Format(time.RFC3339Nano),
	})
}
