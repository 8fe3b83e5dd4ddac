package session

import (
	"context"
	"encoding/base64"
	"image"
	"time"

	"github.com/omniface/omniface-go/internal/analytics"
	"github.com/omniface/omniface-go/internal/camera"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/inference"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/modelcache"
	"github.com/omniface/omniface-go/internal/vision"
)

// Run streams annotated frames to sink until ctx is cancelled, the session
// is closed or the sink fails. Those endings return nil; only calling Run
// outside the Ready state is an error. Frames that fail to process are
// skipped and never end the stream.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return s.stateError("run", state)
	}
	s.state = StateStreaming
	s.mu.Unlock()

	s.fps = analytics.NewFPSMeter(s.engine.now(), s.engine.cfg.FPSSamples)
	poll := s.engine.cfg.PollInterval

	for {
		if ctx.Err() != nil {
			return nil
		}
		handle, worker, index := s.current()
		if handle == nil {
			return nil
		}

		frame, ok := handle.Read()
		if !ok {
			if !sleep(ctx, poll) {
				return nil
			}
			continue
		}

		msg, err := s.processFrame(ctx, frame, worker, index)
		frame.Close()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, inference.ErrWorkerStopped) {
				if rerr := s.refreshWorker(worker); rerr != nil {
					if s.State() == StateClosed {
						return nil
					}
					s.frameError("refresh", rerr)
					if !sleep(ctx, poll) {
						return nil
					}
				}
				continue
			}
			s.frameError("inference", err)
			continue
		}

		if err := sink.SendFrame(ctx, msg); err != nil {
			s.log.Debug("frame delivery failed, ending stream", logger.Error(err))
			return nil
		}
		s.engine.deps.Metrics.FrameStreamed()
	}
}

// frameError counts a skipped frame and logs at most once per warnEvery
func (s *Session) frameError(reason string, err error) {
	s.engine.deps.Metrics.FrameError(reason)
	if s.allowWarn(warnFrame) {
		s.log.Warn("frame skipped",
			logger.String("reason", reason),
			logger.Error(err))
	}
}

// processFrame runs one frame through recognition, recording, annotation and
// encoding. The caller keeps ownership of frame.
func (s *Session) processFrame(ctx context.Context, frame *camera.Frame, worker *inference.Worker, index *modelcache.VectorIndex) (*FrameMessage, error) {
	faces, err := s.recognize(ctx, frame, worker, index)
	if err != nil {
		return nil, err
	}

	cfg := s.engine.cfg
	now := s.engine.now()
	img := frame.Mat
	msg := &FrameMessage{
		Type:      TypeFrame,
		Faces:     make([]FaceMessage, 0, len(faces)),
		CameraID:  s.CameraID,
		SessionID: s.ID,
		Mode:      s.Mode,
	}
	observations := make([]analytics.Observation, 0, len(faces))

	// Gate and record every face on the clean frame first. Drawing one face
	// must not leak into the measurements or crops of its neighbours.
	outcomes := make([]faceOutcome, len(faces))
	for i := range faces {
		face := &faces[i]
		out := &outcomes[i]
		out.verdict = cfg.Gate.Check(img, face.Box)
		if !out.verdict.OK {
			s.engine.deps.Metrics.QualityRejected(out.verdict.Reason)
		}
		if !face.Known {
			continue
		}
		person := s.lookupPerson(ctx, face.Label)
		if person != nil {
			out.photoPath = person.PhotoPath
		}
		if out.verdict.OK {
			s.record(ctx, img, face, person, now)
		}
	}

	for i := range faces {
		face := &faces[i]
		out := outcomes[i]
		recorded := face.Known && s.engine.deps.Ledger != nil && s.engine.deps.Ledger.Seen(s.TenantID, face.Label, now)

		vision.Annotate(&img, vision.Label{
			Box:        face.Box,
			Name:       face.Label,
			Similarity: face.Similarity,
			Emotion:    face.Emotion,
			Known:      face.Known,
			Recorded:   recorded,
			QualityOK:  out.verdict.OK,
			Landmarks:  face.Landmarks,
		})

		msg.Faces = append(msg.Faces, FaceMessage{
			BBox:       bbox(face.Box),
			Name:       face.Label,
			Similarity: face.Similarity,
			Emotion:    face.Emotion,
			QualityOK:  out.verdict.OK,
			PhotoPath:  out.photoPath,
			Registered: recorded,
		})
		observations = append(observations, analytics.Observation{Known: face.Known, Emotion: face.Emotion})
	}

	s.window.Add(observations)
	msg.Summary = s.window.Summary()

	jpeg, err := vision.EncodeJPEG(img, cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}
	msg.Frame = base64.StdEncoding.EncodeToString(jpeg)
	msg.FPS = s.fps.Tick(now)
	msg.Timestamp = unixSeconds(now)
	return msg, nil
}

// faceOutcome is what the record pass decided for one face
type faceOutcome struct {
	verdict   vision.Verdict
	photoPath string
}

// recognize hands a copy of the frame to the worker and waits for its reply
func (s *Session) recognize(ctx context.Context, frame *camera.Frame, worker *inference.Worker, index *modelcache.VectorIndex) ([]inference.Face, error) {
	req := inference.NewRequest(frame.Mat.Clone(), index)
	if err := worker.Submit(ctx, req); err != nil {
		_ = req.Frame.Close()
		return nil, err
	}

	select {
	case res := <-req.Reply:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Faces, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func bbox(r image.Rectangle) [4]int {
	return [4]int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
