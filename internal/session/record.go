package session

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/omniface/omniface-go/internal/attendance"
	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/datastore"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/inference"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/modelcache"
	"github.com/omniface/omniface-go/internal/mqtt"
	"github.com/omniface/omniface-go/internal/vision"
)

const (
	recordAttendance = "attendance"
	recordExit       = "exit"
	recordState      = "person_state"
	recordCrop       = "crop"
)

const publishTimeout = 5 * time.Second

// lookupPerson resolves a label through the directory. Lookup errors are
// logged and treated as an unregistered person.
func (s *Session) lookupPerson(ctx context.Context, label string) *datastore.Person {
	dir := s.engine.deps.Directory
	if dir == nil {
		return nil
	}
	person, err := dir.Person(ctx, s.TenantID, label)
	if err != nil {
		if s.allowWarn(warnPerson) {
			s.log.Warn("person lookup failed", logger.String("label", label), logger.Error(err))
		}
		return nil
	}
	return person
}

func (s *Session) thresholds(ctx context.Context, person *datastore.Person) attendance.Thresholds {
	fallback := s.engine.cfg.Fallback
	dir := s.engine.deps.Directory
	if dir == nil || person == nil {
		return fallback
	}
	dept, err := dir.Department(ctx, s.TenantID, person.DepartmentID)
	if err != nil {
		if s.allowWarn(warnDepartment) {
			s.log.Warn("department lookup failed", logger.Error(err))
		}
		return fallback
	}
	return attendance.ResolveWith(dept, fallback)
}

// record applies the mode's recording rule to a known face that passed the
// quality gate. Failures are logged and counted; they never stop the stream.
func (s *Session) record(ctx context.Context, img gocv.Mat, face *inference.Face, person *datastore.Person, now time.Time) {
	switch s.Mode {
	case ModeAttendance:
		s.recordAttendance(ctx, img, face, person, now)
	case ModeExit:
		s.recordExit(ctx, img, face, person, now)
	default:
		return
	}
	s.updateState(ctx, face, person, now)
}

func (s *Session) recordAttendance(ctx context.Context, img gocv.Mat, face *inference.Face, person *datastore.Person, now time.Time) {
	deps := s.engine.deps
	if deps.Ledger == nil {
		return
	}
	status := attendance.Classify(now, s.thresholds(ctx, person))
	if !deps.Ledger.MarkIfFirst(s.TenantID, face.Label, now) {
		return
	}

	rec := &datastore.AttendanceRecord{
		TenantID:  s.TenantID,
		Name:      face.Label,
		Status:    string(status),
		Kind:      datastore.KindKnown,
		PhotoPath: s.saveCrop(img, face.Box, face.Label, now),
		Date:      now.Format(datastore.DateLayout),
		Time:      now.Format(datastore.TimeLayout),
	}
	if person != nil {
		rec.PersonID = &person.ID
		rec.DepartmentID = person.DepartmentID
	}

	if deps.Store != nil {
		if err := deps.Store.SaveAttendance(ctx, rec); err != nil {
			deps.Metrics.RecordFailed(recordAttendance)
			s.log.Error("saving attendance failed", logger.String("name", rec.Name), logger.Error(err))
			return
		}
		deps.Metrics.RecordWritten(recordAttendance)
	}
	s.log.Info("attendance recorded",
		logger.String("name", rec.Name),
		logger.String("status", rec.Status),
		logger.Float32("similarity", face.Similarity))

	s.publish(mqtt.Event{
		Kind:      mqtt.KindAttendance,
		TenantID:  s.TenantID,
		PersonID:  rec.PersonID,
		Name:      rec.Name,
		Status:    rec.Status,
		Emotion:   face.Emotion,
		CameraID:  s.CameraID,
		SessionID: s.ID,
		PhotoPath: rec.PhotoPath,
		Date:      rec.Date,
		Time:      rec.Time,
	})
}

func (s *Session) recordExit(ctx context.Context, img gocv.Mat, face *inference.Face, person *datastore.Person, now time.Time) {
	deps := s.engine.deps
	rec := &datastore.ExitRecord{
		TenantID:  s.TenantID,
		Name:      face.Label,
		Kind:      datastore.KindKnown,
		PhotoPath: s.saveCrop(img, face.Box, face.Label, now),
		Date:      now.Format(datastore.DateLayout),
		Time:      now.Format(datastore.TimeLayout),
	}
	if person != nil {
		rec.PersonID = &person.ID
		rec.DepartmentID = person.DepartmentID
	}

	if deps.Store != nil {
		if err := deps.Store.SaveExit(ctx, rec); err != nil {
			deps.Metrics.RecordFailed(recordExit)
			s.log.Error("saving exit failed", logger.String("name", rec.Name), logger.Error(err))
			return
		}
		deps.Metrics.RecordWritten(recordExit)
	}

	s.publish(mqtt.Event{
		Kind:      mqtt.KindExit,
		TenantID:  s.TenantID,
		PersonID:  rec.PersonID,
		Name:      rec.Name,
		Emotion:   face.Emotion,
		CameraID:  s.CameraID,
		SessionID: s.ID,
		PhotoPath: rec.PhotoPath,
		Date:      rec.Date,
		Time:      rec.Time,
	})
}

func (s *Session) updateState(ctx context.Context, face *inference.Face, person *datastore.Person, now time.Time) {
	deps := s.engine.deps
	if deps.Store == nil || person == nil {
		return
	}
	err := deps.Store.UpsertPersonState(ctx, &datastore.PersonState{
		PersonID:  person.ID,
		Emotion:   face.Emotion,
		Location:  fmt.Sprintf("camera-%d", s.CameraID),
		UpdatedAt: now,
	})
	if err != nil {
		deps.Metrics.RecordFailed(recordState)
		if s.allowWarn(warnPersonState) {
			s.log.Warn("updating person state failed", logger.Error(err))
		}
		return
	}
	deps.Metrics.RecordWritten(recordState)
}

// publish sends ev without blocking the frame loop. Close waits for it.
func (s *Session) publish(ev mqtt.Event) {
	events := s.engine.deps.Events
	if events == nil {
		return
	}
	s.publishes.Add(1)
	go func() {
		defer s.publishes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := events.Publish(ctx, ev); err != nil {
			s.log.Warn("publishing event failed",
				logger.String("kind", ev.Kind),
				logger.String("name", ev.Name),
				logger.Error(err))
		}
	}()
}

// saveCrop writes the face crop below the captures root and returns its path
// relative to the root with forward slashes. An empty path means no crop.
func (s *Session) saveCrop(img gocv.Mat, box image.Rectangle, label string, now time.Time) string {
	root := s.engine.cfg.CapturesRoot
	if root == "" {
		return ""
	}

	data, err := vision.CropJPEG(img, box, s.engine.cfg.JPEGQuality)
	if err != nil {
		s.cropFailed(err)
		return ""
	}

	name := sanitize(label)
	rel := filepath.Join(modelcache.TenantDir("", s.TenantID), name)
	dir := filepath.Join(root, rel)
	if err := conf.EnsureDir(dir); err != nil {
		s.cropFailed(err)
		return ""
	}

	base := fmt.Sprintf("%s_%s_%s", name, now.Format(datastore.DateLayout), now.Format("15-04-05"))
	file := base + ".jpg"
	if _, err := os.Stat(filepath.Join(dir, file)); err == nil {
		file = fmt.Sprintf("%s_%s.jpg", base, uuid.NewString()[:8])
	}

	if err := os.WriteFile(filepath.Join(dir, file), data, 0o644); err != nil { //nolint:gosec // G306: crops are served to clients
		s.cropFailed(errors.New(err).
			Component("session").
			Category(errors.CategoryFileIO).
			Context("file", file).
			Build())
		return ""
	}
	s.engine.deps.Metrics.RecordWritten(recordCrop)
	return filepath.ToSlash(filepath.Join(rel, file))
}

func (s *Session) cropFailed(err error) {
	s.engine.deps.Metrics.RecordFailed(recordCrop)
	if s.allowWarn(warnCrop) {
		s.log.Warn("saving face crop failed", logger.Error(err))
	}
}

// sanitize keeps letters, digits, '-' and '_' so a label is safe as a path
// element. Anything else becomes '_'.
func sanitize(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
