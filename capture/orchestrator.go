package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"

	"ad-capture-pipeline/analysis"
	"ad-capture-pipeline/config"
	"ad-capture-pipeline/geopolicy"
	"ad-capture-pipeline/metrics"
	"ad-capture-pipeline/models"
	"ad-capture-pipeline/scanner"
)

// State is the orchestrator's position in one submission traversal.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateLocatingAndUploading
	StateAnalyzing
	StateResolved
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateLocatingAndUploading:
		return "locating_and_uploading"
	case StateAnalyzing:
		return "analyzing"
	case StateResolved:
		return "resolved"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

var (
	// ErrSubmissionInFlight is returned when Submit is called while a
	// submission is already running. The call is a no-op, not queued.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrAborted is returned when a submission was cancelled mid-analysis.
	// No verdict is emitted for an aborted submission.
	ErrAborted = errors.New("submission aborted")
)

// Camera produces one frame per capture. The viewfinder subsystem is an
// external collaborator; the HTTP surface and tests wrap their bytes in
// one-shot cameras.
type Camera interface {
	Capture(ctx context.Context) (*models.CapturedFrame, error)
}

// Locator acquires coordinates, degrading to the unknown sentinel instead
// of failing.
type Locator interface {
	Acquire(ctx context.Context) models.Coordinates
}

// Geocoder resolves coordinates to an address, best-effort.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, coords models.Coordinates) string
}

// ArtifactStore uploads the frame and writes the provisional record.
type ArtifactStore interface {
	Upload(ctx context.Context, frame *models.CapturedFrame) (string, error)
	Insert(ctx context.Context, report *models.Report) (string, error)
}

// Analyzer is the remote analysis call.
type Analyzer interface {
	Analyze(ctx context.Context, req *analysis.Request) (*analysis.Response, error)
}

// VerdictPublisher pushes resolved verdict events to interested consumers.
type VerdictPublisher interface {
	Publish(message interface{}) error
}

// Orchestrator sequences capture, location, local policy, durable upload
// and remote analysis into one deterministic verdict per submission.
// Concurrent submissions are disallowed; the single in-flight flag is the
// only shared mutable state here and is reset exactly once per submission
// by a deferred finalizer, abort and panic paths included.
type Orchestrator struct {
	policy    *geopolicy.Policy
	locator   Locator
	geocoder  Geocoder
	store     ArtifactStore
	analyzer  Analyzer
	codes     *scanner.Scanner
	publisher VerdictPublisher
	msgs      config.Messages
	userID    string

	enableCodeScan bool

	inFlight atomic.Bool
	state    atomic.Int32

	cancelMu       sync.Mutex
	cancelAnalysis context.CancelFunc

	now func() time.Time // overridable in tests
}

// Options carries the orchestrator's collaborators and flags. Policy,
// store and analyzer are required; the rest degrade gracefully when nil.
type Options struct {
	Policy    *geopolicy.Policy
	Locator   Locator
	Geocoder  Geocoder
	Store     ArtifactStore
	Analyzer  Analyzer
	Codes     *scanner.Scanner
	Publisher VerdictPublisher
	Messages  config.Messages
	UserID    string

	EnableCodeScan bool
}

// New creates an orchestrator in the idle state.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		policy:         opts.Policy,
		locator:        opts.Locator,
		geocoder:       opts.Geocoder,
		store:          opts.Store,
		analyzer:       opts.Analyzer,
		codes:          opts.Codes,
		publisher:      opts.Publisher,
		msgs:           opts.Messages,
		userID:         opts.UserID,
		enableCodeScan: opts.EnableCodeScan,
		now:            time.Now,
	}
}

// State returns the current traversal state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// InFlight reports whether a submission is currently running.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// Abort cancels the analysis call of the in-flight submission, if one has
// reached that step. Work already completed (upload, provisional record)
// is not rolled back. Returns whether anything was cancelled.
func (o *Orchestrator) Abort() bool {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	if o.cancelAnalysis == nil {
		return false
	}
	o.cancelAnalysis()
	o.cancelAnalysis = nil
	return true
}

func (o *Orchestrator) setCancel(cancel context.CancelFunc) {
	o.cancelMu.Lock()
	o.cancelAnalysis = cancel
	o.cancelMu.Unlock()
}

// preliminary is the local verdict produced before the network call so a
// zone violation is recorded even when the analysis service is
// unreachable.
type preliminary struct {
	status  models.ReportStatus
	message string
}

// Submit runs one full capture-to-verdict traversal. It returns
// ErrSubmissionInFlight when one is already running, ErrAborted when the
// analysis call was cancelled (no verdict), and otherwise a Verdict; all
// other failures are folded into the verdict, never surfaced as errors.
func (o *Orchestrator) Submit(ctx context.Context, cam Camera) (*models.Verdict, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrSubmissionInFlight
	}

	start := o.now()
	result := "error"
	metrics.SubmissionInFlight.Set(1)

	// Finalizer: decoded-code state and the in-flight flag are cleared
	// exactly once per submission, whatever path the traversal took.
	defer func() {
		if o.codes != nil {
			o.codes.Take()
		}
		o.setCancel(nil)
		o.state.Store(int32(StateIdle))
		o.inFlight.Store(false)
		metrics.SubmissionInFlight.Set(0)
		metrics.SubmissionsTotal.WithLabelValues(result).Inc()
		metrics.SubmissionDurationSeconds.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	// Step 1: capture. The only fatal device failure.
	o.state.Store(int32(StateCapturing))
	frame, err := o.captureFrame(ctx, cam)
	if err != nil {
		log.WithError(err).Error("Capture failed")
		v := &models.Verdict{
			Status:  models.StatusError,
			Message: o.msgs.CameraNotReady,
			Address: o.msgs.UnknownLocation,
		}
		o.state.Store(int32(StateResolved))
		return v, nil
	}

	o.state.Store(int32(StateLocatingAndUploading))

	// Step 2: locate. Never fails; may return the unknown sentinel.
	coords := models.Coordinates{}
	if o.locator != nil {
		coords = o.locator.Acquire(ctx)
	}

	// Step 3: reverse-geocode, best-effort.
	address := o.msgs.UnknownLocation
	if o.geocoder != nil {
		address = o.geocoder.ReverseGeocode(ctx, coords)
	}

	// Step 4: local policy. An unknown fix cannot be placed against the
	// fence, so it stays pending rather than producing a bogus violation.
	pre := preliminary{status: models.StatusPending}
	if !coords.IsZero() {
		if pv := o.policy.Evaluate(coords, o.now()); !pv.OK {
			pre = preliminary{
				status:  models.StatusViolation,
				message: o.reasonMessage(pv.Reason),
			}
		}
	}

	// Step 5: upload + provisional record. Storage failure is not fatal to
	// producing a verdict, only to persistence.
	artifactURL, reportID := o.persist(ctx, frame, coords, address, pre)

	// The latest decoded value at submission time; cleared by the
	// finalizer so it cannot reattach to a later photo.
	qrValue := ""
	if o.enableCodeScan && o.codes != nil {
		qrValue = o.codes.Peek()
	}

	// Step 6: remote analysis, the only step with caller-triggered
	// cancellation.
	o.state.Store(int32(StateAnalyzing))
	resp, aborted := o.analyze(ctx, frame, artifactURL, coords, qrValue, reportID)
	if aborted {
		o.state.Store(int32(StateAborted))
		result = "aborted"
		return nil, ErrAborted
	}

	// Step 7: reconciliation.
	status, message := reconcile(pre, artifactURL, resp, o.msgs)

	verdict := &models.Verdict{
		Status:      status,
		Message:     message,
		Address:     address,
		ArtifactURL: artifactURL,
		ReportID:    reportID,
		Coords:      coords,
	}

	o.publish(verdict)

	o.state.Store(int32(StateResolved))
	result = string(status)
	log.WithFields(log.Fields{
		"status":    status,
		"report_id": reportID,
	}).Info("Submission resolved")
	return verdict, nil
}

func (o *Orchestrator) captureFrame(ctx context.Context, cam Camera) (*models.CapturedFrame, error) {
	if cam == nil {
		return nil, errors.New("camera not ready")
	}
	frame, err := cam.Capture(ctx)
	if err != nil {
		return nil, err
	}
	if frame == nil || len(frame.Data) == 0 {
		return nil, errors.New("camera produced an empty frame")
	}
	return frame, nil
}

// persist uploads the artifact and writes the provisional record. Both
// results are empty on storage failure; the traversal continues either
// way.
func (o *Orchestrator) persist(ctx context.Context, frame *models.CapturedFrame, coords models.Coordinates, address string, pre preliminary) (artifactURL, reportID string) {
	artifactURL, err := o.store.Upload(ctx, frame)
	if err != nil {
		log.WithError(err).Error("Artifact upload failed, continuing without persistence")
		metrics.UploadErrorsTotal.Inc()
		return "", ""
	}

	reportID, err = o.store.Insert(ctx, &models.Report{
		UserID:    o.userID,
		ImageURL:  artifactURL,
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
		Address:   address,
		Status:    pre.status,
		Message:   pre.message,
	})
	if err != nil {
		log.WithError(err).Error("Provisional record insert failed, continuing")
		metrics.UploadErrorsTotal.Inc()
		return artifactURL, ""
	}
	return artifactURL, reportID
}

// analyze runs the remote call under a cancellation scope tied to Abort.
// Returns the response (nil on any failure) and whether the call was
// cancelled.
func (o *Orchestrator) analyze(ctx context.Context, frame *models.CapturedFrame, artifactURL string, coords models.Coordinates, qrValue, reportID string) (*analysis.Response, bool) {
	if o.analyzer == nil {
		return nil, false
	}

	callCtx, cancel := context.WithCancel(ctx)
	o.setCancel(cancel)
	defer cancel()

	callStart := time.Now()
	resp, err := o.analyzer.Analyze(callCtx, &analysis.Request{
		ImageURL: artifactURL,
		Image:    frame.Data,
		Coords:   coords,
		QRValue:  qrValue,
		ReportID: reportID,
	})
	metrics.AnalysisDurationSeconds.Observe(time.Since(callStart).Seconds())
	o.setCancel(nil)

	if err != nil {
		if callCtx.Err() != nil {
			log.Warn("Analysis call cancelled")
			return nil, true
		}
		log.WithError(err).Warn("Analysis call failed, falling back to local signals")
		return nil, false
	}
	return resp, false
}

// publish pushes the verdict event, best-effort, for persisted records
// only.
func (o *Orchestrator) publish(v *models.Verdict) {
	if o.publisher == nil || v.ReportID == "" {
		return
	}
	err := o.publisher.Publish(models.VerdictEvent{
		ReportID:  v.ReportID,
		Status:    v.Status,
		Message:   v.Message,
		Latitude:  v.Coords.Latitude,
		Longitude: v.Coords.Longitude,
		Timestamp: o.now(),
	})
	if err != nil {
		log.WithError(err).Warn("Verdict publish failed")
	}
}

func (o *Orchestrator) reasonMessage(reason models.PolicyReason) string {
	if reason == models.ReasonOutsideWindow {
		return o.msgs.OutsideWindow
	}
	return o.msgs.OutOfZone
}
