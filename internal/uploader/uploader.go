package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	protocolResumable = "resumable"
	protocolSingle    = "single"

	defaultConcurrency = 3
)

// ErrNoSessionURL is returned when a resumable initiate response carries no
// Location header.
var ErrNoSessionURL = errors.New("storage did not return a session url")

// Target says where uploaded files end up.
type Target struct {
	LocketID string
	// MemoryGroupID attaches to an existing group. When empty a new group is
	// created, once for the whole batch.
	MemoryGroupID string
	Title         *string
	Description   *string
	Caption       *string
	Pin           bool
}

// Result is the outcome of one file.
type Result struct {
	File  string
	State State
	Media *Media
	Err   error
}

// Options configures a Driver.
type Options struct {
	BaseURL     string
	Token       string
	Concurrency int
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Driver uploads files through the corner API.
type Driver struct {
	api         *api
	storage     *http.Client
	concurrency int
	log         *zap.Logger
}

// New creates a Driver.
func New(opts Options) *Driver {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Minute}
	}
	n := opts.Concurrency
	if n <= 0 {
		n = defaultConcurrency
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		api:         &api{base: opts.BaseURL, token: opts.Token, http: hc},
		storage:     hc,
		concurrency: n,
		log:         log,
	}
}

// Upload sends every file to target. Files run as independent flows: one
// failure never cancels the others. The returned error is only set when the
// batch could not start.
func (d *Driver) Upload(ctx context.Context, target Target, files []*File, progress ProgressFunc) ([]Result, error) {
	if target.LocketID == "" {
		return nil, errors.New("locket id is required")
	}
	if progress == nil {
		progress = func(Event) {}
	}

	groupID := target.MemoryGroupID
	groupCreated := false
	if groupID == "" {
		var g group
		err := d.api.do(ctx, http.MethodPost, "/api/memory-groups", groupRequest{
			LocketID:    target.LocketID,
			Title:       target.Title,
			Description: target.Description,
		}, &g)
		if err != nil {
			return nil, fmt.Errorf("create memory group: %w", err)
		}
		groupID, groupCreated = g.ID, true
		d.log.Info("memory group created", zap.String("memory_group_id", groupID))
	}

	var mu sync.Mutex
	emit := func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		progress(e)
	}

	results := make([]Result, len(files))
	flows := make([]*flow, len(files))
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for i, f := range files {
		i, f := i, f
		fl := newFlow(f.Name, emit)
		flows[i] = fl
		g.Go(func() error {
			m, err := d.run(ctx, fl, f, target, groupID, groupCreated)
			results[i] = Result{File: f.Name, State: fl.state, Media: m, Err: err}
			if err != nil {
				d.log.Warn("upload failed", zap.String("file", f.Name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	registered := 0
	for _, r := range results {
		if r.Err == nil {
			registered++
		}
	}

	var pinErr error
	if target.Pin && registered > 0 {
		pinErr = d.api.do(ctx, http.MethodPost, "/api/lockets/"+target.LocketID+"/pinned", pinRequest{MemoryID: groupID}, nil)
		if pinErr != nil {
			d.log.Warn("pin failed", zap.String("memory_group_id", groupID), zap.Error(pinErr))
		}
	}

	for i := range results {
		if results[i].Err != nil {
			continue
		}
		fl := flows[i]
		if target.Pin && pinErr == nil {
			_ = fl.advance(StatePinned, ProgressDone)
		}
		_ = fl.advance(StateDone, ProgressDone)
		results[i].State = fl.state
	}
	return results, nil
}

// run performs one file's flow up to registration.
func (d *Driver) run(ctx context.Context, fl *flow, f *File, target Target, groupID string, groupCreated bool) (*Media, error) {
	if err := fl.advance(StateCredentialRequested, ProgressCredentialRequested); err != nil {
		return nil, fl.fail(err)
	}
	if groupCreated {
		fl.report(ProgressGroupCreated)
	}

	var s Session
	err := d.api.do(ctx, http.MethodPost, "/api/upload", sessionRequest{
		Filename: f.Name,
		FileType: f.ContentType,
		FileSize: f.Size,
	}, &s)
	if err != nil {
		return nil, fl.fail(fmt.Errorf("request credential: %w", err))
	}
	if err := fl.advance(StateCredentialIssued, ProgressCredentialIssued); err != nil {
		return nil, fl.fail(err)
	}

	sessionURL := s.UploadURL
	if s.Protocol == protocolResumable {
		sessionURL, err = d.initiate(ctx, s)
		if err != nil {
			return nil, fl.fail(err)
		}
	}
	if err := fl.advance(StateTransferInitiated, ProgressTransferInitiated); err != nil {
		return nil, fl.fail(err)
	}

	if err := d.transfer(ctx, sessionURL, s, f); err != nil {
		return nil, fl.fail(err)
	}
	if err := fl.advance(StateTransferComplete, ProgressTransferComplete); err != nil {
		return nil, fl.fail(err)
	}

	gid := groupID
	var m Media
	err = d.api.do(ctx, http.MethodPost, "/api/media", registerRequest{
		LocketID:      target.LocketID,
		MemoryGroupID: &gid,
		Filename:      f.Name,
		StorageKey:    s.StorageKey,
		StorageURL:    s.PublicURL,
		FileType:      f.ContentType,
		FileSize:      f.Size,
		Width:         f.Width,
		Height:        f.Height,
		TakenAt:       f.TakenAt,
		Caption:       target.Caption,
	}, &m)
	if err != nil {
		return nil, fl.fail(fmt.Errorf("register media: %w", err))
	}
	if err := fl.advance(StateRegistered, ProgressRegistered); err != nil {
		return nil, fl.fail(err)
	}
	return &m, nil
}

// initiate opens a resumable session and returns its URL.
func (d *Driver) initiate(ctx context.Context, s Session) (string, error) {
	method := s.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, s.UploadURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build initiate request: %w", err)
	}
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.storage.Do(req)
	if err != nil {
		return "", fmt.Errorf("initiate upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("initiate upload: storage answered %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", ErrNoSessionURL
	}
	return loc, nil
}

// transfer PUTs the bytes to the session URL.
func (d *Driver) transfer(ctx context.Context, sessionURL string, s Session, f *File) error {
	body, err := f.reader()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, body)
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.ContentLength = f.Size
	if s.Protocol == protocolSingle {
		for k, v := range s.Headers {
			req.Header.Set(k, v)
		}
	}
	// A signed content type must be sent as issued.
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", f.ContentType)
	}

	resp, err := d.storage.Do(req)
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transfer: storage answered %d", resp.StatusCode)
	}
	return nil
}
