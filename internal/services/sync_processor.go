package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kakeibo/internal/cache"
	"kakeibo/internal/core"
	applog "kakeibo/internal/log"
	"kakeibo/internal/monthly"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// RetryInterval is how often pending saves are retried (default: 5s)
	RetryInterval time.Duration

	// BaseBackoff is the delay after the first failed save (default: 1s)
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential backoff (default: 30s)
	MaxBackoff time.Duration

	// SaveTimeout bounds a single remote call (default: 10s)
	SaveTimeout time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		RetryInterval: 5 * time.Second,
		BaseBackoff:   1 * time.Second,
		MaxBackoff:    30 * time.Second,
		SaveTimeout:   10 * time.Second,
	}
}

// SyncStatus is the sync indicator of one project.
type SyncStatus struct {
	ProjectID    string     `json:"projectId"`
	Online       bool       `json:"online"`
	Pending      bool       `json:"pending"`
	Attempts     int        `json:"attempts"`
	NextRetry    *time.Time `json:"nextRetry,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	Digest       string     `json:"digest,omitempty"`
}

type messageKind int

const (
	msgSave messageKind = iota
	msgSnapshot
	msgRemoteChanged
	msgRetry
	msgFlush
)

type syncMessage struct {
	kind   messageKind
	data   core.ProjectData
	digest string
	force  bool
	done   chan struct{}
}

// projectQueue is the ordered inbox of one project. Everything below mu is
// guarded by it; only the project's worker changes the sync fields.
type projectQueue struct {
	id   string
	wake chan struct{}
	done chan struct{} // closed when the worker exits

	mu              sync.Mutex
	inbox           []syncMessage
	closed          bool
	store           *monthly.Store
	confirmed       []byte // last content known to be in the remote store, nil until seen
	confirmedDigest string
	pending         core.ProjectData // content waiting for a remote save
	attempts        int
	nextRetry       time.Time
	lastSynced      time.Time
	lastErr         string
}

// SyncProcessor writes project documents to the local cache and the remote
// store, one ordered queue per project. Incoming remote snapshots travel
// through the same queue so they are applied in arrival order relative to
// local saves.
type SyncProcessor struct {
	remote    RemoteStore
	local     LocalCache
	announcer Announcer
	config    SyncProcessorConfig
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	qmu    sync.Mutex
	queues map[string]*projectQueue
	online bool

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor. local and announcer may be nil.
func NewSyncProcessor(remote RemoteStore, local LocalCache, announcer Announcer, config SyncProcessorConfig) *SyncProcessor {
	defaults := DefaultSyncProcessorConfig()
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = defaults.BaseBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = defaults.SaveTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SyncProcessor{
		remote:    remote,
		local:     local,
		announcer: announcer,
		config:    config,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		queues:    make(map[string]*projectQueue),
		online:    true,
	}
}

// Schedule enqueues a save. It never blocks, so stores may call it while
// holding their own lock.
func (p *SyncProcessor) Schedule(projectID string, data core.ProjectData) {
	p.enqueue(projectID, syncMessage{kind: msgSave, data: data}, true)
}

// Attach binds a store to its queue so remote snapshots can be applied.
// remote is the content loaded from the remote store, nil when it could not
// be loaded.
func (p *SyncProcessor) Attach(store *monthly.Store, remote core.ProjectData) {
	q := p.queue(store.ProjectID(), true)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.store = store
	if remote != nil {
		if b, err := monthly.Encode(remote); err == nil {
			q.confirmed, q.confirmedDigest = b, Digest(b)
		}
	}
}

// Detach drops the project's queue, its unsent content and its local copy.
// It returns once the project's worker has exited, so no save of the project
// reaches the remote store afterwards.
func (p *SyncProcessor) Detach(projectID string) {
	p.qmu.Lock()
	q, ok := p.queues[projectID]
	delete(p.queues, projectID)
	p.qmu.Unlock()

	if ok {
		q.mu.Lock()
		q.closed = true
		dropped := q.inbox
		q.inbox = nil
		q.pending = nil
		q.mu.Unlock()
		for _, msg := range dropped {
			if msg.done != nil {
				close(msg.done)
			}
		}
		q.signal()
		<-q.done
	}
	if p.local != nil {
		p.local.Delete(cache.ProjectKey(projectID))
	}
}

// Deliver enqueues an already loaded remote snapshot.
func (p *SyncProcessor) Deliver(projectID string, data core.ProjectData, digest string) {
	p.enqueue(projectID, syncMessage{kind: msgSnapshot, data: data, digest: digest}, false)
}

// HandleRemoteUpdate enqueues a reload of the remote document after another
// instance announced a save with digest.
func (p *SyncProcessor) HandleRemoteUpdate(projectID, digest string) {
	p.enqueue(projectID, syncMessage{kind: msgRemoteChanged, digest: digest}, false)
}

// Flush waits until every message queued before it was processed. Pending
// content whose backoff elapsed is retried on the way.
func (p *SyncProcessor) Flush(ctx context.Context, projectID string) error {
	return p.flush(ctx, projectID, false)
}

// flush with force attempts a remote save of pending content regardless of
// the backoff.
func (p *SyncProcessor) flush(ctx context.Context, projectID string, force bool) error {
	done := make(chan struct{})
	if !p.enqueue(projectID, syncMessage{kind: msgFlush, force: force, done: done}, false) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return fmt.Errorf("sync processor stopped")
	}
}

// FlushAll flushes every known project.
func (p *SyncProcessor) FlushAll(ctx context.Context) error {
	return p.flushAll(ctx, false)
}

func (p *SyncProcessor) flushAll(ctx context.Context, force bool) error {
	for _, id := range p.projectIDs() {
		if err := p.flush(ctx, id, force); err != nil {
			return err
		}
	}
	return nil
}

func (p *SyncProcessor) Status(projectID string) SyncStatus {
	st := SyncStatus{ProjectID: projectID, Online: p.Online()}
	q := p.queue(projectID, false)
	if q == nil {
		return st
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	st.Pending = q.pending != nil
	st.Attempts = q.attempts
	st.LastError = q.lastErr
	st.Digest = q.confirmedDigest
	if !q.nextRetry.IsZero() {
		t := q.nextRetry
		st.NextRetry = &t
	}
	if !q.lastSynced.IsZero() {
		t := q.lastSynced
		st.LastSyncedAt = &t
	}
	return st
}

// Online reports whether the last remote call succeeded.
func (p *SyncProcessor) Online() bool {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	return p.online
}

func (p *SyncProcessor) setOnline(online bool) {
	p.qmu.Lock()
	changed := p.online != online
	p.online = online
	p.qmu.Unlock()

	if changed {
		slog.Info("Remote store connectivity changed",
			applog.FieldComponent, applog.ComponentSync, "online", online)
	}
}

// Start begins the retry loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		applog.FieldComponent, applog.ComponentSync,
		"retry_interval", p.config.RetryInterval,
		"max_backoff", p.config.MaxBackoff)

	return nil
}

// Stop stops the retry loop, flushes pending saves as far as ctx allows and
// shuts the project workers down.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out", applog.FieldComponent, applog.ComponentSync)
		return ctx.Err()
	}

	flushErr := p.flushAll(ctx, true)
	p.cancel()

	workers := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(workers)
	}()
	select {
	case <-workers:
		slog.InfoContext(ctx, "Sync processor stopped gracefully", applog.FieldComponent, applog.ComponentSync)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out", applog.FieldComponent, applog.ComponentSync)
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return flushErr
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.retryPending(ctx)
		}
	}
}

// retryPending probes the remote store when offline and enqueues a retry for
// every project whose backoff elapsed.
func (p *SyncProcessor) retryPending(ctx context.Context) {
	if pinger, ok := p.remote.(Pinger); ok && !p.Online() {
		if err := pinger.Ping(ctx); err != nil {
			slog.DebugContext(ctx, "Remote store still unreachable",
				applog.FieldComponent, applog.ComponentSync, applog.FieldError, err)
			return
		}
		p.setOnline(true)
		for _, id := range p.projectIDs() {
			if q := p.queue(id, false); q != nil {
				q.mu.Lock()
				q.nextRetry = time.Time{}
				q.mu.Unlock()
			}
		}
	}

	now := p.now()
	for _, id := range p.projectIDs() {
		q := p.queue(id, false)
		if q == nil {
			continue
		}
		q.mu.Lock()
		due := q.pending != nil && !now.Before(q.nextRetry)
		q.mu.Unlock()
		if due {
			p.enqueue(id, syncMessage{kind: msgRetry}, false)
		}
	}
}

func (p *SyncProcessor) projectIDs() []string {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	ids := make([]string, 0, len(p.queues))
	for id := range p.queues {
		ids = append(ids, id)
	}
	return ids
}

// queue returns the project's queue, creating it and its worker when create is set.
func (p *SyncProcessor) queue(projectID string, create bool) *projectQueue {
	p.qmu.Lock()
	defer p.qmu.Unlock()

	if q, ok := p.queues[projectID]; ok {
		return q
	}
	if !create {
		return nil
	}
	q := &projectQueue{id: projectID, wake: make(chan struct{}, 1), done: make(chan struct{})}
	p.queues[projectID] = q
	p.wg.Add(1)
	go p.work(q)
	return q
}

func (p *SyncProcessor) enqueue(projectID string, msg syncMessage, create bool) bool {
	q := p.queue(projectID, create)
	if q == nil {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.inbox = append(q.inbox, msg)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *projectQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *projectQueue) next(ctx context.Context) (syncMessage, bool) {
	for {
		q.mu.Lock()
		if len(q.inbox) > 0 {
			msg := q.inbox[0]
			q.inbox = q.inbox[1:]
			q.mu.Unlock()
			return msg, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return syncMessage{}, false
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return syncMessage{}, false
		}
	}
}

func (p *SyncProcessor) work(q *projectQueue) {
	defer p.wg.Done()
	defer close(q.done)
	for {
		msg, ok := q.next(p.ctx)
		if !ok {
			return
		}
		switch msg.kind {
		case msgSave:
			p.handleSave(q, msg.data)
		case msgSnapshot:
			p.handleSnapshot(q, msg.data, msg.digest)
		case msgRemoteChanged:
			p.handleRemoteChanged(q, msg.digest)
		case msgRetry:
			p.retry(q, false)
		case msgFlush:
			p.retry(q, msg.force)
			close(msg.done)
		}
	}
}

func (p *SyncProcessor) handleSave(q *projectQueue, data core.ProjectData) {
	b, err := monthly.Encode(data)
	if err != nil {
		slog.Error("Failed to encode project data",
			applog.FieldComponent, applog.ComponentSync, applog.FieldProjectID, q.id, applog.FieldError, err)
		return
	}
	if p.local != nil {
		p.local.Set(cache.ProjectKey(q.id), b)
	}

	q.mu.Lock()
	if bytes.Equal(b, q.confirmed) {
		q.pending = nil
		q.mu.Unlock()
		slog.Debug("Skipping save of unchanged content",
			applog.FieldComponent, applog.ComponentSync, applog.FieldProjectID, q.id)
		return
	}
	q.pending = data
	wait := !p.Online() || p.now().Before(q.nextRetry)
	q.mu.Unlock()

	if wait {
		slog.Debug("Remote store unavailable, keeping save pending",
			applog.FieldComponent, applog.ComponentSync, applog.FieldProjectID, q.id)
		return
	}
	p.pushRemote(q)
}

func (p *SyncProcessor) retry(q *projectQueue, force bool) {
	q.mu.Lock()
	due := q.pending != nil && (force || !p.now().Before(q.nextRetry))
	q.mu.Unlock()
	if due {
		p.pushRemote(q)
	}
}

func (p *SyncProcessor) pushRemote(q *projectQueue) {
	q.mu.Lock()
	closed, seen := q.closed, q.confirmed != nil
	q.mu.Unlock()
	if closed {
		return
	}
	if !seen {
		// the remote document was never loaded; pushing now would drop its months
		if err := p.reconcile(q); err != nil {
			p.saveFailed(q, err)
			return
		}
	}

	q.mu.Lock()
	data, store := q.pending, q.store
	q.mu.Unlock()
	if data == nil {
		return
	}
	if store != nil {
		data = store.Snapshot()
	}
	b, err := monthly.Encode(data)
	if err != nil {
		return
	}
	q.mu.Lock()
	unchanged := bytes.Equal(b, q.confirmed)
	if unchanged {
		q.pending = nil
	}
	q.mu.Unlock()
	if unchanged {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.config.SaveTimeout)
	err = p.remote.SaveProjectData(ctx, q.id, data)
	cancel()
	if err != nil {
		p.saveFailed(q, err)
		return
	}

	digest := Digest(b)
	q.mu.Lock()
	q.confirmed, q.confirmedDigest = b, digest
	q.pending = nil
	q.attempts = 0
	q.nextRetry = time.Time{}
	q.lastSynced = p.now()
	q.lastErr = ""
	q.mu.Unlock()
	p.setOnline(true)
	if p.local != nil {
		p.local.Set(cache.ProjectKey(q.id), b)
	}

	slog.Debug("Project data saved remotely",
		applog.FieldComponent, applog.ComponentSync, applog.FieldProjectID, q.id, applog.FieldDigest, digest)

	if p.announcer != nil {
		if err := p.announcer.PublishProjectData(p.ctx, q.id, digest); err != nil {
			slog.Warn("Failed to announce project change",
				applog.FieldComponent, applog.ComponentSync, applog.FieldProjectID, q.id, applog.FieldError, err)
		}
	}
}

// reconcile loads the remote document and merges it into the pending
// content, remote winning per month and local-only months kept.
func (p *SyncProcessor) reconcile(q *projectQueue) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.SaveTimeout)
	raw, found, err := p.remote.LoadProjectData(ctx, q.id)
	cancel()
	if err != nil {
		return fmt.Errorf("reconcile with remote store: %w", err)
	}

	remote := core.ProjectData{}
	if found {
		var rejected []monthly.Rejection
		remote, rejected = monthly.ParseSnapshot(raw)
		LogRejections(p.ctx, q.id, rejected)
	}

	q.mu.Lock()
	store, pending := q.store, q.pending
	q.mu.Unlock()

	if store != nil {
		report := store.ApplyRemote(remote)
		pending = store.Snapshot()
		slog.Info("Reconciled project with remote store",
			applog.FieldComponent, applog.ComponentSync, applog.FieldProjectID, q.id,
			"replaced", len(report.Replaced), "added", len(report.Added), "kept", len(report.Kept))
	} else {
		pending = monthly.Merge(pending, remote)
	}

	b, err := monthly.Encode(remote)
	if err != nil {
		return err
	}
	q.mu.Lock()
	if q.pending != nil {
		q.pending = pending
	}
	q.confirmed, q.confirmedDigest = b, Digest(b)
	q.mu.Unlock()
	return nil
}

// saveFailed records a failed remote call and schedules the next attempt.
func (p *SyncProcessor) saveFailed(q *projectQueue, err error) {
	q.mu.Lock()
	q.attempts++
	attempts := q.attempts
	wait := p.backoff(attempts)
	q.nextRetry = p.now().Add(wait)
	q.lastErr = err.Error()
	q.mu.Unlock()
	p.setOnline(false)

	slog.Warn("Remote save failed, will retry",
		applog.FieldComponent, applog.ComponentSync,
		applog.FieldProjectID, q.id,
		applog.FieldAttempt, attempts,
		applog.FieldBackoff, wait,
		applog.FieldError, err)
}

func (p *SyncProcessor) handleRemoteChanged(q *projectQueue, digest string) {
	q.mu.Lock()
	store := q.store
	known := digest != "" && digest == q.confirmedDigest
	pending := q.pending != nil
	q.mu.Unlock()

	if store == nil || known {
		return
	}
	if pending {
		slog.Info("Skipping remote reload while a local save is pending",
			applog.FieldComponent, applog.ComponentSync, applog.FieldProjectID, q.id)
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.config.SaveTimeout)
	raw, found, err := p.remote.LoadProjectData(ctx, q.id)
	cancel()
	if err != nil {
		slog.Warn("Failed to reload project data",
			applog.FieldComponent, applog.ComponentSync, applog.FieldProjectID, q.id, applog.FieldError, err)
		return
	}
	if !found {
		return
	}

	data, rejected := monthly.ParseSnapshot(raw)
	LogRejections(p.ctx, q.id, rejected)
	p.handleSnapshot(q, data, "")
}

func (p *SyncProcessor) handleSnapshot(q *projectQueue, data core.ProjectData, digest string) {
	b, err := monthly.Encode(data)
	if err != nil {
		return
	}

	q.mu.Lock()
	store := q.store
	echo := bytes.Equal(b, q.confirmed) || (digest != "" && digest == q.confirmedDigest)
	pending := q.pending != nil
	q.mu.Unlock()

	switch {
	case store == nil:
		return
	case echo:
		slog.Debug("Ignoring echoed snapshot",
			applog.FieldComponent, applog.ComponentSync, applog.FieldProjectID, q.id)
		return
	case pending:
		slog.Info("Keeping pending local content over remote snapshot",
			applog.FieldComponent, applog.ComponentSync, applog.FieldProjectID, q.id)
		return
	}

	report := store.ApplyRemote(data)
	q.mu.Lock()
	q.confirmed, q.confirmedDigest = b, Digest(b)
	q.mu.Unlock()

	merged := store.Snapshot()
	if len(report.Kept) > 0 {
		// local-only months still have to reach the remote store
		p.handleSave(q, merged)
		return
	}
	if report.Changed && p.local != nil {
		if mb, err := monthly.Encode(merged); err == nil {
			p.local.Set(cache.ProjectKey(q.id), mb)
		}
	}
}

// backoff doubles BaseBackoff per failed attempt, capped at MaxBackoff.
func (p *SyncProcessor) backoff(attempts int) time.Duration {
	d := p.config.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.config.MaxBackoff {
			return p.config.MaxBackoff
		}
	}
	if d > p.config.MaxBackoff {
		return p.config.MaxBackoff
	}
	return d
}

// Digest is the content hash announced with every save.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// LogRejections logs month entries dropped while parsing a remote document.
func LogRejections(ctx context.Context, projectID string, rejected []monthly.Rejection) {
	for _, r := range rejected {
		slog.WarnContext(ctx, "Dropping invalid month from remote data",
			applog.FieldComponent, applog.ComponentSync,
			applog.FieldProjectID, projectID,
			applog.FieldMonth, r.Key,
			applog.FieldReason, r.Reason,
			applog.FieldError, r.Err)
	}
}
