// Package poller manages background polling of historian tags.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"histlink/config"
	"histlink/logging"
	"histlink/piweb"
)

// Status represents the state of the historian connection.
type Status int

const (
	StatusStopped Status = iota
	StatusResolving
	StatusPolling
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "Stopped"
	case StatusResolving:
		return "Resolving"
	case StatusPolling:
		return "Polling"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// ManagedTag is one historian tag under management.
type ManagedTag struct {
	Config    config.TagConfig
	WebID     string
	Value     interface{}
	Timestamp string
	LastError error
	LastPoll  time.Time
	mu        sync.RWMutex
}

// Snapshot returns a copy of the tag's current state.
func (t *ManagedTag) Snapshot() TagSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := TagSnapshot{
		Name:      t.Config.Name,
		WebID:     t.WebID,
		Value:     t.Value,
		Timestamp: t.Timestamp,
		LastPoll:  t.LastPoll,
	}
	if t.LastError != nil {
		snap.Error = t.LastError.Error()
	}
	return snap
}

// TagSnapshot is a point-in-time copy of a managed tag's state.
type TagSnapshot struct {
	Name      string
	WebID     string
	Value     interface{}
	Timestamp string
	Error     string
	LastPoll  time.Time
}

// ValueChange represents a tag value that has changed since the last poll.
type ValueChange struct {
	Tag       string
	Value     interface{}
	Timestamp string
}

// Manager polls configured historian tags and notifies listeners of value
// changes. Tags are resolved to web ids once at startup and polled serially
// on each tick.
type Manager struct {
	client     *piweb.Client
	dataserver string
	pollRate   time.Duration

	tags  map[string]*ManagedTag
	order []string // Tag names in config order for stable polling
	mu    sync.RWMutex

	status  Status
	lastErr error

	onValueChange func(changes []ValueChange)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a poller for the given historian client and catalog.
func NewManager(client *piweb.Client, dataserver string, pollRate time.Duration) *Manager {
	if pollRate <= 0 {
		pollRate = time.Second
	}
	return &Manager{
		client:     client,
		dataserver: dataserver,
		pollRate:   pollRate,
		tags:       make(map[string]*ManagedTag),
	}
}

// LoadFromConfig registers every configured tag with the manager.
func (m *Manager) LoadFromConfig(tags []config.TagConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tc := range tags {
		if _, exists := m.tags[tc.Name]; exists {
			continue
		}
		m.tags[tc.Name] = &ManagedTag{Config: tc, WebID: tc.WebID}
		m.order = append(m.order, tc.Name)
	}
}

// SetOnValueChange registers a callback invoked with the changed values
// after each poll. The callback runs on the poll goroutine.
func (m *Manager) SetOnValueChange(fn func(changes []ValueChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onValueChange = fn
}

// GetStatus returns the manager's current status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// GetError returns the last manager-level error.
func (m *Manager) GetError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// TagNames returns the managed tag names in config order.
func (m *Manager) TagNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// GetTag returns a snapshot of one managed tag.
func (m *Manager) GetTag(name string) (TagSnapshot, bool) {
	m.mu.RLock()
	tag := m.tags[name]
	m.mu.RUnlock()

	if tag == nil {
		return TagSnapshot{}, false
	}
	return tag.Snapshot(), true
}

// Snapshots returns snapshots of every managed tag in config order.
func (m *Manager) Snapshots() []TagSnapshot {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	tags := make([]*ManagedTag, 0, len(names))
	for _, name := range names {
		tags = append(tags, m.tags[name])
	}
	m.mu.RUnlock()

	snaps := make([]TagSnapshot, 0, len(tags))
	for _, tag := range tags {
		snaps = append(snaps, tag.Snapshot())
	}
	return snaps
}

// ReadTag returns the last polled value for a tag.
func (m *Manager) ReadTag(name string) (interface{}, error) {
	m.mu.RLock()
	tag := m.tags[name]
	m.mu.RUnlock()

	if tag == nil {
		return nil, fmt.Errorf("tag %q is not managed", name)
	}

	tag.mu.RLock()
	defer tag.mu.RUnlock()
	if tag.LastError != nil {
		return nil, tag.LastError
	}
	if tag.LastPoll.IsZero() {
		return nil, fmt.Errorf("tag %q has not been polled yet", name)
	}
	return tag.Value, nil
}

// WriteTag writes a value to a historian tag through the client. Managed
// tags use their resolved web id; unmanaged names are resolved by the
// client under the single-match policy.
func (m *Manager) WriteTag(ctx context.Context, name string, value interface{}, ts time.Time) (string, error) {
	if ts.IsZero() {
		ts = time.Now()
	}
	v := &piweb.Value{Timestamp: ts, Value: value}

	target := piweb.WriteTarget{Tag: name}
	m.mu.RLock()
	if tag := m.tags[name]; tag != nil {
		tag.mu.RLock()
		if tag.WebID != "" {
			target = piweb.WriteTarget{WebID: tag.WebID}
		}
		tag.mu.RUnlock()
	}
	m.mu.RUnlock()

	return m.client.UpdateValue(ctx, m.dataserver, v, piweb.UpdateReplace, piweb.BufferIfPossible, target)
}

// Start resolves configured tags and begins the poll loop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.ctx != nil {
		m.mu.Unlock()
		return
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.status = StatusResolving
	ctx := m.ctx
	m.mu.Unlock()

	m.resolveTags(ctx)

	m.mu.Lock()
	m.status = StatusPolling
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pollLoop(ctx)

	logging.DebugLog("poller", "started, polling %d tags every %v", len(m.order), m.pollRate)
}

// Stop halts polling and waits for the poll loop to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.ctx = nil
	m.cancel = nil
	m.status = StatusStopped
	m.mu.Unlock()

	logging.DebugLog("poller", "stopped")
}

// resolveTags fills in web ids for tags that don't carry one in config.
// Resolution failures are recorded per tag; the poll loop skips unresolved
// tags until a restart.
func (m *Manager) resolveTags(ctx context.Context) {
	m.mu.RLock()
	tags := make([]*ManagedTag, 0, len(m.order))
	for _, name := range m.order {
		tags = append(tags, m.tags[name])
	}
	m.mu.RUnlock()

	for _, tag := range tags {
		tag.mu.RLock()
		webID := tag.WebID
		name := tag.Config.Name
		tag.mu.RUnlock()
		if webID != "" {
			continue
		}

		resolved, err := m.client.ResolveTags(ctx, m.dataserver, name)
		tag.mu.Lock()
		if err != nil {
			tag.LastError = err
			logging.DebugLog("poller", "RESOLVE %s: FAILED - %v", name, err)
		} else if len(resolved) > 1 {
			tag.LastError = fmt.Errorf("tag %q matched %d points", name, len(resolved))
			logging.DebugLog("poller", "RESOLVE %s: ambiguous (%d matches)", name, len(resolved))
		} else {
			for _, id := range resolved {
				tag.WebID = id
				tag.LastError = nil
			}
			logging.DebugLog("poller", "RESOLVE %s -> %s", name, tag.WebID)
		}
		tag.mu.Unlock()
	}
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll fetches the current value of every resolved tag serially and emits
// change notifications.
func (m *Manager) poll(ctx context.Context) {
	m.mu.RLock()
	tags := make([]*ManagedTag, 0, len(m.order))
	for _, name := range m.order {
		tags = append(tags, m.tags[name])
	}
	onChange := m.onValueChange
	m.mu.RUnlock()

	var changes []ValueChange
	for _, tag := range tags {
		tag.mu.RLock()
		webID := tag.WebID
		name := tag.Config.Name
		ignore := tag.Config.IgnoreChanges
		oldValue := tag.Value
		hadValue := !tag.LastPoll.IsZero()
		tag.mu.RUnlock()

		if webID == "" {
			continue
		}

		rv, err := m.client.RecordedAtTime(ctx, webID, "*", piweb.RetrievalAuto)
		if err != nil {
			tag.mu.Lock()
			tag.LastError = err
			tag.LastPoll = time.Now()
			tag.mu.Unlock()
			continue
		}

		value := rv.Object["Value"]
		timestamp, _ := rv.Object["Timestamp"].(string)

		tag.mu.Lock()
		tag.Value = value
		tag.Timestamp = timestamp
		tag.LastError = nil
		tag.LastPoll = time.Now()
		tag.mu.Unlock()

		if ignore {
			continue
		}
		if !hadValue || fmt.Sprintf("%v", oldValue) != fmt.Sprintf("%v", value) {
			changes = append(changes, ValueChange{Tag: name, Value: value, Timestamp: timestamp})
		}
	}

	if len(changes) > 0 {
		logging.DebugLog("poller", "poll found %d changes", len(changes))
		if onChange != nil {
			onChange(changes)
		}
	}
}
