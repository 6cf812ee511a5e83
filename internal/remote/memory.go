package remote

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
	"github.com/iliyamo/childcare-checkin/internal/changefeed"
	"github.com/iliyamo/childcare-checkin/internal/model"
)

// Memory is an in-process Store.  It enforces the same invariants as the
// relational schema: cascading venue deletion and one service record and
// usage day per (venue, date).  SetOffline makes every call fail with
// NetworkUnavailable to simulate a lost connection.
type Memory struct {
	mu       sync.RWMutex
	venues   map[string]model.Venue
	settings map[string]model.Settings
	children map[string]model.Child
	services map[string]model.ServiceRecord // key venueID|date
	usage    map[string]model.UsageDay      // key venueID|date
	offline  bool
	calls    int

	feed   changefeed.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithPublisher publishes change notifications to p after each write.
func WithPublisher(p changefeed.Publisher) MemoryOption {
	return func(m *Memory) { m.feed = p }
}

// WithLogger sets the logger used for publish failures.
func WithLogger(l *zap.Logger) MemoryOption {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		venues:   make(map[string]model.Venue),
		settings: make(map[string]model.Settings),
		children: make(map[string]model.Child),
		services: make(map[string]model.ServiceRecord),
		usage:    make(map[string]model.UsageDay),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetOffline toggles the simulated network outage.
func (m *Memory) SetOffline(off bool) {
	m.mu.Lock()
	m.offline = off
	m.mu.Unlock()
}

// Calls returns how many store calls have been made, failed ones included.
func (m *Memory) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Seed inserts a child as-is, without validation or notification.  It is
// meant for fixtures such as records carried over from a previous day.
func (m *Memory) Seed(c model.Child) {
	m.mu.Lock()
	m.children[c.ID] = c
	m.mu.Unlock()
}

func key(venueID, date string) string { return venueID + "|" + date }

// enter records the call and fails when offline.  Callers hold m.mu.
func (m *Memory) enter(op string) error {
	m.calls++
	if m.offline {
		return apperr.New(apperr.KindNetworkUnavailable, op, "remote store unreachable")
	}
	return nil
}

func (m *Memory) publish(ctx context.Context, table changefeed.Table, ev changefeed.EventType, venueID string, oldRow, newRow any) {
	if err := changefeed.Publish(ctx, m.feed, table, ev, venueID, oldRow, newRow); err != nil {
		m.logger.Warn("change notification not published",
			zap.String("table", string(table)),
			zap.Error(err))
	}
}

func (m *Memory) ListVenues(_ context.Context) ([]model.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListVenues"); err != nil {
		return nil, err
	}
	out := make([]model.Venue, 0, len(m.venues))
	for _, v := range m.venues {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out, nil
}

func (m *Memory) GetVenueByID(_ context.Context, id string) (model.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetVenueByID"); err != nil {
		return model.Venue{}, err
	}
	v, ok := m.venues[id]
	if !ok {
		return model.Venue{}, apperr.New(apperr.KindVenueNotFound, "GetVenueByID", "venue no longer exists")
	}
	return v, nil
}

func (m *Memory) CreateVenue(ctx context.Context, name string, maxOccupancy int) (model.Venue, error) {
	if maxOccupancy <= 0 {
		maxOccupancy = model.DefaultMaxOccupancy
	}
	v := model.Venue{ID: uuid.NewString(), Name: name, RegisteredAt: m.now()}
	if err := model.Validate("CreateVenue", v); err != nil {
		return model.Venue{}, err
	}
	s := model.Settings{VenueID: v.ID, MaxOccupancy: maxOccupancy, UpdatedAt: v.RegisteredAt}

	m.mu.Lock()
	if err := m.enter("CreateVenue"); err != nil {
		m.mu.Unlock()
		return model.Venue{}, err
	}
	for _, other := range m.venues {
		if other.Name == name {
			m.mu.Unlock()
			return model.Venue{}, apperr.New(apperr.KindRemoteRejected, "CreateVenue", "venue name already exists")
		}
	}
	m.venues[v.ID] = v
	m.settings[v.ID] = s
	m.mu.Unlock()

	m.publish(ctx, changefeed.TableVenues, changefeed.EventInsert, "", nil, v)
	m.publish(ctx, changefeed.TableSettings, changefeed.EventInsert, v.ID, nil, s)
	return v, nil
}

func (m *Memory) RenameVenue(ctx context.Context, id, name string) (model.Venue, error) {
	m.mu.Lock()
	if err := m.enter("RenameVenue"); err != nil {
		m.mu.Unlock()
		return model.Venue{}, err
	}
	old, ok := m.venues[id]
	if !ok {
		m.mu.Unlock()
		return model.Venue{}, apperr.New(apperr.KindVenueNotFound, "RenameVenue", "venue no longer exists")
	}
	v := old
	v.Name = name
	if err := model.Validate("RenameVenue", v); err != nil {
		m.mu.Unlock()
		return model.Venue{}, err
	}
	m.venues[id] = v
	m.mu.Unlock()

	m.publish(ctx, changefeed.TableVenues, changefeed.EventUpdate, "", old, v)
	return v, nil
}

func (m *Memory) DeleteVenue(ctx context.Context, id string) error {
	m.mu.Lock()
	if err := m.enter("DeleteVenue"); err != nil {
		m.mu.Unlock()
		return err
	}
	old, ok := m.venues[id]
	if !ok {
		m.mu.Unlock()
		return apperr.New(apperr.KindVenueNotFound, "DeleteVenue", "venue no longer exists")
	}
	delete(m.venues, id)
	delete(m.settings, id)
	for cid, c := range m.children {
		if c.VenueID == id {
			delete(m.children, cid)
		}
	}
	for k, s := range m.services {
		if s.VenueID == id {
			delete(m.services, k)
		}
	}
	for k, u := range m.usage {
		if u.VenueID == id {
			delete(m.usage, k)
		}
	}
	m.mu.Unlock()

	m.publish(ctx, changefeed.TableVenues, changefeed.EventDelete, "", old, nil)
	return nil
}

func (m *Memory) GetSettings(_ context.Context, venueID string) (*model.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetSettings"); err != nil {
		return nil, err
	}
	s, ok := m.settings[venueID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) UpsertSettings(ctx context.Context, venueID string, maxOccupancy int) (model.Settings, error) {
	s := model.Settings{VenueID: venueID, MaxOccupancy: maxOccupancy, UpdatedAt: m.now()}
	if err := model.Validate("UpsertSettings", s); err != nil {
		return model.Settings{}, err
	}
	m.mu.Lock()
	if err := m.enter("UpsertSettings"); err != nil {
		m.mu.Unlock()
		return model.Settings{}, err
	}
	if _, ok := m.venues[venueID]; !ok {
		m.mu.Unlock()
		return model.Settings{}, apperr.New(apperr.KindVenueNotFound, "UpsertSettings", "venue no longer exists")
	}
	old, existed := m.settings[venueID]
	m.settings[venueID] = s
	m.mu.Unlock()

	if existed {
		m.publish(ctx, changefeed.TableSettings, changefeed.EventUpdate, venueID, old, s)
	} else {
		m.publish(ctx, changefeed.TableSettings, changefeed.EventInsert, venueID, nil, s)
	}
	return s, nil
}

func (m *Memory) ListChildren(_ context.Context, venueID string) ([]model.Child, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListChildren"); err != nil {
		return nil, err
	}
	var out []model.Child
	for _, c := range m.children {
		if c.VenueID == venueID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckInTime.Equal(out[j].CheckInTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].CheckInTime.Before(out[j].CheckInTime)
	})
	return out, nil
}

func (m *Memory) GetChild(_ context.Context, id string) (model.Child, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetChild"); err != nil {
		return model.Child{}, err
	}
	c, ok := m.children[id]
	if !ok {
		return model.Child{}, apperr.New(apperr.KindNotFound, "GetChild", "child not found")
	}
	return c, nil
}

func (m *Memory) InsertChild(ctx context.Context, c model.Child) (model.Child, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := model.Validate("InsertChild", c); err != nil {
		return model.Child{}, err
	}
	m.mu.Lock()
	if err := m.enter("InsertChild"); err != nil {
		m.mu.Unlock()
		return model.Child{}, err
	}
	if _, ok := m.venues[c.VenueID]; !ok {
		m.mu.Unlock()
		return model.Child{}, apperr.New(apperr.KindVenueNotFound, "InsertChild", "venue no longer exists")
	}
	if _, dup := m.children[c.ID]; dup {
		m.mu.Unlock()
		return model.Child{}, apperr.New(apperr.KindRemoteRejected, "InsertChild", "child already exists")
	}
	m.children[c.ID] = c
	m.mu.Unlock()

	m.publish(ctx, changefeed.TableChildren, changefeed.EventInsert, c.VenueID, nil, c)
	return c, nil
}

func (m *Memory) UpdateChild(ctx context.Context, id string, patch model.ChildPatch) (model.Child, error) {
	if err := model.Validate("UpdateChild", patch); err != nil {
		return model.Child{}, err
	}
	m.mu.Lock()
	if err := m.enter("UpdateChild"); err != nil {
		m.mu.Unlock()
		return model.Child{}, err
	}
	old, ok := m.children[id]
	if !ok {
		m.mu.Unlock()
		return model.Child{}, apperr.New(apperr.KindNotFound, "UpdateChild", "child not found")
	}
	c := patch.Apply(old)
	m.children[id] = c
	m.mu.Unlock()

	m.publish(ctx, changefeed.TableChildren, changefeed.EventUpdate, c.VenueID, old, c)
	return c, nil
}

func (m *Memory) DeleteChild(ctx context.Context, id string) (model.Child, error) {
	m.mu.Lock()
	if err := m.enter("DeleteChild"); err != nil {
		m.mu.Unlock()
		return model.Child{}, err
	}
	old, ok := m.children[id]
	if !ok {
		m.mu.Unlock()
		return model.Child{}, apperr.New(apperr.KindNotFound, "DeleteChild", "child not found")
	}
	delete(m.children, id)
	m.mu.Unlock()

	m.publish(ctx, changefeed.TableChildren, changefeed.EventDelete, old.VenueID, old, nil)
	return old, nil
}

func (m *Memory) ListServiceRecords(_ context.Context, venueID string, limit int) ([]model.ServiceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListServiceRecords"); err != nil {
		return nil, err
	}
	var out []model.ServiceRecord
	for _, s := range m.services {
		if s.VenueID == venueID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetServiceRecordByDate(_ context.Context, venueID, date string) (*model.ServiceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetServiceRecordByDate"); err != nil {
		return nil, err
	}
	s, ok := m.services[key(venueID, date)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) UpsertServiceRecord(ctx context.Context, venueID, date string, content model.ServiceContent, childCount int) (model.ServiceRecord, error) {
	m.mu.Lock()
	if err := m.enter("UpsertServiceRecord"); err != nil {
		m.mu.Unlock()
		return model.ServiceRecord{}, err
	}
	if _, ok := m.venues[venueID]; !ok {
		m.mu.Unlock()
		return model.ServiceRecord{}, apperr.New(apperr.KindVenueNotFound, "UpsertServiceRecord", "venue no longer exists")
	}
	old, existed := m.services[key(venueID, date)]
	rec := model.ServiceRecord{
		ID:            uuid.NewString(),
		VenueID:       venueID,
		Date:          date,
		ScriptureRead: content.ScriptureRead,
		HymnsSung:     content.HymnsSung,
		LessonSummary: content.LessonSummary,
		ChildCount:    childCount,
		CreatedAt:     m.now(),
	}
	if existed {
		rec.ID = old.ID
		rec.CreatedAt = old.CreatedAt
	}
	if err := model.Validate("UpsertServiceRecord", rec); err != nil {
		m.mu.Unlock()
		return model.ServiceRecord{}, err
	}
	m.services[key(venueID, date)] = rec
	m.mu.Unlock()

	if existed {
		m.publish(ctx, changefeed.TableServices, changefeed.EventUpdate, venueID, old, rec)
	} else {
		m.publish(ctx, changefeed.TableServices, changefeed.EventInsert, venueID, nil, rec)
	}
	return rec, nil
}

func (m *Memory) ListUsageDays(_ context.Context, venueID string, limit int) ([]model.UsageDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListUsageDays"); err != nil {
		return nil, err
	}
	var out []model.UsageDay
	for _, u := range m.usage {
		if u.VenueID == venueID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpsertUsageDay(ctx context.Context, d model.UsageDay) error {
	if err := model.Validate("UpsertUsageDay", d); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.enter("UpsertUsageDay"); err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := m.venues[d.VenueID]; !ok {
		m.mu.Unlock()
		return apperr.New(apperr.KindVenueNotFound, "UpsertUsageDay", "venue no longer exists")
	}
	_, existed := m.usage[key(d.VenueID, d.Date)]
	m.usage[key(d.VenueID, d.Date)] = d
	m.mu.Unlock()

	ev := changefeed.EventInsert
	if existed {
		ev = changefeed.EventUpdate
	}
	m.publish(ctx, changefeed.TableUsageDays, ev, d.VenueID, nil, d)
	return nil
}

func (m *Memory) DeleteAllChildren(ctx context.Context, venueID string) (int64, error) {
	m.mu.Lock()
	if err := m.enter("DeleteAllChildren"); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	var n int64
	for id, c := range m.children {
		if c.VenueID == venueID {
			delete(m.children, id)
			n++
		}
	}
	m.mu.Unlock()
	if n > 0 {
		m.publish(ctx, changefeed.TableChildren, changefeed.EventDelete, venueID, nil, nil)
	}
	return n, nil
}

func (m *Memory) DeleteAllServiceRecords(ctx context.Context, venueID string) (int64, error) {
	m.mu.Lock()
	if err := m.enter("DeleteAllServiceRecords"); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	var n int64
	for k, s := range m.services {
		if s.VenueID == venueID {
			delete(m.services, k)
			n++
		}
	}
	m.mu.Unlock()
	if n > 0 {
		m.publish(ctx, changefeed.TableServices, changefeed.EventDelete, venueID, nil, nil)
	}
	return n, nil
}

func (m *Memory) DeleteAllUsageDays(ctx context.Context, venueID string) (int64, error) {
	m.mu.Lock()
	if err := m.enter("DeleteAllUsageDays"); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	var n int64
	for k, u := range m.usage {
		if u.VenueID == venueID {
			delete(m.usage, k)
			n++
		}
	}
	m.mu.Unlock()
	if n > 0 {
		m.publish(ctx, changefeed.TableUsageDays, changefeed.EventDelete, venueID, nil, nil)
	}
	return n, nil
}

func (m *Memory) EarliestRecordDate(_ context.Context, venueID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("EarliestRecordDate"); err != nil {
		return "", false, err
	}
	earliest := ""
	consider := func(d string) {
		if d != "" && (earliest == "" || d < earliest) {
			earliest = d
		}
	}
	for _, c := range m.children {
		if c.VenueID == venueID {
			consider(c.RegistrationDate)
		}
	}
	for _, s := range m.services {
		if s.VenueID == venueID {
			consider(s.Date)
		}
	}
	for _, u := range m.usage {
		if u.VenueID == venueID {
			consider(u.Date)
		}
	}
	return earliest, earliest != "", nil
}

func (m *Memory) HasVenueData(_ context.Context, venueID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("HasVenueData"); err != nil {
		return false, err
	}
	for _, c := range m.children {
		if c.VenueID == venueID {
			return true, nil
		}
	}
	for _, s := range m.services {
		if s.VenueID == venueID {
			return true, nil
		}
	}
	for _, u := range m.usage {
		if u.VenueID == venueID {
			return true, nil
		}
	}
	return false, nil
}

var _ Store = (*Memory)(nil)
