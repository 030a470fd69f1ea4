package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

type fakeEngineFactory struct {
	engine *fakeEngine
	err    error
}

func (f *fakeEngineFactory) NewEngine() (ports.RecognitionEngine, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.engine, nil
}

type fakeEngine struct {
	mu        sync.Mutex
	sink      ports.RecognitionSink
	configs   []ports.RecognitionConfig
	startErrs []error
	stops     int
	closed    bool
	endOnStop bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{endOnStop: true}
}

func (e *fakeEngine) Start(_ context.Context, cfg ports.RecognitionConfig, sink ports.RecognitionSink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if len(e.startErrs) > 0 {
		err := e.startErrs[0]
		e.startErrs = e.startErrs[1:]
		if err != nil {
			return err
		}
	}
	e.sink = sink
	return nil
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	e.stops++
	sink := e.sink
	endOnStop := e.endOnStop
	e.mu.Unlock()
	if endOnStop && sink != nil {
		sink.End()
	}
	return nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) currentSink() ports.RecognitionSink {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sink
}

func (e *fakeEngine) result(results ...domain.RecognitionResult) {
	e.currentSink().Result(domain.RecognitionEvent{Results: results})
}

func (e *fakeEngine) startCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.configs)
}

func (e *fakeEngine) stopCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and fires due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired && !timer.deadline.After(c.now) {
			timer.fired = true
			due = append(due, timer)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, timer := range due {
		timer.fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			count++
		}
	}
	return count
}

type stateEvent struct {
	session string
	state   domain.SessionState
	reason  domain.SessionStateReason
}

type errorEvent struct {
	session string
	kind    domain.ErrorKind
	detail  string
}

type finalEvent struct {
	raw         string
	transformed string
}

type fakeEventSink struct {
	mu          sync.Mutex
	states      []stateEvent
	transcripts []domain.Transcript
	finals      []finalEvent
	errors      []errorEvent
	busy        []bool
	records     []string
}

func (s *fakeEventSink) SessionStateChanged(session string, state domain.SessionState, reason domain.SessionStateReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, stateEvent{session: session, state: state, reason: reason})
}

func (s *fakeEventSink) TranscriptChanged(_ string, transcript domain.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, transcript)
}

func (s *fakeEventSink) TranscriptFinalized(_ string, raw string, transformed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, finalEvent{raw: raw, transformed: transformed})
}

func (s *fakeEventSink) SessionError(session string, kind domain.ErrorKind, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, errorEvent{session: session, kind: kind, detail: detail})
}

func (s *fakeEventSink) ScreenBusy(_ string, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = append(s.busy, busy)
}

func (s *fakeEventSink) RecordsChanged(_ string, resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, resource)
}

func (s *fakeEventSink) snapshotStates() []stateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stateEvent(nil), s.states...)
}

func (s *fakeEventSink) snapshotErrors() []errorEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]errorEvent(nil), s.errors...)
}

func (s *fakeEventSink) snapshotFinals() []finalEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]finalEvent(nil), s.finals...)
}

func (s *fakeEventSink) snapshotRecords() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.records...)
}

func (s *fakeEventSink) lastTranscript() domain.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.transcripts) == 0 {
		return domain.Transcript{}
	}
	return s.transcripts[len(s.transcripts)-1]
}

type fakeRules struct {
	transform string
	err       error
}

func (r *fakeRules) Apply(text string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if r.transform == "" {
		return text, nil
	}
	return r.transform, nil
}

type finalizeRecorder struct {
	mu    sync.Mutex
	texts []string
	kinds []domain.ErrorKind
}

func (r *finalizeRecorder) onFinalize(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *finalizeRecorder) onError(kind domain.ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *finalizeRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func (r *finalizeRecorder) snapshotKinds() []domain.ErrorKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ErrorKind(nil), r.kinds...)
}

type fakeGenerative struct {
	mu        sync.Mutex
	reply     string
	replyErr  error
	draft     domain.ReminderDraft
	draftErr  error
	prompts   []string
	histories [][]ports.ChatTurn
	contexts  []string
	block     chan struct{}
}

func (g *fakeGenerative) Reply(_ context.Context, prompt string, history []ports.ChatTurn, userContext string) (string, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.histories = append(g.histories, history)
	g.contexts = append(g.contexts, userContext)
	return g.reply, g.replyErr
}

func (g *fakeGenerative) ExtractReminder(_ context.Context, text string) (domain.ReminderDraft, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, text)
	return g.draft, g.draftErr
}

type fakeSpeechOutput struct {
	mu       sync.Mutex
	spoken   []ports.Utterance
	cancels  int
	hold     bool
	started  chan struct{}
	canceled []bool
}

func (o *fakeSpeechOutput) Speak(ctx context.Context, utterance ports.Utterance) error {
	o.mu.Lock()
	o.spoken = append(o.spoken, utterance)
	hold := o.hold
	started := o.started
	o.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if hold {
		<-ctx.Done()
		o.mu.Lock()
		o.canceled = append(o.canceled, true)
		o.mu.Unlock()
		return ctx.Err()
	}
	return nil
}

func (o *fakeSpeechOutput) CancelAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels++
}

func (o *fakeSpeechOutput) snapshot() []ports.Utterance {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ports.Utterance(nil), o.spoken...)
}

// memStore is an in-memory ports.Store for use case tests.
type memStore struct {
	mu        sync.Mutex
	seq       int
	users     map[string]domain.User
	items     []domain.ProfileItem
	reminders []domain.Reminder
	memories  []domain.Memory
	messages  []domain.ChatMessage
	failNext  error
}

func newMemStore() *memStore {
	return &memStore{users: map[string]domain.User{}}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return prefix + strconv.Itoa(s.seq)
}

func (s *memStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *memStore) Users() ports.Users               { return memUsers{s} }
func (s *memStore) ProfileItems() ports.ProfileItems { return memItems{s} }
func (s *memStore) Reminders() ports.Reminders       { return memReminders{s} }
func (s *memStore) Memories() ports.Memories         { return memMemories{s} }
func (s *memStore) ChatMessages() ports.ChatMessages { return memMessages{s} }
func (s *memStore) Close() error                     { return nil }

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return domain.User{}, err
	}
	if user.ID == "" {
		user.ID = r.s.nextID("u")
	}
	user.ProfileItems = nil
	r.s.users[user.ID] = user
	return user, nil
}

func (r memUsers) Get(_ context.Context, id string) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return domain.User{}, err
	}
	user, ok := r.s.users[id]
	if !ok {
		return domain.User{}, ports.ErrNotFound
	}
	return user, nil
}

func (r memUsers) Update(_ context.Context, user domain.User) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return domain.User{}, ports.ErrNotFound
	}
	user.ProfileItems = nil
	r.s.users[user.ID] = user
	return user, nil
}

func (r memUsers) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.users, id)
	return nil
}

type memItems struct{ s *memStore }

func (r memItems) Create(_ context.Context, item domain.ProfileItem) (domain.ProfileItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return domain.ProfileItem{}, err
	}
	item.ID = r.s.nextID("p")
	r.s.items = append(r.s.items, item)
	return item, nil
}

func (r memItems) Get(_ context.Context, id string) (domain.ProfileItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return domain.ProfileItem{}, ports.ErrNotFound
}

func (r memItems) Update(_ context.Context, item domain.ProfileItem) (domain.ProfileItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.items {
		if r.s.items[i].ID == item.ID {
			r.s.items[i] = item
			return item, nil
		}
	}
	return domain.ProfileItem{}, ports.ErrNotFound
}

func (r memItems) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.items {
		if r.s.items[i].ID == id {
			r.s.items = append(r.s.items[:i], r.s.items[i+1:]...)
			return nil
		}
	}
	return ports.ErrNotFound
}

func (r memItems) List(_ context.Context, userID string) ([]domain.ProfileItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return nil, err
	}
	var out []domain.ProfileItem
	for _, item := range r.s.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

type memReminders struct{ s *memStore }

func (r memReminders) Create(_ context.Context, reminder domain.Reminder) (domain.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return domain.Reminder{}, err
	}
	reminder.ID = r.s.nextID("r")
	r.s.reminders = append(r.s.reminders, reminder)
	return reminder, nil
}

func (r memReminders) Get(_ context.Context, id string) (domain.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, reminder := range r.s.reminders {
		if reminder.ID == id {
			return reminder, nil
		}
	}
	return domain.Reminder{}, ports.ErrNotFound
}

func (r memReminders) Update(_ context.Context, reminder domain.Reminder) (domain.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.reminders {
		if r.s.reminders[i].ID == reminder.ID {
			r.s.reminders[i] = reminder
			return reminder, nil
		}
	}
	return domain.Reminder{}, ports.ErrNotFound
}

func (r memReminders) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.reminders {
		if r.s.reminders[i].ID == id {
			r.s.reminders = append(r.s.reminders[:i], r.s.reminders[i+1:]...)
			return nil
		}
	}
	return ports.ErrNotFound
}

func (r memReminders) List(_ context.Context, userID string) ([]domain.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Reminder
	for _, reminder := range r.s.reminders {
		if reminder.UserID == userID {
			out = append(out, reminder)
		}
	}
	return out, nil
}

type memMemories struct{ s *memStore }

func (r memMemories) Create(_ context.Context, memory domain.Memory) (domain.Memory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return domain.Memory{}, err
	}
	memory.ID = r.s.nextID("m")
	r.s.memories = append(r.s.memories, memory)
	return memory, nil
}

func (r memMemories) Get(_ context.Context, id string) (domain.Memory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, memory := range r.s.memories {
		if memory.ID == id {
			return memory, nil
		}
	}
	return domain.Memory{}, ports.ErrNotFound
}

func (r memMemories) Update(_ context.Context, memory domain.Memory) (domain.Memory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.memories {
		if r.s.memories[i].ID == memory.ID {
			r.s.memories[i] = memory
			return memory, nil
		}
	}
	return domain.Memory{}, ports.ErrNotFound
}

func (r memMemories) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.memories {
		if r.s.memories[i].ID == id {
			r.s.memories = append(r.s.memories[:i], r.s.memories[i+1:]...)
			return nil
		}
	}
	return ports.ErrNotFound
}

func (r memMemories) List(_ context.Context, userID string) ([]domain.Memory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Memory
	for i := len(r.s.memories) - 1; i >= 0; i-- {
		if r.s.memories[i].UserID == userID {
			out = append(out, r.s.memories[i])
		}
	}
	return out, nil
}

type memMessages struct{ s *memStore }

func (r memMessages) Create(_ context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return domain.ChatMessage{}, err
	}
	message.ID = r.s.nextID("c")
	r.s.messages = append(r.s.messages, message)
	return message, nil
}

func (r memMessages) Get(_ context.Context, id string) (domain.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, message := range r.s.messages {
		if message.ID == id {
			return message, nil
		}
	}
	return domain.ChatMessage{}, ports.ErrNotFound
}

func (r memMessages) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.messages {
		if r.s.messages[i].ID == id {
			r.s.messages = append(r.s.messages[:i], r.s.messages[i+1:]...)
			return nil
		}
	}
	return ports.ErrNotFound
}

func (r memMessages) List(_ context.Context, userID string) ([]domain.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ChatMessage
	for _, message := range r.s.messages {
		if message.UserID == userID {
			out = append(out, message)
		}
	}
	return out, nil
}

type fakeObjectStorage struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
	err     error
}

func (f *fakeObjectStorage) Put(_ context.Context, key string, contentType string, _ io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[key] = contentType
	return "https://media.example/" + key, nil
}

func (f *fakeObjectStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

var errBoom = errors.New("boom")
