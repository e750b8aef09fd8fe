package flow

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/medication-tracker/internal/configentry"
	"github.com/nerrad567/medication-tracker/internal/medication"
)

const defaultFlowTTL = 30 * time.Minute

// Entries is the part of the config entry manager flows need.
type Entries interface {
	Add(ctx context.Context, kind configentry.Kind, title string, data map[string]any) (configentry.Entry, error)
	Get(entryID string) (configentry.Entry, error)
	UpdateOptions(ctx context.Context, entryID string, options map[string]any) (configentry.Entry, error)
}

// MemberSource lists the stock entities a group may contain.
type MemberSource interface {
	StockEntityIDs() []string
}

type flowKind int

const (
	configFlow flowKind = iota
	optionsFlow
)

// session is guarded by mu for the whole of a Step so concurrent submits
// of one flow run one after the other.
type session struct {
	mu      sync.Mutex
	done    bool
	id      string
	kind    flowKind
	step    string
	entryID string
	data    map[string]any
	started time.Time
}

// Manager holds in-progress flows.
type Manager struct {
	entries Entries
	members MemberSource
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	flows map[string]*session
}

// NewManager creates a flow manager.
func NewManager(entries Entries, members MemberSource) *Manager {
	return &Manager{
		entries: entries,
		members: members,
		ttl:     defaultFlowTTL,
		now:     time.Now,
		flows:   make(map[string]*session),
	}
}

// Start begins a setup flow at the user menu.
func (m *Manager) Start(_ context.Context) Result {
	s := m.newSession(configFlow, "")
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.showStep(s, StepUser, nil)
}

// StartOptions begins an options flow for entryID. Group entries abort
// immediately since they have no editable options.
func (m *Manager) StartOptions(_ context.Context, entryID string) Result {
	entry, err := m.entries.Get(entryID)
	if err != nil {
		return Result{FlowID: uuid.NewString(), Type: ResultAbort, Reason: AbortEntryNotFound}
	}
	if entry.Kind == configentry.KindGroup {
		return Result{FlowID: uuid.NewString(), Type: ResultAbort, Reason: AbortGroupsNotEditable}
	}

	s := m.newSession(optionsFlow, entryID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.showStep(s, StepInit, nil)
}

// Step submits input to the flow's current step.
func (m *Manager) Step(ctx context.Context, flowID string, input map[string]any) (Result, error) {
	m.mu.Lock()
	s, ok := m.flows[flowID]
	m.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Finished or aborted while this call waited for the session.
	if s.done {
		return Result{}, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	if input == nil {
		input = map[string]any{}
	}

	switch s.step {
	case StepUser:
		return m.stepUser(s, input)
	case StepMedication:
		return m.stepMedication(s, input), nil
	case StepDosage:
		return m.stepDosage(s, input), nil
	case StepThreshold:
		return m.stepThreshold(ctx, s, input)
	case StepGroup:
		return m.stepGroup(ctx, s, input)
	case StepInit:
		return m.stepInit(ctx, s, input)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownStep, s.step)
	}
}

// Abort discards a flow. A Step already running on it completes first.
func (m *Manager) Abort(flowID string) error {
	m.mu.Lock()
	s, ok := m.flows[flowID]
	delete(m.flows, flowID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}

	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	return nil
}

// InProgress returns the number of open flows.
func (m *Manager) InProgress() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flows)
}

func (m *Manager) newSession(kind flowKind, entryID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, s := range m.flows {
		if now.Sub(s.started) > m.ttl {
			delete(m.flows, id)
		}
	}

	s := &session{
		id:      uuid.NewString(),
		kind:    kind,
		entryID: entryID,
		data:    map[string]any{},
		started: now,
	}
	m.flows[s.id] = s
	return s
}

// finish must be called with s.mu held.
func (m *Manager) finish(s *session) {
	s.done = true
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, s.id)
}

func (m *Manager) showStep(s *session, step string, errs map[string]string) Result {
	s.step = step
	res := Result{FlowID: s.id, StepID: step, Errors: errs}

	switch step {
	case StepUser:
		res.Type = ResultMenu
		res.MenuOptions = []string{StepMedication, StepGroup}
		return res
	case StepMedication:
		res.Fields = []Field{
			{Name: medication.KeyName, Type: FieldString, Required: true},
			{Name: medication.KeyInitialStock, Type: FieldNumber, Required: true},
		}
	case StepDosage:
		res.Fields = []Field{
			{Name: medication.KeyPillsPerDose, Type: FieldNumber, Required: true},
			{Name: medication.KeyDosesPerDay, Type: FieldNumber, Required: true},
			{Name: medication.KeyRefillAmount, Type: FieldInteger, Default: medication.DefaultRefillAmount},
		}
	case StepThreshold:
		res.Fields = []Field{
			{Name: medication.KeyLowStockDays, Type: FieldInteger, Default: medication.DefaultLowStockDays},
		}
	case StepGroup:
		res.Fields = []Field{
			{Name: medication.KeyName, Type: FieldString, Required: true},
			{Name: medication.KeyMembers, Type: FieldEntityList, Required: true, Choices: m.members.StockEntityIDs()},
		}
	case StepInit:
		res.Fields = m.optionsFields(s.entryID)
	}
	res.Type = ResultForm
	return res
}

func (m *Manager) stepUser(s *session, input map[string]any) (Result, error) {
	next, _ := input[MenuKey].(string)
	switch next {
	case StepMedication, StepGroup:
		return m.showStep(s, next, nil), nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownStep, next)
	}
}

func (m *Manager) stepMedication(s *session, input map[string]any) Result {
	errs := map[string]string{}

	name := strings.TrimSpace(stringValue(input[medication.KeyName]))
	if name == "" {
		errs[medication.KeyName] = ErrCodeRequired
	}
	stock, code := number(input, medication.KeyInitialStock, true)
	if code == "" && stock < 0 {
		code = ErrCodeNegative
	}
	if code != "" {
		errs[medication.KeyInitialStock] = code
	}

	if len(errs) > 0 {
		return m.showStep(s, StepMedication, errs)
	}
	s.data[medication.KeyName] = name
	s.data[medication.KeyInitialStock] = stock
	return m.showStep(s, StepDosage, nil)
}

func (m *Manager) stepDosage(s *session, input map[string]any) Result {
	values, errs := dosageValues(input, nil)
	if len(errs) > 0 {
		return m.showStep(s, StepDosage, errs)
	}
	maps.Copy(s.data, values)
	return m.showStep(s, StepThreshold, nil)
}

func (m *Manager) stepThreshold(ctx context.Context, s *session, input map[string]any) (Result, error) {
	days, code := positiveInt(input, medication.KeyLowStockDays, medication.DefaultLowStockDays)
	if code != "" {
		return m.showStep(s, StepThreshold, map[string]string{medication.KeyLowStockDays: code}), nil
	}
	s.data[medication.KeyLowStockDays] = days
	s.data[medication.KeyDailyConsumption] = dailyConsumption(s.data)

	name := s.data[medication.KeyName].(string)
	entry, err := m.entries.Add(ctx, configentry.KindMedication, name, s.data)
	if err != nil {
		return Result{}, fmt.Errorf("creating medication entry: %w", err)
	}
	m.finish(s)
	return Result{FlowID: s.id, Type: ResultCreateEntry, Title: name, EntryID: entry.EntryID}, nil
}

func (m *Manager) stepGroup(ctx context.Context, s *session, input map[string]any) (Result, error) {
	errs := map[string]string{}

	name := strings.TrimSpace(stringValue(input[medication.KeyName]))
	if name == "" {
		errs[medication.KeyName] = ErrCodeRequired
	}

	members, ok := stringList(input[medication.KeyMembers])
	known := m.members.StockEntityIDs()
	switch {
	case !ok || len(members) == 0:
		errs[medication.KeyMembers] = ErrCodeNoMembers
	default:
		for _, id := range members {
			if !slices.Contains(known, id) {
				errs[medication.KeyMembers] = ErrCodeUnknownMember
				break
			}
		}
	}

	if len(errs) > 0 {
		return m.showStep(s, StepGroup, errs), nil
	}

	data := map[string]any{medication.KeyName: name, medication.KeyMembers: members}
	entry, err := m.entries.Add(ctx, configentry.KindGroup, name, data)
	if err != nil {
		return Result{}, fmt.Errorf("creating group entry: %w", err)
	}
	m.finish(s)
	return Result{FlowID: s.id, Type: ResultCreateEntry, Title: name, EntryID: entry.EntryID}, nil
}

func (m *Manager) stepInit(ctx context.Context, s *session, input map[string]any) (Result, error) {
	current := m.currentValues(s.entryID)

	values, errs := dosageValues(input, current)
	days, code := positiveInt(input, medication.KeyLowStockDays, intDefault(current[medication.KeyLowStockDays], medication.DefaultLowStockDays))
	if code != "" {
		errs[medication.KeyLowStockDays] = code
	}
	if len(errs) > 0 {
		return m.showStep(s, StepInit, errs), nil
	}
	values[medication.KeyLowStockDays] = days
	values[medication.KeyDailyConsumption] = dailyConsumption(values)

	entry, err := m.entries.UpdateOptions(ctx, s.entryID, values)
	if err != nil {
		return Result{}, fmt.Errorf("saving options: %w", err)
	}
	m.finish(s)
	return Result{FlowID: s.id, Type: ResultCreateEntry, StepID: StepInit, Title: entry.Title, EntryID: entry.EntryID}, nil
}

// currentValues merges an entry's data and options, options winning.
func (m *Manager) currentValues(entryID string) map[string]any {
	entry, err := m.entries.Get(entryID)
	if err != nil {
		return map[string]any{}
	}
	out := maps.Clone(entry.Data)
	maps.Copy(out, entry.Options)
	return out
}

func (m *Manager) optionsFields(entryID string) []Field {
	current := m.currentValues(entryID)
	return []Field{
		{Name: medication.KeyPillsPerDose, Type: FieldNumber, Required: true, Default: current[medication.KeyPillsPerDose]},
		{Name: medication.KeyDosesPerDay, Type: FieldNumber, Required: true, Default: current[medication.KeyDosesPerDay]},
		{Name: medication.KeyRefillAmount, Type: FieldInteger, Default: intDefault(current[medication.KeyRefillAmount], medication.DefaultRefillAmount)},
		{Name: medication.KeyLowStockDays, Type: FieldInteger, Default: intDefault(current[medication.KeyLowStockDays], medication.DefaultLowStockDays)},
	}
}
