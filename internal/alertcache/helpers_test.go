package alertcache

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
	"github.com/fleetwatch/fleetwatch/internal/datastore/repository"
	"github.com/fleetwatch/fleetwatch/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewZerologLogger(io.Discard, logger.LogLevelError)
}

func ptr[T any](v T) *T { return &v }

// fakeSource is an in-memory ConditionSource and CurrentValueLookup.
type fakeSource struct {
	mu    sync.Mutex
	rows  []repository.ConditionComposite
	calls int
	// failOnCall makes the n-th FindConditions call (1-based) fail
	failOnCall int

	numeric      map[uint]float64
	traits       map[uint]string
	availability map[uint]string
	configs      map[uint]map[string]string
}

func newFakeSource(rows ...repository.ConditionComposite) *fakeSource {
	return &fakeSource{
		rows:         rows,
		numeric:      map[uint]float64{},
		traits:       map[uint]string{},
		availability: map[uint]string{},
		configs:      map[uint]map[string]string{},
	}
}

var errQueryFailed = errors.New("query failed")

func (f *fakeSource) FindConditions(_ context.Context, category entities.ConditionCategory, scope repository.ConditionScope, offset, limit int) ([]repository.ConditionComposite, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOnCall > 0 && f.calls == f.failOnCall {
		return nil, 0, errQueryFailed
	}

	var matching []repository.ConditionComposite
	for _, r := range f.rows {
		if r.Category != category {
			continue
		}
		if scope.AgentID != 0 && r.AgentID != scope.AgentID {
			continue
		}
		if scope.DefinitionID != 0 && r.DefinitionID != scope.DefinitionID {
			continue
		}
		matching = append(matching, r)
	}
	total := int64(len(matching))
	if offset >= len(matching) {
		return nil, total, nil
	}
	end := min(offset+limit, len(matching))
	return slices.Clone(matching[offset:end]), total, nil
}

func (f *fakeSource) ConditionIDsForDefinition(_ context.Context, definitionID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint
	for _, r := range f.rows {
		if r.DefinitionID == definitionID {
			ids = append(ids, r.ConditionID)
		}
	}
	return ids, nil
}

func (f *fakeSource) GetCondition(_ context.Context, id uint) (*entities.AlertCondition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ConditionID == id {
			return &entities.AlertCondition{ID: id, AlertDefinitionID: r.DefinitionID, Category: r.Category}, nil
		}
	}
	return nil, repository.ErrAlertConditionNotFound
}

func (f *fakeSource) ListAgentIDs(context.Context) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint
	for _, r := range f.rows {
		if !slices.Contains(ids, r.AgentID) {
			ids = append(ids, r.AgentID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *fakeSource) setRows(rows ...repository.ConditionComposite) {
	f.mu.Lock()
	f.rows = rows
	f.mu.Unlock()
}

func (f *fakeSource) CurrentNumeric(_ context.Context, scheduleID uint) (*float64, error) {
	if v, ok := f.numeric[scheduleID]; ok {
		return &v, nil
	}
	return nil, nil
}

func (f *fakeSource) CurrentTrait(_ context.Context, scheduleID uint) (*string, error) {
	if v, ok := f.traits[scheduleID]; ok {
		return &v, nil
	}
	return nil, nil
}

func (f *fakeSource) CurrentAvailability(_ context.Context, resourceID uint) (string, error) {
	return f.availability[resourceID], nil
}

func (f *fakeSource) CurrentConfiguration(_ context.Context, resourceID uint) (map[string]string, error) {
	return f.configs[resourceID], nil
}

// signal is one notification captured by recordingSink.
type signal struct {
	kind        string
	conditionID uint
	timestamp   time.Time
	value       any
	extra       []any
}

// recordingSink captures signals in order.
type recordingSink struct {
	mu      sync.Mutex
	signals []signal
	err     error
}

func (s *recordingSink) Activate(conditionID uint, ts time.Time, value any, extra ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, signal{kind: SignalActivate, conditionID: conditionID, timestamp: ts, value: value, extra: extra})
	return s.err
}

func (s *recordingSink) Deactivate(conditionID uint, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, signal{kind: SignalDeactivate, conditionID: conditionID, timestamp: ts})
	return s.err
}

func (s *recordingSink) take() []signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.signals
	s.signals = nil
	return out
}

// Row builders. Agent 1 owns resources 10 and 11, agent 2 owns resource 20.

func thresholdRow(condID, agentID, resourceID, scheduleID uint, comparator string, threshold float64) repository.ConditionComposite {
	return repository.ConditionComposite{
		ConditionID: condID, DefinitionID: condID, Category: entities.CategoryThreshold,
		Comparator: comparator, Threshold: ptr(threshold),
		AgentID: agentID, ResourceID: resourceID, ScheduleID: ptr(scheduleID),
	}
}

func changeRow(condID, agentID, resourceID, scheduleID uint) repository.ConditionComposite {
	return repository.ConditionComposite{
		ConditionID: condID, DefinitionID: condID, Category: entities.CategoryChange,
		AgentID: agentID, ResourceID: resourceID, ScheduleID: ptr(scheduleID),
	}
}

func baselineRow(condID, agentID, resourceID, scheduleID, baselineID uint, comparator, option string, percent float64, mean float64) repository.ConditionComposite {
	return repository.ConditionComposite{
		ConditionID: condID, DefinitionID: condID, Category: entities.CategoryBaseline,
		Comparator: comparator, Option: option, Threshold: ptr(percent),
		AgentID: agentID, ResourceID: resourceID, ScheduleID: ptr(scheduleID),
		BaselineID: ptr(baselineID), BaselineMin: ptr(mean / 2), BaselineMean: ptr(mean), BaselineMax: ptr(mean * 2),
	}
}

func traitRow(condID, agentID, resourceID, scheduleID uint, comparator, option string) repository.ConditionComposite {
	return repository.ConditionComposite{
		ConditionID: condID, DefinitionID: condID, Category: entities.CategoryTrait,
		Comparator: comparator, Option: option,
		AgentID: agentID, ResourceID: resourceID, ScheduleID: ptr(scheduleID),
	}
}

func controlRow(condID, agentID, resourceID, opDefID uint, status string) repository.ConditionComposite {
	return repository.ConditionComposite{
		ConditionID: condID, DefinitionID: condID, Category: entities.CategoryControl,
		Name: "restart", Option: status,
		AgentID: agentID, ResourceID: resourceID, OperationDefinitionID: ptr(opDefID),
	}
}

func availabilityRow(condID, agentID, resourceID uint, option string) repository.ConditionComposite {
	return repository.ConditionComposite{
		ConditionID: condID, DefinitionID: condID, Category: entities.CategoryAvailability,
		Option: option, AgentID: agentID, ResourceID: resourceID,
	}
}

func eventRow(condID, agentID, resourceID uint, severity, detail string) repository.ConditionComposite {
	return repository.ConditionComposite{
		ConditionID: condID, DefinitionID: condID, Category: entities.CategoryEvent,
		Name: severity, Option: detail, AgentID: agentID, ResourceID: resourceID,
	}
}

func configRow(condID, agentID, resourceID uint) repository.ConditionComposite {
	return repository.ConditionComposite{
		ConditionID: condID, DefinitionID: condID, Category: entities.CategoryResourceConfig,
		AgentID: agentID, ResourceID: resourceID,
	}
}

func newTestCache(src *fakeSource, sink Sink, opts ...Option) *Cache {
	return New(src, src, sink, testLogger(), opts...)
}
