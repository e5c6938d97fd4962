package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
)

// setupTestDB creates an in-memory SQLite database with the full schema.
// A single connection keeps every statement on the same in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(entities.All()...), "failed to migrate")
	return db
}

func ptr[T any](v T) *T { return &v }

// fleet is a small seeded inventory shared by the tests below.
type fleet struct {
	agentA, agentB     entities.Agent
	resA, resB         entities.Resource
	cpuDefID, verDefID uint
	cpuSchedA          entities.MeasurementSchedule
	verSchedA          entities.MeasurementSchedule
	cpuSchedB          entities.MeasurementSchedule
	restartOp          entities.OperationDefinition
}

func seedFleet(t *testing.T, db *gorm.DB) *fleet {
	t.Helper()
	f := &fleet{cpuDefID: 10, verDefID: 11}
	f.agentA = entities.Agent{Name: "agent-a"}
	f.agentB = entities.Agent{Name: "agent-b"}
	require.NoError(t, db.Create(&f.agentA).Error)
	require.NoError(t, db.Create(&f.agentB).Error)

	f.resA = entities.Resource{AgentID: f.agentA.ID, ResourceTypeID: 1, Name: "host-a"}
	f.resB = entities.Resource{AgentID: f.agentB.ID, ResourceTypeID: 1, Name: "host-b"}
	require.NoError(t, db.Create(&f.resA).Error)
	require.NoError(t, db.Create(&f.resB).Error)

	f.cpuSchedA = entities.MeasurementSchedule{ResourceID: f.resA.ID, DefinitionID: f.cpuDefID}
	f.verSchedA = entities.MeasurementSchedule{ResourceID: f.resA.ID, DefinitionID: f.verDefID, DataType: entities.DataTypeTrait}
	f.cpuSchedB = entities.MeasurementSchedule{ResourceID: f.resB.ID, DefinitionID: f.cpuDefID}
	require.NoError(t, db.Create(&f.cpuSchedA).Error)
	require.NoError(t, db.Create(&f.verSchedA).Error)
	require.NoError(t, db.Create(&f.cpuSchedB).Error)

	f.restartOp = entities.OperationDefinition{ResourceTypeID: 1, Name: "restart"}
	require.NoError(t, db.Create(&f.restartOp).Error)
	return f
}

func createDefinition(t *testing.T, db *gorm.DB, resourceID uint, enabled bool, conds ...entities.AlertCondition) *entities.AlertDefinition {
	t.Helper()
	def := &entities.AlertDefinition{ResourceID: resourceID, Name: "def", Enabled: enabled, Conditions: conds}
	require.NoError(t, db.Create(def).Error)
	return def
}

func TestConditionRepository_ThresholdScopedByAgent(t *testing.T) {
	db := setupTestDB(t)
	f := seedFleet(t, db)
	repo := NewConditionRepository(db)
	ctx := t.Context()

	createDefinition(t, db, f.resA.ID, true, entities.AlertCondition{
		Category: entities.CategoryThreshold, Comparator: ">", Threshold: ptr(80.0), MeasurementDefinitionID: &f.cpuDefID,
	})
	createDefinition(t, db, f.resB.ID, true, entities.AlertCondition{
		Category: entities.CategoryThreshold, Comparator: "<", Threshold: ptr(5.0), MeasurementDefinitionID: &f.cpuDefID,
	})

	rows, total, err := repo.FindConditions(ctx, entities.CategoryThreshold, ConditionScope{AgentID: f.agentA.ID}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, f.agentA.ID, row.AgentID)
	assert.Equal(t, f.resA.ID, row.ResourceID)
	assert.Equal(t, ">", row.Comparator)
	require.NotNil(t, row.ScheduleID)
	assert.Equal(t, f.cpuSchedA.ID, *row.ScheduleID)
	require.NotNil(t, row.Threshold)
	assert.InDelta(t, 80.0, *row.Threshold, 1e-9)

	_, total, err = repo.FindConditions(ctx, entities.CategoryThreshold, ConditionScope{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestConditionRepository_Eligibility(t *testing.T) {
	db := setupTestDB(t)
	f := seedFleet(t, db)
	repo := NewConditionRepository(db)
	ctx := t.Context()

	cond := func() entities.AlertCondition {
		return entities.AlertCondition{Category: entities.CategoryAvailability, Option: "DOWN"}
	}
	createDefinition(t, db, f.resA.ID, true, cond())
	createDefinition(t, db, f.resA.ID, false, cond())

	deleted := createDefinition(t, db, f.resA.ID, true, cond())
	require.NoError(t, db.Model(deleted).Update("deleted", true).Error)

	recovery := createDefinition(t, db, f.resA.ID, true, cond())
	require.NoError(t, db.Model(recovery).Update("recovery_id", deleted.ID).Error)

	zeroRecovery := createDefinition(t, db, f.resA.ID, true, cond())
	require.NoError(t, db.Model(zeroRecovery).Update("recovery_id", 0).Error)

	rows, total, err := repo.FindConditions(ctx, entities.CategoryAvailability, ConditionScope{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rows, 2)
	assert.Equal(t, "DOWN", rows[0].Option)
}

func TestConditionRepository_CategoryContext(t *testing.T) {
	db := setupTestDB(t)
	f := seedFleet(t, db)
	repo := NewConditionRepository(db)
	ctx := t.Context()

	require.NoError(t, db.Create(&entities.MeasurementBaseline{
		ScheduleID: f.cpuSchedA.ID, Min: ptr(10.0), Mean: ptr(40.0), Max: ptr(90.0),
	}).Error)

	def := createDefinition(t, db, f.resA.ID, true,
		entities.AlertCondition{Category: entities.CategoryBaseline, Comparator: ">", Option: "mean", Threshold: ptr(150.0), MeasurementDefinitionID: &f.cpuDefID},
		entities.AlertCondition{Category: entities.CategoryControl, Name: "restart", Option: "FAILURE"},
		entities.AlertCondition{Category: entities.CategoryControl, Name: "missing-op", Option: "SUCCESS"},
		entities.AlertCondition{Category: entities.CategoryTrait, MeasurementDefinitionID: &f.verDefID},
	)

	rows, _, err := repo.FindConditions(ctx, entities.CategoryBaseline, ConditionScope{DefinitionID: def.ID}, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].BaselineID)
	require.NotNil(t, rows[0].BaselineMean)
	assert.InDelta(t, 40.0, *rows[0].BaselineMean, 1e-9)
	assert.Equal(t, "mean", rows[0].Option)

	rows, total, err := repo.FindConditions(ctx, entities.CategoryControl, ConditionScope{DefinitionID: def.ID}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].OperationDefinitionID)
	assert.Equal(t, f.restartOp.ID, *rows[0].OperationDefinitionID)
	assert.Nil(t, rows[1].OperationDefinitionID, "unknown operation still reaches construction")

	rows, _, err = repo.FindConditions(ctx, entities.CategoryTrait, ConditionScope{DefinitionID: def.ID}, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ScheduleID)
	assert.Equal(t, f.verSchedA.ID, *rows[0].ScheduleID)

	ids, err := repo.ConditionIDsForDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
}

func TestConditionCursor_Pages(t *testing.T) {
	db := setupTestDB(t)
	f := seedFleet(t, db)
	repo := NewConditionRepository(db)
	ctx := t.Context()

	conds := make([]entities.AlertCondition, 7)
	for i := range conds {
		conds[i] = entities.AlertCondition{Category: entities.CategoryEvent, Name: "WARN"}
	}
	createDefinition(t, db, f.resA.ID, true, conds...)

	cursor := NewConditionCursor(repo, entities.CategoryEvent, ConditionScope{AgentID: f.agentA.ID}, 3)
	var sizes []int
	seen := map[uint]bool{}
	for {
		page, err := cursor.Next(ctx)
		require.NoError(t, err)
		if page == nil {
			break
		}
		sizes = append(sizes, len(page))
		for _, row := range page {
			seen[row.ConditionID] = true
		}
	}
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Len(t, seen, 7)
	assert.Equal(t, 7, cursor.Processed())
	assert.Equal(t, int64(7), cursor.Total())

	empty := NewConditionCursor(repo, entities.CategoryEvent, ConditionScope{AgentID: f.agentB.ID}, 3)
	page, err := empty.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestConditionRepository_GetCondition(t *testing.T) {
	db := setupTestDB(t)
	f := seedFleet(t, db)
	repo := NewConditionRepository(db)

	def := createDefinition(t, db, f.resA.ID, true, entities.AlertCondition{Category: entities.CategoryEvent, Name: "ERROR"})
	got, err := repo.GetCondition(t.Context(), def.Conditions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", got.Name)

	_, err = repo.GetCondition(t.Context(), 9999)
	require.ErrorIs(t, err, ErrAlertConditionNotFound)

	agents, err := repo.ListAgentIDs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []uint{f.agentA.ID, f.agentB.ID}, agents)
}

func TestCurrentValueLookup(t *testing.T) {
	db := setupTestDB(t)
	f := seedFleet(t, db)
	repo := NewConditionRepository(db)
	telemetry := NewTelemetryRepository(db)
	ctx := t.Context()

	v, err := repo.CurrentNumeric(ctx, f.cpuSchedA.ID)
	require.NoError(t, err)
	assert.Nil(t, v)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, telemetry.SaveNumeric(ctx, []entities.MeasurementDataNumeric{
		{ScheduleID: f.cpuSchedA.ID, Timestamp: t0, Value: 10},
		{ScheduleID: f.cpuSchedA.ID, Timestamp: t0.Add(time.Minute), Value: 20},
	}))
	v, err = repo.CurrentNumeric(ctx, f.cpuSchedA.ID)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.InDelta(t, 20.0, *v, 1e-9)

	require.NoError(t, telemetry.SaveTraits(ctx, []entities.MeasurementDataTrait{
		{ScheduleID: f.verSchedA.ID, Timestamp: t0, Value: "1.0"},
		{ScheduleID: f.verSchedA.ID, Timestamp: t0.Add(time.Hour), Value: "1.1"},
	}))
	trait, err := repo.CurrentTrait(ctx, f.verSchedA.ID)
	require.NoError(t, err)
	require.NotNil(t, trait)
	assert.Equal(t, "1.1", *trait)

	avail, err := repo.CurrentAvailability(ctx, f.resA.ID)
	require.NoError(t, err)
	assert.Empty(t, avail)

	require.NoError(t, telemetry.RecordAvailability(ctx, f.resA.ID, entities.AvailabilityUp, t0))
	require.NoError(t, telemetry.RecordAvailability(ctx, f.resA.ID, entities.AvailabilityDown, t0.Add(time.Minute)))
	avail, err = repo.CurrentAvailability(ctx, f.resA.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.AvailabilityDown, avail)

	var open int64
	require.NoError(t, db.Model(&entities.Availability{}).Where("end_time IS NULL").Count(&open).Error)
	assert.Equal(t, int64(1), open)

	cfg, err := repo.CurrentConfiguration(ctx, f.resA.ID)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, telemetry.SaveConfiguration(ctx, f.resA.ID, map[string]string{"port": "80"}))
	require.NoError(t, telemetry.SaveConfiguration(ctx, f.resA.ID, map[string]string{"port": "443"}))
	cfg, err = repo.CurrentConfiguration(ctx, f.resA.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"port": "443"}, cfg)

	ids, err := telemetry.ScheduleIDs(ctx, []uint{f.cpuSchedA.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, []uint{f.cpuSchedA.ID}, ids)
}

func TestConditionLogRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConditionLogRepository(db)
	ctx := t.Context()

	now := time.Now().UTC()
	entries := []entities.ConditionLog{
		{ConditionID: 1, Kind: entities.ConditionLogActivate, Value: "85", FiredAt: now.Add(-48 * time.Hour)},
		{ConditionID: 1, Kind: entities.ConditionLogDeactivate, FiredAt: now.Add(-time.Hour)},
		{ConditionID: 2, Kind: entities.ConditionLogActivate, Value: "ERROR", Detail: "disk full", FiredAt: now},
	}
	for i := range entries {
		require.NoError(t, repo.Save(ctx, &entries[i]))
	}

	list, total, err := repo.List(ctx, ConditionLogFilter{ConditionID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, entities.ConditionLogDeactivate, list[0].Kind, "newest first")

	list, total, err = repo.List(ctx, ConditionLogFilter{Kind: entities.ConditionLogActivate, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 1)
	assert.Equal(t, "disk full", list[0].Detail)

	deleted, err := repo.DeleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err = repo.List(ctx, ConditionLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
