package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/shift-reports/internal/entity"
	"github.com/joseph-ayodele/shift-reports/internal/repository"
	"github.com/joseph-ayodele/shift-reports/internal/repository/repotest"
)

func TestRecordRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRecordRepository(repotest.NewSQLite(t), repotest.Logger())
	now := time.Now().UTC().Truncate(time.Microsecond)
	uploadID := uuid.New()
	src := "http://files.test/x.jpg"

	require.NoError(t, repo.InsertStaffLog(ctx, &entity.StaffLog{
		ID: uuid.New(), UploadID: &uploadID, StaffID: "S-17", Hours: ptr(7.5),
		Date: ptr("2025-01-06"), Shift: ptr("shift_1"), SourceFileURL: src, CreatedAt: now,
	}))
	require.NoError(t, repo.InsertMachineCheck(ctx, &entity.MachineCheck{
		ID: uuid.New(), Machine: "Press 4", Status: ptr(entity.MachineStatusIssue),
		Note: ptr("hydraulic leak"), SourceFileURL: src, CreatedAt: now,
	}))
	require.NoError(t, repo.InsertQCFlag(ctx, &entity.QCFlag{
		ID: uuid.New(), Result: ptr(entity.QCResultFail), Defects: []string{"burr", "scratch"},
		MachineID: ptr("M-2"), SourceFileURL: src, CreatedAt: now,
	}))
	pct := decimal.RequireFromString("0.032")
	require.NoError(t, repo.InsertWasteLog(ctx, &entity.WasteLog{
		ID: uuid.New(), Date: ptr("2025-01-06"), Shift: ptr("shift_1"),
		WastePercentage: &pct, WasteUnits: ptr(int64(120)), SourceFileURL: src, CreatedAt: now,
	}))

	staff, err := repo.ListStaffLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, "S-17", staff[0].StaffID)
	require.NotNil(t, staff[0].UploadID)
	assert.Equal(t, uploadID, *staff[0].UploadID)
	assert.InDelta(t, 7.5, *staff[0].Hours, 1e-9)
	assert.Nil(t, staff[0].Notes)

	machines, err := repo.ListMachineChecks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, machines, 1)
	assert.Equal(t, "Issue", *machines[0].Status)
	assert.Nil(t, machines[0].UploadID)

	qc, err := repo.ListQCFlags(ctx, 0)
	require.NoError(t, err)
	require.Len(t, qc, 1)
	assert.Equal(t, []string{"burr", "scratch"}, qc[0].Defects)

	waste, err := repo.ListWasteLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, waste, 1)
	require.NotNil(t, waste[0].WastePercentage)
	assert.True(t, pct.Equal(*waste[0].WastePercentage))
	assert.EqualValues(t, 120, *waste[0].WasteUnits)
	assert.Equal(t, src, waste[0].SourceFileURL)
}
