package records_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/entity"
	"github.com/joseph-ayodele/shift-reports/internal/llm"
	"github.com/joseph-ayodele/shift-reports/internal/records"
	"github.com/joseph-ayodele/shift-reports/internal/repository"
	"github.com/joseph-ayodele/shift-reports/internal/repository/repotest"
)

const src = "http://files.test/doc.jpg"

func parse(t *testing.T, raw string) any {
	t.Helper()
	v, err := llm.ParseLenient(raw)
	require.NoError(t, err)
	return v
}

func newWriter(t *testing.T) (*records.Writer, repository.RecordRepository) {
	t.Helper()
	repo := repository.NewRecordRepository(repotest.NewSQLite(t), repotest.Logger())
	return records.NewWriter(repo, repotest.Logger()), repo
}

func TestWrite_WasteExample(t *testing.T) {
	ctx := context.Background()
	w, repo := newWriter(t)
	uploadID := uuid.New()

	out := w.Write(ctx, constants.ReportTypeWaste,
		parse(t, `{"date":"2025-01-06","shift":"shift_1","waste_percentage":0.032,"waste_units":120}`),
		src, records.WithUploadID(uploadID))
	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Written)

	rows, err := repo.ListWasteLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0]
	assert.Equal(t, "2025-01-06", *got.Date)
	assert.Equal(t, "shift_1", *got.Shift)
	assert.Equal(t, "0.032", got.WastePercentage.String())
	assert.EqualValues(t, 120, *got.WasteUnits)
	assert.Equal(t, src, got.SourceFileURL)
	require.NotNil(t, got.UploadID)
	assert.Equal(t, uploadID, *got.UploadID)
}

func TestWrite_EfficiencyPartialBatch(t *testing.T) {
	ctx := context.Background()
	w, repo := newWriter(t)

	out := w.Write(ctx, constants.ReportTypeEfficiency, parse(t, `[
		{"staff_id":"S1","hours":7.5,"date":"2025-01-06"},
		{"hours":8},
		{"staffId":" S3 ","hours":"6","shift":"night"}
	]`), src)

	assert.Equal(t, 2, out.Written)
	assert.Equal(t, 1, out.Skipped)
	require.Error(t, out.Err)
	assert.True(t, errors.Is(out.Err, common.ErrMalformedOutput))
	assert.True(t, records.IsPartial(out))

	rows, err := repo.ListStaffLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	ids := []string{rows[0].StaffID, rows[1].StaffID}
	assert.ElementsMatch(t, []string{"S1", "S3"}, ids)
}

func TestWrite_FactorySingleObjectAndEnvelope(t *testing.T) {
	ctx := context.Background()
	w, repo := newWriter(t)

	out := w.Write(ctx, constants.ReportTypeFactory, parse(t, `{"machine":"Press 4","status":"ok"}`), src)
	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Written)

	out = w.Write(ctx, constants.ReportTypeFactory, parse(t,
		`{"machines":[{"machine_name":"Lathe 2","status":"broken","notes":"coolant"},{"machine":"Saw"}]}`), src)
	require.NoError(t, out.Err)
	assert.Equal(t, 2, out.Written)

	rows, err := repo.ListMachineChecks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	byName := map[string]*entity.MachineCheck{}
	for _, r := range rows {
		byName[r.Machine] = r
	}
	assert.Equal(t, entity.MachineStatusOK, *byName["Press 4"].Status)
	assert.Equal(t, entity.MachineStatusIssue, *byName["Lathe 2"].Status)
	assert.Equal(t, "coolant", *byName["Lathe 2"].Note)
	assert.Nil(t, byName["Saw"].Status)
}

func TestWrite_OnePerUploadTypesRejectLists(t *testing.T) {
	w, repo := newWriter(t)
	ctx := context.Background()

	out := w.Write(ctx, constants.ReportTypeQC, parse(t, `[{"result":"pass"},{"result":"fail"}]`), src)
	require.Error(t, out.Err)
	assert.True(t, errors.Is(out.Err, common.ErrMalformedOutput))
	assert.Zero(t, out.Written)

	rows, err := repo.ListQCFlags(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWrite_QCDefects(t *testing.T) {
	w, repo := newWriter(t)
	ctx := context.Background()

	out := w.Write(ctx, constants.ReportTypeQC,
		parse(t, `{"result":"Failed","defects":"scratch, dent ,","machine_id":"M7","inspector":"K"}`), src)
	require.NoError(t, out.Err)

	rows, err := repo.ListQCFlags(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, entity.QCResultFail, *rows[0].Result)
	assert.Equal(t, []string{"scratch", "dent"}, rows[0].Defects)
	assert.Equal(t, "M7", *rows[0].MachineID)
}

func TestWrite_InvalidOptionalFieldsAreDropped(t *testing.T) {
	ctx := context.Background()

	t.Run("waste non-ISO date", func(t *testing.T) {
		w, repo := newWriter(t)
		out := w.Write(ctx, constants.ReportTypeWaste,
			parse(t, `{"date":"06/01/2025","shift":"shift_1","waste_units":120}`), src)
		require.NoError(t, out.Err)
		assert.Equal(t, 1, out.Written)

		rows, err := repo.ListWasteLogs(ctx, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0].Date)
		assert.Equal(t, "shift_1", *rows[0].Shift)
		assert.EqualValues(t, 120, *rows[0].WasteUnits)
	})

	t.Run("qc non-ISO date", func(t *testing.T) {
		w, repo := newWriter(t)
		out := w.Write(ctx, constants.ReportTypeQC,
			parse(t, `{"date":"Jan 6th","result":"pass","machine_id":"M2"}`), src)
		require.NoError(t, out.Err)
		assert.Equal(t, 1, out.Written)

		rows, err := repo.ListQCFlags(ctx, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0].Date)
		assert.Equal(t, entity.QCResultPass, *rows[0].Result)
	})

	t.Run("factory status outside enum", func(t *testing.T) {
		w, repo := newWriter(t)
		out := w.Write(ctx, constants.ReportTypeFactory,
			parse(t, `[{"machine":"Press 4","status":"Needs oil","note":"squeak"},{"machine":"Saw","status":"OK"}]`), src)
		require.NoError(t, out.Err)
		assert.Equal(t, 2, out.Written)

		rows, err := repo.ListMachineChecks(ctx, 0)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		byName := map[string]*entity.MachineCheck{}
		for _, r := range rows {
			byName[r.Machine] = r
		}
		require.Contains(t, byName, "Press 4")
		assert.Nil(t, byName["Press 4"].Status)
		assert.Equal(t, "squeak", *byName["Press 4"].Note)
		assert.Equal(t, entity.MachineStatusOK, *byName["Saw"].Status)
	})

	t.Run("efficiency hours out of range", func(t *testing.T) {
		w, repo := newWriter(t)
		out := w.Write(ctx, constants.ReportTypeEfficiency,
			parse(t, `[{"staff_id":"S-1","hours":26,"shift":"day"}]`), src)
		require.NoError(t, out.Err)
		assert.Equal(t, 1, out.Written)

		rows, err := repo.ListStaffLogs(ctx, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "S-1", rows[0].StaffID)
		assert.Nil(t, rows[0].Hours)
		assert.Equal(t, "day", *rows[0].Shift)
	})
}

func TestWrite_InvalidIdentifierStillSkips(t *testing.T) {
	w, repo := newWriter(t)
	ctx := context.Background()

	out := w.Write(ctx, constants.ReportTypeEfficiency,
		parse(t, `[{"staff_id":["S1"],"hours":8},{"staff_id":"S2","hours":-1}]`), src)
	assert.Equal(t, 1, out.Written)
	assert.Equal(t, 1, out.Skipped)
	assert.True(t, errors.Is(out.Err, common.ErrMalformedOutput))

	rows, err := repo.ListStaffLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "S2", rows[0].StaffID)
	assert.Nil(t, rows[0].Hours)
}

func TestWrite_EmptyListIsNotAnError(t *testing.T) {
	w, _ := newWriter(t)
	out := w.Write(context.Background(), constants.ReportTypeEfficiency, parse(t, `[]`), src)
	assert.NoError(t, out.Err)
	assert.Zero(t, out.Written)
}

func TestWrite_ScalarOutputIsMalformed(t *testing.T) {
	w, _ := newWriter(t)
	out := w.Write(context.Background(), constants.ReportTypeWaste, parse(t, `"0.03"`), src)
	assert.True(t, errors.Is(out.Err, common.ErrMalformedOutput))
}

type flakyRepo struct {
	repository.RecordRepository
	failStaff map[string]bool
	inserted  []string
}

func (f *flakyRepo) InsertStaffLog(_ context.Context, rec *entity.StaffLog) error {
	if f.failStaff[rec.StaffID] {
		return errors.New("disk full")
	}
	f.inserted = append(f.inserted, rec.StaffID)
	return nil
}

func TestWrite_PersistFailureContinuesBatch(t *testing.T) {
	repo := &flakyRepo{failStaff: map[string]bool{"S2": true}}
	w := records.NewWriter(repo, repotest.Logger())

	out := w.Write(context.Background(), constants.ReportTypeEfficiency,
		parse(t, `[{"staff_id":"S1"},{"staff_id":"S2"},{"staff_id":"S3"},{"hours":1}]`), src)

	assert.Equal(t, 2, out.Written)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 1, out.Skipped)
	require.Error(t, out.Err)
	assert.True(t, errors.Is(out.Err, common.ErrPersist), "persist failures take precedence")
	assert.Contains(t, out.Err.Error(), "disk full")
	assert.Equal(t, []string{"S1", "S3"}, repo.inserted)
}
