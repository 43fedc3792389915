package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bangunpro/rab-approval/internal/domain/entity"
)

func TestBuildApprovalRegister(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	res := f.submit(t)

	rs := NewReportService(f.instanceRepo, f.stepRepo, nopLogger{})
	file, err := rs.BuildApprovalRegister(context.Background(), "")
	require.NoError(t, err)
	defer file.Close()

	rows, err := file.GetRows(registerSheet)
	require.NoError(t, err)
	// Header plus one row per ledger step
	require.Len(t, rows, 3)
	assert.Equal(t, "Instance ID", rows[0][0])
	assert.Equal(t, res.InstanceID, rows[1][0])
	assert.Equal(t, entity.EntityTypeRAB, rows[1][1])
	assert.Equal(t, "Manager review", rows[1][9])
	assert.Equal(t, "Director review", rows[2][9])
}

func TestBuildApprovalRegister_EmptyStatusFilter(t *testing.T) {
	f := newApprovalFixture(t, twoStepDefinition(), 600000000)
	f.submit(t)

	rs := NewReportService(f.instanceRepo, f.stepRepo, nopLogger{})
	file, err := rs.BuildApprovalRegister(context.Background(), entity.InstanceStatusApproved)
	require.NoError(t, err)
	defer file.Close()

	rows, err := file.GetRows(registerSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "only the header when no instance matches")
}
