package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/service"
)

func TestScheduleStep(t *testing.T) {
	f := newFixture(t)
	e := f.enrollment(f.prospects[0].ID)

	row, created, err := f.scheduler.ScheduleStep(f.ctx, f.campaign, e, 2, f.now)
	require.NoError(t, err)
	require.True(t, created)
	// Monday + 3 days is Thursday, still inside the window.
	assert.True(t, row.ScheduledFor.Equal(f.now.Add(72*time.Hour)))
	assert.Equal(t, 2, row.StepNumber)

	again, created, err := f.scheduler.ScheduleStep(f.ctx, f.campaign, e, 2, f.now)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, row.ID, again.ID)

	none, created, err := f.scheduler.ScheduleStep(f.ctx, f.campaign, e, 3, f.now)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, none)
}

func TestRenderStep(t *testing.T) {
	step := &model.SequenceStep{Subject: "Hello {firstName}", Body: "{firstName} at {company}, {unknown}"}
	subject, body := service.RenderStep(step, &model.Prospect{FirstName: "Ana", Company: "Corp"})
	assert.Equal(t, "Hello Ana", subject)
	assert.Equal(t, "Ana at Corp, {unknown}", body)
}
