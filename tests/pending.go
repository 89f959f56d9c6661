package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ukaguzi/core/event"
	"github.com/trezcool/ukaguzi/core/inspection"
)

// TestPendingRepository runs the behaviour every pending submission repository must have.
func TestPendingRepository(t *testing.T, repo inspection.Repository) {
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	newPending := func(id string, createdAt time.Time) inspection.PendingSubmission {
		return inspection.PendingSubmission{
			ID: id,
			Event: event.Event{
				OrgUnit:    "s1",
				Program:    "prog",
				OccurredAt: "2024-06-01",
				DataValues: []event.DataValue{{DataElement: "deSeats", Value: "12"}},
			},
			Attempts:  1,
			LastError: "timeout",
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
	}
	p1 := newPending("8d1e4b9c-2a43-4c44-9f0e-6f0a3c1d2b01", t0.Add(time.Hour))
	p2 := newPending("8d1e4b9c-2a43-4c44-9f0e-6f0a3c1d2b02", t0)

	require.NoError(t, repo.SavePending(ctx, p1))
	require.NoError(t, repo.SavePending(ctx, p2))
	assert.Error(t, repo.SavePending(ctx, p1))

	got, err := repo.QueryPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, p2.ID, got[0].ID) // oldest first
	assert.Equal(t, p1.Event, got[1].Event)
	assert.True(t, p1.CreatedAt.Equal(got[1].CreatedAt))

	p1.Attempts = 2
	p1.LastError = "connection refused"
	p1.UpdatedAt = t0.Add(2 * time.Hour)
	require.NoError(t, repo.UpdatePending(ctx, p1))
	assert.Equal(t, inspection.ErrPendingNotFound, repo.UpdatePending(ctx, newPending("8d1e4b9c-2a43-4c44-9f0e-6f0a3c1d2b03", t0)))

	got, err = repo.QueryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got[1].Attempts)
	assert.Equal(t, "connection refused", got[1].LastError)

	require.NoError(t, repo.DeletePending(ctx))
	require.NoError(t, repo.DeletePending(ctx, p1.ID, p2.ID))
	got, err = repo.QueryPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
