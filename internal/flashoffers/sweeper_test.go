package flashoffers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinvia/revenue-engine/internal/clinics"
	"github.com/clinvia/revenue-engine/internal/gaps"
)

type stubLister struct{ active []clinics.Clinic }

func (s *stubLister) ListActive(ctx context.Context) ([]clinics.Clinic, error) {
	return s.active, nil
}

func TestSweepAllRunsFullLoopPerClinic(t *testing.T) {
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	detector := &stubDetector{gaps: []gaps.Gap{testGap(start)}}
	leads := &stubLeads{leads: leadList(2)}
	appts := &stubAppts{expired: 1}
	campaigns := &stubCampaigns{}
	cooldown, _ := testCooldown(t)
	d, sender, _ := newTestDispatcher(t, detector, leads, appts, campaigns, cooldown)

	sweeper := NewSweeper(&stubLister{active: []clinics.Clinic{{ID: "clinic-1", Active: true}}}, d, time.Minute, nil)
	sweeper.SweepAll(context.Background())

	// Expiry, conversion and dispatch all ran once.
	require.Len(t, appts.created, 2)
	assert.Len(t, sender.msgs, 2)
}

func TestSweepAllSkipsWhenNoActiveClinics(t *testing.T) {
	detector := &stubDetector{gaps: []gaps.Gap{testGap(time.Now())}}
	appts := &stubAppts{}
	cooldown, _ := testCooldown(t)
	d, sender, _ := newTestDispatcher(t, detector, &stubLeads{leads: leadList(2)}, appts, &stubCampaigns{}, cooldown)

	sweeper := NewSweeper(&stubLister{}, d, time.Minute, nil)
	sweeper.SweepAll(context.Background())

	assert.Empty(t, appts.created)
	assert.Empty(t, sender.msgs)
}
