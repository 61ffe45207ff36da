package database

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func TestExpectedStatusSet(t *testing.T) {
	tests := []struct {
		name     string
		codes    string
		accepted []int
		rejected []int
	}{
		{"empty defaults to 200", "", []int{200}, []int{201, 503}},
		{"single code", "204", []int{204}, []int{200}},
		{"multiple codes", "200,204,301", []int{200, 204, 301}, []int{500}},
		{"whitespace tolerated", " 200 , 204 ", []int{200, 204}, []int{301}},
		{"garbage ignored", "abc,200", []int{200}, []int{0}},
		{"all garbage falls back", "abc,def", []int{200}, []int{204}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := &Monitor{ExpectedStatusCodes: tt.codes}
			set := monitor.ExpectedStatusSet()
			for _, code := range tt.accepted {
				if !set[code] {
					t.Errorf("expected %d accepted", code)
				}
			}
			for _, code := range tt.rejected {
				if set[code] {
					t.Errorf("expected %d rejected", code)
				}
			}
		})
	}
}

func TestCheckInDeadline(t *testing.T) {
	created := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	monitor := &Monitor{
		IntervalSeconds:    60,
		GracePeriodSeconds: 30,
		CreatedAt:          created,
	}

	// Never checked in: anchored on creation
	want := created.Add(90 * time.Second)
	if got := monitor.CheckInDeadline(); !got.Equal(want) {
		t.Errorf("expected deadline %v, got %v", want, got)
	}

	// After a check-in the anchor moves
	lastCheckIn := created.Add(time.Hour)
	monitor.LastCheckIn = &lastCheckIn
	want = lastCheckIn.Add(90 * time.Second)
	if got := monitor.CheckInDeadline(); !got.Equal(want) {
		t.Errorf("expected deadline %v, got %v", want, got)
	}
}

func TestIsOutOfRange(t *testing.T) {
	min, max := 10.0, 100.0

	tests := []struct {
		name    string
		monitor Monitor
		value   float64
		want    bool
	}{
		{"both bounds, inside", Monitor{MinValue: &min, MaxValue: &max}, 50, false},
		{"both bounds, at min", Monitor{MinValue: &min, MaxValue: &max}, 10, false},
		{"both bounds, at max", Monitor{MinValue: &min, MaxValue: &max}, 100, false},
		{"below min", Monitor{MinValue: &min, MaxValue: &max}, 9.9, true},
		{"above max", Monitor{MinValue: &min, MaxValue: &max}, 100.1, true},
		{"max only", Monitor{MaxValue: &max}, -1000, false},
		{"min only", Monitor{MinValue: &min}, 1000, false},
		{"no bounds", Monitor{}, 1e9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.monitor.IsOutOfRange(tt.value); got != tt.want {
				t.Errorf("IsOutOfRange(%v): expected %v, got %v", tt.value, tt.want, got)
			}
		})
	}
}

func TestMuteWindowIsActiveAt(t *testing.T) {
	start := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	window := &MuteWindow{StartsAt: start, EndsAt: end}

	if !window.IsActiveAt(start) {
		t.Error("window must be active at its start")
	}
	if window.IsActiveAt(end) {
		t.Error("window must be inactive at its end (half-open interval)")
	}
	if !window.IsActiveAt(start.Add(30 * time.Minute)) {
		t.Error("window must be active inside the interval")
	}
	if window.IsActiveAt(start.Add(-time.Second)) {
		t.Error("window must be inactive before the start")
	}
}

func TestIsPaused(t *testing.T) {
	if (&Service{State: ServiceStateUp}).IsPaused() {
		t.Error("up service must not be paused")
	}
	if !(&Service{State: ServiceStatePaused}).IsPaused() {
		t.Error("paused service must be paused")
	}
}

func TestJSONBRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	contact := &Contact{Name: "Ops"}
	if err := db.Create(contact).Error; err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}
	channel := &ContactChannel{
		ContactID:   contact.ID,
		ChannelType: "webhook",
		Enabled:     true,
		Settings:    JSONB{"url": "https://hooks.example.com", "headers": map[string]interface{}{"X-Token": "abc"}},
	}
	if err := db.Create(channel).Error; err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}

	var loaded ContactChannel
	if err := db.First(&loaded, channel.ID).Error; err != nil {
		t.Fatalf("failed to load channel: %v", err)
	}
	if loaded.Settings["url"] != "https://hooks.example.com" {
		t.Errorf("unexpected settings after round trip: %v", loaded.Settings)
	}
}
