package settings

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/services/cache"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestUpdateNotifiesAndPersists(t *testing.T) {
	local := cache.NewLocal()
	svc := NewService(local, Defaults(), testLogger())

	var notified []models.ChatSettings
	svc.OnChange(func(s models.ChatSettings) { notified = append(notified, s) })

	updated := Defaults()
	updated.MinInterval = 2 * time.Second
	svc.Update(updated)

	if len(notified) != 1 || notified[0].MinInterval != 2*time.Second {
		t.Errorf("notified = %v", notified)
	}
	if got := svc.Current(); got.MinInterval != 2*time.Second {
		t.Errorf("current = %+v", got)
	}

	// A fresh service picks the persisted values back up.
	again := NewService(local, Defaults(), testLogger())
	if got := again.Current(); got.MinInterval != 2*time.Second {
		t.Errorf("reloaded = %+v", got)
	}
}

func TestUpdateClampsBeforeStoring(t *testing.T) {
	local := cache.NewLocal()
	svc := NewService(local, Defaults(), testLogger())

	var notified []models.ChatSettings
	svc.OnChange(func(s models.ChatSettings) { notified = append(notified, s) })

	updated := Defaults()
	updated.MinInterval = 100 * time.Millisecond
	updated.MaxInterval = 200 * time.Millisecond
	svc.Update(updated)

	// Stored, persisted and notified values all carry the clamped
	// intervals, so the service never disagrees with the scheduler.
	want := models.ChatSettings{
		MinInterval:    500 * time.Millisecond,
		MaxInterval:    time.Second,
		ResponseChance: updated.ResponseChance,
	}
	if got := svc.Current(); got.MinInterval != want.MinInterval || got.MaxInterval != want.MaxInterval {
		t.Errorf("current = %+v", got)
	}
	if saved, ok := local.Settings(); !ok || saved.MinInterval != want.MinInterval || saved.MaxInterval != want.MaxInterval {
		t.Errorf("persisted = %+v", saved)
	}
	if len(notified) != 1 || notified[0].MinInterval != want.MinInterval || notified[0].MaxInterval != want.MaxInterval {
		t.Errorf("notified = %v", notified)
	}
}

func TestTokenOverrides(t *testing.T) {
	svc := NewService(cache.NewLocal(), Defaults(), testLogger())
	svc.SetTokenOverride("a1", 400)

	got := svc.Current()
	if got.TokenOverrides["a1"] != 400 {
		t.Errorf("override = %v", got.TokenOverrides)
	}

	svc.SetTokenOverride("a1", 0)
	if _, ok := svc.Current().TokenOverrides["a1"]; ok {
		t.Error("override survived removal")
	}
}
