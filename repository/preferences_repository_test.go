package repository

import (
	"errors"
	"reflect"
	"testing"

	"DeckFM/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupGormDB creates an in-memory GORM database with the models migrated.
func setupGormDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open gorm database: %v", err)
	}
	if err := gdb.AutoMigrate(&model.PreferenceRecord{}, &model.PlayHistory{}); err != nil {
		t.Fatalf("failed to migrate models: %v", err)
	}
	return gdb
}

func TestPreferencesRepository(t *testing.T) {
	t.Run("GetReturnsDefaultsWhenEmpty", func(t *testing.T) {
		repo := NewGormPreferencesRepository(setupGormDB(t))

		prefs, err := repo.GetColumnPreferences()
		if err != nil {
			t.Fatalf("failed to get preferences: %v", err)
		}
		want := model.DefaultColumnPreferences()
		if !reflect.DeepEqual(prefs, want) {
			t.Errorf("expected defaults %+v, got %+v", want, prefs)
		}
	})

	t.Run("SaveThenGetRoundTrips", func(t *testing.T) {
		repo := NewGormPreferencesRepository(setupGormDB(t))

		saved := &model.ColumnPreferences{
			Columns:      []string{"title", "artist", "album", "duration", "source"},
			ColumnOrder:  []int{4, 0, 1, 2, 3},
			ColumnWidths: map[string]int{"title": 320, "source": 80},
		}
		if err := repo.SaveColumnPreferences(saved); err != nil {
			t.Fatalf("failed to save preferences: %v", err)
		}

		got, err := repo.GetColumnPreferences()
		if err != nil {
			t.Fatalf("failed to get preferences: %v", err)
		}
		if !reflect.DeepEqual(got, saved) {
			t.Errorf("round trip mismatch: saved %+v, got %+v", saved, got)
		}
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		repo := NewGormPreferencesRepository(setupGormDB(t))

		first := model.DefaultColumnPreferences()
		if err := repo.SaveColumnPreferences(first); err != nil {
			t.Fatalf("failed to save preferences: %v", err)
		}

		second := &model.ColumnPreferences{
			Columns:      []string{"title", "artist"},
			ColumnOrder:  []int{1, 0},
			ColumnWidths: map[string]int{},
		}
		if err := repo.SaveColumnPreferences(second); err != nil {
			t.Fatalf("failed to overwrite preferences: %v", err)
		}

		got, err := repo.GetColumnPreferences()
		if err != nil {
			t.Fatalf("failed to get preferences: %v", err)
		}
		if !reflect.DeepEqual(got, second) {
			t.Errorf("expected %+v, got %+v", second, got)
		}
	})

	t.Run("SaveRejectsBadOrder", func(t *testing.T) {
		repo := NewGormPreferencesRepository(setupGormDB(t))

		cases := map[string]*model.ColumnPreferences{
			"length mismatch": {
				Columns:     []string{"title", "artist"},
				ColumnOrder: []int{0},
			},
			"out of range": {
				Columns:     []string{"title", "artist"},
				ColumnOrder: []int{0, 5},
			},
			"duplicate index": {
				Columns:     []string{"title", "artist"},
				ColumnOrder: []int{0, 0},
			},
		}
		for name, prefs := range cases {
			if err := repo.SaveColumnPreferences(prefs); !errors.Is(err, model.ErrValidation) {
				t.Errorf("%s: expected ErrValidation, got %v", name, err)
			}
		}
	})
}

func TestHistoryRepository(t *testing.T) {
	t.Run("RecordAndRecent", func(t *testing.T) {
		repo := NewGormHistoryRepository(setupGormDB(t))

		for i := 0; i < 3; i++ {
			if err := repo.Record(sampleTrack(i)); err != nil {
				t.Fatalf("failed to record track %d: %v", i, err)
			}
		}

		entries, err := repo.Recent(10)
		if err != nil {
			t.Fatalf("failed to load history: %v", err)
		}
		if len(entries) != 3 {
			t.Errorf("expected 3 entries, got %d", len(entries))
		}
	})

	t.Run("RecentHonorsLimit", func(t *testing.T) {
		repo := NewGormHistoryRepository(setupGormDB(t))

		for i := 0; i < 5; i++ {
			if err := repo.Record(sampleTrack(i)); err != nil {
				t.Fatalf("failed to record track %d: %v", i, err)
			}
		}

		entries, err := repo.Recent(2)
		if err != nil {
			t.Fatalf("failed to load history: %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("expected 2 entries, got %d", len(entries))
		}
	})
}
