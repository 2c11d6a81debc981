package db

import (
	"fmt"
	"testing"
	"time"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestConversion creates a conversion with default values
func CreateTestConversion(subject, sender, body string) *Conversion {
	return &Conversion{
		SourceName:      subject + ".eml",
		SourcePath:      fmt.Sprintf("/test/%s.eml", subject),
		Format:          "html",
		OutputPath:      fmt.Sprintf("/out/%s.html", subject),
		ContentHash:     fmt.Sprintf("%x", len(subject)+len(body)),
		MessageID:       fmt.Sprintf("<%s@test.com>", subject),
		Subject:         subject,
		Sender:          sender,
		Date:            NewNullTime(time.Now()),
		BodyTextPreview: body,
		FileSize:        int64(len(body)),
	}
}

// CreateTestConversionWithDate creates a conversion with a specific date
func CreateTestConversionWithDate(subject, sender, body string, date time.Time) *Conversion {
	c := CreateTestConversion(subject, sender, body)
	c.Date = NewNullTime(date)
	return c
}

// InsertTestConversions records conversions without attachments and returns them
func InsertTestConversions(t *testing.T, db *DB, conversions []*Conversion) []*Conversion {
	t.Helper()

	for i, c := range conversions {
		if _, err := db.RecordConversion(c, nil); err != nil {
			t.Fatalf("Failed to insert test conversion %d: %v", i, err)
		}
	}

	return conversions
}
