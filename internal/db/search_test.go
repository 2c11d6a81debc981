package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchConversions_SingleTerm(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestConversions(t, db, []*Conversion{
		CreateTestConversion("Meeting Tomorrow", "sender1@test.com", "Let's meet tomorrow at 10am"),
		CreateTestConversion("Project Update", "sender2@test.com", "The project is going well"),
		CreateTestConversion("Meeting Notes", "sender3@test.com", "Here are the meeting notes from yesterday"),
	})

	results, err := db.SearchConversions("meeting", 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	for _, r := range results {
		text := strings.ToLower(r.Subject + " " + r.BodyTextPreview)
		assert.Contains(t, text, "meeting")
	}

	count, err := db.CountSearchResults("meeting")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSearchConversions_MultipleTermsAreANDed(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestConversions(t, db, []*Conversion{
		CreateTestConversion("Meeting Tomorrow", "sender1@test.com", "Let's discuss the project tomorrow"),
		CreateTestConversion("Project Update", "sender2@test.com", "The project is on track"),
		CreateTestConversion("Lunch Plans", "sender3@test.com", "Want to grab lunch tomorrow?"),
	})

	results, err := db.SearchConversions("project meeting", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Meeting Tomorrow", results[0].Subject)
}

func TestSearchConversions_PrefixMatch(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestConversions(t, db, []*Conversion{
		CreateTestConversion("Invoice", "billing@test.com", "Your invoice is attached"),
	})

	results, err := db.SearchConversions("invo", 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchConversions_BySenderAndSource(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestConversions(t, db, []*Conversion{
		CreateTestConversion("Hello", "carol@test.com", "hi"),
		CreateTestConversion("Other", "dave@test.com", "hi"),
	})

	results, err := db.SearchConversions("carol", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Hello", results[0].Subject)

	results, err = db.SearchConversions("Other.eml", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Other", results[0].Subject)
}

func TestSearchConversions_Snippet(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestConversions(t, db, []*Conversion{
		CreateTestConversion("Budget", "cfo@test.com", "The budget review happens on Friday"),
	})

	results, err := db.SearchConversions("review", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Snippet, "<mark>review</mark>")
}

func TestSearchConversions_EmptyQueryListsRecent(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestConversions(t, db, []*Conversion{
		CreateTestConversion("One", "a@test.com", "first"),
		CreateTestConversion("Two", "b@test.com", "second"),
	})

	results, err := db.SearchConversions("   ", 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	count, err := db.CountSearchResults("")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSearchConversions_SpecialCharacters(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	InsertTestConversions(t, db, []*Conversion{
		CreateTestConversion("Quotes", "a@test.com", `she said "hello" to everyone`),
	})

	for _, q := range []string{`"hello"`, `hello"`, `NOT`, `a:b`, `(x`, `-minus`} {
		_, err := db.SearchConversions(q, 10, 0)
		assert.NoError(t, err, "query %q must not break the FTS5 syntax", q)
	}

	results, err := db.SearchConversions(`"hello"`, 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchConversions_UpdateReindexes(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	c := CreateTestConversion("Plan", "a@test.com", "alpha draft")
	InsertTestConversions(t, db, []*Conversion{c})

	updated := CreateTestConversion("Plan", "a@test.com", "omega final")
	InsertTestConversions(t, db, []*Conversion{updated})

	results, err := db.SearchConversions("alpha", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = db.SearchConversions("omega", 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
