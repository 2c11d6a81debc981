package db

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// previewLimit caps the body text kept for full-text search.
const previewLimit = 10 * 1024

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05.999999999-07:00", // driver output with _time_format=sqlite
			"2006-01-02 15:04:05-07:00",
			"2006-01-02 15:04:05.999999999 -0700 MST",
			"2006-01-02 15:04:05 -0700 MST",
			"2006-01-02 15:04:05.999999999 -0700",
			"2006-01-02 15:04:05 -0700",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04:05", // CURRENT_TIMESTAMP
		}

		var t time.Time
		var err error
		for _, format := range formats {
			t, err = time.Parse(format, v)
			if err == nil {
				nt.Time, nt.Valid = t, true
				return nil
			}
		}

		return fmt.Errorf("failed to parse time string %q: %w", v, err)
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// NewNullTime wraps t, treating the zero time as NULL.
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: !t.IsZero()}
}

// Conversion records one source converted to one output.
type Conversion struct {
	ID              int64
	SourceName      string
	SourcePath      string
	Entry           int
	Format          string
	OutputPath      string
	Anchor          string // set when the output is a combined document
	ContentHash     string
	MessageID       string
	Subject         string
	Sender          string
	Date            NullTime
	RawDate         string
	ReplyCount      int
	BodyTextPreview string
	AttachmentCount int
	FileSize        int64
	RunID           string
	ConvertedAt     NullTime
	UpdatedAt       NullTime
}

// GetDate returns the date as time.Time, or zero time if NULL
func (c *Conversion) GetDate() time.Time {
	if c.Date.Valid {
		return c.Date.Time
	}
	return time.Time{}
}

// Attachment is an attachment file written for a conversion.
type Attachment struct {
	ID           int64
	ConversionID int64
	Filename     string
	Path         string
	Size         int64
}

// Record pairs a conversion with the attachments it produced.
type Record struct {
	Conversion  *Conversion
	Attachments []*Attachment
}

const conversionColumns = `
	id, source_name, source_path, entry, format, output_path, anchor,
	content_hash, message_id, subject, sender, date, raw_date, reply_count,
	body_text_preview, attachment_count, file_size, run_id, converted_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversion(row rowScanner, extra ...interface{}) (*Conversion, error) {
	c := &Conversion{}
	var anchor, messageID, subject, sender, rawDate, preview, runID sql.NullString
	var fileSize sql.NullInt64
	dest := []interface{}{
		&c.ID, &c.SourceName, &c.SourcePath, &c.Entry, &c.Format, &c.OutputPath, &anchor,
		&c.ContentHash, &messageID, &subject, &sender, &c.Date, &rawDate, &c.ReplyCount,
		&preview, &c.AttachmentCount, &fileSize, &runID, &c.ConvertedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.Anchor = anchor.String
	c.MessageID = messageID.String
	c.Subject = subject.String
	c.Sender = sender.String
	c.RawDate = rawDate.String
	c.BodyTextPreview = preview.String
	c.FileSize = fileSize.Int64
	c.RunID = runID.String
	return c, nil
}

// RecordConversion stores one conversion and replaces its attachment rows.
func (db *DB) RecordConversion(c *Conversion, atts []*Attachment) (int64, error) {
	ids, err := db.RecordConversions([]*Record{{Conversion: c, Attachments: atts}})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// RecordConversions upserts conversions in a single transaction.
// Returns the row IDs in the same order as the input
func (db *DB) RecordConversions(records []*Record) ([]int64, error) {
	if len(records) == 0 {
		return []int64{}, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.Prepare(`
		INSERT INTO conversions (
			source_name, source_path, entry, format, output_path, anchor,
			content_hash, message_id, subject, sender, date, raw_date, reply_count,
			body_text_preview, attachment_count, file_size, run_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path, entry, format, output_path) DO UPDATE SET
			source_name = excluded.source_name,
			anchor = excluded.anchor,
			content_hash = excluded.content_hash,
			message_id = excluded.message_id,
			subject = excluded.subject,
			sender = excluded.sender,
			date = excluded.date,
			raw_date = excluded.raw_date,
			reply_count = excluded.reply_count,
			body_text_preview = excluded.body_text_preview,
			attachment_count = excluded.attachment_count,
			file_size = excluded.file_size,
			run_id = excluded.run_id,
			converted_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer upsert.Close()

	clearAtts, err := tx.Prepare("DELETE FROM attachments WHERE conversion_id = ?")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer clearAtts.Close()

	insertAtt, err := tx.Prepare(`
		INSERT INTO attachments (conversion_id, filename, path, size)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer insertAtt.Close()

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		c := rec.Conversion
		c.AttachmentCount = len(rec.Attachments)
		var id int64
		err := upsert.QueryRow(
			c.SourceName, c.SourcePath, c.Entry, c.Format, c.OutputPath, c.Anchor,
			c.ContentHash, c.MessageID, c.Subject, c.Sender, c.Date, c.RawDate, c.ReplyCount,
			truncateText(c.BodyTextPreview, previewLimit), c.AttachmentCount, c.FileSize, c.RunID,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to record conversion %s: %w", c.SourceName, err)
		}
		c.ID = id

		if _, err := clearAtts.Exec(id); err != nil {
			return nil, fmt.Errorf("failed to clear attachments for %s: %w", c.SourceName, err)
		}
		for _, att := range rec.Attachments {
			att.ConversionID = id
			res, err := insertAtt.Exec(id, att.Filename, att.Path, att.Size)
			if err != nil {
				return nil, fmt.Errorf("failed to insert attachment %s: %w", att.Filename, err)
			}
			if att.ID, err = res.LastInsertId(); err != nil {
				return nil, fmt.Errorf("failed to get last insert id: %w", err)
			}
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ids, nil
}

// GetConversionByID retrieves a conversion by its ID, or nil if absent
func (db *DB) GetConversionByID(id int64) (*Conversion, error) {
	row := db.QueryRow("SELECT "+conversionColumns+" FROM conversions WHERE id = ?", id)
	c, err := scanConversion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}
	return c, nil
}

// ListConversions retrieves conversions, newest message first
func (db *DB) ListConversions(limit, offset int) ([]*Conversion, error) {
	rows, err := db.Query(`SELECT `+conversionColumns+`
		FROM conversions
		ORDER BY date DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	var conversions []*Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		conversions = append(conversions, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversions: %w", err)
	}

	return conversions, nil
}

// CountConversions returns the total number of conversions
func (db *DB) CountConversions() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM conversions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversions: %w", err)
	}
	return count, nil
}

// DeleteConversion removes a conversion and its attachment rows.
func (db *DB) DeleteConversion(id int64) error {
	if _, err := db.Exec("DELETE FROM conversions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete conversion: %w", err)
	}
	return nil
}

// GetAttachmentsByConversionID retrieves the attachments of a conversion
func (db *DB) GetAttachmentsByConversionID(conversionID int64) ([]*Attachment, error) {
	rows, err := db.Query(`
		SELECT id, conversion_id, filename, path, size
		FROM attachments WHERE conversion_id = ?
		ORDER BY id
	`, conversionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*Attachment
	for rows.Next() {
		att := &Attachment{}
		if err := rows.Scan(&att.ID, &att.ConversionID, &att.Filename, &att.Path, &att.Size); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}

// GetAttachmentByID retrieves a single attachment by ID, or nil if absent
func (db *DB) GetAttachmentByID(id int64) (*Attachment, error) {
	att := &Attachment{}
	err := db.QueryRow(`
		SELECT id, conversion_id, filename, path, size
		FROM attachments WHERE id = ?
	`, id).Scan(&att.ID, &att.ConversionID, &att.Filename, &att.Path, &att.Size)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return att, nil
}

// ContentHashes returns the recorded source hash for each output path already
// produced in format. Paths without a record are absent from the map.
func (db *DB) ContentHashes(format string, outputPaths []string) (map[string]string, error) {
	result := make(map[string]string, len(outputPaths))
	if len(outputPaths) == 0 {
		return result, nil
	}

	// SQLite limits the number of variables in a query (default 999)
	chunkSize := 500
	for i := 0; i < len(outputPaths); i += chunkSize {
		end := i + chunkSize
		if end > len(outputPaths) {
			end = len(outputPaths)
		}
		if err := db.contentHashChunk(format, outputPaths[i:end], result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (db *DB) contentHashChunk(format string, outputPaths []string, result map[string]string) error {
	query := "SELECT output_path, content_hash FROM conversions WHERE format = ? AND output_path IN (?" +
		strings.Repeat(",?", len(outputPaths)-1) + ")"

	args := make([]interface{}, 0, len(outputPaths)+1)
	args = append(args, format)
	for _, p := range outputPaths {
		args = append(args, p)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to look up content hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return fmt.Errorf("failed to scan content hash: %w", err)
		}
		result[path] = hash
	}

	return rows.Err()
}

// truncateText truncates text to maxLen bytes without splitting a rune
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
