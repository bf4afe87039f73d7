// Package trac provides read-only access to a Trac project database.
package trac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aerostitch/trac-hub/pkg/models"
)

// Store reads tickets, their histories and session attributes from a Trac
// database. The store never writes.
type Store struct {
	db *gorm.DB
}

// Open connects to the Trac database behind dsn. A "mysql://" prefix selects
// the MySQL driver; anything else is treated as the path of a SQLite file.
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if rest, ok := strings.CutPrefix(dsn, "mysql://"); ok {
		dialector = mysql.Open(rest)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open trac database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ticketRow mirrors Trac's ticket table. Most columns are nullable.
type ticketRow struct {
	ID          int64
	Type        sql.NullString
	Time        sql.NullInt64
	Changetime  sql.NullInt64
	Component   sql.NullString
	Severity    sql.NullString
	Priority    sql.NullString
	Owner       sql.NullString
	Reporter    sql.NullString
	Version     sql.NullString
	Status      sql.NullString
	Resolution  sql.NullString
	Summary     sql.NullString
	Description sql.NullString
	Keywords    sql.NullString
}

type changeRow struct {
	Ticket   int64
	Time     sql.NullInt64
	Author   sql.NullString
	Field    sql.NullString
	Oldvalue sql.NullString
	Newvalue sql.NullString
}

type attachmentRow struct {
	Filename    sql.NullString
	Description sql.NullString
	Size        sql.NullInt64
	Author      sql.NullString
	Time        sql.NullInt64
}

// TicketsFrom returns every ticket with id >= minID in ascending id order.
func (s *Store) TicketsFrom(ctx context.Context, minID int64) ([]models.Ticket, error) {
	var rows []ticketRow
	err := s.db.WithContext(ctx).
		Table("ticket").
		Where("id >= ?", minID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read tickets: %w", err)
	}

	tickets := make([]models.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, models.Ticket{
			ID:          row.ID,
			Summary:     row.Summary.String,
			Description: row.Description.String,
			Reporter:    row.Reporter.String,
			Status:      row.Status.String,
			Resolution:  row.Resolution.String,
			Priority:    row.Priority.String,
			Component:   row.Component.String,
			Type:        row.Type.String,
			Severity:    row.Severity.String,
			Version:     row.Version.String,
			Keywords:    row.Keywords.String,
			Owner:       row.Owner.String,
			CreatedAt:   row.Time.Int64,
			ChangedAt:   row.Changetime.Int64,
		})
	}
	return tickets, nil
}

// Changes returns a ticket's field change history ordered by time. Rows with
// equal timestamps keep the database's row order, which reflects the order
// Trac wrote them.
func (s *Store) Changes(ctx context.Context, ticketID int64) ([]models.ChangeEvent, error) {
	var rows []changeRow
	err := s.db.WithContext(ctx).
		Table("ticket_change").
		Where("ticket = ?", ticketID).
		Order("time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read changes of ticket %d: %w", ticketID, err)
	}

	changes := make([]models.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		changes = append(changes, models.ChangeEvent{
			TicketID: row.Ticket,
			Field:    row.Field.String,
			OldValue: row.Oldvalue.String,
			NewValue: row.Newvalue.String,
			Author:   row.Author.String,
			Time:     row.Time.Int64,
		})
	}
	return changes, nil
}

// Attachments returns a ticket's attachments ordered by upload time.
func (s *Store) Attachments(ctx context.Context, ticketID int64) ([]models.AttachmentEvent, error) {
	var rows []attachmentRow
	err := s.db.WithContext(ctx).
		Table("attachment").
		// The attachment table is shared with wiki pages; the id column holds
		// the ticket number as text.
		Where("type = ? AND id = ?", "ticket", fmt.Sprint(ticketID)).
		Order("time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read attachments of ticket %d: %w", ticketID, err)
	}

	attachments := make([]models.AttachmentEvent, 0, len(rows))
	for _, row := range rows {
		attachments = append(attachments, models.AttachmentEvent{
			TicketID:    ticketID,
			Filename:    row.Filename.String,
			Description: row.Description.String,
			Size:        row.Size.Int64,
			Author:      row.Author.String,
			Time:        row.Time.Int64,
		})
	}
	return attachments, nil
}

// SessionAttribute looks up one attribute of an authenticated session, such
// as the "email" attribute used for identity resolution. The second return
// value reports whether the attribute exists.
func (s *Store) SessionAttribute(ctx context.Context, sid, name string) (string, bool, error) {
	var values []string
	err := s.db.WithContext(ctx).
		Table("session_attribute").
		Where("sid = ? AND authenticated = 1 AND name = ?", sid, name).
		Limit(1).
		Pluck("value", &values).Error
	if err != nil {
		return "", false, fmt.Errorf("failed to read session attribute %s of %s: %w", name, sid, err)
	}
	if len(values) == 0 || values[0] == "" {
		return "", false, nil
	}
	return values[0], true, nil
}
