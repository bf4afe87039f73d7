package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aerostitch/trac-hub/internal/markup"
	"github.com/aerostitch/trac-hub/pkg/models"
)

// singlePostSeparator sits between history entries folded into one body.
const singlePostSeparator = "\n\n---\n\n"

// Composer assembles the GitHub import payload for one ticket from its
// merged history.
type Composer struct {
	resolver  *Resolver
	converter *markup.Converter

	// singlePost folds the whole history into the issue body instead of
	// separate comments.
	singlePost bool
}

// NewComposer creates a composer.
func NewComposer(resolver *Resolver, converter *markup.Converter, singlePost bool) *Composer {
	return &Composer{resolver: resolver, converter: converter, singlePost: singlePost}
}

// Compose builds the import payload. The ticket's summary becomes the title
// verbatim; the body opens with a metadata line and the translated initial
// report, and the merged events become comments unless single-post mode folds
// them into the body.
func (c *Composer) Compose(ctx context.Context, ticket models.Ticket, merged MergeResult) *models.ComposedIssue {
	closed := ticket.Status == statusClosed

	issue := &models.ComposedIssue{
		Title:     ticket.Summary,
		Labels:    merged.Labels,
		Closed:    closed,
		CreatedAt: formatTime(ticket.CreatedAt),
	}
	if ticket.ChangedAt > 0 {
		issue.UpdatedAt = formatTime(ticket.ChangedAt)
	}
	if closed && merged.ClosedAt > 0 {
		issue.ClosedAt = formatTime(merged.ClosedAt)
	}

	parts := []string{}
	if metadata := c.metadataLine(ticket); metadata != "" {
		parts = append(parts, metadata)
	}
	parts = append(parts, c.initialReport(ctx, ticket))
	body := strings.Join(parts, "\n\n")

	if c.singlePost {
		for _, event := range merged.Events {
			if event.Text == "" {
				continue
			}
			body += singlePostSeparator + event.Text
		}
	} else {
		for _, event := range merged.Events {
			if event.Text == "" {
				continue
			}
			issue.Comments = append(issue.Comments, models.Comment{
				CreatedAt: formatTime(event.Time),
				Body:      event.Text,
			})
		}
	}

	issue.Body = body
	return issue
}

// metadataLine joins the ticket's component, priority, resolution and
// keywords, skipping empty ones.
func (c *Composer) metadataLine(ticket models.Ticket) string {
	fields := []struct {
		name  string
		value string
	}{
		{"component", ticket.Component},
		{"priority", ticket.Priority},
		{"resolution", ticket.Resolution},
		{"keywords", ticket.Keywords},
	}

	var parts []string
	for _, field := range fields {
		if field.value != "" {
			parts = append(parts, fmt.Sprintf("**%s:** %s", field.name, field.value))
		}
	}
	return strings.Join(parts, " | ")
}

// initialReport renders the created-the-issue header plus the translated
// ticket description. An empty description leaves just the header.
func (c *Composer) initialReport(ctx context.Context, ticket models.Ticket) string {
	author := c.resolver.ResolveAuthor(ctx, ticket.Reporter)
	header := fmt.Sprintf("`%s` created issue #%d on %s", author, ticket.ID, formatTime(ticket.CreatedAt))
	if strings.TrimSpace(ticket.Description) == "" {
		return header
	}
	return header + "\n\n" + c.converter.Convert(ticket.Description)
}

// formatTime converts a microsecond epoch timestamp to an ISO-8601 UTC
// instant with second precision.
func formatTime(usec int64) string {
	return time.Unix(usec/1_000_000, 0).UTC().Format(time.RFC3339)
}
