package migration

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aerostitch/trac-hub/internal/markup"
	"github.com/aerostitch/trac-hub/pkg/models"
)

// statusClosed is the Trac status whose transitions set the closed timestamp.
const statusClosed = "closed"

// structuredFields are the ticket fields whose changes render as
// changed/removed/set sentences.
var structuredFields = map[string]bool{
	"owner":      true,
	"status":     true,
	"summary":    true,
	"resolution": true,
	"priority":   true,
	"component":  true,
	"type":       true,
	"severity":   true,
	"platform":   true,
}

// ignoredFields produce no merged event at all. The version field still
// participates in label replay through the rule table, like any other field.
var ignoredFields = map[string]bool{
	"keywords": true,
	"cc":       true,
	"reporter": true,
	"version":  true,
}

// imageExtensions are rendered as inline embeds when attached.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".svg":  true,
}

// classify maps a change event's field name onto the closed set of event
// kinds.
func classify(field string) models.EventKind {
	switch {
	case field == "comment":
		return models.EventComment
	case field == "description":
		return models.EventDescription
	case structuredFields[field]:
		return models.EventFieldChange
	case ignoredFields[field]:
		return models.EventIgnored
	default:
		return models.EventIgnored
	}
}

// MergeResult is the outcome of replaying one ticket's history.
type MergeResult struct {
	// Events holds the renderable events in timestamp order. The synthesized
	// initial report is not part of it; the composer prepends that.
	Events []models.MergedEvent

	// Labels is the final label set, sorted.
	Labels []string

	// ClosedAt is the microsecond timestamp of the latest transition to
	// closed, or zero if the ticket never closed.
	ClosedAt int64
}

// Merger combines a ticket's change and attachment events into one ordered,
// rendered event sequence and replays field transitions into a label state.
type Merger struct {
	resolver  *Resolver
	converter *markup.Converter

	// labels maps a category (field name) to raw value -> label name.
	labels map[string]map[string]string

	// attachmentURL is the base under which raw attachments are reachable,
	// "<base>/<ticket id>/<filename>". Empty disables hyperlinks.
	attachmentURL string
}

// NewMerger creates a merger. labels and attachmentURL may be empty.
func NewMerger(resolver *Resolver, converter *markup.Converter, labels map[string]map[string]string, attachmentURL string) *Merger {
	return &Merger{
		resolver:      resolver,
		converter:     converter,
		labels:        labels,
		attachmentURL: strings.TrimSuffix(attachmentURL, "/"),
	}
}

// rawEvent lets change and attachment events share one sort.
type rawEvent struct {
	change     *models.ChangeEvent
	attachment *models.AttachmentEvent
	time       int64
}

// Merge builds the ordered merged event sequence for one ticket. Events with
// equal timestamps keep the order the source supplied them in, which reflects
// the true order of same-instant writes.
func (m *Merger) Merge(ctx context.Context, ticket models.Ticket, changes []models.ChangeEvent, attachments []models.AttachmentEvent) MergeResult {
	raw := make([]rawEvent, 0, len(changes)+len(attachments))
	for i := range changes {
		raw = append(raw, rawEvent{change: &changes[i], time: changes[i].Time})
	}
	for i := range attachments {
		raw = append(raw, rawEvent{attachment: &attachments[i], time: attachments[i].Time})
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].time < raw[j].time })

	labelState := make(map[string]bool)
	var closedAt int64
	var events []models.MergedEvent

	for _, ev := range raw {
		if ev.attachment != nil {
			events = append(events, models.MergedEvent{
				Kind: models.EventAttachment,
				Text: m.renderAttachment(ctx, ticket.ID, ev.attachment),
				Time: ev.time,
			})
			continue
		}

		change := ev.change

		// Empty comments are dropped outright, with no label or closed-time
		// side effects.
		if change.Field == "comment" && strings.TrimSpace(change.NewValue) == "" {
			continue
		}

		m.replayLabels(labelState, change)
		if change.Field == "status" && change.NewValue == statusClosed {
			closedAt = change.Time
		}

		switch classify(change.Field) {
		case models.EventComment:
			events = append(events, models.MergedEvent{
				Kind: models.EventComment,
				Text: m.renderComment(ctx, change),
				Time: change.Time,
			})
		case models.EventFieldChange:
			events = append(events, models.MergedEvent{
				Kind: models.EventFieldChange,
				Text: m.renderFieldChange(ctx, change),
				Time: change.Time,
			})
		case models.EventDescription:
			// The ticket record already carries the latest description, so
			// the edit only leaves a notice.
			events = append(events, models.MergedEvent{
				Kind: models.EventDescription,
				Text: fmt.Sprintf("`%s` edited the issue description", m.resolver.ResolveAuthor(ctx, change.Author)),
				Time: change.Time,
			})
		case models.EventIgnored:
		}
	}

	m.seedFinalLabels(labelState, ticket)

	labels := make([]string, 0, len(labelState))
	for label := range labelState {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	return MergeResult{Events: events, Labels: labels, ClosedAt: closedAt}
}

// replayLabels applies one field transition to the label state: the label
// mapped from the old value goes away, the one mapped from the new value
// comes in. Unmapped values change nothing.
func (m *Merger) replayLabels(state map[string]bool, change *models.ChangeEvent) {
	rules, ok := m.labels[change.Field]
	if !ok {
		return
	}
	if label, ok := rules[change.OldValue]; ok {
		delete(state, label)
	}
	if label, ok := rules[change.NewValue]; ok {
		state[label] = true
	}
}

// seedFinalLabels adds the labels mapped from the ticket's final field
// values. Values without a rule never enter the set.
func (m *Merger) seedFinalLabels(state map[string]bool, ticket models.Ticket) {
	final := map[string]string{
		"component":  ticket.Component,
		"type":       ticket.Type,
		"resolution": ticket.Resolution,
		"priority":   ticket.Priority,
		"severity":   ticket.Severity,
		"version":    ticket.Version,
	}
	for category, value := range final {
		if label, ok := m.labels[category][value]; ok && value != "" {
			state[label] = true
		}
	}
}

func (m *Merger) renderComment(ctx context.Context, change *models.ChangeEvent) string {
	author := m.resolver.ResolveAuthor(ctx, change.Author)
	return fmt.Sprintf("`%s` commented:\n\n%s", author, m.converter.Convert(change.NewValue))
}

func (m *Merger) renderFieldChange(ctx context.Context, change *models.ChangeEvent) string {
	author := m.resolver.ResolveAuthor(ctx, change.Author)
	switch {
	case change.NewValue == "" && change.OldValue == "":
		return fmt.Sprintf("`%s` removed **%s**", author, change.Field)
	case change.NewValue == "":
		return fmt.Sprintf("`%s` removed **%s** (was `%s`)", author, change.Field, change.OldValue)
	case change.OldValue == "":
		return fmt.Sprintf("`%s` set **%s** to `%s`", author, change.Field, change.NewValue)
	default:
		return fmt.Sprintf("`%s` changed **%s** from `%s` to `%s`", author, change.Field, change.OldValue, change.NewValue)
	}
}

func (m *Merger) renderAttachment(ctx context.Context, ticketID int64, attachment *models.AttachmentEvent) string {
	author := m.resolver.ResolveAuthor(ctx, attachment.Author)
	size := float64(attachment.Size) / 1024.0

	name := fmt.Sprintf("`%s`", attachment.Filename)
	var embed string
	if m.attachmentURL != "" {
		url := fmt.Sprintf("%s/%d/%s", m.attachmentURL, ticketID, attachment.Filename)
		name = fmt.Sprintf("[`%s`](%s)", attachment.Filename, url)
		if imageExtensions[strings.ToLower(path.Ext(attachment.Filename))] {
			embed = fmt.Sprintf("\n\n![%s](%s)", attachment.Filename, url)
		}
	}

	text := fmt.Sprintf("`%s` uploaded file %s (%.1f KiB)", author, name, size)
	if attachment.Description != "" {
		text += "\n\n" + m.converter.Convert(attachment.Description)
	}
	return text + embed
}
