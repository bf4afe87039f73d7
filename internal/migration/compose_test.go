package migration

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerostitch/trac-hub/internal/markup"
	"github.com/aerostitch/trac-hub/pkg/models"
)

func newTestComposer(singlePost bool) *Composer {
	resolver := NewResolver(newFakeLookup(nil), nil)
	return NewComposer(resolver, markup.NewConverter(nil, ""), singlePost)
}

// 2015-04-01T13:00:00Z in microseconds.
const testCreated = int64(1427893200000000)

func testTicket() models.Ticket {
	return models.Ticket{
		ID:          42,
		Summary:     "Frobnicator crashes on empty input",
		Description: "It just ''dies''.",
		Reporter:    "alice",
		Status:      "new",
		Component:   "web",
		Priority:    "major",
		CreatedAt:   testCreated,
	}
}

func TestComposeTicketWithoutHistory(t *testing.T) {
	composer := newTestComposer(false)

	issue := composer.Compose(context.Background(), testTicket(), MergeResult{})

	assert.Equal(t, "Frobnicator crashes on empty input", issue.Title)
	assert.Empty(t, issue.Comments)
	assert.False(t, issue.Closed)
	assert.Equal(t, "2015-04-01T13:00:00Z", issue.CreatedAt)
	assert.Empty(t, issue.UpdatedAt)
	assert.Empty(t, issue.ClosedAt)

	// Body is exactly metadata line plus the initial report.
	expected := "**component:** web | **priority:** major\n\n" +
		"`alice` created issue #42 on 2015-04-01T13:00:00Z\n\n" +
		"> It just *dies*."
	assert.Equal(t, expected, issue.Body)
}

func TestComposeMetadataSkipsEmptyFields(t *testing.T) {
	composer := newTestComposer(false)

	ticket := testTicket()
	ticket.Component = ""
	ticket.Priority = ""
	ticket.Resolution = "fixed"
	ticket.Keywords = "crash"

	issue := composer.Compose(context.Background(), ticket, MergeResult{})
	assert.True(t, strings.HasPrefix(issue.Body, "**resolution:** fixed | **keywords:** crash\n\n"))
}

func TestComposeEmptyDescriptionLeavesHeaderOnly(t *testing.T) {
	composer := newTestComposer(false)

	ticket := testTicket()
	ticket.Description = "  \n "
	ticket.Component = ""
	ticket.Priority = ""

	issue := composer.Compose(context.Background(), ticket, MergeResult{})
	assert.Equal(t, "`alice` created issue #42 on 2015-04-01T13:00:00Z", issue.Body)
}

func TestComposeEventsBecomeComments(t *testing.T) {
	composer := newTestComposer(false)

	merged := MergeResult{
		Events: []models.MergedEvent{
			{Kind: models.EventComment, Text: "first comment", Time: testCreated + 60_000_000},
			{Kind: models.EventFieldChange, Text: "status change", Time: testCreated + 120_000_000},
		},
	}

	issue := composer.Compose(context.Background(), testTicket(), merged)
	require.Len(t, issue.Comments, 2)
	assert.Equal(t, "first comment", issue.Comments[0].Body)
	assert.Equal(t, "2015-04-01T13:01:00Z", issue.Comments[0].CreatedAt)
	assert.Equal(t, "status change", issue.Comments[1].Body)
	assert.NotContains(t, issue.Body, "first comment")
}

func TestComposeSinglePostFoldsHistoryIntoBody(t *testing.T) {
	composer := newTestComposer(true)

	merged := MergeResult{
		Events: []models.MergedEvent{
			{Kind: models.EventComment, Text: "first comment", Time: testCreated + 60_000_000},
			{Kind: models.EventFieldChange, Text: "status change", Time: testCreated + 120_000_000},
		},
	}

	issue := composer.Compose(context.Background(), testTicket(), merged)
	assert.Empty(t, issue.Comments)
	assert.Contains(t, issue.Body, "\n\n---\n\nfirst comment\n\n---\n\nstatus change")
}

func TestComposeClosedTicket(t *testing.T) {
	composer := newTestComposer(false)

	ticket := testTicket()
	ticket.Status = "closed"
	ticket.ChangedAt = testCreated + 300_000_000

	issue := composer.Compose(context.Background(), ticket, MergeResult{ClosedAt: testCreated + 240_000_000})
	assert.True(t, issue.Closed)
	assert.Equal(t, "2015-04-01T13:05:00Z", issue.UpdatedAt)
	assert.Equal(t, "2015-04-01T13:04:00Z", issue.ClosedAt)
}

// A closed timestamp from history is only attached when the ticket's final
// status really is closed.
func TestComposeClosedAtNeedsClosedStatus(t *testing.T) {
	composer := newTestComposer(false)

	issue := composer.Compose(context.Background(), testTicket(), MergeResult{ClosedAt: testCreated + 240_000_000})
	assert.False(t, issue.Closed)
	assert.Empty(t, issue.ClosedAt)
}

func TestComposeCarriesLabels(t *testing.T) {
	composer := newTestComposer(false)

	issue := composer.Compose(context.Background(), testTicket(), MergeResult{Labels: []string{"defect", "prio: major"}})
	assert.Equal(t, []string{"defect", "prio: major"}, issue.Labels)
}
