package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk/internal/domain"
)

type stubDirectory struct {
	byRole map[domain.Role][]*domain.User
	err    error
	calls  []domain.Role
}

func (s *stubDirectory) ListByRole(_ context.Context, role domain.Role) ([]*domain.User, error) {
	s.calls = append(s.calls, role)
	if s.err != nil {
		return nil, s.err
	}
	return s.byRole[role], nil
}

func directory() *stubDirectory {
	return &stubDirectory{byRole: map[domain.Role][]*domain.User{
		domain.RoleServiceAdmin: {
			{ID: "sa2", Active: true},
			{ID: "sa1", Active: true},
			{ID: "sa-off", Active: false},
		},
		domain.RoleProviderAdmin: {
			{ID: "pa1", Active: true},
		},
	}}
}

func ticketWithTech(tech string) *domain.Ticket {
	t := &domain.Ticket{ID: "t1", TicketNumber: "REP-20240501-ABCDEF12", Type: domain.TicketTypeRepair, RequesterID: "req"}
	if tech != "" {
		t.AssignedTechnicianID = &tech
	}
	return t
}

func userIDs(ns []domain.Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.UserID)
	}
	return out
}

func TestRecipients_Approved(t *testing.T) {
	d := NewDispatcher(directory())
	ns, err := d.Recipients(context.Background(), Event{Tag: domain.ActionTagApproved, Ticket: ticketWithTech(""), ActorID: "sa1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"req", "sa2"}, userIDs(ns))
	assert.Equal(t, domain.NotificationSuccess, ns[0].Type)
}

func TestRecipients_MeetingApprovalOnlyNotifiesRequester(t *testing.T) {
	dir := directory()
	meeting := &domain.Ticket{ID: "m1", Type: domain.TicketTypeMeeting, RequesterID: "req"}
	ns, err := NewDispatcher(dir).Recipients(context.Background(), Event{Tag: domain.ActionTagApproved, Ticket: meeting, ActorID: "sa1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"req"}, userIDs(ns))
	assert.Empty(t, dir.calls)
}

func TestRecipients_ExcludesActor(t *testing.T) {
	d := NewDispatcher(directory())
	ns, err := d.Recipients(context.Background(), Event{Tag: domain.ActionTagRepairCompleted, Ticket: ticketWithTech("tech"), ActorID: "tech"})
	require.NoError(t, err)
	assert.Equal(t, []string{"req"}, userIDs(ns))
}

func TestRecipients_AssignedNotifiesTechnician(t *testing.T) {
	d := NewDispatcher(directory())
	ns, err := d.Recipients(context.Background(), Event{Tag: domain.ActionTagAssigned, Ticket: ticketWithTech("U7"), ActorID: "sa1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"U7", "req"}, userIDs(ns))
}

func TestRecipients_AssignmentRejectedReachesPreviousTechnicianAndAdmins(t *testing.T) {
	d := NewDispatcher(directory())
	ns, err := d.Recipients(context.Background(), Event{
		Tag:                  domain.ActionTagAssignmentRejected,
		Ticket:               ticketWithTech(""),
		ActorID:              "tech",
		PreviousTechnicianID: "tech",
		Reason:               "on leave",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"req", "sa1", "sa2"}, userIDs(ns))
	assert.Contains(t, ns[0].Message, "on leave")
}

func TestRecipients_DiagnosisBranches(t *testing.T) {
	cases := []struct {
		repairType domain.RepairType
		want       []string
		kind       domain.NotificationType
	}{
		{domain.RepairTypeDirect, []string{"req"}, domain.NotificationSuccess},
		{domain.RepairTypeNeedSparepart, []string{"pa1", "req"}, domain.NotificationWarning},
		{domain.RepairTypeNeedLicense, []string{"pa1", "req"}, domain.NotificationWarning},
		{domain.RepairTypeUnrepairable, []string{"req", "sa1", "sa2"}, domain.NotificationWarning},
	}
	for _, tc := range cases {
		t.Run(string(tc.repairType), func(t *testing.T) {
			ticket := ticketWithTech("tech")
			ticket.Diagnosis = &domain.Diagnosis{RepairType: tc.repairType}
			ns, err := NewDispatcher(directory()).Recipients(context.Background(), Event{Tag: domain.ActionTagDiagnosisCompleted, Ticket: ticket, ActorID: "tech"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, userIDs(ns))
			assert.Equal(t, tc.kind, ns[0].Type)
		})
	}
}

func TestRecipients_WorkOrderCreatedNotifiesBothAdminRoles(t *testing.T) {
	d := NewDispatcher(directory())
	wo := &domain.WorkOrder{ID: "wo1", Type: domain.WorkOrderTypeVendor}
	ns, err := d.Recipients(context.Background(), Event{Tag: domain.ActionTagWorkOrderCreated, Ticket: ticketWithTech("tech"), WorkOrder: wo, ActorID: "tech"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pa1", "req", "sa1", "sa2"}, userIDs(ns))
	assert.Contains(t, ns[0].Title, "Work order")
}

func TestRecipients_ReadyToResumeMessage(t *testing.T) {
	d := NewDispatcher(directory())
	wo := &domain.WorkOrder{ID: "wo1", Type: domain.WorkOrderTypeSparepart}
	ns, err := d.Recipients(context.Background(), Event{Tag: domain.ActionTagWorkOrderCompleted, Ticket: ticketWithTech("tech"), WorkOrder: wo, ActorID: "pa1", ReadyToResume: true})
	require.NoError(t, err)
	require.Equal(t, []string{"req", "tech"}, userIDs(ns))
	assert.Contains(t, ns[1].Message, "can resume")
}

func TestRecipients_DeterministicFields(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	d := NewDispatcher(directory()).WithClock(func() time.Time { return at })
	ns, err := d.Recipients(context.Background(), Event{Tag: domain.ActionTagSubmitted, Ticket: ticketWithTech(""), ActorID: "req"})
	require.NoError(t, err)

	require.Len(t, ns, 2)
	for _, n := range ns {
		assert.Equal(t, "t1", n.TicketID)
		assert.Equal(t, at, n.CreatedAt)
		assert.NotEmpty(t, n.ID)
		assert.False(t, n.Read)
	}
	assert.NotEqual(t, ns[0].ID, ns[1].ID)
}

func TestRecipients_DirectoryFailure(t *testing.T) {
	dir := &stubDirectory{err: errors.New("db down")}
	_, err := NewDispatcher(dir).Recipients(context.Background(), Event{Tag: domain.ActionTagSubmitted, Ticket: ticketWithTech(""), ActorID: "req"})
	assert.Error(t, err)
}

func TestRecipients_NoTicket(t *testing.T) {
	_, err := NewDispatcher(directory()).Recipients(context.Background(), Event{Tag: domain.ActionTagSubmitted})
	assert.Error(t, err)
}
