package services

import (
	"context"
	"testing"
	"time"

	"github.com/senyabanana/rfq-service/internal/models"

	"github.com/stretchr/testify/require"
)

func seedNotifications(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	seed := []models.Notification{
		{ID: "n-1", UserID: "prov-a", Type: models.RfqMatched, ReferenceID: "rfq-1", CreatedAt: testNow, Version: 1},
		{ID: "n-2", UserID: "prov-a", Type: models.QuoteAccepted, ReferenceID: "quote-1", CreatedAt: testNow.Add(time.Minute), Version: 1},
		{ID: "n-3", UserID: "prov-a", Type: models.RfqMatched, ReferenceID: "rfq-2", CreatedAt: testNow.Add(2 * time.Minute), Read: true, Version: 2},
		{ID: "n-4", UserID: "prov-b", Type: models.RfqMatched, ReferenceID: "rfq-1", CreatedAt: testNow, Version: 1},
	}
	for _, n := range seed {
		_, err := env.inbox.Insert(ctx, n)
		require.NoError(t, err)
	}
}

func notificationIDs(items []models.Notification) []string {
	ids := make([]string, len(items))
	for i, n := range items {
		ids[i] = n.ID
	}
	return ids
}

func TestListNotifications(t *testing.T) {
	env := newTestEnv(t)
	seedNotifications(t, env)
	matched := models.RfqMatched
	bogus := models.NotificationType("Bogus")

	tests := []struct {
		name    string
		filter  models.NotificationFilter
		want    []string
		wantErr error
	}{
		{name: "all newest first", filter: models.NotificationFilter{Limit: 10}, want: []string{"n-3", "n-2", "n-1"}},
		{name: "unread only", filter: models.NotificationFilter{UnreadOnly: true, Limit: 10}, want: []string{"n-2", "n-1"}},
		{name: "by type", filter: models.NotificationFilter{Type: &matched, Limit: 10}, want: []string{"n-3", "n-1"}},
		{name: "paged", filter: models.NotificationFilter{Limit: 1, Offset: 1}, want: []string{"n-2"}},
		{name: "unknown type", filter: models.NotificationFilter{Type: &bogus, Limit: 10}, wantErr: models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.notifications.ListNotifications(context.Background(), actor("prov-a"), tt.filter)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, notificationIDs(got))
		})
	}
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv(t)
	seedNotifications(t, env)
	ctx := context.Background()

	n, err := env.notifications.MarkRead(ctx, actor("prov-a"), "n-1")
	require.NoError(t, err)
	require.True(t, n.Read)
	require.Equal(t, 2, n.Version)

	again, err := env.notifications.MarkRead(ctx, actor("prov-a"), "n-1")
	require.NoError(t, err)
	require.Equal(t, n, again)

	_, err = env.notifications.MarkRead(ctx, actor("prov-b"), "n-2")
	require.ErrorIs(t, err, models.ErrForbidden)

	_, err = env.notifications.MarkRead(ctx, actor("prov-a"), "missing")
	require.ErrorIs(t, err, models.ErrNotFound)

	unread, err := env.notifications.ListNotifications(ctx, actor("prov-a"), models.NotificationFilter{UnreadOnly: true, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"n-2"}, notificationIDs(unread))
}
