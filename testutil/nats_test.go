package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"haptics.status", "haptics.status", true},
		{"haptics.status", "haptics.status.x", false},
		{"haptics.*", "haptics.status", true},
		{"haptics.*", "haptics.events.error", false},
		{"haptics.>", "haptics.events.error", true},
		{"haptics.>", "haptics", false},
		{"*.events.*", "studio.events.error", true},
	}
	for _, tt := range tests {
		got := subjectMatches(strings.Split(tt.pattern, "."), strings.Split(tt.subject, "."))
		assert.Equal(t, tt.want, got, "%s ~ %s", tt.pattern, tt.subject)
	}
}

func TestMockNATSClient_PublishSubscribe(t *testing.T) {
	c := NewMockNATSClient()
	ctx := context.Background()

	var got []string
	require.NoError(t, c.Subscribe(ctx, "haptics.events.>", func(_ context.Context, data []byte) {
		got = append(got, string(data))
	}))

	require.NoError(t, c.Publish(ctx, "haptics.events.error", []byte("a")))
	require.NoError(t, c.Publish(ctx, "haptics.status", []byte("b")))

	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, c.GetMessageCount("haptics.status"))
	assert.Equal(t, []string{"haptics.events.error", "haptics.status"}, c.Subjects())

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Publish(ctx, "x", nil), ErrMockClosed)
	assert.ErrorIs(t, c.Subscribe(ctx, "x", func(context.Context, []byte) {}), ErrMockClosed)
}
