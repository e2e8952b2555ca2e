package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name: "valid payload",
			raw: `{
				"notifications": [
					{"resourceId": "conn-1", "desiredState": "enabled", "ticket": "tk-1"},
					{"resourceId": "conn-2", "desiredState": "disabled"}
				],
				"validationTokens": ["token-a", "token-b"]
			}`,
		},
		{
			name:    "not JSON",
			raw:     `<xml/>`,
			wantErr: "decode payload",
		},
		{
			name:    "no notifications",
			raw:     `{"notifications": [], "validationTokens": ["token-a"]}`,
			wantErr: "no notifications",
		},
		{
			name:    "no validation tokens",
			raw:     `{"notifications": [{"resourceId": "conn-1", "desiredState": "enabled"}]}`,
			wantErr: "no validation tokens",
		},
		{
			name: "missing resource id",
			raw: `{
				"notifications": [{"desiredState": "enabled"}],
				"validationTokens": ["token-a"]
			}`,
			wantErr: "no resource id",
		},
		{
			name: "unknown desired state",
			raw: `{
				"notifications": [{"resourceId": "conn-1", "desiredState": "paused"}],
				"validationTokens": ["token-a"]
			}`,
			wantErr: `unknown desired state "paused"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			envelope, err := parseEnvelope([]byte(tt.raw))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, envelope.Notifications, 2)
			assert.Equal(t, "conn-1", envelope.Notifications[0].ResourceID)
			assert.Equal(t, StateEnabled, envelope.Notifications[0].DesiredState)
			assert.Equal(t, "tk-1", envelope.Notifications[0].Ticket)
			assert.Equal(t, StateDisabled, envelope.Notifications[1].DesiredState)
			assert.Equal(t, []string{"token-a", "token-b"}, envelope.ValidationTokens)
		})
	}
}
