package domain

import (
	"strings"
	"testing"
)

func TestParseChatIDFromResourceURI(t *testing.T) {
	tests := []struct {
		name         string
		uri          string
		resourceType string
		wantID       string
		wantErr      bool
		errContains  string
	}{
		// Valid cases
		{
			name:         "valid events URI",
			uri:          "chat://chat-123/events",
			resourceType: "events",
			wantID:       "chat-123",
			wantErr:      false,
		},
		{
			name:         "valid chapters URI",
			uri:          "chat://chat-456/chapters",
			resourceType: "chapters",
			wantID:       "chat-456",
			wantErr:      false,
		},
		{
			name:         "valid URI with long chat ID",
			uri:          "chat://chat-with-very-long-id-12345/events",
			resourceType: "events",
			wantID:       "chat-with-very-long-id-12345",
			wantErr:      false,
		},
		{
			name:         "valid URI with whitespace trimmed",
			uri:          "chat://  chat-123  /events",
			resourceType: "events",
			wantID:       "chat-123",
			wantErr:      false,
		},

		// Invalid prefix cases
		{
			name:         "missing prefix",
			uri:          "chat-123/events",
			resourceType: "events",
			wantErr:      true,
			errContains:  "URI must start with",
		},
		{
			name:         "wrong prefix",
			uri:          "http://chat-123/events",
			resourceType: "events",
			wantErr:      true,
			errContains:  "URI must start with",
		},

		// Invalid suffix cases
		{
			name:         "missing suffix",
			uri:          "chat://chat-123",
			resourceType: "events",
			wantErr:      true,
			errContains:  "URI must end with",
		},
		{
			name:         "wrong resource type",
			uri:          "chat://chat-123/chapters",
			resourceType: "events",
			wantErr:      true,
			errContains:  "URI must end with",
		},

		// Empty chat ID cases
		{
			name:         "empty chat ID",
			uri:          "chat:///events",
			resourceType: "events",
			wantErr:      true,
			errContains:  "chat ID is required",
		},
		{
			name:         "only whitespace chat ID",
			uri:          "chat://   /events",
			resourceType: "events",
			wantErr:      true,
			errContains:  "chat ID is required",
		},

		// Placeholder rejection
		{
			name:         "placeholder events",
			uri:          "chat://_/events",
			resourceType: "events",
			wantErr:      true,
			errContains:  "chat ID placeholder '_' is not a valid chat ID",
		},
		{
			name:         "placeholder chapters",
			uri:          "chat://_/chapters",
			resourceType: "chapters",
			wantErr:      true,
			errContains:  "chat ID placeholder '_' is not a valid chat ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, err := parseChatIDFromResourceURI(tt.uri, tt.resourceType)

			if tt.wantErr {
				if err == nil {
					t.Errorf("parseChatIDFromResourceURI() expected error but got none")
					return
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("parseChatIDFromResourceURI() error = %v, want error containing %q", err, tt.errContains)
				}
				if gotID != "" {
					t.Errorf("parseChatIDFromResourceURI() gotID = %q, want empty string on error", gotID)
				}
			} else {
				if err != nil {
					t.Errorf("parseChatIDFromResourceURI() unexpected error = %v", err)
					return
				}
				if gotID != tt.wantID {
					t.Errorf("parseChatIDFromResourceURI() gotID = %q, want %q", gotID, tt.wantID)
				}
			}
		})
	}
}
