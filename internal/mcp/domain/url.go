package domain

import (
	"fmt"
	"strings"
)

// parseChatIDFromResourceURI extracts the chat ID from a URI of the form
// chat://{chat_id}/{resourceType}. The resourceType parameter is the
// resource suffix (e.g., "events", "chapters").
func parseChatIDFromResourceURI(uri, resourceType string) (string, error) {
	prefix := "chat://"
	suffix := "/" + resourceType

	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("URI must start with %q", prefix)
	}
	if !strings.HasSuffix(uri, suffix) {
		return "", fmt.Errorf("URI must end with %q", suffix)
	}

	chatID := strings.TrimPrefix(uri, prefix)
	chatID = strings.TrimSuffix(chatID, suffix)
	chatID = strings.TrimSpace(chatID)

	if chatID == "" {
		return "", fmt.Errorf("chat ID is required in URI")
	}

	// Reject the template placeholder - an actual chat ID must be provided
	if chatID == "_" {
		return "", fmt.Errorf("chat ID placeholder '_' is not a valid chat ID")
	}

	return chatID, nil
}

// eventsResourceURI builds the events resource URI for a chat.
func eventsResourceURI(chatID string) string {
	return "chat://" + chatID + "/events"
}

// chaptersResourceURI builds the chapters resource URI for a chat.
func chaptersResourceURI(chatID string) string {
	return "chat://" + chatID + "/chapters"
}
