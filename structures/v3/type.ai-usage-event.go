package structures

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AiUsageEvent records one interaction of a user with an AI feature inside a namespace.
type AiUsageEvent struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	Timestamp   time.Time          `json:"timestamp" bson:"timestamp"`
	Event       AiUsageEventKind   `json:"event" bson:"event"`
	UserID      primitive.ObjectID `json:"user_id" bson:"user_id"`
	NamespaceID primitive.ObjectID `json:"namespace_id" bson:"namespace_id"`
}

type AiUsageEventKind string

const (
	AiUsageEventKindCodeSuggestionsRequested   AiUsageEventKind = "code_suggestions_requested"
	AiUsageEventKindCodeSuggestionShown        AiUsageEventKind = "code_suggestion_shown_in_ide"
	AiUsageEventKindCodeSuggestionAccepted     AiUsageEventKind = "code_suggestion_accepted_in_ide"
	AiUsageEventKindCodeSuggestionRejected     AiUsageEventKind = "code_suggestion_rejected_in_ide"
	AiUsageEventKindCodeSuggestionTokenRefresh AiUsageEventKind = "code_suggestion_direct_access_token_refresh"
	AiUsageEventKindRequestDuoChatResponse     AiUsageEventKind = "request_duo_chat_response"
	AiUsageEventKindTroubleshootJob            AiUsageEventKind = "troubleshoot_job"
)

// AiUsageEventKinds lists every known kind in declaration order.
var AiUsageEventKinds = []AiUsageEventKind{
	AiUsageEventKindCodeSuggestionsRequested,
	AiUsageEventKindCodeSuggestionShown,
	AiUsageEventKindCodeSuggestionAccepted,
	AiUsageEventKindCodeSuggestionRejected,
	AiUsageEventKindCodeSuggestionTokenRefresh,
	AiUsageEventKindRequestDuoChatResponse,
	AiUsageEventKindTroubleshootJob,
}

// CodeSuggestionEventKinds are the kinds emitted by IDE code suggestions.
var CodeSuggestionEventKinds = []AiUsageEventKind{
	AiUsageEventKindCodeSuggestionsRequested,
	AiUsageEventKindCodeSuggestionShown,
	AiUsageEventKindCodeSuggestionAccepted,
	AiUsageEventKindCodeSuggestionRejected,
}

func (k AiUsageEventKind) IsCodeSuggestion() bool {
	for _, c := range CodeSuggestionEventKinds {
		if c == k {
			return true
		}
	}

	return false
}
