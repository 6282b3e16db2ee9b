package gql

import (
	"strings"
	"time"

	"github.com/SevenTV/AiUsage/structures/v3"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

var Time = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "Time",
	Description: "Time represented in ISO 8601 / RFC 3339.",
	Serialize: func(value interface{}) interface{} {
		switch t := value.(type) {
		case time.Time:
			return t.UTC().Format(time.RFC3339Nano)
		case *time.Time:
			if t == nil {
				return nil
			}
			return t.UTC().Format(time.RFC3339Nano)
		}

		return nil
	},
	ParseValue: func(value interface{}) interface{} {
		s, ok := value.(string)
		if !ok {
			return nil
		}

		return parseTime(s)
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		s, ok := valueAST.(*ast.StringValue)
		if !ok {
			return nil
		}

		return parseTime(s.Value)
	},
})

func parseTime(s string) interface{} {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}

	return t
}

var eventDescriptions = map[structures.AiUsageEventKind]string{
	structures.AiUsageEventKindCodeSuggestionsRequested:   "Code Suggestion was requested.",
	structures.AiUsageEventKindCodeSuggestionShown:        "Code Suggestion was shown in the IDE.",
	structures.AiUsageEventKindCodeSuggestionAccepted:     "Code Suggestion was accepted in the IDE.",
	structures.AiUsageEventKindCodeSuggestionRejected:     "Code Suggestion was rejected in the IDE.",
	structures.AiUsageEventKindCodeSuggestionTokenRefresh: "Code Suggestion token was refreshed.",
	structures.AiUsageEventKindRequestDuoChatResponse:     "Duo Chat response was requested.",
	structures.AiUsageEventKindTroubleshootJob:            "Troubleshoot job feature was used.",
}

// AiUsageEventType enumerates the tracked AI usage events. Enum names are the upper-cased kinds.
var AiUsageEventType = func() *graphql.Enum {
	values := graphql.EnumValueConfigMap{}
	for _, kind := range structures.AiUsageEventKinds {
		values[enumName(kind)] = &graphql.EnumValueConfig{
			Value:       kind,
			Description: eventDescriptions[kind],
		}
	}

	return graphql.NewEnum(graphql.EnumConfig{
		Name:        "AiUsageEventType",
		Description: "Type of AI usage event.",
		Values:      values,
	})
}()

func enumName(kind structures.AiUsageEventKind) string {
	return strings.ToUpper(string(kind))
}
