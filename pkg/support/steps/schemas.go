package steps

import "github.com/go-go-golems/supportbot/pkg/support/capability"

var (
	SufficiencySchema = capability.Schema{
		Name: "Enough",
		Fields: []capability.Field{
			{Name: "is_enough", Type: capability.FieldBool, Description: "Whether the information provided by the user is enough to answer the user's query."},
		},
	}

	FollowupSchema = capability.Schema{
		Name: "Question",
		Fields: []capability.Field{
			{Name: "question", Type: capability.FieldString, Description: "The question asked to the user to get more information about the query."},
		},
	}

	DescriptionSchema = capability.Schema{
		Name: "QueryDescription",
		Fields: []capability.Field{
			{Name: "query_description", Type: capability.FieldString, Description: "The description of the query based on the user's answers over the entire conversation."},
		},
	}

	QuerySchema = capability.Schema{
		Name:        "Query",
		Description: "Refined English search query for knowledge base retrieval.",
		Fields: []capability.Field{
			{Name: "query", Type: capability.FieldString, Description: "Refined English version of the user's question for retrieval."},
		},
	}

	RelevanceSchema = capability.Schema{
		Name: "KeepRelevantContent",
		Fields: []capability.Field{
			{Name: "relevant_items", Type: capability.FieldIntegers, Optional: true, Description: "Numbers of the retrieved entries relevant to the query."},
			{Name: "is_relevant_content_present", Type: capability.FieldBool, Description: "Whether any relevant entry is present."},
		},
	}

	EscalationSchema = capability.Schema{
		Name: "RaiseQuery",
		Fields: []capability.Field{
			{Name: "reply", Type: capability.FieldString, Description: "The escalation statement translated into the user's language."},
			{Name: "priority", Type: capability.FieldEnum, Values: []string{"High", "Medium", "Low"}, Description: "Priority based on tone, urgency, issue duration and sentiment of the conversation."},
		},
	}
)
