package router

import (
	"fmt"
	"strings"

	"github.com/noor188/Intelligent-LLM-Router/domain/catalog"
)

// criteria are listed verbatim in every routing prompt.
var criteria = []string{
	"Price",
	"Latency",
	"Accuracy",
	"Context length",
	"Model capabilities",
}

// BuildPrompt renders the meta-model instruction for message. The output depends only on
// the catalog contents and the message.
func BuildPrompt(c *catalog.Catalog, message string) string {
	var b strings.Builder

	b.WriteString("You are an expert in selecting the best LLM model for a given message.\n\n")
	b.WriteString("You are given a user's message and you need to determine which model to use to answer the message,\n")
	b.WriteString("based on the following criteria:\n\n")
	for _, criterion := range criteria {
		fmt.Fprintf(&b, "- %s\n", criterion)
	}

	b.WriteString("\nYou have the following models available:\n<models_available>\n")
	b.WriteString(c.Render())
	b.WriteString("</models_available>\n\n")

	b.WriteString("Route the user's message to the best model based on the criteria above.\n\n")
	b.WriteString("Here is the user's message:\n\n<user_message>\n")
	b.WriteString(message)
	b.WriteString("\n</user_message>\n\n")

	b.WriteString("Answer with exactly one JSON object and nothing else. Keep the model name exactly as listed:\n")
	fmt.Fprintf(&b, "{\n  \"model\": \"%s\",\n  \"reasoning\": \"one sentence explaining the choice\"\n}\n",
		strings.Join(c.IDs(), " | "))

	return b.String()
}
