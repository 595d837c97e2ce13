package chat

const composedModelPrefix = "Model: "

// Compose prefixes the reply text with the model that produced it, separated by a blank line.
func Compose(modelID, text string) string {
	return composedModelPrefix + modelID + "\n\n" + text
}
