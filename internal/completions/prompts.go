package completions

import "strings"

// Default prompt strings. These mirror the product's Spanish-facing copy and
// are used whenever a bot or tenant does not configure its own text.

var defaultSystemInstructions = strings.Join([]string{
	"Eres un asistente virtual amable y profesional.",
	"Responde siempre en el idioma en el que escribe el usuario.",
	"Responde de forma breve y directa a la pregunta del usuario.",
	"Si no conoces la respuesta, dilo claramente y no inventes información.",
}, "\n")

// invalidResponseMessage is sent to the user when the provider call fails.
const invalidResponseMessage = "Lo siento, hubo un error al generar la respuesta. " +
	"Por favor intenta de nuevo más tarde."

// InvalidResponseMessage returns the fallback text stored and delivered when
// a completion resolves to invalid_response.
func InvalidResponseMessage() string {
	return invalidResponseMessage
}

// wrapUserPrompt applies the bot's per-turn instruction template to the raw
// user prompt.
func wrapUserPrompt(userInstructions, prompt string) string {
	if strings.TrimSpace(userInstructions) == "" {
		return prompt
	}
	return userInstructions + "\n\n" + prompt
}
