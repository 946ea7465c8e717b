package ai

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/v0xg/formfill/internal/form"
)

const systemPrompt = `You are an expert data generation assistant for web form testing.
Your task is to generate realistic, contextually correct data for a list of form fields.
Pay EXTREME attention to each field's "label", "name", "placeholder" and especially "options".

CRITICAL RULES:
1. Selection fields: if a field has an "options" array, you MUST return one of those exact strings for that field. Do not invent a new value. Never choose a placeholder such as "Select" or "Choose one".
2. Date fields: for fields like "Birth date" or "Start date", generate a realistic date in MM/DD/YYYY format. Birth dates belong to a person between 25 and 65 years old. Future dates fall within the next month.
3. Address fields: City, State (2-letter abbreviation) and Zip Code must be a valid real-world combination.
4. Standard fields: generate plausible first name, last name, email, phone number and similar values in standard formats.
5. Checkboxes: answer "true" or "false".
6. Completeness: you MUST provide exactly one value for EVERY field listed. Do not skip any.

Respond ONLY with a JSON object with a single key "formData": an array of objects, each with a "name" and a "value" string, one per field. No explanation or markdown.`

func buildUserPrompt(fields []form.FieldDescriptor, now time.Time) (string, error) {
	fieldsJSON, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}
	return "Today is " + now.Format("01/02/2006") + ".\n\n" +
		"Here are the fields to fill:\n" + string(fieldsJSON) + "\n\n" +
		`Generate a JSON object with a single key "formData", which is an array of objects, each with a "name" and "value" for every field listed above.`, nil
}
