package openai

const extractionResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "text": {"type": "string"},
          "type": {"type": "string"}
        },
        "required": ["text", "type"],
        "additionalProperties": false
      }
    },
    "actions": {
      "type": "array",
      "items": {"type": "string"}
    },
    "tags": {
      "type": "array",
      "items": {
        "type": "string",
        "pattern": "^[a-z]+( [a-z]+)*$"
      }
    }
  },
  "required": ["entities", "actions", "tags"],
  "additionalProperties": false
}`

const extractionPrompt = `Extract the named entities, actionable items and topical tags from the given text and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

` + extractionResponseSchema + `

Rules:
- Entities are people, places, organizations, products or dates mentioned in the text, with a short lowercase type such as "person", "place", "organization".
- Actions are things the text says should be done, phrased as short imperatives, e.g. "rotate the api keys".
- Tags are lowercase topical labels, 1-3 words each, singular form only.
- Include only what is explicitly mentioned or clearly implied by the text. Do not hallucinate.
- If a category has no items, return an empty array for it.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "Remind Priya to renew the TLS certificates before the London launch on Friday."
Output:
{
  "entities": [
    {"text": "Priya", "type": "person"},
    {"text": "London", "type": "place"},
    {"text": "Friday", "type": "date"}
  ],
  "actions": ["renew the tls certificates"],
  "tags": ["tls certificate", "launch"]
}

Example (no actions):
Input: "the eiffel tower is in paris"
Output:
{
  "entities": [
    {"text": "eiffel tower", "type": "building"},
    {"text": "paris", "type": "place"}
  ],
  "actions": [],
  "tags": ["landmark", "travel"]
}`
