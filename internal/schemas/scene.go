package schemas

import (
	"encoding/json"
	"fmt"
	"strings"

	"comic-server/internal/models"
)

// SceneDescriptionSchema - JSON Schema ответа модели описания сцены.
// Передается в structured output, чтобы модель не могла опустить поля.
var SceneDescriptionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "subject_description": {
      "type": "string",
      "description": "Who is in the panel: appearance, clothing, identity of the speaker and visible characters"
    },
    "setting_and_scene": {
      "type": "string",
      "description": "Where the panel takes place: location, time of day, environment details"
    },
    "action_or_expression": {
      "type": "string",
      "description": "What the speaker is doing and their facial expression while delivering the line"
    },
    "camera_and_style": {
      "type": "string",
      "description": "Camera angle, framing and visual style of the panel"
    },
    "full_image_prompt": {
      "type": "string",
      "description": "A single self-contained prompt combining all of the above"
    }
  },
  "required": ["subject_description", "setting_and_scene", "action_or_expression", "camera_and_style", "full_image_prompt"],
  "additionalProperties": false
}`)

// ParseSceneDescription parses the model response into a SceneDescription.
// Ответ без всех пяти заполненных полей считается ошибкой описания:
// неполное описание дает непредсказуемую панель.
func ParseSceneDescription(data []byte) (*models.SceneDescription, error) {
	// Модели иногда заворачивают JSON в markdown-ограждение
	cleaned := strings.TrimSpace(string(data))
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var desc models.SceneDescription
	if err := json.Unmarshal([]byte(cleaned), &desc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse scene description: %v", models.ErrDescriptionFailed, err)
	}
	if !desc.IsComplete() {
		return nil, fmt.Errorf("%w: scene description is missing required fields", models.ErrDescriptionFailed)
	}
	return &desc, nil
}
