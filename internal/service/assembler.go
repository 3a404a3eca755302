package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"comic-server/internal/models"
)

// SpeakerFromLine извлекает имя говорящего из реплики вида "Имя: текст".
// Реплика без двоеточия приписывается говорящему "Unknown".
func SpeakerFromLine(line string) string {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "Unknown"
	}
	speaker := strings.TrimSpace(line[:idx])
	if speaker == "" {
		return "Unknown"
	}
	return speaker
}

// BuildCompositeInstruction собирает текстовую инструкцию для модели
// редактирования изображений. Функция детерминирована: одинаковые входы
// дают байт-в-байт одинаковую инструкцию.
//
// Порядок секций фиксирован: перечисление входных изображений, описание
// сцены, директива комикс-стиля, директива пустого облачка без текста,
// директива визуальной консистентности персонажей.
func BuildCompositeInstruction(characters []models.CharacterRef, desc *models.SceneDescription, targetLine string) (string, error) {
	descJSON, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal scene description: %w", err)
	}

	var sb strings.Builder

	sb.WriteString("Input images:\n")
	for i, ch := range characters {
		sb.WriteString(fmt.Sprintf("- Image %d: reference of the character %q\n", i+1, ch.Name))
	}
	sb.WriteString(fmt.Sprintf("- Image %d: the background scene\n", len(characters)+1))
	sb.WriteString("\n")

	sb.WriteString("Scene description:\n")
	sb.Write(descJSON)
	sb.WriteString("\n\n")

	speaker := SpeakerFromLine(targetLine)
	sb.WriteString(fmt.Sprintf("Render a single comic-style panel capturing the moment %s delivers this line: %q\n\n", speaker, targetLine))

	sb.WriteString(fmt.Sprintf("Add one empty speech bubble above %s. The bubble must contain no text.\n\n", speaker))

	sb.WriteString("Keep every character visually consistent with their reference image: same face, hair, clothing and proportions.")

	return sb.String(), nil
}
