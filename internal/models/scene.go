package models

// SceneDescription - структурированное описание сцены, полученное от
// текстовой модели для одной реплики диалога. Либо заполнены все пять полей,
// либо описание считается неудавшимся.
type SceneDescription struct {
	SubjectDescription string `json:"subject_description"`
	SettingAndScene    string `json:"setting_and_scene"`
	ActionOrExpression string `json:"action_or_expression"`
	CameraAndStyle     string `json:"camera_and_style"`
	FullImagePrompt    string `json:"full_image_prompt"`
}

// IsComplete сообщает, заполнены ли все пять обязательных полей.
func (d *SceneDescription) IsComplete() bool {
	if d == nil {
		return false
	}
	return d.SubjectDescription != "" &&
		d.SettingAndScene != "" &&
		d.ActionOrExpression != "" &&
		d.CameraAndStyle != "" &&
		d.FullImagePrompt != ""
}

// CharacterRef - именованный персонаж с ссылкой на подготовленное изображение.
type CharacterRef struct {
	Name     string `json:"name"`
	ImageRef string `json:"imageRef"`
}
