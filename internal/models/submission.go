package models

// LineStatus - статус одной реплики внутри отправки.
// Для неудавшихся реплик статус имеет вид "failed:<reason>".
const (
	LineStatusQueued    = "queued"
	LineStatusSucceeded = "succeeded"
	LineStatusFailed    = "failed"
)

// SubmissionStatus - агрегированное состояние одной отправки скрипта.
// Хранится в Redis и обновляется воркерами по мере завершения задач.
type SubmissionStatus struct {
	SubmissionID string            `json:"submissionId"`
	UserID       string            `json:"userId"`
	Total        int64             `json:"total"`
	Pending      int64             `json:"pending"`
	Succeeded    int64             `json:"succeeded"`
	Failed       int64             `json:"failed"`
	Lines        map[string]string `json:"lines"` // индекс реплики -> статус
}

// Terminal сообщает, завершились ли все задачи отправки.
func (s *SubmissionStatus) Terminal() bool {
	return s != nil && s.Pending <= 0
}
