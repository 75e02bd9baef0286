package dto

// ── 批处理任务 ──

// RunJobRequest 手动触发任务的参数，不同任务只读取各自需要的字段
type RunJobRequest struct {
	DryRun     bool     `json:"dry_run"`
	Date       string   `json:"date"        binding:"omitempty,datetime=2006-01-02"`
	YearMonth  string   `json:"year_month"`
	StudentIDs []string `json:"student_ids" binding:"omitempty,dive,uuid"`
}

// JobFailure 单个学生处理失败
type JobFailure struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

// JobSummary 一次任务运行的汇总
type JobSummary struct {
	Job       string       `json:"job"`
	RunID     string       `json:"run_id"`
	DryRun    bool         `json:"dry_run,omitempty"`
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Failures  []JobFailure `json:"failures"`
	StartedAt string       `json:"started_at"`
	Duration  string       `json:"duration"`
}

// Fail 记录一个失败项
func (s *JobSummary) Fail(studentID string, err error) {
	s.Failed++
	s.Failures = append(s.Failures, JobFailure{StudentID: studentID, Error: err.Error()})
}
