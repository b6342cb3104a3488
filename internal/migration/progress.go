package migration

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const progressTotal = 100

// Progress is the state of the last export or import, polled by callers.
type Progress struct {
	Total   int    `json:"total"`
	Current int    `json:"current"`
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
}

func (s *Service) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progress
}

func (s *Service) begin() {
	s.set(Progress{Total: progressTotal, Status: StatusInProgress})
}

func (s *Service) advance(current int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress.Current = current
}

func (s *Service) complete() {
	s.set(Progress{Total: progressTotal, Current: progressTotal, Status: StatusCompleted})
}

func (s *Service) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress.Status = StatusFailed
	s.progress.Error = err.Error()
}

func (s *Service) set(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress = p
}
