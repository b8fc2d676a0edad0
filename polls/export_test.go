package polls

import "time"

// SetClock pins the time seen by the service and its guard.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.guard.now = now
}

// FastHash lowers the bcrypt cost so tests stay quick.
func (s *Service) FastHash() {
	s.cost = 4
}

func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}
