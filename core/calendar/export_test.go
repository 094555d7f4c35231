package calendar

import "time"

// SetNow overrides the clock of `svc`.
func (svc *Service) SetNow(now func() time.Time) { svc.now = now }
