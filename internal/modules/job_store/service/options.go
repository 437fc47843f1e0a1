package service

import (
	"fmt"
	"time"
)

// Options — общие настройки обеих реализаций стора.
type Options struct {
	// MaxAttempts: протухший claimed-джоб с attempt >= MaxAttempts
	// не возвращается в pending, а падает в failed. 0 — без лимита.
	MaxAttempts int
	// Now — часы in-memory стора; postgres живёт на now() базы.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) exhausted(attempt int) bool {
	return o.MaxAttempts > 0 && attempt >= o.MaxAttempts
}

func exhaustedMessage(attempt int) string {
	return fmt.Sprintf("visibility timeout exceeded after %d attempts", attempt)
}
