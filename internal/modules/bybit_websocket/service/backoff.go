package service

import "time"

// Backoff: floor, удвоение после каждой неудачи, потолок cap.
// Не потокобезопасен, живёт внутри цикла одного соединения.
type Backoff struct {
	floor time.Duration
	cap   time.Duration
	cur   time.Duration
}

func NewBackoff(floor, cap time.Duration) *Backoff {
	if floor <= 0 {
		floor = time.Second
	}
	if cap < floor {
		cap = floor
	}
	return &Backoff{floor: floor, cap: cap, cur: floor}
}

// Next отдаёт текущую задержку и удваивает следующую.
func (b *Backoff) Next() time.Duration {
	d := b.cur
	b.cur = min(b.cur*2, b.cap)
	return d
}

func (b *Backoff) Reset() { b.cur = b.floor }

func (b *Backoff) Current() time.Duration { return b.cur }
