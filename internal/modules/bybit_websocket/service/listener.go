package service

import "signal_exec/internal/models"

// Listener получает события соединения. Колбэки вызываются из
// горутины соединения: тяжёлую работу уносить в свой воркер.
type Listener interface {
	OnOpen(kind models.StreamKind)
	// OnAuth: err == nil — биржа подтвердила auth.
	OnAuth(kind models.StreamKind, err error)
	OnMessage(kind models.StreamKind, frame models.InFrame)
	OnError(kind models.StreamKind, err error)
	OnClose(kind models.StreamKind, err error)
}

// NopListener — встраивается, чтобы переопределять только нужное.
type NopListener struct{}

func (NopListener) OnOpen(models.StreamKind) {}
func (NopListener) OnAuth(models.StreamKind, error) {}
func (NopListener) OnMessage(models.StreamKind, models.InFrame) {}
func (NopListener) OnError(models.StreamKind, error) {}
func (NopListener) OnClose(models.StreamKind, error) {}
