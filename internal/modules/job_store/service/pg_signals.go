package service

import (
	"context"
	"errors"
	"fmt"

	"signal_exec/internal/models"
	"signal_exec/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

// SignalStore — lookup сигналов, которые продюсер сохранил отдельно от джоба.
type SignalStore struct {
	db db.TxManager
}

func NewSignalStore(tm db.TxManager) *SignalStore {
	return &SignalStore{db: tm}
}

func (s *SignalStore) PutSignal(ctx context.Context, sig models.Signal) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.PutSignal: %w", err)
		}
	}()
	if sig.ID == "" {
		return fmt.Errorf("%w: empty id", models.ErrInvalidSignal)
	}
	payload, err := sonic.Marshal(sig)
	if err != nil {
		return err
	}
	_, err = s.db.Conn().Exec(ctx, `
		INSERT INTO signals (id, payload) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload
	`, sig.ID, payload)
	return err
}

func (s *SignalStore) GetSignal(ctx context.Context, id string) (sig models.Signal, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.GetSignal: %w", err)
		}
	}()
	var payload []byte
	err = s.db.Conn().QueryRow(ctx, `SELECT payload FROM signals WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return sig, fmt.Errorf("%w: %s", models.ErrSignalNotFound, id)
	}
	if err != nil {
		return sig, err
	}
	if err = sonic.Unmarshal(payload, &sig); err != nil {
		return sig, err
	}
	if sig.ID == "" {
		sig.ID = id
	}
	return sig, nil
}
