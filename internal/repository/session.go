package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Session agrupa las conexiones propias de un worker para ambas bases.
// Se abre por registro y se libera al terminar, pase lo que pase.
type Session interface {
	LegacyUsers() LegacyUserRepository
	WPUsers() WPUserRepository
	Release()
}

// SessionFactory abre sesiones independientes por unidad de trabajo.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// PgSessionFactory toma una conexion de cada pool por sesion.
type PgSessionFactory struct {
	legacy   *pgxpool.Pool
	wp       *pgxpool.Pool
	wpPrefix string
}

func NewPgSessionFactory(legacy, wp *pgxpool.Pool, wpPrefix string) *PgSessionFactory {
	return &PgSessionFactory{legacy: legacy, wp: wp, wpPrefix: wpPrefix}
}

func (f *PgSessionFactory) Open(ctx context.Context) (Session, error) {
	legacyConn, err := f.legacy.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire legacy connection: %w", err)
	}
	wpConn, err := f.wp.Acquire(ctx)
	if err != nil {
		legacyConn.Release()
		return nil, fmt.Errorf("acquire wordpress connection: %w", err)
	}
	return &pgSession{
		legacyConn: legacyConn,
		wpConn:     wpConn,
		legacy:     NewPgLegacyUserRepository(legacyConn),
		wp:         NewPgWPUserRepository(wpConn, f.wpPrefix),
	}, nil
}

type pgSession struct {
	legacyConn *pgxpool.Conn
	wpConn     *pgxpool.Conn
	legacy     *PgLegacyUserRepository
	wp         *PgWPUserRepository
}

func (s *pgSession) LegacyUsers() LegacyUserRepository { return s.legacy }

func (s *pgSession) WPUsers() WPUserRepository { return s.wp }

func (s *pgSession) Release() {
	s.wpConn.Release()
	s.legacyConn.Release()
}
