package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/newsletter-backend/pkg/db/models"
	"github.com/angelmondragon/newsletter-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/newsletter-backend/pkg/errors"
	"github.com/angelmondragon/newsletter-backend/pkg/logger"
)

// ErrUnitOfWorkConsumed is returned when a UnitOfWork is used after it was
// committed or rolled back.
var ErrUnitOfWorkConsumed = errors.New("idempotency: unit of work already consumed")

type txBeginner interface {
	Begin(ctx context.Context) (*gorm.DB, error)
}

// NextAction is either StartProcessing or ReturnSavedResponse.
type NextAction interface {
	isNextAction()
}

// StartProcessing hands the caller exclusive ownership of the command. All
// side effects must be written through UnitOfWork.Tx.
type StartProcessing struct {
	UnitOfWork *UnitOfWork
}

// ReturnSavedResponse carries the response recorded by the first submission.
type ReturnSavedResponse struct {
	Response Response
}

func (StartProcessing) isNextAction()     {}
func (ReturnSavedResponse) isNextAction() {}

// UnitOfWork owns the transaction opened by the gate. It is consumed exactly
// once, by Gate.SaveResponse or by Rollback.
type UnitOfWork struct {
	mu      sync.Mutex
	tx      *gorm.DB
	actorID uuid.UUID
	key     Key
}

// Tx returns the open transaction, or nil once the unit of work is consumed.
func (u *UnitOfWork) Tx() *gorm.DB {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tx
}

func (u *UnitOfWork) ActorID() uuid.UUID { return u.actorID }
func (u *UnitOfWork) Key() Key           { return u.key }

// Rollback abandons the command. Safe to defer; a no-op after SaveResponse.
func (u *UnitOfWork) Rollback() error {
	tx, err := u.take()
	if err != nil {
		return nil
	}
	return tx.Rollback().Error
}

func (u *UnitOfWork) take() (*gorm.DB, error) {
	if u == nil {
		return nil, ErrUnitOfWorkConsumed
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tx == nil {
		return nil, ErrUnitOfWorkConsumed
	}
	tx := u.tx
	u.tx = nil
	return tx, nil
}

type GateParams struct {
	DB         txBeginner
	Repository *Repository
	Cache      Cache
	Logger     *logger.Logger
}

// Gate admits at most one execution per (actor, key) and replays the stored
// response for every later submission.
type Gate struct {
	db    txBeginner
	repo  *Repository
	cache Cache
	logg  *logger.Logger
	now   func() time.Time
}

func NewGate(params GateParams) (*Gate, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("idempotency repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Gate{
		db:    params.DB,
		repo:  params.Repository,
		cache: params.Cache,
		logg:  logg,
		now:   time.Now,
	}, nil
}

func (g *Gate) TryProcessing(ctx context.Context, actorID uuid.UUID, key Key) (NextAction, error) {
	logCtx := g.logg.WithFields(ctx, map[string]any{
		"actor_id":        actorID.String(),
		"idempotency_key": key.String(),
	})

	if g.cache != nil {
		resp, ok, err := g.cache.Get(ctx, actorID, key)
		switch {
		case err != nil:
			g.logg.Warn(g.logg.WithField(logCtx, "error", err.Error()), "idempotency cache lookup failed")
		case ok:
			return ReturnSavedResponse{Response: resp}, nil
		}
	}

	tx, err := g.db.Begin(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "begin idempotency transaction")
	}

	inserted, err := g.repo.InsertPlaceholder(ctx, tx, actorID, key.String(), g.now().UTC())
	if err != nil {
		_ = tx.Rollback()
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert idempotency record")
	}
	if inserted {
		return StartProcessing{UnitOfWork: &UnitOfWork{tx: tx, actorID: actorID, key: key}}, nil
	}

	// Release the connection before reading the winner's row.
	_ = tx.Rollback()

	resp, err := g.savedResponse(ctx, actorID, key)
	if err != nil {
		return nil, err
	}
	g.logg.Info(logCtx, "replaying saved response")
	g.putCache(logCtx, actorID, key, resp)
	return ReturnSavedResponse{Response: resp}, nil
}

// SaveResponse records resp for the unit of work's key and commits every
// write made through its transaction.
func (g *Gate) SaveResponse(ctx context.Context, uow *UnitOfWork, resp Response) (Response, error) {
	tx, err := uow.take()
	if err != nil {
		return Response{}, err
	}

	if resp.StatusCode < 100 || resp.StatusCode > 599 {
		_ = tx.Rollback()
		return Response{}, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("invalid response status code %d", resp.StatusCode))
	}

	rows, err := g.repo.Complete(ctx, tx, uow.actorID, uow.key.String(), resp)
	if err != nil {
		_ = tx.Rollback()
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save idempotent response")
	}
	if rows != 1 {
		_ = tx.Rollback()
		return Response{}, pkgerrors.New(pkgerrors.CodeInternal, "idempotency record is not in progress")
	}

	if err := tx.Commit().Error; err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "commit idempotent command")
	}

	logCtx := g.logg.WithFields(ctx, map[string]any{
		"actor_id":        uow.actorID.String(),
		"idempotency_key": uow.key.String(),
		"status_code":     resp.StatusCode,
	})
	g.putCache(logCtx, uow.actorID, uow.key, resp)
	return resp, nil
}

func (g *Gate) savedResponse(ctx context.Context, actorID uuid.UUID, key Key) (Response, error) {
	row, err := g.repo.Find(ctx, actorID, key.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Response{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "idempotency record missing after conflict")
		}
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load saved response")
	}
	return responseFromRow(row)
}

func responseFromRow(row *models.Idempotency) (Response, error) {
	if row.Status != enums.IdempotencyStatusCompleted || row.ResponseStatusCode == nil {
		return Response{}, pkgerrors.New(pkgerrors.CodeRequestInProgress, "a request with this idempotency key is still being processed").
			WithDetails(map[string]any{"idempotency_key": row.IdempotencyKey})
	}
	return Response{
		StatusCode: int(*row.ResponseStatusCode),
		Headers:    row.ResponseHeaders,
		Body:       row.ResponseBody,
	}, nil
}

func (g *Gate) putCache(ctx context.Context, actorID uuid.UUID, key Key, resp Response) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Put(ctx, actorID, key, resp); err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "idempotency cache write failed")
	}
}
